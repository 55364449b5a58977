// Command certgen writes a development CA, a server certificate and
// optionally a client certificate for the LoginKeeper storage backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atinyakov/LoginKeeper/internal/certgen"
)

func newRootCmd() *cobra.Command {
	var pki certgen.DevPKI
	cmd := &cobra.Command{
		Use:           "certgen",
		Short:         "Generate development TLS material",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := pki.Write(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Certificates generated into %s\n", pki.Dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&pki.Dir, "dir", "certs", "output directory")
	cmd.Flags().StringSliceVar(&pki.Hosts, "host", []string{"localhost"}, "server DNS names")
	cmd.Flags().StringVar(&pki.ClientLogin, "client", "", "also issue a client certificate for this login")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
}
