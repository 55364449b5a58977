// Command loginkeeper is the capture client: it registers with the storage
// backend, inspects pages for login fields and runs an interactive shell in
// which page visits are captured and saved.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/certgen"
	"github.com/atinyakov/LoginKeeper/internal/client/api"
	"github.com/atinyakov/LoginKeeper/internal/config"
	"github.com/atinyakov/LoginKeeper/internal/detector"
	"github.com/atinyakov/LoginKeeper/internal/dom"
	"github.com/atinyakov/LoginKeeper/internal/health"
	"github.com/atinyakov/LoginKeeper/internal/logger"
)

var (
	version   string
	buildDate string
)

type app struct {
	configPath string
	settings   config.Settings
	log        *logger.Logger
}

func (a *app) init() error {
	s, err := config.LoadSettings(a.configPath)
	if err != nil {
		return err
	}
	a.settings = s
	a.log = logger.New()
	a.log.Development = true
	return a.log.Init(s.LogLevel)
}

func (a *app) caPath() string {
	return filepath.Join(a.settings.CertDir, certgen.CACertFile)
}

// apiClient presents the registered certificate when there is one. Without
// it the backend reports every session as unauthenticated.
func (a *app) apiClient() (*api.Client, error) {
	certPath := filepath.Join(a.settings.CertDir, api.ClientCertFile)
	keyPath := filepath.Join(a.settings.CertDir, api.ClientKeyFile)

	var (
		httpClient *http.Client
		err        error
	)
	if _, statErr := os.Stat(certPath); statErr == nil {
		httpClient, err = api.NewTLSClient(certPath, keyPath, a.caPath())
	} else {
		a.log.Log.Info("no client certificate, continuing unauthenticated", zap.String("path", certPath))
		httpClient, err = api.NewAnonymousTLSClient(a.caPath())
	}
	if err != nil {
		return nil, err
	}
	return api.New(httpClient, a.settings.BaseURL, a.log.Log), nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "loginkeeper",
		Short:         "Capture logins and keep them in the LoginKeeper backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "loginkeeper.json", "settings file")

	root.AddCommand(
		versionCmd(),
		a.registerCmd(),
		a.detectCmd(),
		a.strengthCmd(),
		a.healthCmd(),
		a.listCmd(),
		a.deleteCmd(),
		a.shellCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build version and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "LoginKeeper Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
			return nil
		},
	}
}

func (a *app) registerCmd() *cobra.Command {
	var login string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and store its client certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if login == "" {
				return errors.New("please provide --login")
			}
			certPath, _, err := api.Register(cmd.Context(), a.settings.BaseURL, login, a.caPath(), a.settings.CertDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s, certificate saved to %s\n", login, certPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&login, "login", "", "account name")
	return cmd
}

func (a *app) detectCmd() *cobra.Command {
	var pageURL string
	cmd := &cobra.Command{
		Use:   "detect <file>",
		Short: "Show the login fields found in a saved page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := openDocument(args[0], pageURL)
			if err != nil {
				return err
			}
			det := detector.New(a.log.Log)
			printDetection(cmd.OutOrStdout(), det, doc)
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "https://localhost/", "address the page was served from")
	return cmd
}

func (a *app) strengthCmd() *cobra.Command {
	var remote bool
	cmd := &cobra.Command{
		Use:   "strength <password>",
		Short: "Rate a password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !remote {
				return printJSON(cmd.OutOrStdout(), health.Inspect(args[0]))
			}
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			check, err := c.CheckStrength(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), check)
		},
	}
	cmd.Flags().BoolVar(&remote, "remote", false, "ask the backend instead of scoring locally")
	return cmd
}

func (a *app) healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Summarize the health of every stored password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			sum, err := c.Health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sum)
		},
	}
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [query]",
		Short: "List stored credentials",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			creds, err := c.Search(cmd.Context(), query)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWEBSITE\tUSERNAME\tCATEGORY\tFAVORITE")
			for _, cr := range creds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n", cr.ID, cr.Website, cr.Username, cr.Category, cr.Favorite)
			}
			return tw.Flush()
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.apiClient()
			if err != nil {
				return err
			}
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credential deleted")
			return nil
		},
	}
}

func openDocument(path, pageURL string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dom.Parse(f, pageURL)
}

func printDetection(w io.Writer, det *detector.Detector, doc *dom.Document) {
	res := det.Detect(doc)
	if !res.Found() {
		fmt.Fprintln(w, "no login fields")
		return
	}
	for _, c := range []*detector.Candidate{res.Username, res.Password} {
		if c == nil {
			continue
		}
		fmt.Fprintf(w, "%s: %s (rule %s)\n", c.Role, c.Element.Label(), c.Rule.Name)
	}
	if res.Form != nil {
		fmt.Fprintf(w, "form: %s\n", res.Form.Label())
	}
	for _, el := range det.SubmitControls(doc, res) {
		fmt.Fprintf(w, "submit: %s\n", el.Label())
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "loginkeeper:", err)
		os.Exit(1)
	}
}
