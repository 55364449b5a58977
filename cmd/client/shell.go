package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/atinyakov/LoginKeeper/internal/agent"
	"github.com/atinyakov/LoginKeeper/internal/bridge"
	"github.com/atinyakov/LoginKeeper/internal/capture"
	"github.com/atinyakov/LoginKeeper/internal/client/prompt"
	"github.com/atinyakov/LoginKeeper/internal/client/storage"
	"github.com/atinyakov/LoginKeeper/internal/detector"
	"github.com/atinyakov/LoginKeeper/internal/dom"
	"github.com/atinyakov/LoginKeeper/internal/reconcile"
)

const shellHelp = `Available commands:
  open <file> <url>        visit a saved page as if served from url
  fields                   show the detected login fields
  type <username|password> <text>
  enter                    press Enter in the password field
  click                    click the submit control
  mutate <file>            append an HTML fragment to the page body
  state                    show the capture state
  unload                   leave the page
  candidates               list stored logins for this site
  fill <n>                 fill the page with candidate n
  help, exit`

const closeTimeout = 5 * time.Second

var errNoPage = errors.New("no page open, use 'open <file> <url>'")

func (a *app) shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Visit pages interactively and capture logins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			s := a.settings
			log := a.log.Log
			client, err := a.apiClient()
			if err != nil {
				return err
			}
			store, err := storage.OpenFileStore(s.PendingFile)
			if err != nil {
				return err
			}
			skip, err := agent.NewSkipList(s.SkipURLPatterns)
			if err != nil {
				return err
			}

			pending := bridge.New(store, bridge.WithLogger(log))
			term := prompt.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
			engine := reconcile.NewEngine(client, pending,
				reconcile.WithLogger(log),
				reconcile.WithPromptTimeout(s.PromptTimeout.Duration))
			bg := agent.NewBackground(engine, pending, client, term, agent.Policy{
				AutoSaveEnabled:   s.AutoSaveEnabled,
				ConfirmBeforeSave: s.ConfirmBeforeSave,
				MaxAge:            s.BackgroundMaxAge.Duration,
			}, log)
			go bg.Run(ctx)
			bg.StartPendingRetry(ctx, s.PendingRetryInterval.Duration)

			sh := &shell{term: term, cfg: agent.PageConfig{
				Background: bg,
				Bridge:     pending,
				Detector:   detector.New(log),
				Skip:       skip,
				MaxAge:     s.ContentMaxAge.Duration,
				Logger:     log,
			}}
			return sh.run(ctx)
		},
	}
}

// shell drives one page at a time the way a user would.
type shell struct {
	term *prompt.Terminal
	cfg  agent.PageConfig

	page       *agent.Page
	doc        *dom.Document
	candidates []reconcile.Candidate
}

func (s *shell) run(ctx context.Context) error {
	s.term.Printf("Type 'help' for a list of commands.\n")
	for {
		s.term.Printf("loginkeeper> ")
		line, err := s.term.ReadLine(ctx)
		if err != nil {
			// Leaving the shell unloads the page; give its save a moment.
			closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
			s.closePage(closeCtx)
			cancel()
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		quit, err := s.exec(ctx, args)
		if err != nil {
			s.term.Printf("error: %v\n", err)
		}
		s.report(ctx)
		if quit {
			s.term.Printf("Bye\n")
			return nil
		}
	}
}

func (s *shell) exec(ctx context.Context, args []string) (quit bool, err error) {
	switch args[0] {
	case "help":
		s.term.Printf("%s\n", shellHelp)
	case "open":
		if len(args) != 3 {
			return false, errors.New("usage: open <file> <url>")
		}
		return false, s.open(ctx, args[1], args[2])
	case "fields":
		m, err := s.machine()
		if err != nil {
			return false, err
		}
		res := m.Fields()
		if !res.Found() {
			s.term.Printf("no login fields\n")
		}
		for _, c := range []*detector.Candidate{res.Username, res.Password} {
			if c != nil {
				s.term.Printf("%s: %s\n", c.Role, c.Element.Label())
			}
		}
	case "type":
		if len(args) < 3 {
			return false, errors.New("usage: type <username|password> <text>")
		}
		el, err := s.field(detector.Role(args[1]))
		if err != nil {
			return false, err
		}
		s.doc.Type(el, strings.Join(args[2:], " "))
	case "enter":
		el, err := s.field(detector.RolePassword)
		if err != nil {
			el, err = s.field(detector.RoleUsername)
		}
		if err != nil {
			return false, err
		}
		s.doc.PressEnter(el)
	case "click":
		m, err := s.machine()
		if err != nil {
			return false, err
		}
		controls := s.cfg.Detector.SubmitControls(s.doc, m.Fields())
		if len(controls) == 0 {
			return false, errors.New("no submit control")
		}
		s.doc.Click(controls[0])
	case "mutate":
		if len(args) != 2 {
			return false, errors.New("usage: mutate <file>")
		}
		return false, s.mutate(args[1])
	case "state":
		m, err := s.machine()
		if err != nil {
			return false, err
		}
		u, p := m.Captured()
		s.term.Printf("state: %s, trigger: %q, username: %q, password set: %t\n",
			m.State(), m.Trigger(), u, p != "")
	case "unload":
		if s.page == nil {
			return false, errNoPage
		}
		s.closePage(ctx)
	case "candidates":
		if s.page == nil {
			return false, errNoPage
		}
		list, err := s.page.Candidates(ctx)
		if err != nil {
			return false, err
		}
		s.candidates = list
		if len(list) == 0 {
			s.term.Printf("no stored logins for %s\n", s.doc.Hostname())
		}
		for i, c := range list {
			s.term.Printf("%d. %s\n", i+1, c.Label)
		}
	case "fill":
		if s.page == nil {
			return false, errNoPage
		}
		if len(args) != 2 {
			return false, errors.New("usage: fill <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 || n > len(s.candidates) {
			return false, fmt.Errorf("no candidate %q, run 'candidates' first", args[1])
		}
		ok, err := s.page.Fill(s.candidates[n-1])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, errors.New("nothing to fill")
		}
		s.term.Printf("filled\n")
	case "exit", "quit":
		s.closePage(ctx)
		return true, nil
	default:
		s.term.Printf("Unknown command. Type 'help' for a list of commands.\n")
	}
	return false, nil
}

func (s *shell) open(ctx context.Context, path, pageURL string) error {
	doc, err := openDocument(path, pageURL)
	if err != nil {
		return err
	}
	s.closePage(ctx)
	s.doc = doc
	s.page = agent.OpenPage(ctx, doc, s.cfg)
	if s.page.Skipped() {
		s.term.Printf("%s is not instrumented\n", pageURL)
		return nil
	}
	s.term.Printf("opened %s\n", doc.Hostname())
	return nil
}

func (s *shell) mutate(path string) error {
	if s.doc == nil {
		return errNoPage
	}
	body := s.doc.Body()
	if body == nil {
		return errors.New("page has no body")
	}
	fragment, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = s.doc.AppendHTML(body, string(fragment))
	return err
}

func (s *shell) machine() (*capture.Machine, error) {
	if s.page == nil {
		return nil, errNoPage
	}
	if s.page.Skipped() {
		return nil, agent.ErrSkipped
	}
	return s.page.Machine(), nil
}

func (s *shell) field(role detector.Role) (*dom.Element, error) {
	m, err := s.machine()
	if err != nil {
		return nil, err
	}
	res := m.Fields()
	var c *detector.Candidate
	switch role {
	case detector.RoleUsername:
		c = res.Username
	case detector.RolePassword:
		c = res.Password
	default:
		return nil, fmt.Errorf("unknown field %q", role)
	}
	if c == nil {
		return nil, fmt.Errorf("no %s field", role)
	}
	return c.Element, nil
}

// closePage unloads the current page, which finalizes a capture in progress.
func (s *shell) closePage(ctx context.Context) {
	if s.page == nil {
		return
	}
	s.page.Close()
	s.report(ctx)
	s.page, s.doc, s.candidates = nil, nil, nil
}

// report prints the outcome of every save the page requested.
func (s *shell) report(ctx context.Context) {
	if s.page == nil {
		return
	}
	out, err := s.page.Wait(ctx)
	for _, o := range out {
		s.term.Printf("[%s] %s\n", o.Status, o.Detail)
	}
	if err != nil {
		s.term.Printf("error: %v\n", err)
	}
}
