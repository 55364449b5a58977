// Package reconcile decides what happens to a captured credential: save it,
// report it as a duplicate, or keep it pending until a session exists.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/hostname"
	"github.com/atinyakov/LoginKeeper/internal/models"
)

// PromptTimeout bounds the confirmation prompt. No answer means no.
const PromptTimeout = 15 * time.Second

// Status of a reconciliation.
type Status string

const (
	Saved     Status = "saved"
	Duplicate Status = "duplicate"
	Pending   Status = "pending"
	Failed    Status = "failed"
	// Declined is returned when the user rejected the confirmation prompt or
	// did not answer in time.
	Declined Status = "declined"
)

// Outcome is the typed result of Save and ConfirmAndSave.
type Outcome struct {
	Status Status
	// Detail is a human readable message; for Failed it is the backend's
	// message verbatim.
	Detail string
	// ID of the created record when Status is Saved.
	ID  string
	Err error
}

// CredentialStore is the storage backend as seen by the engine.
type CredentialStore interface {
	Exists(ctx context.Context, q models.ExistsQuery) (bool, error)
	Create(ctx context.Context, c models.NewCredential) (models.StoredCredential, error)
	Search(ctx context.Context, query string) ([]models.StoredCredential, error)
}

// Pender keeps a credential for a later retry.
type Pender interface {
	Handoff(models.CapturedCredential) error
	Clear() error
}

// Prompter presents {website, username} and waits for accept or reject.
type Prompter interface {
	Confirm(ctx context.Context, website, username string) (bool, error)
}

// Candidate is a stored credential offered for the current site.
type Candidate struct {
	ID string
	// Label is markup-free text for display.
	Label    string
	Website  string
	Username string
	Password string
	Favorite bool
}

type Engine struct {
	store         CredentialStore
	pending       Pender
	log           *zap.Logger
	now           func() time.Time
	promptTimeout time.Duration
	policy        *bluemonday.Policy
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func WithPromptTimeout(d time.Duration) Option {
	return func(e *Engine) { e.promptTimeout = d }
}

func NewEngine(store CredentialStore, pending Pender, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		pending:       pending,
		log:           zap.NewNop(),
		now:           time.Now,
		promptTimeout: PromptTimeout,
		policy:        bluemonday.StrictPolicy(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Save runs the existence check and, when nothing matches, creates the
// credential. Without a session the credential is handed back to the pending
// slot with its original timestamp.
func (e *Engine) Save(ctx context.Context, cred models.CapturedCredential, session models.Session) Outcome {
	if !cred.Complete() {
		return Outcome{Status: Failed, Detail: "username and password are required", Err: ErrValidationIncomplete}
	}
	log := e.log.With(zap.String("website", cred.Website))

	if !session.Authenticated {
		if err := e.pending.Handoff(cred); err != nil {
			log.Error("requeue pending credential", zap.Error(err))
			return Outcome{Status: Failed, Detail: "could not keep credential for later", Err: err}
		}
		log.Info("not authenticated, credential kept pending")
		return Outcome{Status: Pending, Detail: "Not authenticated", Err: ErrNotAuthenticated}
	}

	exists, err := e.store.Exists(ctx, models.ExistsQuery{Website: cred.Website, Username: cred.Username})
	switch {
	case err != nil:
		log.Warn("existence check failed, saving anyway", zap.Error(err))
	case exists:
		log.Info("credential already stored")
		e.clearPending(log)
		return Outcome{Status: Duplicate, Detail: "Password already saved"}
	}

	created, err := e.store.Create(ctx, models.NewCredential{
		Website:   cred.Website,
		URL:       cred.URL,
		Username:  cred.Username,
		Password:  cred.Password,
		Category:  string(DetectCategory(cred.Website)),
		Notes:     autoSaveNote(e.now()),
		AutoSaved: true,
	})
	if err != nil {
		if !isBackendResponse(err) {
			err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		log.Error("create credential failed", zap.Error(err))
		return Outcome{Status: Failed, Detail: createErrorDetail(err), Err: err}
	}

	e.clearPending(log)
	log.Info("credential saved", zap.String("id", created.ID))
	return Outcome{Status: Saved, Detail: "Password saved!", ID: created.ID}
}

// ConfirmAndSave asks the user first. A rejection, an error or no answer
// within the prompt timeout yields Declined and drops the pending record.
func (e *Engine) ConfirmAndSave(ctx context.Context, cred models.CapturedCredential, session models.Session, p Prompter) Outcome {
	if !cred.Complete() {
		return Outcome{Status: Failed, Detail: "username and password are required", Err: ErrValidationIncomplete}
	}

	promptCtx, cancel := context.WithTimeout(ctx, e.promptTimeout)
	ok, err := p.Confirm(promptCtx, cred.Website, cred.Username)
	cancel()

	if err != nil || !ok {
		detail := "Save declined"
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "No answer, not saved"
		}
		e.log.Info("save not confirmed", zap.String("website", cred.Website), zap.Error(err))
		e.clearPending(e.log)
		return Outcome{Status: Declined, Detail: detail, Err: err}
	}
	return e.Save(ctx, cred, session)
}

// Lookup lists stored credentials that belong to the site of host.
func (e *Engine) Lookup(ctx context.Context, host string, session models.Session) ([]Candidate, error) {
	if !session.Authenticated {
		return nil, ErrNotAuthenticated
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return nil, nil
	}
	found, err := e.store.Search(ctx, host)
	if err != nil {
		if !isBackendResponse(err) {
			err = fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
		}
		return nil, fmt.Errorf("search %s: %w", host, err)
	}

	var out []Candidate
	for _, c := range found {
		if !belongsTo(host, c) {
			continue
		}
		out = append(out, Candidate{
			ID:       c.ID,
			Label:    e.text(c.Username) + " @ " + e.text(c.Website),
			Website:  c.Website,
			Username: c.Username,
			Password: c.Password,
			Favorite: c.Favorite,
		})
	}
	return out, nil
}

func belongsTo(host string, c models.StoredCredential) bool {
	key := c.URL
	if key == "" {
		key = c.Website
	}
	if hostname.Matches(host, hostname.ExtractHostname(key)) {
		return true
	}
	return c.URL != "" && hostname.Matches(host, hostname.ExtractHostname(c.Website))
}

// text strips markup and leaves plain text.
func (e *Engine) text(s string) string {
	return html.UnescapeString(e.policy.Sanitize(s))
}

func (e *Engine) clearPending(log *zap.Logger) {
	if err := e.pending.Clear(); err != nil {
		log.Warn("clear pending credential", zap.Error(err))
	}
}

func autoSaveNote(t time.Time) string {
	return fmt.Sprintf("Auto-saved on %s at %s", t.Format("1/2/2006"), t.Format("3:04:05 PM"))
}

func createErrorDetail(err error) string {
	var sc statusCoder
	if !errors.As(err, &sc) {
		return "Server unavailable"
	}
	if msg := sc.Error(); msg != "" {
		return msg
	}
	return "Failed to save password"
}
