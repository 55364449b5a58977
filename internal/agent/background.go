// Package agent hosts the two execution contexts of the capture client: the
// long-lived Background that talks to the storage backend, and one Page per
// visited document. They share no state; a Page posts messages to the
// Background inbox and both reach the pending slot through the transient
// store.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/bridge"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/reconcile"
)

// SessionSource reports the backend session.
type SessionSource interface {
	Session(ctx context.Context) (models.Session, error)
}

// Policy are the user settings the Background honors.
type Policy struct {
	AutoSaveEnabled   bool
	ConfirmBeforeSave bool
	// MaxAge bounds how old a pending credential may be when retried.
	MaxAge time.Duration
}

type saveMsg struct {
	cred  models.CapturedCredential
	reply chan reconcile.Outcome
}

type candidatesMsg struct {
	host  string
	reply chan candidatesReply
}

type candidatesReply struct {
	list []reconcile.Candidate
	err  error
}

type pageLoadedMsg struct {
	reply chan reconcile.Outcome
}

// Background serialises every backend interaction on the goroutine running
// Run.
type Background struct {
	engine   *reconcile.Engine
	pending  *bridge.Bridge
	sessions SessionSource
	prompter reconcile.Prompter
	policy   Policy
	log      *zap.Logger

	inbox chan any
	done  chan struct{}
}

// NewBackground wires the engine and the pending slot. prompter may be nil
// when policy.ConfirmBeforeSave is false.
func NewBackground(engine *reconcile.Engine, pending *bridge.Bridge, sessions SessionSource, prompter reconcile.Prompter, policy Policy, log *zap.Logger) *Background {
	if log == nil {
		log = zap.NewNop()
	}
	if policy.MaxAge == 0 {
		policy.MaxAge = bridge.BackgroundMaxAge
	}
	return &Background{
		engine:   engine,
		pending:  pending,
		sessions: sessions,
		prompter: prompter,
		policy:   policy,
		log:      log,
		inbox:    make(chan any, 16),
		done:     make(chan struct{}),
	}
}

// Run processes messages until ctx is done.
func (b *Background) Run(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.inbox:
			b.handle(ctx, msg)
		}
	}
}

func (b *Background) handle(ctx context.Context, msg any) {
	switch m := msg.(type) {
	case saveMsg:
		m.reply <- b.save(ctx, m.cred)
	case candidatesMsg:
		list, err := b.engine.Lookup(ctx, m.host, b.session(ctx))
		m.reply <- candidatesReply{list: list, err: err}
	case pageLoadedMsg:
		if o, ok := b.retryPending(ctx); ok {
			m.reply <- o
		}
		close(m.reply)
	}
}

// post delivers msg unless ctx ends or the Background has stopped first.
func (b *Background) post(ctx context.Context, msg any) bool {
	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}
	select {
	case b.inbox <- msg:
		return true
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	}
}

// SaveNow asks the Background to reconcile cred. The returned channel yields
// exactly one Outcome.
func (b *Background) SaveNow(ctx context.Context, cred models.CapturedCredential) <-chan reconcile.Outcome {
	reply := make(chan reconcile.Outcome, 1)
	if !b.post(ctx, saveMsg{cred: cred, reply: reply}) {
		reply <- reconcile.Outcome{Status: reconcile.Failed, Detail: "background stopped", Err: context.Cause(ctx)}
	}
	return reply
}

// Candidates lists the stored credentials for host.
func (b *Background) Candidates(ctx context.Context, host string) ([]reconcile.Candidate, error) {
	reply := make(chan candidatesReply, 1)
	if !b.post(ctx, candidatesMsg{host: host, reply: reply}) {
		return nil, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.list, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PageLoaded retries the pending credential if a session exists. The
// channel yields the Outcome of a retry, or closes empty when nothing was
// retried.
func (b *Background) PageLoaded(ctx context.Context) <-chan reconcile.Outcome {
	reply := make(chan reconcile.Outcome, 1)
	if !b.post(ctx, pageLoadedMsg{reply: reply}) {
		close(reply)
	}
	return reply
}

// StartPendingRetry calls PageLoaded every interval until ctx is done.
func (b *Background) StartPendingRetry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if o, ok := <-b.PageLoaded(ctx); ok {
					b.log.Info("pending credential retried",
						zap.String("status", string(o.Status)), zap.String("detail", o.Detail))
				}
			}
		}
	}()
}

// session treats a failed introspection as no session.
func (b *Background) session(ctx context.Context) models.Session {
	s, err := b.sessions.Session(ctx)
	if err != nil {
		b.log.Warn("session check failed", zap.Error(err))
		return models.Session{}
	}
	return s
}

func (b *Background) save(ctx context.Context, cred models.CapturedCredential) reconcile.Outcome {
	if !b.policy.AutoSaveEnabled {
		if err := b.pending.Clear(); err != nil {
			b.log.Warn("clear pending credential", zap.Error(err))
		}
		return reconcile.Outcome{Status: reconcile.Declined, Detail: "Auto-save is disabled"}
	}

	session := b.session(ctx)
	if b.policy.ConfirmBeforeSave && session.Authenticated && b.prompter != nil {
		return b.engine.ConfirmAndSave(ctx, cred, session, b.prompter)
	}
	return b.engine.Save(ctx, cred, session)
}

// retryPending takes the pending credential only when authenticated, so an
// unauthenticated tick leaves it for later.
func (b *Background) retryPending(ctx context.Context) (reconcile.Outcome, bool) {
	session := b.session(ctx)
	if !session.Authenticated {
		return reconcile.Outcome{}, false
	}
	cred, ok, err := b.pending.TakeIfFresh(b.policy.MaxAge)
	if err != nil {
		b.log.Warn("read pending credential", zap.Error(err))
		return reconcile.Outcome{}, false
	}
	if !ok {
		return reconcile.Outcome{}, false
	}
	b.log.Info("retrying pending credential", zap.String("website", cred.Website))
	return b.save(ctx, cred), true
}
