package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/bridge"
	"github.com/atinyakov/LoginKeeper/internal/capture"
	"github.com/atinyakov/LoginKeeper/internal/detector"
	"github.com/atinyakov/LoginKeeper/internal/dom"
	"github.com/atinyakov/LoginKeeper/internal/models"
	"github.com/atinyakov/LoginKeeper/internal/reconcile"
)

// ErrSkipped is returned by page operations on a document that matched the
// skip list.
var ErrSkipped = errors.New("page is not instrumented")

// PageConfig is shared by every page the agent opens.
type PageConfig struct {
	Background *Background
	Bridge     *bridge.Bridge
	Detector   *detector.Detector
	Skip       *SkipList
	// MaxAge bounds how old a pending credential may be when a page picks it
	// up on load.
	MaxAge time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// Page is the content context of one document.
type Page struct {
	doc     *dom.Document
	cfg     PageConfig
	machine *capture.Machine
	log     *zap.Logger
	skipped bool

	replies []<-chan reconcile.Outcome
}

// OpenPage instruments doc. A pending credential fresh enough to retry is
// sent to the Background before capture starts.
func OpenPage(ctx context.Context, doc *dom.Document, cfg PageConfig) *Page {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = bridge.ContentMaxAge
	}
	p := &Page{
		doc: doc,
		cfg: cfg,
		log: cfg.Logger.With(zap.String("url", doc.URL())),
	}
	if cfg.Skip.Match(doc.URL()) {
		p.skipped = true
		p.log.Debug("page skipped")
		return p
	}

	if cred, ok, err := cfg.Bridge.TakeIfFresh(cfg.MaxAge); err != nil {
		p.log.Warn("read pending credential", zap.Error(err))
	} else if ok {
		p.log.Info("pending credential found on load", zap.String("website", cred.Website))
		p.replies = append(p.replies, cfg.Background.SaveNow(ctx, cred))
	}

	p.machine = capture.New(doc, capture.Options{
		Detector: cfg.Detector,
		Bridge:   cfg.Bridge,
		OnFinalize: func(cred models.CapturedCredential) {
			p.replies = append(p.replies, cfg.Background.SaveNow(ctx, cred))
		},
		Logger: cfg.Logger,
		Now:    cfg.Now,
	})
	p.machine.Start()
	return p
}

// Skipped reports whether the page matched the skip list.
func (p *Page) Skipped() bool { return p.skipped }

// Machine exposes the capture state, nil for a skipped page.
func (p *Page) Machine() *capture.Machine { return p.machine }

// Candidates lists stored credentials for this page's host.
func (p *Page) Candidates(ctx context.Context) ([]reconcile.Candidate, error) {
	if p.skipped {
		return nil, ErrSkipped
	}
	return p.cfg.Background.Candidates(ctx, p.doc.Hostname())
}

// Fill writes c into the page's fields.
func (p *Page) Fill(c reconcile.Candidate) (bool, error) {
	if p.skipped {
		return false, ErrSkipped
	}
	return p.machine.Fill(c.Username, c.Password), nil
}

// Close unloads the document, which finalizes any capture in progress.
func (p *Page) Close() {
	p.doc.Unload()
	if p.machine != nil {
		p.machine.Stop()
	}
}

// Wait collects the outcomes of every save this page has requested so far.
func (p *Page) Wait(ctx context.Context) ([]reconcile.Outcome, error) {
	replies := p.replies
	p.replies = nil
	var out []reconcile.Outcome
	for _, r := range replies {
		select {
		case o := <-r:
			out = append(out, o)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}
