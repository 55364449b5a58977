// Package bridge hands a captured credential across a navigation through a
// single well-known slot of the transient store.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/client/storage"
	"github.com/atinyakov/LoginKeeper/internal/models"
)

// PendingKey is the slot holding the one pending credential.
const PendingKey = "pendingCredentials"

// Freshness windows. The page window is shorter so a redirect chain in the
// same tab cannot claim a credential for long.
const (
	BackgroundMaxAge = 60 * time.Second
	ContentMaxAge    = 30 * time.Second
)

type record struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Website   string `json:"website"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// Bridge is safe to share between contexts as long as the store is.
type Bridge struct {
	store storage.Store
	now   func() time.Time
	log   *zap.Logger
}

type Option func(*Bridge)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Bridge) { b.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func New(store storage.Store, opts ...Option) *Bridge {
	b := &Bridge{store: store, now: time.Now, log: zap.NewNop()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Handoff writes cred into the pending slot, replacing whatever was there.
// A zero timestamp is stamped with the current time. It returns only after
// the store has accepted the write.
func (b *Bridge) Handoff(cred models.CapturedCredential) error {
	ts := cred.Timestamp
	if ts.IsZero() {
		ts = b.now()
	}
	raw, err := json.Marshal(record{
		Username:  cred.Username,
		Password:  cred.Password,
		Website:   cred.Website,
		URL:       cred.URL,
		Timestamp: ts.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode pending credential: %w", err)
	}
	if err := b.store.Set(PendingKey, raw); err != nil {
		return fmt.Errorf("store pending credential: %w", err)
	}
	b.log.Debug("pending credential stored", zap.String("website", cred.Website))
	return nil
}

// TakeIfFresh consumes the pending slot. The credential is returned only when
// it is younger than maxAge; the slot is cleared either way, so a record is
// yielded at most once.
func (b *Bridge) TakeIfFresh(maxAge time.Duration) (models.CapturedCredential, bool, error) {
	raw, ok, err := b.take()
	if err != nil || !ok {
		return models.CapturedCredential{}, false, err
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		b.log.Warn("discarding corrupt pending credential", zap.Error(err))
		return models.CapturedCredential{}, false, nil
	}
	cred := models.CapturedCredential{
		Username:  rec.Username,
		Password:  rec.Password,
		Website:   rec.Website,
		URL:       rec.URL,
		Timestamp: time.UnixMilli(rec.Timestamp),
	}
	age := b.now().Sub(cred.Timestamp)
	if age >= maxAge {
		b.log.Debug("discarding stale pending credential",
			zap.String("website", cred.Website), zap.Duration("age", age))
		return models.CapturedCredential{}, false, nil
	}
	return cred, true, nil
}

// Clear removes any pending credential.
func (b *Bridge) Clear() error {
	if err := b.store.Remove(PendingKey); err != nil {
		return fmt.Errorf("clear pending credential: %w", err)
	}
	return nil
}

func (b *Bridge) take() ([]byte, bool, error) {
	if t, ok := b.store.(storage.Taker); ok {
		raw, found, err := t.Take(PendingKey)
		if err != nil {
			return nil, false, fmt.Errorf("take pending credential: %w", err)
		}
		return raw, found, nil
	}
	raw, found, err := b.store.Get(PendingKey)
	if err != nil {
		return nil, false, fmt.Errorf("read pending credential: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	if err := b.store.Remove(PendingKey); err != nil {
		return nil, false, fmt.Errorf("clear pending credential: %w", err)
	}
	return raw, true, nil
}
