// Package storage is the client's transient key-value store. It has no TTL of
// its own: callers stamp their values and decide freshness themselves.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store is a named-value store shared by the page and background contexts.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Taker is implemented by stores that can read and remove a value in one
// step, so two contexts cannot both consume it.
type Taker interface {
	Take(key string) ([]byte, bool, error)
}

// MemoryStore keeps values in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return cloneBytes(v), ok, nil
}

func (m *MemoryStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = cloneBytes(value)
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Take(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	delete(m.values, key)
	return v, ok, nil
}

// FileStore persists values as a JSON object in a single file, so a pending
// capture survives a restart of the client. Every write rewrites the file.
type FileStore struct {
	Values map[string]json.RawMessage `json:"values"`

	mu   sync.Mutex
	path string
}

// OpenFileStore loads path, starting empty when the file does not exist yet.
func OpenFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, Values: make(map[string]json.RawMessage)}
	if err := fs.Load(); err != nil {
		return nil, err
	}
	return fs, nil
}

// Load replaces the in-memory values with the file contents.
func (fs *FileStore) Load() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.Open(fs.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fs.Values = make(map[string]json.RawMessage)
			return nil
		}
		return fmt.Errorf("open store: %w", err)
	}
	defer f.Close()

	var loaded FileStore
	if err := json.NewDecoder(f).Decode(&loaded); err != nil {
		return fmt.Errorf("decode store %s: %w", fs.path, err)
	}
	fs.Values = loaded.Values
	if fs.Values == nil {
		fs.Values = make(map[string]json.RawMessage)
	}
	return nil
}

func (fs *FileStore) Get(key string) ([]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.Values[key]
	return cloneBytes(v), ok, nil
}

// Set stores a JSON value. Values that are not valid JSON are rejected.
func (fs *FileStore) Set(key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("set %q: value is not valid JSON", key)
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	prev, had := fs.Values[key]
	fs.Values[key] = json.RawMessage(cloneBytes(value))
	if err := fs.save(); err != nil {
		fs.restore(key, prev, had)
		return err
	}
	return nil
}

func (fs *FileStore) Remove(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, ok := fs.Values[key]; !ok {
		return nil
	}
	prev := fs.Values[key]
	delete(fs.Values, key)
	if err := fs.save(); err != nil {
		fs.restore(key, prev, true)
		return err
	}
	return nil
}

func (fs *FileStore) Take(key string) ([]byte, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.Values[key]
	if !ok {
		return nil, false, nil
	}
	delete(fs.Values, key)
	if err := fs.save(); err != nil {
		fs.restore(key, v, true)
		return nil, false, err
	}
	return v, true, nil
}

// restore undoes an in-memory change whose write failed, so memory keeps
// matching the file.
func (fs *FileStore) restore(key string, prev json.RawMessage, had bool) {
	if had {
		fs.Values[key] = prev
		return
	}
	delete(fs.Values, key)
}

// save writes to a temporary file and renames it over the store.
func (fs *FileStore) save() error {
	if dir := filepath.Dir(fs.path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}
	tmp := fs.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if err := json.NewEncoder(f).Encode(fs); err != nil {
		f.Close()
		return fmt.Errorf("encode store: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, fs.path)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
