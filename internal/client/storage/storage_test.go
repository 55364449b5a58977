package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]interface {
	Store
	Taker
} {
	t.Helper()
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "state", "pending.json"))
	require.NoError(t, err)
	return map[string]interface {
		Store
		Taker
	}{
		"memory": NewMemoryStore(),
		"file":   fs,
	}
}

func TestStore_GetSetRemoveTake(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("k", []byte(`{"a":1}`)))
			v, ok, err := s.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"a":1}`, string(v))

			require.NoError(t, s.Set("k", []byte(`{"a":2}`)))
			v, ok, err = s.Take("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.JSONEq(t, `{"a":2}`, string(v))

			_, ok, err = s.Take("k")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("k", []byte(`true`)))
			require.NoError(t, s.Remove("k"))
			require.NoError(t, s.Remove("k"))
			_, ok, _ = s.Get("k")
			assert.False(t, ok)
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	s := NewMemoryStore()
	in := []byte("abc")
	require.NoError(t, s.Set("k", in))
	in[0] = 'x'
	v, _, _ := s.Get("k")
	assert.Equal(t, "abc", string(v))
}

func TestFileStore_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Set("pendingCredentials", []byte(`{"username":"u"}`)))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get("pendingCredentials")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"username":"u"}`, string(v))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk FileStore
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Contains(t, onDisk.Values, "pendingCredentials")

	_, _, err = reopened.Take("pendingCredentials")
	require.NoError(t, err)
	again, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Empty(t, again.Values)
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	fs, err := OpenFileStore(filepath.Join(t.TempDir(), "s.json"))
	require.NoError(t, err)
	assert.Error(t, fs.Set("k", []byte("not json")))
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := OpenFileStore(path)
	assert.Error(t, err)
}

// A directory in place of the temporary file makes every write fail, even
// for root.
func breakWrites(t *testing.T, path string) (repair func()) {
	t.Helper()
	require.NoError(t, os.Mkdir(path+".tmp", 0o700))
	return func() { require.NoError(t, os.Remove(path+".tmp")) }
}

func TestFileStore_FailedWriteLeavesMemoryUnchanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	fs, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, fs.Set("pendingCredentials", []byte(`{"username":"u"}`)))

	repair := breakWrites(t, path)

	assert.Error(t, fs.Set("other", []byte(`1`)))
	_, ok, err := fs.Get("other")
	require.NoError(t, err)
	assert.False(t, ok, "a value that was not written is not visible")

	assert.Error(t, fs.Set("pendingCredentials", []byte(`{"username":"v"}`)))
	v, ok, err := fs.Get("pendingCredentials")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"username":"u"}`, string(v))

	_, ok, err = fs.Take("pendingCredentials")
	assert.Error(t, err)
	assert.False(t, ok)
	_, ok, _ = fs.Get("pendingCredentials")
	assert.True(t, ok, "a failed take keeps the value")

	assert.Error(t, fs.Remove("pendingCredentials"))
	_, ok, _ = fs.Get("pendingCredentials")
	assert.True(t, ok, "a failed remove keeps the value")

	repair()
	v, ok, err = fs.Take("pendingCredentials")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"username":"u"}`, string(v))

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)
	assert.Empty(t, reopened.Values)
}
