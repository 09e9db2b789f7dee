package clientsdk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()

	store := &MemoryStore{}

	// Empty store returns nil without error.
	data, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, store.Save(SessionData{Verifier: "v", State: "s"}))

	data, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "v", data.Verifier)
	require.Equal(t, "s", data.State)

	// Load hands out a copy, not the stored value.
	data.Verifier = "mutated"
	again, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "v", again.Verifier)

	require.NoError(t, store.Clear())
	data, err = store.Load()
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir, "https://auth.example.com|client_1|https://shop.example/cb")
	require.NoError(t, err)

	data, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, data)

	require.NoError(t, store.Save(SessionData{Verifier: "v", State: "s"}))

	// The session file must not be world readable.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	info, err := entries[0].Info()
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "v", data.Verifier)

	require.NoError(t, store.Clear())
	data, err = store.Load()
	require.NoError(t, err)
	require.Nil(t, data)

	// Clearing again is fine.
	require.NoError(t, store.Clear())
}

func TestFileStoreScopesByKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a, err := NewFileStore(dir, "server|client_a|cb")
	require.NoError(t, err)
	b, err := NewFileStore(dir, "server|client_b|cb")
	require.NoError(t, err)

	require.NoError(t, a.Save(SessionData{Verifier: "va", State: "sa"}))
	require.NoError(t, b.Save(SessionData{Verifier: "vb", State: "sb"}))

	dataA, err := a.Load()
	require.NoError(t, err)
	require.Equal(t, "va", dataA.Verifier)

	dataB, err := b.Load()
	require.NoError(t, err)
	require.Equal(t, "vb", dataB.Verifier)

	files, err := filepath.Glob(filepath.Join(dir, "session-*.json"))
	require.NoError(t, err)
	require.Len(t, files, 2)
}
