package lib

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStashStoreTest(t *testing.T, opts StashOptions) *StashStore {
	ResetSweepState()
	store, err := OpenStashStore(filepath.Join(t.TempDir(), "stash", "dev"), opts)
	require.NoError(t, err)
	return store
}

func TestStashStore(t *testing.T) {
	variants := map[string]StashOptions{
		"plain":      {},
		"compressed": {Compress: true},
		"cached":     {CacheEntries: 2},
	}

	for name, opts := range variants {
		t.Run(name, func(t *testing.T) {
			store := setupStashStoreTest(t, opts)
			data := bytes.Repeat([]byte("blockimg"), 1024)
			id := GetHash(data)

			// Act
			require.NoError(t, store.Write(id, data))

			// Assert
			assert.True(t, store.Exists(id))
			got, err := store.Read(id)
			require.NoError(t, err)
			assert.Equal(t, data, got)
			assert.Greater(t, store.BytesWritten(), uint64(0))

			ids, err := store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{id}, ids)

			require.NoError(t, store.Free(id))
			assert.False(t, store.Exists(id))
			_, err = store.Read(id)
			assert.ErrorIs(t, err, ErrStashMissing)

			// Freeing twice is not an error.
			require.NoError(t, store.Free(id))
		})
	}
}

func TestStashStoreReadsEitherForm(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dev")
	data := []byte("stashed before compression was enabled")

	plain, err := OpenStashStore(dir, StashOptions{})
	require.NoError(t, err)
	require.NoError(t, plain.Write("a", data))

	compressed, err := OpenStashStore(dir, StashOptions{Compress: true})
	require.NoError(t, err)
	got, err := compressed.Read("a")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	// Rewriting in the other form leaves a single file.
	require.NoError(t, compressed.Write("a", data))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.sz", entries[0].Name())
}

func TestStashStoreSweepsLeftovers(t *testing.T) {
	ResetSweepState()
	dir := filepath.Join(t.TempDir(), "dev")
	require.NoError(t, os.MkdirAll(dir, 0700))
	for _, name := range []string{"keep", "half.partial", "x.tmp", "old.bak"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600))
	}

	store, err := OpenStashStore(dir, StashOptions{SweepPatterns: []string{"*.bak"}})
	require.NoError(t, err)

	ids, err := store.List()
	require.NoError(t, err)
	sort.Strings(ids)
	assert.Equal(t, []string{"keep"}, ids)

	require.NoError(t, store.RemoveAll())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestStashStoreRejectsIdsOutsideDir(t *testing.T) {
	root := t.TempDir()
	store, err := OpenStashStore(filepath.Join(root, "stash", "dev"), StashOptions{})
	require.NoError(t, err)
	victim := filepath.Join(root, "victim")
	require.NoError(t, os.WriteFile(victim, []byte("keep me"), 0600))

	for _, id := range []string{"../../victim", "..", ".", "", "a/b", `a\b`, filepath.Join(root, "victim")} {
		t.Run(id, func(t *testing.T) {
			assert.ErrorIs(t, store.Free(id), ErrInvalidStashID)
			assert.ErrorIs(t, store.Write(id, []byte("x")), ErrInvalidStashID)
			_, err := store.Read(id)
			assert.ErrorIs(t, err, ErrInvalidStashID)
			assert.False(t, store.Exists(id))
		})
	}

	assert.FileExists(t, victim)
}

func TestStashStoreCacheHoldsPrivateCopies(t *testing.T) {
	store := setupStashStoreTest(t, StashOptions{CacheEntries: 2})
	data := bytes.Repeat([]byte("s"), 4096)
	id := GetHash(data)

	// Arrange
	require.NoError(t, store.Write(id, data))
	data[0] = 'x'

	// Act
	got, err := store.Read(id)
	require.NoError(t, err)
	got[1] = 'y'

	// Assert
	again, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("s"), 4096), again)
}
