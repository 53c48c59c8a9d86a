package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checkpointStore is the behavior shared by both backends.
type checkpointStore interface {
	Save(index int, cmdline string) error
	Load() (int, string, bool, error)
	Clear() error
	Close() error
}

func TestCheckpointBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) checkpointStore{
		"file": func(t *testing.T) checkpointStore {
			return NewFileCheckpoint(filepath.Join(t.TempDir(), CheckpointFilename))
		},
		"bolt": func(t *testing.T) checkpointStore {
			cp, err := OpenBoltCheckpoint(filepath.Join(t.TempDir(), CheckpointDBFilename), "/dev/block/system")
			require.NoError(t, err)
			return cp
		},
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			cp := open(t)
			defer cp.Close()

			// Nothing saved yet.
			_, _, ok, err := cp.Load()
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, cp.Save(0, "zero 2,0,5"))
			require.NoError(t, cp.Save(3, "move abc 2,10,13 3 - s1:2,0,3"))

			index, cmdline, ok, err := cp.Load()
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, 3, index)
			assert.Equal(t, "move abc 2,10,13 3 - s1:2,0,3", cmdline)

			require.NoError(t, cp.Clear())
			require.NoError(t, cp.Clear())
			_, _, ok, err = cp.Load()
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestFileCheckpoint(t *testing.T) {
	t.Run("on-disk format is index newline cmdline", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), CheckpointFilename)
		cp := NewFileCheckpoint(path)

		require.NoError(t, cp.Save(7, "free s1"))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "7\nfree s1", string(content))
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
	})

	t.Run("corrupt content is an error", func(t *testing.T) {
		for _, content := range []string{"7", "x\nfree s1", "-1\nfree s1"} {
			path := filepath.Join(t.TempDir(), CheckpointFilename)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			_, _, _, err := NewFileCheckpoint(path).Load()
			assert.Error(t, err, content)
		}
	})
}

func TestBoltCheckpointScopesByDevice(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), CheckpointDBFilename)

	system, err := OpenBoltCheckpoint(dbPath, "/dev/block/system")
	require.NoError(t, err)
	require.NoError(t, system.Save(4, "new 2,5,10"))
	require.NoError(t, system.Close())

	vendor, err := OpenBoltCheckpoint(dbPath, "/dev/block/vendor")
	require.NoError(t, err)
	_, _, ok, err := vendor.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, vendor.Close())

	system, err = OpenBoltCheckpoint(dbPath, "/dev/block/system")
	require.NoError(t, err)
	defer system.Close()
	index, _, ok, err := system.Load()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 4, index)
}
