package lib

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newImage creates a zero-filled image of n 4096-byte blocks.
func newImage(t *testing.T, blocks int) string {
	path := filepath.Join(t.TempDir(), "system.img")
	require.NoError(t, os.WriteFile(path, make([]byte, blocks*4096), 0644))
	return path
}

func TestFileDevice(t *testing.T) {
	t.Run("scattered write then read", func(t *testing.T) {
		dev, err := OpenDevice(newImage(t, 8), 4096, DeviceOptions{})
		require.NoError(t, err)
		defer dev.Close()

		rs := rangeset.MustParse("4,5,6,1,3")
		data := append(bytes.Repeat([]byte{'a'}, 4096), bytes.Repeat([]byte{'b'}, 8192)...)

		// Act
		require.NoError(t, dev.WriteBlocks(rs, data))
		require.NoError(t, dev.Sync())

		// Assert
		got := make([]byte, len(data))
		require.NoError(t, dev.ReadBlocks(rs, got))
		assert.Equal(t, data, got)

		block := make([]byte, 4096)
		require.NoError(t, dev.ReadBlocks(rangeset.MustParse("2,2,3"), block))
		assert.Equal(t, bytes.Repeat([]byte{'b'}, 4096), block)
		require.NoError(t, dev.ReadBlocks(rangeset.MustParse("2,0,1"), block))
		assert.Equal(t, make([]byte, 4096), block)
	})

	t.Run("short buffers and reads past the end fail", func(t *testing.T) {
		dev, err := OpenDevice(newImage(t, 2), 4096, DeviceOptions{})
		require.NoError(t, err)
		defer dev.Close()

		assert.Error(t, dev.WriteBlocks(rangeset.MustParse("2,0,2"), make([]byte, 4096)))
		assert.Error(t, dev.ReadBlocks(rangeset.MustParse("2,0,2"), make([]byte, 4096)))
		assert.Error(t, dev.ReadBlocks(rangeset.MustParse("2,1,3"), make([]byte, 8192)))
	})

	t.Run("image files cannot discard", func(t *testing.T) {
		dev, err := OpenDevice(newImage(t, 2), 4096, DeviceOptions{})
		require.NoError(t, err)
		defer dev.Close()

		assert.False(t, dev.IsBlockDevice())
		assert.ErrorIs(t, dev.Discard(rangeset.MustParse("2,0,1")), ErrNotBlockDevice)
	})

	t.Run("read-only devices reject writes", func(t *testing.T) {
		dev, err := OpenDevice(newImage(t, 2), 4096, DeviceOptions{ReadOnly: true})
		require.NoError(t, err)
		defer dev.Close()

		assert.Error(t, dev.WriteBlocks(rangeset.MustParse("2,0,1"), make([]byte, 4096)))
	})

	t.Run("rate limited writes still land", func(t *testing.T) {
		dev, err := OpenDevice(newImage(t, 2), 4096, DeviceOptions{WriteRateLimit: 1 << 30})
		require.NoError(t, err)
		defer dev.Close()

		data := bytes.Repeat([]byte{'z'}, 8192)
		require.NoError(t, dev.WriteBlocks(rangeset.MustParse("2,0,2"), data))
		got := make([]byte, 8192)
		require.NoError(t, dev.ReadBlocks(rangeset.MustParse("2,0,2"), got))
		assert.Equal(t, data, got)
	})

	t.Run("missing device", func(t *testing.T) {
		_, err := OpenDevice(filepath.Join(t.TempDir(), "nope"), 4096, DeviceOptions{})
		assert.Error(t, err)
	})
}
