package lib

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const verityTestSalt = "aee087a5be3b982978c923f566a94613496b417f2af592639bc80d141e34dfe7"

// patternBlocks returns n blocks where block i is filled with byte i.
func patternBlocks(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		buf.Write(bytes.Repeat([]byte{byte(i)}, 4096))
	}
	return buf.Bytes()
}

func TestBuildHashTree(t *testing.T) {
	salt, err := hex.DecodeString(verityTestSalt)
	require.NoError(t, err)

	t.Run("single level sha256", func(t *testing.T) {
		tree, err := BuildHashTree(patternBlocks(128), 4096, "sha256", salt)
		require.NoError(t, err)

		assert.Equal(t, "7e0a8d8747f54384014ab996f5b2dc4eb7ff00c630eede7134c9e3f05c0dd8ca", tree.RootHashHex())
		assert.Len(t, tree.Tree, 4096)
		assert.Equal(t, uint64(4096), HashTreeSize(128*4096, 4096, 32))
	})

	t.Run("two levels are written top level first", func(t *testing.T) {
		tree, err := BuildHashTree(patternBlocks(256), 4096, "sha256", salt)
		require.NoError(t, err)

		assert.Equal(t, "6e73d59b0b6baf026e921814979a7db02244c95a46b869a17aa1310dad066deb", tree.RootHashHex())
		require.Len(t, tree.Tree, 3*4096)
		assert.Equal(t, uint64(3*4096), HashTreeSize(256*4096, 4096, 32))
		// The top level holds two digests followed by zero padding.
		assert.Equal(t, make([]byte, 4096-64), tree.Tree[64:4096])
	})

	t.Run("sha1 pads a partial level", func(t *testing.T) {
		tree, err := BuildHashTree(patternBlocks(3), 4096, "SHA1", salt)
		require.NoError(t, err)

		assert.Equal(t, "38469983417ac054c992175e58eaa0ec33e741b4", tree.RootHashHex())
		assert.Len(t, tree.Tree, 4096)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := BuildHashTree(patternBlocks(1), 4096, "md5", salt)
		assert.ErrorIs(t, err, ErrUnknownHashAlgorithm)

		_, err = BuildHashTree(nil, 4096, "sha256", salt)
		assert.Error(t, err)

		_, err = BuildHashTree(make([]byte, 100), 4096, "sha256", salt)
		assert.Error(t, err)

		_, err = BuildHashTree(patternBlocks(1), 4096, "sha256", nil)
		assert.Error(t, err)
	})
}

func TestHashTreeBuilderStreaming(t *testing.T) {
	salt, err := hex.DecodeString(verityTestSalt)
	require.NoError(t, err)
	data := patternBlocks(256)

	b, err := NewHashTreeBuilder(4096, "sha256", salt, uint64(len(data)))
	require.NoError(t, err)
	for off := 0; off < len(data); off += 7 * 4096 {
		end := min(off+7*4096, len(data))
		require.NoError(t, b.Update(data[off:end]))
	}
	streamed, err := b.Build()
	require.NoError(t, err)

	whole, err := BuildHashTree(data, 4096, "sha256", salt)
	require.NoError(t, err)
	assert.Equal(t, whole, streamed)

	t.Run("rejects misuse", func(t *testing.T) {
		b, err := NewHashTreeBuilder(4096, "sha256", salt, 2*4096)
		require.NoError(t, err)

		assert.Error(t, b.Update(make([]byte, 100)))
		_, err = b.Build()
		assert.Error(t, err, "incomplete input")
		assert.Error(t, b.Update(make([]byte, 3*4096)))
	})
}
