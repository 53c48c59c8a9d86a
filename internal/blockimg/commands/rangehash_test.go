package commands_test

import (
	"bytes"
	"testing"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/commands"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangeHash(t *testing.T) {
	var image bytes.Buffer
	for i := 0; i < 300; i++ {
		image.Write(filled(1, byte(i)))
	}
	device := writeFile(t, t.TempDir(), "system.img", image.Bytes())

	t.Run("should hash one range", func(t *testing.T) {
		got, err := commands.RangeHash(device, "2,0,2", blockSize)
		require.NoError(t, err)
		assert.Equal(t, lib.GetHash(image.Bytes()[:2*blockSize]), got)
	})

	t.Run("should hash ranges in order across chunks", func(t *testing.T) {
		got, err := commands.RangeHash(device, "4,290,300,0,280", blockSize)
		require.NoError(t, err)

		want := append([]byte(nil), image.Bytes()[290*blockSize:300*blockSize]...)
		want = append(want, image.Bytes()[:280*blockSize]...)
		assert.Equal(t, lib.GetHash(want), got)
	})

	t.Run("should reject bad ranges", func(t *testing.T) {
		_, err := commands.RangeHash(device, "3,0,1,2", blockSize)
		assert.Error(t, err)
	})

	t.Run("should fail past the end of the device", func(t *testing.T) {
		_, err := commands.RangeHash(device, "2,299,301", blockSize)
		assert.Error(t, err)
	})
}
