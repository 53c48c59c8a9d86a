package lib

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePatcher struct{ out []byte }

func (f fakePatcher) ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error) {
	return f.out, nil
}

func TestBsdiffPatcher(t *testing.T) {
	oldData := bytes.Repeat([]byte("old block content "), 500)
	newData := append(bytes.Repeat([]byte("old block content "), 400), bytes.Repeat([]byte("new tail "), 100)...)
	patch, err := bsdiff.Bytes(oldData, newData)
	require.NoError(t, err)

	got, err := BsdiffPatcher{}.ApplyPatch(transfer.TypeBsdiff, oldData, patch)
	require.NoError(t, err)
	assert.Equal(t, newData, got)

	_, err = BsdiffPatcher{}.ApplyPatch(transfer.TypeImgdiff, oldData, patch)
	assert.ErrorIs(t, err, ErrNoPatcher)

	_, err = BsdiffPatcher{}.ApplyPatch(transfer.TypeBsdiff, oldData, []byte("garbage"))
	assert.Error(t, err)
}

func TestCommandPatcher(t *testing.T) {
	t.Run("tool receives source target and patch paths", func(t *testing.T) {
		p := CommandPatcher{
			Type:    transfer.TypeImgdiff,
			Command: `sh -c 'cat "$1" "$3" > "$2"' sh`,
			TempDir: t.TempDir(),
		}

		got, err := p.ApplyPatch(transfer.TypeImgdiff, []byte("src|"), []byte("patch"))
		require.NoError(t, err)
		assert.Equal(t, "src|patch", string(got))
	})

	t.Run("failing tool", func(t *testing.T) {
		p := CommandPatcher{Type: transfer.TypeImgdiff, Command: `sh -c 'echo broken >&2; exit 3'`}

		_, err := p.ApplyPatch(transfer.TypeImgdiff, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := CommandPatcher{Type: transfer.TypeImgdiff}.ApplyPatch(transfer.TypeImgdiff, nil, nil)
		assert.ErrorIs(t, err, ErrNoPatcher)
	})
}

func TestMultiPatcher(t *testing.T) {
	m := MultiPatcher{transfer.TypeImgdiff: fakePatcher{out: []byte("img")}}

	got, err := m.ApplyPatch(transfer.TypeImgdiff, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), got)

	_, err = m.ApplyPatch(transfer.TypeBsdiff, nil, nil)
	assert.True(t, errors.Is(err, ErrNoPatcher))

	defaults := NewPatcher("", "", "")
	assert.IsType(t, BsdiffPatcher{}, defaults[transfer.TypeBsdiff])
	_, ok := defaults[transfer.TypeImgdiff]
	assert.False(t, ok)

	configured := NewPatcher("bspatch", "applypatch", "")
	assert.IsType(t, CommandPatcher{}, configured[transfer.TypeBsdiff])
	assert.IsType(t, CommandPatcher{}, configured[transfer.TypeImgdiff])
}
