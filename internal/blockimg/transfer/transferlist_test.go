package transfer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransferList(t *testing.T) {
	t.Run("four header lines", func(t *testing.T) {
		input := strings.Join([]string{
			"4",
			"2",
			"1",
			"1",
			"stash 1d74d1a60332fd38cf9405f1bae67917888da6cb 2,0,1",
			"move 1d74d1a60332fd38cf9405f1bae67917888da6cb 2,0,1 1 2,0,1",
		}, "\n")

		tl, err := Parse(input, ParseConfig{})
		require.NoError(t, err)
		assert.True(t, tl.Valid())
		assert.Equal(t, 4, tl.Version)
		assert.Equal(t, uint64(2), tl.TotalBlocks)
		assert.Equal(t, uint64(1), tl.StashMaxEntries)
		assert.Equal(t, uint64(1), tl.StashMaxBlocks)
		assert.Equal(t, 4, tl.HeaderLines)
		require.Len(t, tl.Commands, 2)
		assert.Equal(t, TypeStash, tl.Commands[0].Type())
		assert.Equal(t, TypeMove, tl.Commands[1].Type())
		assert.Equal(t, 1, tl.Commands[1].Index())
	})

	t.Run("combined stash limits line", func(t *testing.T) {
		tl, err := Parse("4\n20\n0,0\nzero 2,0,5\nnew 2,5,10\n", ParseConfig{})
		require.NoError(t, err)
		assert.Equal(t, 3, tl.HeaderLines)
		assert.Equal(t, uint64(20), tl.TotalBlocks)
		require.Len(t, tl.Commands, 2)
		assert.Equal(t, TypeZero, tl.Commands[0].Type())
		assert.Equal(t, 0, tl.Commands[0].Index())
		assert.Equal(t, TypeNew, tl.Commands[1].Type())
		assert.Equal(t, 1, tl.Commands[1].Index())
	})

	t.Run("blank lines keep their index", func(t *testing.T) {
		tl, err := Parse("3\n10\n0\n0\nzero 2,0,5\n\nzero 2,5,10\n", ParseConfig{})
		require.NoError(t, err)
		require.Len(t, tl.Commands, 2)
		assert.Equal(t, 2, tl.Commands[1].Index())
	})

	t.Run("zero total blocks", func(t *testing.T) {
		tl, err := Parse("4\n0\n0\n0", ParseConfig{})
		require.NoError(t, err)
		assert.True(t, tl.Valid())
		assert.Empty(t, tl.Commands)
	})

	t.Run("an invalid command fails the whole list", func(t *testing.T) {
		input := strings.Join([]string{
			"4", "2", "1", "1",
			"stash 1d74d1a60332fd38cf9405f1bae67917888da6cb 2,0,1",
			"move 1d74d1a60332fd38cf9405f1bae67917888da6cb 2,0,1 1",
		}, "\n")
		tl, err := Parse(input, ParseConfig{})
		require.Error(t, err)
		assert.False(t, tl.Valid())
		assert.Empty(t, tl.Commands)

		var pe *ParseError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, 6, pe.Line)
	})

	t.Run("abort follows the config", func(t *testing.T) {
		_, err := Parse("4\n0\n0,0\nabort\n", ParseConfig{})
		assert.Equal(t, AbortNotAllowed, kindOf(t, err))

		tl, err := Parse("4\n0\n0,0\nabort\n", ParseConfig{AllowAbort: true})
		require.NoError(t, err)
		require.Len(t, tl.Commands, 1)
	})

	t.Run("bad headers", func(t *testing.T) {
		cases := map[string]ErrorKind{
			"4\n2":                   HeaderMismatch,
			"2\n2\n0\n0":             InvalidVersion,
			"five\n2\n0\n0":          InvalidVersion,
			"4\nmany\n0\n0":          InvalidTotalBlocks,
			"4\n2\nx,0\n":            InvalidStashLimits,
			"4\n2\n1,2,3\n":          InvalidStashLimits,
			"4\n2\n0\nzero 2,0,1":    InvalidStashLimits,
			"4\n2\n0":                HeaderMismatch,
		}
		for input, kind := range cases {
			tl, err := Parse(input, ParseConfig{})
			require.Error(t, err, "input %q", input)
			assert.Equal(t, kind, kindOf(t, err), "input %q", input)
			assert.Equal(t, 0, tl.Version)
		}
	})
}
