package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkPaths(t *testing.T) {
	t.Run("defaults to .blockimg", func(t *testing.T) {
		assert.Equal(t, ".blockimg", GetWorkDir(""))
		assert.Equal(t, filepath.Join(".blockimg", "stash"), GetStashBaseDir(""))
		assert.Equal(t, filepath.Join(".blockimg", "last_command"), GetCheckpointPath(""))
	})

	t.Run("stash dir is keyed by device hash", func(t *testing.T) {
		work := t.TempDir()
		a := GetStashDir(work, "/dev/block/by-name/system")
		b := GetStashDir(work, "/dev/block/by-name/vendor")

		assert.NotEqual(t, a, b)
		assert.Equal(t, GetHash([]byte("/dev/block/by-name/system")), filepath.Base(a))
		assert.Equal(t, filepath.Base(a)+UpdatedMarkerSuffix, filepath.Base(GetUpdatedMarkerPath(work, "/dev/block/by-name/system")))
	})

	t.Run("EnsureWorkDirs is idempotent", func(t *testing.T) {
		work := filepath.Join(t.TempDir(), "w")

		paths, err := EnsureWorkDirs(work)
		require.NoError(t, err)
		_, err = EnsureWorkDirs(work)
		require.NoError(t, err)

		info, err := os.Stat(paths.StashBaseDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})
}

func TestIsSweepable(t *testing.T) {
	testCases := []struct {
		name      string
		extra     []string
		file      string
		sweepable bool
	}{
		{name: "partial stash", file: "abc.partial", sweepable: true},
		{name: "temporary checkpoint", file: "last_command.tmp", sweepable: true},
		{name: "complete stash", file: "0123456789abcdef0123456789abcdef01234567", sweepable: false},
		{name: "compressed stash", file: "abc.sz", sweepable: false},
		{name: "user pattern", extra: []string{"*.bak"}, file: "abc.bak", sweepable: true},
		{name: "comments are ignored", extra: []string{"# *.sz"}, file: "abc.sz", sweepable: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ResetSweepState()
			dir := t.TempDir()

			assert.Equal(t, tc.sweepable, IsSweepable(dir, tc.file, tc.extra))
		})
	}
}
