package lib

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/denormal/go-gitignore"
)

// WorkDirName is the default directory holding stashes and checkpoints.
const WorkDirName = ".blockimg"

// StashDirName is the subdirectory with one stash directory per device.
const StashDirName = "stash"

// CheckpointFilename holds the index and cmdline of the last completed command.
const CheckpointFilename = "last_command"

// CheckpointDBFilename is the bolt database used by the "bolt" checkpoint backend.
const CheckpointDBFilename = "checkpoint.db"

// UpdatedMarkerSuffix is appended to a device's stash name once its update completed.
const UpdatedMarkerSuffix = ".UPDATED"

// defaultSweepPatterns name the leftovers of interrupted atomic writes.
var defaultSweepPatterns = []string{
	"*.partial",
	"*.tmp",
}

// GetWorkDir returns the work directory; an empty name means WorkDirName under
// the current directory.
func GetWorkDir(workDir string) string {
	if workDir == "" {
		return WorkDirName
	}
	return workDir
}

// GetStashBaseDir returns the directory holding every device's stash directory.
func GetStashBaseDir(workDir string) string {
	return filepath.Join(GetWorkDir(workDir), StashDirName)
}

// GetStashName is the SHA-1 of the device path. Stashes of different
// partitions never collide.
func GetStashName(device string) string {
	return GetHash([]byte(device))
}

// GetStashDir returns the stash directory for one device.
func GetStashDir(workDir, device string) string {
	return filepath.Join(GetStashBaseDir(workDir), GetStashName(device))
}

// GetCheckpointPath returns the path of the last command file.
func GetCheckpointPath(workDir string) string {
	return filepath.Join(GetWorkDir(workDir), CheckpointFilename)
}

// GetCheckpointDBPath returns the path of the bolt checkpoint database.
func GetCheckpointDBPath(workDir string) string {
	return filepath.Join(GetWorkDir(workDir), CheckpointDBFilename)
}

// GetUpdatedMarkerPath returns the marker written after a device's update completed.
func GetUpdatedMarkerPath(workDir, device string) string {
	return filepath.Join(GetStashBaseDir(workDir), GetStashName(device)+UpdatedMarkerSuffix)
}

// WorkPaths holds the directories of one work dir.
type WorkPaths struct {
	WorkDir      string
	StashBaseDir string
}

// EnsureWorkDirs creates the work and stash base directories. It is idempotent.
func EnsureWorkDirs(workDir string) (WorkPaths, error) {
	paths := WorkPaths{
		WorkDir:      GetWorkDir(workDir),
		StashBaseDir: GetStashBaseDir(workDir),
	}
	if err := os.MkdirAll(paths.StashBaseDir, 0700); err != nil {
		return WorkPaths{}, err
	}
	return paths, nil
}

var (
	// sweepCache holds compiled matchers keyed by stash directory and pattern set.
	sweepCache = make(map[string]gitignore.GitIgnore)
	sweepMutex = &sync.Mutex{}
)

// IsSweepable reports whether a file in stashDir is a leftover that must be
// removed before stashes are reused.
func IsSweepable(stashDir, name string, extra []string) bool {
	sweepMutex.Lock()
	defer sweepMutex.Unlock()

	key := stashDir + "\x00" + strings.Join(extra, "\x00")
	matcher, found := sweepCache[key]
	if !found {
		matcher = loadSweepMatcher(stashDir, extra)
		sweepCache[key] = matcher
	}

	match := matcher.Relative(filepath.ToSlash(name), false)
	if match == nil {
		return false
	}
	return match.Ignore()
}

func loadSweepMatcher(stashDir string, extra []string) gitignore.GitIgnore {
	var patterns []string
	for _, p := range append(append([]string{}, defaultSweepPatterns...), extra...) {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			patterns = append(patterns, trimmed)
		}
	}

	matcher := gitignore.New(
		strings.NewReader(strings.Join(patterns, "\n")),
		stashDir,
		func(err gitignore.Error) bool { return false },
	)
	if matcher == nil {
		return gitignore.New(strings.NewReader(""), stashDir, nil)
	}
	return matcher
}

// ResetSweepState clears the matcher cache. It is used by tests.
func ResetSweepState() {
	sweepMutex.Lock()
	defer sweepMutex.Unlock()
	sweepCache = make(map[string]gitignore.GitIgnore)
}
