package lib

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
)

// FileCheckpoint persists the last completed command as "<index>\n<cmdline>".
type FileCheckpoint struct {
	path string
	mu   sync.Mutex
}

// NewFileCheckpoint returns a checkpoint stored at path.
func NewFileCheckpoint(path string) *FileCheckpoint {
	return &FileCheckpoint{path: path}
}

// Path returns the checkpoint file location.
func (c *FileCheckpoint) Path() string { return c.path }

// load is the non-locking implementation of Load.
func (c *FileCheckpoint) load() (types.Checkpoint, bool, error) {
	content, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return types.Checkpoint{}, false, nil
		}
		return types.Checkpoint{}, false, err
	}

	lines := strings.SplitN(string(content), "\n", 2)
	if len(lines) != 2 {
		return types.Checkpoint{}, false, fmt.Errorf("corrupt checkpoint file %s: %d lines", c.path, len(lines))
	}
	index, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || index < 0 {
		return types.Checkpoint{}, false, fmt.Errorf("corrupt checkpoint file %s: bad index %q", c.path, lines[0])
	}
	return types.Checkpoint{Index: index, Cmdline: lines[1]}, true, nil
}

// Load returns the saved checkpoint. ok is false when none exists.
func (c *FileCheckpoint) Load() (index int, cmdline string, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp, ok, err := c.load()
	return cp.Index, cp.Cmdline, ok, err
}

// Save atomically records index and cmdline as the last completed command.
func (c *FileCheckpoint) Save(index int, cmdline string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	content := strconv.Itoa(index) + "\n" + cmdline
	return WriteFileAtomic(c.path, ".tmp", []byte(content), 0644)
}

// Clear removes the checkpoint.
func (c *FileCheckpoint) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return RemoveIfExists(c.path)
}

// Close is a no-op that lets FileCheckpoint stand in where a closable store is expected.
func (c *FileCheckpoint) Close() error { return nil }
