package lib

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/golang/snappy"
)

var (
	// ErrStashMissing is returned when a stash that should exist cannot be found.
	ErrStashMissing = errors.New("stash missing")
	// ErrInvalidStashID is returned for ids that are not a plain file name.
	ErrInvalidStashID = errors.New("invalid stash id")
)

// compressedSuffix marks snappy-encoded stash files.
const compressedSuffix = ".sz"

// StashOptions configures a StashStore.
type StashOptions struct {
	// Compress writes new stashes snappy-encoded. Both forms are always readable.
	Compress bool
	// CacheEntries bounds the in-memory read cache; zero disables it.
	CacheEntries int
	// SweepPatterns are extra gitignore-style patterns of leftovers removed on open.
	SweepPatterns []string
}

// StashStore keeps stashes as one file per id inside a device's stash directory.
type StashStore struct {
	dir  string
	opts StashOptions

	mu           sync.Mutex
	cache        *lru.Cache
	bytesWritten uint64
}

// OpenStashStore creates dir if needed and removes leftovers of interrupted writes.
func OpenStashStore(dir string, opts StashOptions) (*StashStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create stash directory %s: %w", dir, err)
	}
	s := &StashStore{dir: dir, opts: opts}
	if opts.CacheEntries > 0 {
		s.cache = lru.New(opts.CacheEntries)
	}
	if _, err := s.Sweep(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the stash directory.
func (s *StashStore) Dir() string { return s.dir }

// BytesWritten is the number of bytes stored since the store was opened.
func (s *StashStore) BytesWritten() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytesWritten
}

// path maps id to its file. Ids never leave the stash directory.
func (s *StashStore) path(id string) (string, error) {
	if id == "" || id == "." || strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidStashID, id)
	}
	return filepath.Join(s.dir, id), nil
}

// Write stores data under id through a fsynced .partial file and a rename.
func (s *StashStore) Write(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, err := s.path(id)
	if err != nil {
		return err
	}
	stale := target + compressedSuffix
	payload := data
	if s.opts.Compress {
		payload = snappy.Encode(nil, data)
		target, stale = stale, target
	}

	if err := WriteFileAtomic(target, ".partial", payload, 0600); err != nil {
		return fmt.Errorf("failed to write stash %s: %w", id, err)
	}
	if err := RemoveIfExists(stale); err != nil {
		return err
	}

	if s.cache != nil {
		s.cache.Add(id, bytes.Clone(data))
	}
	s.bytesWritten += uint64(len(payload))
	return nil
}

// Read returns the content of stash id. A missing stash wraps ErrStashMissing.
func (s *StashStore) Read(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if v, ok := s.cache.Get(id); ok {
			return bytes.Clone(v.([]byte)), nil
		}
	}

	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		var compressed []byte
		compressed, err = os.ReadFile(p + compressedSuffix)
		if err == nil {
			data, err = snappy.Decode(nil, compressed)
			if err != nil {
				return nil, fmt.Errorf("corrupt stash %s: %w", id, err)
			}
		}
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStashMissing, id)
		}
		return nil, fmt.Errorf("failed to read stash %s: %w", id, err)
	}

	if s.cache != nil {
		s.cache.Add(id, bytes.Clone(data))
	}
	return data, nil
}

// Exists reports whether stash id is stored in either form.
func (s *StashStore) Exists(id string) bool {
	base, err := s.path(id)
	if err != nil {
		return false
	}
	for _, p := range []string{base, base + compressedSuffix} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// Free deletes stash id. Freeing a missing stash succeeds.
func (s *StashStore) Free(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.path(id)
	if err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Remove(id)
	}
	if err := RemoveIfExists(p); err != nil {
		return fmt.Errorf("failed to free stash %s: %w", id, err)
	}
	return RemoveIfExists(p + compressedSuffix)
}

// Sweep removes leftovers matching the sweep patterns and returns how many
// files were removed.
func (s *StashStore) Sweep() (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !IsSweepable(s.dir, entry.Name(), s.opts.SweepPatterns) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("failed to remove leftover %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// List returns the ids of stored stashes.
func (s *StashStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || IsSweepable(s.dir, name, s.opts.SweepPatterns) {
			continue
		}
		if filepath.Ext(name) == compressedSuffix {
			name = name[:len(name)-len(compressedSuffix)]
		}
		ids = append(ids, name)
	}
	return ids, nil
}

// RemoveAll deletes the stash directory and everything in it.
func (s *StashStore) RemoveAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		s.cache.Clear()
	}
	return os.RemoveAll(s.dir)
}
