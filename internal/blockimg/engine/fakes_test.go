package engine

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
)

const testBlockSize = 4096

var errInjected = errors.New("injected write failure")

// memDevice is an in-memory partition.
type memDevice struct {
	data    []byte
	isBlock bool
	// failAfter makes every write after that many succeed fail; negative disables it.
	failAfter int
	writes    int
	syncs     int
	discarded []rangeset.RangeSet
}

func newMemDevice(blocks int, fill byte) *memDevice {
	return &memDevice{data: bytes.Repeat([]byte{fill}, blocks*testBlockSize), failAfter: -1}
}

func (d *memDevice) block(i uint64) []byte {
	return d.data[i*testBlockSize : (i+1)*testBlockSize]
}

func (d *memDevice) blocks(first, last uint64) []byte {
	return d.data[first*testBlockSize : last*testBlockSize]
}

func (d *memDevice) setBlock(i uint64, fill byte) {
	copy(d.block(i), bytes.Repeat([]byte{fill}, testBlockSize))
}

func (d *memDevice) ReadBlocks(rs rangeset.RangeSet, buf []byte) error {
	pos := 0
	for _, r := range rs.Ranges() {
		if r.Second*testBlockSize > uint64(len(d.data)) {
			return fmt.Errorf("read past end: %d", r.Second)
		}
		pos += copy(buf[pos:], d.blocks(r.First, r.Second))
	}
	return nil
}

func (d *memDevice) WriteBlocks(rs rangeset.RangeSet, buf []byte) error {
	if d.failAfter >= 0 && d.writes >= d.failAfter {
		return errInjected
	}
	d.writes++
	pos := 0
	for _, r := range rs.Ranges() {
		pos += copy(d.blocks(r.First, r.Second), buf[pos:])
	}
	return nil
}

func (d *memDevice) Discard(rs rangeset.RangeSet) error {
	if !d.isBlock {
		return lib.ErrNotBlockDevice
	}
	d.discarded = append(d.discarded, rs)
	return nil
}

func (d *memDevice) Sync() error {
	d.syncs++
	return nil
}

// memStash is an in-memory stash store.
type memStash struct {
	mu     sync.Mutex
	data   map[string][]byte
	writes int
}

func newMemStash() *memStash {
	return &memStash{data: make(map[string][]byte)}
}

func (s *memStash) Write(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	s.data[id] = append([]byte(nil), data...)
	return nil
}

func (s *memStash) Read(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStashMissing, id)
	}
	return data, nil
}

func (s *memStash) Free(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *memStash) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.data[id]
	return ok
}

// memCheckpoint is an in-memory checkpoint.
type memCheckpoint struct {
	index   int
	cmdline string
	ok      bool
	saves   []int
	clears  int
}

func (c *memCheckpoint) Save(index int, cmdline string) error {
	c.index, c.cmdline, c.ok = index, cmdline, true
	c.saves = append(c.saves, index)
	return nil
}

func (c *memCheckpoint) Load() (int, string, bool, error) {
	return c.index, c.cmdline, c.ok, nil
}

func (c *memCheckpoint) Clear() error {
	c.index, c.cmdline, c.ok = 0, "", false
	c.clears++
	return nil
}

// fakePatcher produces size bytes by repeating the patch.
type fakePatcher struct {
	size  int
	calls int
}

func (p *fakePatcher) ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error) {
	p.calls++
	if bytes.Equal(patch, []byte("fail")) {
		return nil, errors.New("corrupt patch")
	}
	out := make([]byte, p.size)
	for i := range out {
		out[i] = patch[i%len(patch)]
	}
	return out, nil
}

// filled returns n blocks each filled with fill.
func filled(n int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, n*testBlockSize)
}
