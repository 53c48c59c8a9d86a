package transfer

import (
	"errors"
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
)

// UnknownHash is the target hash of commands that carry no expected content.
const UnknownHash = "unknown-hash"

// TargetInfo is where a command's output goes and what its SHA-1 should be.
type TargetInfo struct {
	Hash   string
	Ranges rangeset.RangeSet
}

// Blocks returns the number of target blocks.
func (t TargetInfo) Blocks() uint64 { return t.Ranges.Blocks() }

func (t TargetInfo) String() string {
	return fmt.Sprintf("%d blocks (%s): %s", t.Blocks(), t.Hash, t.Ranges)
}

// StashInfo names a stash slot. For STASH commands Ranges are device blocks;
// inside a SourceInfo they are block positions within the source buffer.
type StashInfo struct {
	ID     string
	Ranges rangeset.RangeSet
}

// Blocks returns the number of stashed blocks.
func (s StashInfo) Blocks() uint64 { return s.Ranges.Blocks() }

func (s StashInfo) String() string {
	return fmt.Sprintf("%d blocks (%s): %s", s.Blocks(), s.ID, s.Ranges)
}

// PatchInfo is a byte range within the shared patch data blob.
type PatchInfo struct {
	Offset uint64
	Length uint64
}

// HashTreeInfo holds the parameters of a compute_hash_tree command.
type HashTreeInfo struct {
	HashTreeRanges rangeset.RangeSet
	SourceRanges   rangeset.RangeSet
	HashAlgorithm  string
	SaltHex        string
	RootHash       string
}

// SourceInfo describes how to assemble a command's input buffer from device
// blocks and stashes.
type SourceInfo struct {
	Hash string
	// Ranges are read from the device. When Location is set, the packed data is
	// then moved to the buffer blocks named by Location.
	Ranges   rangeset.RangeSet
	Location rangeset.RangeSet
	Stashes  []StashInfo

	blocks uint64
}

// NewSourceInfo computes the cached block count.
func NewSourceInfo(hash string, ranges, location rangeset.RangeSet, stashes []StashInfo) SourceInfo {
	s := SourceInfo{Hash: hash, Ranges: ranges, Location: location, Stashes: stashes}
	s.blocks = ranges.Blocks()
	for _, st := range stashes {
		s.blocks += st.Blocks()
	}
	return s
}

// Blocks returns the size of the assembled source buffer in blocks.
func (s SourceInfo) Blocks() uint64 { return s.blocks }

func (s SourceInfo) String() string {
	out := fmt.Sprintf("%d blocks (%s): ", s.blocks, s.Hash)
	if !s.Ranges.Empty() {
		out += s.Ranges.String()
		if !s.Location.Empty() {
			out += fmt.Sprintf(" (location: %s)", s.Location)
		}
	}
	if len(s.Stashes) > 0 {
		out += fmt.Sprintf(" %d stash(es)", len(s.Stashes))
	}
	return out
}

// Overlaps reports whether the device-read part of the source intersects the
// target. Stashed data never aliases a target.
func (s SourceInfo) Overlaps(target TargetInfo) bool {
	return s.Ranges.Overlaps(target.Ranges)
}

// BlockReader fills buf with the blocks of rs read from the device.
type BlockReader func(rs rangeset.RangeSet, buf []byte) error

// StashReader returns the content of a stash.
type StashReader func(id string) ([]byte, error)

// ReadAll assembles the source into buf, which must hold at least
// Blocks()*blockSize bytes.
func (s SourceInfo) ReadAll(buf []byte, blockSize uint64, readBlocks BlockReader, readStash StashReader) error {
	if blockSize == 0 {
		return errors.New("zero block size")
	}
	need := s.blocks * blockSize
	if uint64(len(buf)) < need {
		return fmt.Errorf("source buffer too small: %d < %d", len(buf), need)
	}
	buf = buf[:need]

	if !s.Ranges.Empty() {
		if err := readBlocks(s.Ranges, buf[:s.Ranges.Blocks()*blockSize]); err != nil {
			return fmt.Errorf("failed to read source blocks %s: %w", s.Ranges, err)
		}
		if !s.Location.Empty() {
			if err := MoveRange(buf, s.Location, buf, blockSize); err != nil {
				return fmt.Errorf("invalid source location: %w", err)
			}
		}
	}

	for _, st := range s.Stashes {
		data, err := readStash(st.ID)
		if err != nil {
			return fmt.Errorf("failed to load stash %s: %w", st.ID, err)
		}
		if err := MoveRange(buf, st.Ranges, data, blockSize); err != nil {
			return fmt.Errorf("stash %s: %w", st.ID, err)
		}
	}
	return nil
}

// MoveRange scatters the packed blocks in src to the block positions in dst
// named by locs. It walks backwards so src and dst may be the same buffer.
// Nothing is copied when a position falls outside dst or src is too short.
func MoveRange(dst []byte, locs rangeset.RangeSet, src []byte, blockSize uint64) error {
	if locs.Blocks() > uint64(len(src))/blockSize {
		return fmt.Errorf("%d blocks to move, source holds %d bytes", locs.Blocks(), len(src))
	}
	for _, r := range locs.Ranges() {
		if r.Second > uint64(len(dst))/blockSize {
			return fmt.Errorf("block range [%d, %d) outside %d byte buffer", r.First, r.Second, len(dst))
		}
	}

	start := locs.Blocks()
	for i := locs.Len() - 1; i >= 0; i-- {
		r := locs.At(i)
		n := r.Blocks()
		start -= n
		copy(dst[r.First*blockSize:(r.First+n)*blockSize], src[start*blockSize:(start+n)*blockSize])
	}
	return nil
}
