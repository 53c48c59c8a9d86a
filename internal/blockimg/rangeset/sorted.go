package rangeset

import (
	"fmt"
	"sort"
)

// DefaultBlockSize is the block size used by OTA partitions.
const DefaultBlockSize = 4096

// SortedRangeSet keeps its ranges sorted by start block and merges overlapping
// or adjacent ranges on insert.
type SortedRangeSet struct {
	set       RangeSet
	blockSize uint64
}

// NewSorted returns an empty SortedRangeSet. A zero blockSize means DefaultBlockSize.
func NewSorted(blockSize uint64, ranges ...Range) (*SortedRangeSet, error) {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	s := &SortedRangeSet{blockSize: blockSize}
	for _, r := range ranges {
		if r.First >= r.Second {
			return nil, fmt.Errorf("empty or inverted range [%d, %d)", r.First, r.Second)
		}
	}
	s.merge(ranges)
	return s, nil
}

// BlockSize returns the block size used for byte conversions.
func (s *SortedRangeSet) BlockSize() uint64 { return s.blockSize }

func (s *SortedRangeSet) Blocks() uint64 { return s.set.Blocks() }
func (s *SortedRangeSet) Len() int { return s.set.Len() }
func (s *SortedRangeSet) Empty() bool { return s.set.Empty() }
func (s *SortedRangeSet) Ranges() []Range { return s.set.Ranges() }
func (s *SortedRangeSet) String() string { return s.set.String() }
func (s *SortedRangeSet) Contains(block uint64) bool { return s.set.Contains(block) }
func (s *SortedRangeSet) Overlaps(other RangeSet) bool { return s.set.Overlaps(other) }

// Clear empties the set.
func (s *SortedRangeSet) Clear() { s.set.Clear() }

// RangeSet returns a copy of the ranges as a plain RangeSet.
func (s *SortedRangeSet) RangeSet() RangeSet {
	return RangeSet{ranges: s.set.Ranges(), blocks: s.set.blocks}
}

// Insert merges r into the set. Empty or inverted ranges are ignored.
func (s *SortedRangeSet) Insert(r Range) {
	if r.First >= r.Second {
		return
	}
	s.merge([]Range{r})
}

// InsertSet merges every range of other into the set.
func (s *SortedRangeSet) InsertSet(other *SortedRangeSet) {
	if other == nil || other.Empty() {
		return
	}
	s.merge(other.set.ranges)
}

// InsertBytes inserts the blocks covering the byte interval [start, start+length).
func (s *SortedRangeSet) InsertBytes(start, length uint64) {
	if length == 0 {
		return
	}
	s.Insert(s.byteRange(start, length))
}

// OverlapsBytes reports whether the blocks covering [start, start+length) overlap the set.
func (s *SortedRangeSet) OverlapsBytes(start, length uint64) bool {
	if length == 0 {
		return false
	}
	r := s.byteRange(start, length)
	return s.set.Overlaps(RangeSet{ranges: []Range{r}, blocks: r.Blocks()})
}

func (s *SortedRangeSet) byteRange(start, length uint64) Range {
	return Range{First: start / s.blockSize, Second: (start+length-1)/s.blockSize + 1}
}

func (s *SortedRangeSet) merge(extra []Range) {
	if len(extra) == 0 {
		return
	}
	all := make([]Range, 0, len(s.set.ranges)+len(extra))
	all = append(all, s.set.ranges...)
	all = append(all, extra...)
	sort.Slice(all, func(i, j int) bool {
		if all[i].First != all[j].First {
			return all[i].First < all[j].First
		}
		return all[i].Second < all[j].Second
	})

	s.set.Clear()
	cur := all[0]
	for _, r := range all[1:] {
		if r.First <= cur.Second {
			if r.Second > cur.Second {
				cur.Second = r.Second
			}
			continue
		}
		s.set.ranges = append(s.set.ranges, cur)
		s.set.blocks += cur.Blocks()
		cur = r
	}
	s.set.ranges = append(s.set.ranges, cur)
	s.set.blocks += cur.Blocks()
}

// GetOffsetInRangeSet maps a byte offset of a contiguous file whose blocks are
// the ones in this set onto the offset within the concatenation of the ranges.
//
// With ranges [1,10) and [15,20) and 4096-byte blocks, offset 4106 maps to 10
// and offset 65546 (block 16) maps to 40970.
func (s *SortedRangeSet) GetOffsetInRangeSet(offset uint64) (uint64, error) {
	block := offset / s.blockSize
	var mapped uint64
	for _, r := range s.set.ranges {
		switch {
		case block >= r.Second:
			mapped += r.Blocks()
		case block >= r.First:
			mapped += block - r.First
			return mapped*s.blockSize + offset%s.blockSize, nil
		default:
			return 0, fmt.Errorf("block %d is missing between two ranges: %s", block, s.String())
		}
	}
	return 0, fmt.Errorf("block %d exceeds the limit of range set: %s", block, s.String())
}
