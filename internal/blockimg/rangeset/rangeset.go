// Package rangeset models half-open block intervals over a partition's linear
// block address space.
package rangeset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

var (
	// ErrInvalid is wrapped by every error returned from Parse.
	ErrInvalid = errors.New("invalid range set")
	// ErrOddCount is wrapped when the leading count is odd.
	ErrOddCount = errors.New("odd count")
	// ErrEmptyRange is wrapped when a range is empty or inverted.
	ErrEmptyRange = errors.New("empty or inverted range")
)

// Range is the half-open block interval [First, Second).
type Range struct {
	First  uint64
	Second uint64
}

// Blocks returns the number of blocks covered by r.
func (r Range) Blocks() uint64 {
	return r.Second - r.First
}

// RangeSet is an ordered list of non-empty ranges. The order is meaningful and is
// preserved by Parse and String.
type RangeSet struct {
	ranges []Range
	blocks uint64
}

// New builds a RangeSet from the given ranges, rejecting empty or inverted ones.
func New(ranges ...Range) (RangeSet, error) {
	var rs RangeSet
	for _, r := range ranges {
		if err := rs.PushBack(r); err != nil {
			return RangeSet{}, err
		}
	}
	return rs, nil
}

// MustParse is like Parse but panics on error. It is meant for literals in tests
// and tables.
func MustParse(text string) RangeSet {
	rs, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return rs
}

// Parse decodes "N,a1,b1,...,ak,bk" where N is the count of numbers that follow.
func Parse(text string) (RangeSet, error) {
	pieces := strings.Split(text, ",")
	if len(pieces) < 3 {
		return RangeSet{}, fmt.Errorf("%w: need at least 3 tokens, got %d in %q", ErrInvalid, len(pieces), text)
	}

	num, err := parseUint(pieces[0])
	if err != nil {
		return RangeSet{}, fmt.Errorf("%w: bad count %q", ErrInvalid, pieces[0])
	}
	switch {
	case num > math.MaxInt32:
		return RangeSet{}, fmt.Errorf("%w: count %d out of range", ErrInvalid, num)
	case num == 0:
		return RangeSet{}, fmt.Errorf("%w: zero count", ErrInvalid)
	case num%2 != 0:
		return RangeSet{}, fmt.Errorf("%w: %w %d", ErrInvalid, ErrOddCount, num)
	case num != uint64(len(pieces)-1):
		return RangeSet{}, fmt.Errorf("%w: count %d mismatches %d tokens", ErrInvalid, num, len(pieces)-1)
	}

	rs := RangeSet{ranges: make([]Range, 0, num/2)}
	for i := 1; i < len(pieces); i += 2 {
		first, err := parseUint(pieces[i])
		if err != nil {
			return RangeSet{}, fmt.Errorf("%w: bad block %q", ErrInvalid, pieces[i])
		}
		second, err := parseUint(pieces[i+1])
		if err != nil {
			return RangeSet{}, fmt.Errorf("%w: bad block %q", ErrInvalid, pieces[i+1])
		}
		if err := rs.PushBack(Range{First: first, Second: second}); err != nil {
			return RangeSet{}, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return rs, nil
}

// parseUint accepts leading whitespace but nothing after the digits, and never
// a sign.
func parseUint(s string) (uint64, error) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	if s == "" || s[0] == '-' || s[0] == '+' {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseUint(s, 10, 64)
}

// PushBack appends r to the set.
func (rs *RangeSet) PushBack(r Range) error {
	if r.First >= r.Second {
		return fmt.Errorf("%w [%d, %d)", ErrEmptyRange, r.First, r.Second)
	}
	if rs.blocks > math.MaxUint64-r.Blocks() {
		return fmt.Errorf("block count overflow adding [%d, %d)", r.First, r.Second)
	}
	rs.ranges = append(rs.ranges, r)
	rs.blocks += r.Blocks()
	return nil
}

// Clear empties the set.
func (rs *RangeSet) Clear() {
	rs.ranges = nil
	rs.blocks = 0
}

// Blocks returns the total number of blocks in the set.
func (rs RangeSet) Blocks() uint64 { return rs.blocks }

// Len returns the number of ranges.
func (rs RangeSet) Len() int { return len(rs.ranges) }

// Empty reports whether the set holds no ranges.
func (rs RangeSet) Empty() bool { return len(rs.ranges) == 0 }

// Ranges returns a copy of the ranges in order.
func (rs RangeSet) Ranges() []Range {
	out := make([]Range, len(rs.ranges))
	copy(out, rs.ranges)
	return out
}

// At returns the i-th range.
func (rs RangeSet) At(i int) Range { return rs.ranges[i] }

// String is the inverse of Parse. An empty set yields "".
func (rs RangeSet) String() string {
	if len(rs.ranges) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strconv.Itoa(len(rs.ranges) * 2))
	for _, r := range rs.ranges {
		b.WriteByte(',')
		b.WriteString(strconv.FormatUint(r.First, 10))
		b.WriteByte(',')
		b.WriteString(strconv.FormatUint(r.Second, 10))
	}
	return b.String()
}

// Equal reports whether both sets hold the same ranges in the same order.
func (rs RangeSet) Equal(other RangeSet) bool {
	if len(rs.ranges) != len(other.ranges) {
		return false
	}
	for i := range rs.ranges {
		if rs.ranges[i] != other.ranges[i] {
			return false
		}
	}
	return true
}

// GetBlockNumber returns the absolute block of the idx-th block when the ranges
// are concatenated in order.
func (rs RangeSet) GetBlockNumber(idx uint64) (uint64, error) {
	if idx >= rs.blocks {
		return 0, fmt.Errorf("out of bound index %d (total blocks: %d)", idx, rs.blocks)
	}
	for _, r := range rs.ranges {
		if idx < r.Blocks() {
			return r.First + idx, nil
		}
		idx -= r.Blocks()
	}
	return 0, fmt.Errorf("failed to find block number for index %d", idx)
}

// Contains reports whether block lies in any range.
func (rs RangeSet) Contains(block uint64) bool {
	for _, r := range rs.ranges {
		if block >= r.First && block < r.Second {
			return true
		}
	}
	return false
}

// Overlaps reports whether any range of rs intersects any range of other.
// [3,5) and [5,7) do not overlap.
func (rs RangeSet) Overlaps(other RangeSet) bool {
	for _, r := range rs.ranges {
		for _, o := range other.ranges {
			if !(o.First >= r.Second || r.First >= o.Second) {
				return true
			}
		}
	}
	return false
}

// Split distributes the blocks into at most groups sets in order. Earlier groups
// receive one extra block when the division is uneven.
func (rs RangeSet) Split(groups uint64) []RangeSet {
	if len(rs.ranges) == 0 || groups == 0 {
		return nil
	}
	if rs.blocks < groups {
		groups = rs.blocks
	}

	mean := rs.blocks / groups
	extra := rs.blocks % groups

	result := make([]RangeSet, 0, groups)
	i := 0
	cur := rs.ranges[0]
	for g := uint64(0); g < groups; g++ {
		needed := mean
		if g < extra {
			needed++
		}
		var buf RangeSet
		for needed > 0 {
			n := cur.Blocks()
			if n > needed {
				buf.ranges = append(buf.ranges, Range{First: cur.First, Second: cur.First + needed})
				buf.blocks += needed
				cur.First += needed
				break
			}
			buf.ranges = append(buf.ranges, cur)
			buf.blocks += n
			i++
			if i < len(rs.ranges) {
				cur = rs.ranges[i]
			}
			needed -= n
		}
		result = append(result, buf)
	}
	return result
}

// GetSubRanges returns the blocks [start, start+count) of the concatenation as a
// RangeSet. A zero count yields an empty set.
func (rs RangeSet) GetSubRanges(start, count uint64) (RangeSet, error) {
	end := start + count
	if end < start || end > rs.blocks {
		return RangeSet{}, fmt.Errorf("sub ranges [%d, +%d) exceed %d blocks", start, count, rs.blocks)
	}
	if count == 0 {
		return RangeSet{}, nil
	}

	var result RangeSet
	var cur uint64
	for _, r := range rs.ranges {
		n := r.Blocks()
		if cur+n <= start {
			cur += n
			continue
		}
		first := r.First
		if cur < start {
			first += start - cur
		}
		if cur+n >= end {
			if err := result.PushBack(Range{First: first, Second: r.Second - (cur + n - end)}); err != nil {
				return RangeSet{}, err
			}
			return result, nil
		}
		if err := result.PushBack(Range{First: first, Second: r.Second}); err != nil {
			return RangeSet{}, err
		}
		cur += n
	}
	return RangeSet{}, fmt.Errorf("sub ranges [%d, +%d) not found in %s", start, count, rs)
}
