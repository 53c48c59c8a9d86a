package transfer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
)

// ParseConfig controls command parsing. The zero value is the production
// configuration.
type ParseConfig struct {
	// AllowAbort accepts the testing-only "abort" command.
	AllowAbort bool
	// BlockSize is recorded on every command; zero means 4096.
	BlockSize uint64
}

func (c ParseConfig) blockSize() uint64 {
	if c.BlockSize == 0 {
		return rangeset.DefaultBlockSize
	}
	return c.BlockSize
}

// Args is the type-specific payload of a Command.
type Args interface {
	isArgs()
}

// TargetArgs is the payload of zero, new and erase.
type TargetArgs struct {
	Target TargetInfo
}

// StashArgs is the payload of stash.
type StashArgs struct {
	Stash StashInfo
}

// FreeArgs is the payload of free.
type FreeArgs struct {
	ID string
}

// MoveArgs is the payload of move.
type MoveArgs struct {
	Target TargetInfo
	Source SourceInfo
}

// DiffArgs is the payload of bsdiff and imgdiff.
type DiffArgs struct {
	Patch  PatchInfo
	Target TargetInfo
	Source SourceInfo
}

// HashTreeArgs is the payload of compute_hash_tree.
type HashTreeArgs struct {
	HashTree HashTreeInfo
}

// AbortArgs is the empty payload of abort.
type AbortArgs struct{}

func (TargetArgs) isArgs() {}
func (StashArgs) isArgs() {}
func (FreeArgs) isArgs() {}
func (MoveArgs) isArgs() {}
func (DiffArgs) isArgs() {}
func (HashTreeArgs) isArgs() {}
func (AbortArgs) isArgs() {}

// Command is one parsed transfer list line. It can only be built by
// ParseCommand, so the payload always matches the type.
type Command struct {
	typ       Type
	index     int
	cmdline   string
	blockSize uint64
	args      Args
}

func (c Command) Type() Type { return c.typ }
func (c Command) Index() int { return c.index }
func (c Command) Cmdline() string { return c.cmdline }
func (c Command) BlockSize() uint64 { return c.blockSize }
func (c Command) Args() Args { return c.args }
func (c Command) Valid() bool { return c.args != nil && c.typ != TypeLast }
func (c Command) String() string { return fmt.Sprintf("%d: %s", c.index, c.cmdline) }

// Target returns the target of zero, new, erase, move, bsdiff and imgdiff.
func (c Command) Target() (TargetInfo, bool) {
	switch a := c.args.(type) {
	case TargetArgs:
		return a.Target, true
	case MoveArgs:
		return a.Target, true
	case DiffArgs:
		return a.Target, true
	}
	return TargetInfo{}, false
}

// Source returns the source of move, bsdiff and imgdiff.
func (c Command) Source() (SourceInfo, bool) {
	switch a := c.args.(type) {
	case MoveArgs:
		return a.Source, true
	case DiffArgs:
		return a.Source, true
	}
	return SourceInfo{}, false
}

// Stash returns the slot of stash and free. For free the ranges are empty.
func (c Command) Stash() (StashInfo, bool) {
	switch a := c.args.(type) {
	case StashArgs:
		return a.Stash, true
	case FreeArgs:
		return StashInfo{ID: a.ID}, true
	}
	return StashInfo{}, false
}

// Patch returns the patch location of bsdiff and imgdiff.
func (c Command) Patch() (PatchInfo, bool) {
	if a, ok := c.args.(DiffArgs); ok {
		return a.Patch, true
	}
	return PatchInfo{}, false
}

// HashTree returns the parameters of compute_hash_tree.
func (c Command) HashTree() (HashTreeInfo, bool) {
	if a, ok := c.args.(HashTreeArgs); ok {
		return a.HashTree, true
	}
	return HashTreeInfo{}, false
}

// ParseCommand parses a single command line.
func ParseCommand(line string, index int, cfg ParseConfig) (Command, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, parseErrorf(UnknownCommandType, "invalid type")
	}
	op, err := ParseType(tokens[0], cfg.AllowAbort)
	if err != nil {
		return Command{}, err
	}
	rest := tokens[1:]

	var args Args
	switch op {
	case TypeZero, TypeNew, TypeErase:
		if len(rest) != 1 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 1)", len(rest))
		}
		ranges, err := parseRanges(rest[0], "invalid target ranges")
		if err != nil {
			return Command{}, err
		}
		args = TargetArgs{Target: TargetInfo{Hash: UnknownHash, Ranges: ranges}}

	case TypeStash:
		if len(rest) != 2 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 2)", len(rest))
		}
		if !isHashToken(rest[0]) {
			return Command{}, parseErrorf(InvalidArgs, "invalid stash id %q", rest[0])
		}
		ranges, err := parseRanges(rest[1], "invalid token")
		if err != nil {
			return Command{}, err
		}
		args = StashArgs{Stash: StashInfo{ID: rest[0], Ranges: ranges}}

	case TypeFree:
		if len(rest) != 1 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 1)", len(rest))
		}
		if !isHashToken(rest[0]) {
			return Command{}, parseErrorf(InvalidArgs, "invalid stash id %q", rest[0])
		}
		args = FreeArgs{ID: rest[0]}

	case TypeMove:
		if len(rest) < 1 || !isHashToken(rest[0]) {
			return Command{}, parseErrorf(InvalidArgs, "missing hash")
		}
		tgtHash, srcHash := rest[0], rest[0]
		rest = rest[1:]
		// Both "move <hash> R_tgt ..." and "move <tgt_hash> <src_hash> R_tgt ..."
		// are accepted; a range set always contains a comma.
		if len(rest) > 1 && isHashToken(rest[0]) {
			srcHash = rest[0]
			rest = rest[1:]
		}
		target, source, err := ParseTargetInfoAndSourceInfo(rest, tgtHash, srcHash)
		if err != nil {
			return Command{}, err
		}
		args = MoveArgs{Target: target, Source: source}

	case TypeBsdiff, TypeImgdiff:
		if len(rest) < 4 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 4+)", len(rest))
		}
		offset, err1 := parseCount(rest[0])
		length, err2 := parseCount(rest[1])
		if err1 != nil || err2 != nil {
			return Command{}, parseErrorf(InvalidArgs, "invalid patch offset/length")
		}
		if !isHashToken(rest[2]) || !isHashToken(rest[3]) {
			return Command{}, parseErrorf(InvalidArgs, "invalid hash")
		}
		target, source, err := ParseTargetInfoAndSourceInfo(rest[4:], rest[3], rest[2])
		if err != nil {
			return Command{}, err
		}
		args = DiffArgs{Patch: PatchInfo{Offset: offset, Length: length}, Target: target, Source: source}

	case TypeComputeHashTree:
		if len(rest) != 5 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 5)", len(rest))
		}
		htRanges, err := parseRanges(rest[0], "invalid hash tree ranges")
		if err != nil {
			return Command{}, err
		}
		srcRanges, err := parseRanges(rest[1], "invalid source ranges")
		if err != nil {
			return Command{}, err
		}
		args = HashTreeArgs{HashTree: HashTreeInfo{
			HashTreeRanges: htRanges,
			SourceRanges:   srcRanges,
			HashAlgorithm:  rest[2],
			SaltHex:        rest[3],
			RootHash:       rest[4],
		}}

	case TypeAbort:
		if len(rest) != 0 {
			return Command{}, parseErrorf(InvalidArgs, "invalid number of args: %d (expected 0)", len(rest))
		}
		args = AbortArgs{}
	}

	return Command{
		typ:       op,
		index:     index,
		cmdline:   line,
		blockSize: cfg.blockSize(),
		args:      args,
	}, nil
}

// ParseTargetInfoAndSourceInfo decodes the tail shared by move, bsdiff and
// imgdiff in one of three shapes:
//
//	<tgt_ranges> <src_block_count> - <stash_id:location> ...
//	<tgt_ranges> <src_block_count> <src_ranges>
//	<tgt_ranges> <src_block_count> <src_ranges> <src_ranges_location> <stash_id:location> ...
func ParseTargetInfoAndSourceInfo(tokens []string, tgtHash, srcHash string) (TargetInfo, SourceInfo, error) {
	if len(tokens) < 3 {
		return TargetInfo{}, SourceInfo{}, parseErrorf(InvalidArgs, "invalid number of args")
	}

	pos := 0
	tgtRanges, err := parseRanges(tokens[pos], "invalid target ranges")
	if err != nil {
		return TargetInfo{}, SourceInfo{}, err
	}
	pos++
	target := TargetInfo{Hash: tgtHash, Ranges: tgtRanges}

	srcBlocks, err := parseCount(tokens[pos])
	if err != nil {
		return TargetInfo{}, SourceInfo{}, parseErrorf(InvalidArgs, "invalid src_block_count %q", tokens[pos])
	}
	pos++

	var srcRanges, srcLocation rangeset.RangeSet
	if tokens[pos] == "-" {
		pos++
	} else {
		srcRanges, err = parseRanges(tokens[pos], "invalid source ranges")
		if err != nil {
			return TargetInfo{}, SourceInfo{}, err
		}
		pos++

		if pos >= len(tokens) {
			source := NewSourceInfo(srcHash, srcRanges, rangeset.RangeSet{}, nil)
			if source.Blocks() != srcBlocks {
				return TargetInfo{}, SourceInfo{}, mismatch(source, srcBlocks)
			}
			return target, source, nil
		}

		srcLocation, err = parseRanges(tokens[pos], "invalid source ranges location")
		if err != nil {
			return TargetInfo{}, SourceInfo{}, err
		}
		pos++
	}

	var stashes []StashInfo
	for ; pos < len(tokens); pos++ {
		pair := strings.Split(tokens[pos], ":")
		if len(pair) != 2 {
			return TargetInfo{}, SourceInfo{}, parseErrorf(InvalidArgs, "invalid stash info")
		}
		if !isHashToken(pair[0]) {
			return TargetInfo{}, SourceInfo{}, parseErrorf(InvalidArgs, "invalid stash id %q", pair[0])
		}
		loc, err := parseRanges(pair[1], "invalid stash location")
		if err != nil {
			return TargetInfo{}, SourceInfo{}, err
		}
		stashes = append(stashes, StashInfo{ID: pair[0], Ranges: loc})
	}

	source := NewSourceInfo(srcHash, srcRanges, srcLocation, stashes)
	if source.Blocks() != srcBlocks {
		return TargetInfo{}, SourceInfo{}, mismatch(source, srcBlocks)
	}
	if source.Ranges.Empty() && len(source.Stashes) == 0 {
		return TargetInfo{}, SourceInfo{}, parseErrorf(InvalidArgs, "source has neither ranges nor stashes")
	}
	if err := checkLayout(source); err != nil {
		return TargetInfo{}, SourceInfo{}, err
	}
	return target, source, nil
}

// checkLayout rejects buffer positions outside the assembled source.
func checkLayout(s SourceInfo) error {
	if !s.Location.Empty() {
		if s.Location.Blocks() != s.Ranges.Blocks() {
			return parseErrorf(InvalidArgs, "source location %s covers %d blocks, source ranges hold %d",
				s.Location, s.Location.Blocks(), s.Ranges.Blocks())
		}
		if endBlock(s.Location) > s.blocks {
			return parseErrorf(InvalidArgs, "source location %s outside %d source blocks", s.Location, s.blocks)
		}
	}
	for _, st := range s.Stashes {
		if endBlock(st.Ranges) > s.blocks {
			return parseErrorf(InvalidArgs, "stash %s location %s outside %d source blocks", st.ID, st.Ranges, s.blocks)
		}
	}
	return nil
}

func endBlock(rs rangeset.RangeSet) uint64 {
	var end uint64
	for _, r := range rs.Ranges() {
		if r.Second > end {
			end = r.Second
		}
	}
	return end
}

func mismatch(source SourceInfo, want uint64) error {
	return parseErrorf(BlockCountMismatch, "mismatching block count: %d (%s) vs %d",
		source.Blocks(), source.Ranges, want)
}

// parseRanges wraps a RangeSet parse failure into a ParseError whose kind
// reflects the underlying cause.
func parseRanges(text, msg string) (rangeset.RangeSet, error) {
	rs, err := rangeset.Parse(text)
	if err == nil {
		return rs, nil
	}
	kind := InvalidRangeSet
	switch {
	case errors.Is(err, rangeset.ErrOddCount):
		kind = OddTokenCount
	case errors.Is(err, rangeset.ErrEmptyRange):
		kind = EmptyRange
	}
	return rangeset.RangeSet{}, &ParseError{Kind: kind, Msg: msg, Err: err}
}

func parseCount(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

// isHashToken accepts lowercase hex digests. Hashes double as stash file
// names, so nothing else may get through.
func isHashToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
