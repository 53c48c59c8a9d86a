package transfer

import (
	"errors"
	"strconv"
	"strings"
)

// Supported transfer list versions.
const (
	MinVersion = 3
	MaxVersion = 4
)

// TransferList is a parsed transfer list. A zero Version marks an invalid list.
type TransferList struct {
	Version         int
	TotalBlocks     uint64
	StashMaxEntries uint64
	StashMaxBlocks  uint64
	// HeaderLines is 3 when the stash limits share a line, 4 otherwise.
	HeaderLines int
	Commands    []Command
}

// Valid reports whether the header parsed.
func (tl TransferList) Valid() bool { return tl.Version != 0 }

// Parse decodes a whole transfer list. Any malformed command fails the whole
// list; blank lines are skipped but keep their index.
func Parse(text string, cfg ParseConfig) (TransferList, error) {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}

	tl, err := parseHeader(lines)
	if err != nil {
		return TransferList{}, err
	}

	for i := tl.HeaderLines; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := ParseCommand(line, i-tl.HeaderLines, cfg)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = i + 1
			}
			return TransferList{}, err
		}
		tl.Commands = append(tl.Commands, cmd)
	}
	return tl, nil
}

func parseHeader(lines []string) (TransferList, error) {
	if len(lines) < 3 {
		return TransferList{}, parseErrorf(HeaderMismatch, "too few lines in the transfer list [%d]", len(lines))
	}

	version, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || version < MinVersion || version > MaxVersion {
		return TransferList{}, &ParseError{Kind: InvalidVersion, Line: 1, Msg: "unexpected transfer list version [" + lines[0] + "]"}
	}

	total, err := strconv.ParseUint(strings.TrimSpace(lines[1]), 10, 64)
	if err != nil {
		return TransferList{}, &ParseError{Kind: InvalidTotalBlocks, Line: 2, Msg: "unexpected block count [" + lines[1] + "]"}
	}

	tl := TransferList{Version: version, TotalBlocks: total}
	if strings.Contains(lines[2], ",") {
		parts := strings.Split(lines[2], ",")
		if len(parts) != 2 {
			return TransferList{}, &ParseError{Kind: InvalidStashLimits, Line: 3, Msg: "unexpected stash limits [" + lines[2] + "]"}
		}
		entries, err1 := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		blocks, err2 := strconv.ParseUint(strings.TrimSpace(parts[1]), 10, 64)
		if err1 != nil || err2 != nil {
			return TransferList{}, &ParseError{Kind: InvalidStashLimits, Line: 3, Msg: "unexpected stash limits [" + lines[2] + "]"}
		}
		tl.StashMaxEntries, tl.StashMaxBlocks, tl.HeaderLines = entries, blocks, 3
		return tl, nil
	}

	if len(lines) < 4 {
		return TransferList{}, parseErrorf(HeaderMismatch, "too few lines in the transfer list [%d]", len(lines))
	}
	entries, err := strconv.ParseUint(strings.TrimSpace(lines[2]), 10, 64)
	if err != nil {
		return TransferList{}, &ParseError{Kind: InvalidStashLimits, Line: 3, Msg: "unexpected maximum stash entries [" + lines[2] + "]"}
	}
	blocks, err := strconv.ParseUint(strings.TrimSpace(lines[3]), 10, 64)
	if err != nil {
		return TransferList{}, &ParseError{Kind: InvalidStashLimits, Line: 4, Msg: "unexpected maximum stash blocks [" + lines[3] + "]"}
	}
	tl.StashMaxEntries, tl.StashMaxBlocks, tl.HeaderLines = entries, blocks, 4
	return tl, nil
}
