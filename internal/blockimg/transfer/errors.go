package transfer

import "fmt"

// ErrorKind classifies a parse failure.
type ErrorKind int

const (
	HeaderMismatch ErrorKind = iota
	InvalidVersion
	InvalidTotalBlocks
	InvalidStashLimits
	InvalidRangeSet
	OddTokenCount
	EmptyRange
	UnknownCommandType
	AbortNotAllowed
	InvalidArgs
	BlockCountMismatch
)

var kindNames = map[ErrorKind]string{
	HeaderMismatch:     "header mismatch",
	InvalidVersion:     "invalid version",
	InvalidTotalBlocks: "invalid total blocks",
	InvalidStashLimits: "invalid stash limits",
	InvalidRangeSet:    "invalid range set",
	OddTokenCount:      "odd token count",
	EmptyRange:         "empty range",
	UnknownCommandType: "unknown command type",
	AbortNotAllowed:    "abort not allowed",
	InvalidArgs:        "invalid args",
	BlockCountMismatch: "block count mismatch",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// ParseError reports why a transfer list or one of its lines was rejected.
// Line is the 1-based line number in the transfer list, or 0 when a single
// command line was parsed on its own.
type ParseError struct {
	Kind ErrorKind
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", e.Line, e.Kind, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

func parseErrorf(kind ErrorKind, format string, args ...any) *ParseError {
	return &ParseError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
