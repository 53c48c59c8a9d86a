package transfer

import "fmt"

// Type selects the operation a Command performs.
type Type int

const (
	TypeAbort Type = iota
	TypeBsdiff
	TypeComputeHashTree
	TypeErase
	TypeFree
	TypeImgdiff
	TypeMove
	TypeNew
	TypeStash
	TypeZero
	// TypeLast marks an invalid or unparsed command.
	TypeLast
)

var typeNames = [...]string{
	TypeAbort:           "abort",
	TypeBsdiff:          "bsdiff",
	TypeComputeHashTree: "compute_hash_tree",
	TypeErase:           "erase",
	TypeFree:            "free",
	TypeImgdiff:         "imgdiff",
	TypeMove:            "move",
	TypeNew:             "new",
	TypeStash:           "stash",
	TypeZero:            "zero",
}

// Types lists every valid command type in declaration order.
func Types() []Type {
	return []Type{TypeAbort, TypeBsdiff, TypeComputeHashTree, TypeErase, TypeFree,
		TypeImgdiff, TypeMove, TypeNew, TypeStash, TypeZero}
}

func (t Type) String() string {
	if t >= 0 && t < TypeLast {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType maps a command name to its Type. "abort" is rejected unless
// allowAbort is set.
func ParseType(name string, allowAbort bool) (Type, error) {
	for t := TypeAbort; t < TypeLast; t++ {
		if typeNames[t] != name {
			continue
		}
		if t == TypeAbort && !allowAbort {
			return TypeLast, parseErrorf(AbortNotAllowed, "ABORT disallowed")
		}
		return t, nil
	}
	return TypeLast, parseErrorf(UnknownCommandType, "invalid type %q", name)
}

// IsPatch reports whether t applies a binary patch.
func (t Type) IsPatch() bool {
	return t == TypeBsdiff || t == TypeImgdiff
}

// ReadsSource reports whether t reconstructs a source buffer before writing.
func (t Type) ReadsSource() bool {
	return t == TypeMove || t.IsPatch()
}
