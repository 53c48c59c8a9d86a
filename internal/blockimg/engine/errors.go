package engine

import (
	"errors"
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/hashicorp/errwrap"
)

// Class groups execution failures by cause.
type Class int

const (
	// ClassVerification covers hash mismatches and patch failures.
	ClassVerification Class = iota
	// ClassIO covers device and stash I/O, including missing stashes.
	ClassIO
	// ClassResource covers stash usage beyond the limits in the header.
	ClassResource
)

func (c Class) String() string {
	switch c {
	case ClassVerification:
		return "verification"
	case ClassIO:
		return "io"
	case ClassResource:
		return "resource"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

var (
	// ErrStashMissing is returned when a stash needed by a command is gone.
	ErrStashMissing = lib.ErrStashMissing
	// ErrHashMismatch is returned when blocks do not hash to the expected value.
	ErrHashMismatch = lib.ErrHashMismatch
	// ErrStashLimit is returned when stash usage exceeds the header limits.
	ErrStashLimit = errors.New("stash limit exceeded")
	// ErrUnresumable means neither the source blocks nor a stash of them hold
	// the expected data; the update cannot be resumed and must restart.
	ErrUnresumable = errors.New("partition has unexpected contents")
	// ErrAborted is returned by the testing-only abort command.
	ErrAborted = errors.New("aborting as instructed")
)

// CommandError reports the command that stopped a run.
type CommandError struct {
	Index   int
	Cmdline string
	Class   Class
	Err     error
}

var _ errwrap.Wrapper = (*CommandError)(nil)

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %d [%s] failed (%s): %v", e.Index, e.Cmdline, e.Class, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// WrappedErrors implements errwrap.Wrapper.
func (e *CommandError) WrappedErrors() []error { return []error{e.Err} }

// classify picks the class of a handler error from the sentinels it wraps.
func classify(err error) Class {
	switch {
	case errors.Is(err, ErrStashLimit):
		return ClassResource
	case errors.Is(err, ErrStashMissing):
		return ClassIO
	case errors.Is(err, ErrHashMismatch), errors.Is(err, ErrUnresumable), errors.Is(err, lib.ErrNoPatcher),
		errors.Is(err, errPatch), errors.Is(err, ErrAborted):
		return ClassVerification
	default:
		return ClassIO
	}
}

// errPatch marks patch application failures.
var errPatch = errors.New("patch application failed")
