// Package engine executes parsed transfer lists against a block device.
//
// Commands run strictly in order. After every command that changed the
// device, the device is synced and a checkpoint of the command is saved, so
// an interrupted run resumes after the last completed command.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
	"github.com/sirupsen/logrus"
)

// BlockDevice is the partition being updated.
type BlockDevice interface {
	ReadBlocks(rs rangeset.RangeSet, buf []byte) error
	WriteBlocks(rs rangeset.RangeSet, buf []byte) error
	Discard(rs rangeset.RangeSet) error
	Sync() error
}

// StashStore persists stashes between commands and across runs.
type StashStore interface {
	Write(id string, data []byte) error
	// Read wraps ErrStashMissing when id is absent.
	Read(id string) ([]byte, error)
	// Free succeeds when id is absent.
	Free(id string) error
	Exists(id string) bool
}

// Patcher applies a bsdiff or imgdiff patch to a source buffer.
type Patcher interface {
	ApplyPatch(t transfer.Type, src, patch []byte) ([]byte, error)
}

// Checkpointer records the last completed command.
type Checkpointer interface {
	Save(index int, cmdline string) error
	Load() (index int, cmdline string, ok bool, err error)
	Clear() error
}

// Options configures an Engine.
type Options struct {
	Partition  string
	Device     BlockDevice
	Stash      StashStore
	Checkpoint Checkpointer
	Patcher    Patcher
	// NewData is the stream consumed by new commands, in order.
	NewData io.Reader
	// PatchData is the blob addressed by bsdiff and imgdiff offsets.
	PatchData []byte
	BlockSize uint64
	// Verify runs the list without writing anything.
	Verify bool
	// Retry marks a run after a failed attempt; zero discards blocks first.
	Retry bool

	Logger   *logrus.Entry
	Metrics  *lib.Metrics
	Progress *lib.Progress
}

// Result summarizes a run.
type Result struct {
	Executed      int
	Skipped       int
	WrittenBlocks uint64
	StashedBlocks uint64
	// Resumed is set when a valid checkpoint was found.
	Resumed bool
	// CheckpointCleared is set when verify mode found the checkpoint untrustworthy.
	CheckpointCleared bool
}

// Engine runs transfer lists. It is not safe for concurrent use.
type Engine struct {
	opts      Options
	log       *logrus.Entry
	blockSize uint64
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Device == nil {
		return nil, errors.New("engine: no block device")
	}
	if opts.Stash == nil {
		return nil, errors.New("engine: no stash store")
	}
	if opts.Checkpoint == nil {
		return nil, errors.New("engine: no checkpoint store")
	}
	if opts.NewData == nil {
		opts.NewData = bytes.NewReader(nil)
	}
	blockSize := opts.BlockSize
	if blockSize == 0 {
		blockSize = rangeset.DefaultBlockSize
	}
	log := opts.Logger
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	log = log.WithField("partition", opts.Partition)
	return &Engine{opts: opts, log: log, blockSize: blockSize}, nil
}

// run is the state of one Run call.
type run struct {
	*Engine
	tl  *transfer.TransferList
	cmd transfer.Command
	log *logrus.Entry

	canWrite bool
	retry    bool

	// stashMap remembers the device ranges of stashes seen in verify mode.
	stashMap map[string]rangeset.RangeSet
	// stashSizes tracks live stashes, in blocks, including those left by an
	// interrupted attempt.
	stashSizes  map[string]uint64
	stashBlocks uint64

	targetVerified bool
	foundWrites    bool
	freeStash      string

	result Result
}

// Run executes tl. On success in write mode the checkpoint is cleared. An
// error is a *CommandError unless it happened before the first command.
func (e *Engine) Run(ctx context.Context, tl *transfer.TransferList) (Result, error) {
	if tl == nil || !tl.Valid() {
		return Result{}, errors.New("engine: invalid transfer list")
	}
	r := &run{
		Engine:     e,
		tl:         tl,
		log:        e.log,
		canWrite:   !e.opts.Verify,
		retry:      e.opts.Retry,
		stashMap:   make(map[string]rangeset.RangeSet),
		stashSizes: make(map[string]uint64),
	}
	if tl.TotalBlocks == 0 {
		r.log.Info("transfer list writes no blocks")
		return r.result, nil
	}

	last, skipExecuted, err := r.loadCheckpoint()
	if err != nil {
		return r.result, err
	}

	for _, cmd := range tl.Commands {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		r.cmd = cmd
		r.log = e.log.WithFields(logrus.Fields{"cmd_index": cmd.Index(), "cmd_type": cmd.Type().String()})
		r.targetVerified = false
		start := time.Now()

		if !r.canWrite && skippedInVerify(cmd.Type()) {
			r.log.Debugf("skip executing command [%s]", cmd.Cmdline())
			continue
		}

		// New data is read sequentially, so new commands always run again.
		if r.canWrite && skipExecuted && cmd.Index() <= last && cmd.Type() != transfer.TypeNew {
			r.log.Infof("skipping already executed command %d, last executed command for previous update: %d", cmd.Index(), last)
			r.replayStash()
			r.result.Skipped++
			r.observe("skipped", start)
			r.progress(cmd)
			continue
		}

		if err := r.perform(); err != nil {
			r.observe("failed", start)
			if errors.Is(err, ErrUnresumable) {
				if cerr := e.opts.Checkpoint.Clear(); cerr != nil {
					r.log.WithError(cerr).Warn("failed to delete checkpoint")
				}
			}
			return r.result, &CommandError{Index: cmd.Index(), Cmdline: cmd.Cmdline(), Class: classify(err), Err: err}
		}

		if !r.canWrite && skipExecuted && cmd.Index() <= last && cmd.Type().ReadsSource() && !r.targetVerified {
			r.log.Warnf("previously executed command %d: %s doesn't produce expected target blocks", last, cmd.Cmdline())
			skipExecuted = false
			if err := e.opts.Checkpoint.Clear(); err != nil {
				r.log.WithError(err).Warn("failed to delete checkpoint")
			}
			r.result.CheckpointCleared = true
		}

		if r.canWrite {
			if err := e.opts.Device.Sync(); err != nil {
				return r.result, &CommandError{Index: cmd.Index(), Cmdline: cmd.Cmdline(), Class: ClassIO, Err: fmt.Errorf("fsync failed: %w", err)}
			}
			if err := e.opts.Checkpoint.Save(cmd.Index(), cmd.Cmdline()); err != nil {
				r.log.WithError(err).Warn("failed to update the last command file")
			}
		}
		r.result.Executed++
		r.observe("executed", start)
		r.progress(cmd)
	}

	if r.canWrite {
		r.log.Infof("wrote %d blocks; expected %d", r.result.WrittenBlocks, tl.TotalBlocks)
		r.log.Infof("stashed %d blocks", r.result.StashedBlocks)
		if err := e.opts.Checkpoint.Clear(); err != nil {
			return r.result, fmt.Errorf("failed to delete checkpoint: %w", err)
		}
	} else {
		r.log.Info("verified partition contents; update may be resumed")
	}
	return r.result, nil
}

// loadCheckpoint returns the last completed index and whether commands up to
// it may be skipped. A checkpoint that does not name a command of this list
// is discarded.
func (r *run) loadCheckpoint() (int, bool, error) {
	index, cmdline, ok, err := r.opts.Checkpoint.Load()
	if err != nil {
		r.log.WithError(err).Warn("failed to parse the last command file")
		return -1, false, r.clearCheckpoint()
	}
	if !ok {
		return -1, false, nil
	}
	for _, cmd := range r.tl.Commands {
		if cmd.Index() == index {
			if cmd.Cmdline() != cmdline {
				break
			}
			r.log.Infof("resuming after command %d: %s", index, cmdline)
			r.result.Resumed = true
			r.retry = true
			return index, true, nil
		}
	}
	r.log.Warnf("last command file names %d: %q, which is not in this transfer list", index, cmdline)
	return -1, false, r.clearCheckpoint()
}

func (r *run) clearCheckpoint() error {
	if err := r.opts.Checkpoint.Clear(); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// skippedInVerify lists the commands that only write.
func skippedInVerify(t transfer.Type) bool {
	switch t {
	case transfer.TypeZero, transfer.TypeNew, transfer.TypeErase, transfer.TypeComputeHashTree:
		return true
	}
	return false
}

func (r *run) observe(outcome string, start time.Time) {
	if r.opts.Metrics != nil {
		r.opts.Metrics.ObserveCommand(r.opts.Partition, r.cmd.Type().String(), outcome, r.cmd.Index(), time.Since(start))
	}
}

func (r *run) progress(cmd transfer.Command) {
	if r.opts.Progress == nil {
		return
	}
	if t, ok := cmd.Target(); ok {
		r.opts.Progress.Add(t.Blocks())
	}
}

func (r *run) perform() error {
	switch r.cmd.Type() {
	case transfer.TypeZero:
		return r.zero()
	case transfer.TypeNew:
		return r.newData()
	case transfer.TypeErase:
		return r.erase()
	case transfer.TypeStash:
		return r.stash()
	case transfer.TypeFree:
		return r.free()
	case transfer.TypeMove, transfer.TypeBsdiff, transfer.TypeImgdiff:
		return r.transfer()
	case transfer.TypeComputeHashTree:
		return r.computeHashTree()
	case transfer.TypeAbort:
		r.log.Info("aborting as instructed")
		return ErrAborted
	default:
		return fmt.Errorf("unexpected command type %s", r.cmd.Type())
	}
}
