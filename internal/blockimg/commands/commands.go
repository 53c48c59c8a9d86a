// Package commands contains the operations behind the blockimg CLI.
package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/engine"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
	"github.com/google/uuid"
	"github.com/hashicorp/errwrap"
	"github.com/sirupsen/logrus"
)

// RunOptions selects the device and update inputs for Apply and Verify.
type RunOptions struct {
	Config types.Config
	// Device is the block device or image file being updated.
	Device string
	// Partition names the update in logs and metrics. With a package it also
	// selects the package entries; it defaults to the device's base name.
	Partition string
	// Package is an OTA zip. When set, the transfer list, new data and patch
	// data are read from it instead of the separate files below.
	Package      string
	TransferList string
	NewData      string
	PatchData    string
	// Retry marks a run after a failed attempt.
	Retry bool
}

func (o RunOptions) partition() string {
	if o.Partition != "" {
		return o.Partition
	}
	return filepath.Base(o.Device)
}

// inputs are the decoded update artifacts of one partition.
type inputs struct {
	tl        transfer.TransferList
	newData   io.ReadCloser
	patchData []byte
	pkg       *lib.Package
}

func (in *inputs) Close() error {
	var err error
	if in.newData != nil {
		err = in.newData.Close()
	}
	if in.pkg != nil {
		if cerr := in.pkg.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// loadTransferList reads the transfer list text from the package or the file.
func loadTransferList(pkgPath, partition, listPath string) (string, error) {
	if pkgPath == "" {
		if listPath == "" {
			return "", errors.New("either a package or a transfer list is required")
		}
		content, err := os.ReadFile(listPath)
		if err != nil {
			return "", fmt.Errorf("failed to read transfer list: %w", err)
		}
		return string(content), nil
	}
	pkg, err := lib.OpenPackage(pkgPath)
	if err != nil {
		return "", err
	}
	defer pkg.Close()
	return pkg.ReadTransferList(partition)
}

func loadInputs(opts RunOptions) (*inputs, error) {
	partition := opts.partition()
	in := &inputs{}
	var text string

	if opts.Package != "" {
		pkg, err := lib.OpenPackage(opts.Package)
		if err != nil {
			return nil, err
		}
		in.pkg = pkg
		if text, err = pkg.ReadTransferList(partition); err != nil {
			in.Close()
			return nil, err
		}
		if in.patchData, err = pkg.ReadPatchData(partition); err != nil {
			in.Close()
			return nil, err
		}
		if in.newData, err = pkg.OpenNewData(partition); err != nil {
			in.Close()
			return nil, err
		}
	} else {
		var err error
		if text, err = loadTransferList("", partition, opts.TransferList); err != nil {
			return nil, err
		}
		if opts.PatchData != "" {
			if in.patchData, err = os.ReadFile(opts.PatchData); err != nil {
				return nil, fmt.Errorf("failed to read patch data: %w", err)
			}
		}
		if opts.NewData != "" {
			if in.newData, err = lib.OpenNewData(opts.NewData); err != nil {
				return nil, err
			}
		} else {
			in.newData = io.NopCloser(bytes.NewReader(nil))
		}
	}

	tl, err := transfer.Parse(text, transfer.ParseConfig{BlockSize: opts.Config.BlockSize})
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to parse transfer list: %w", err)
	}
	in.tl = tl
	return in, nil
}

// checkpointStore is a Checkpointer backed by a file or a database.
type checkpointStore interface {
	engine.Checkpointer
	Close() error
}

func openCheckpoint(cfg types.Config, device string) (checkpointStore, error) {
	if cfg.CheckpointBackend == "bolt" {
		return lib.OpenBoltCheckpoint(lib.GetCheckpointDBPath(cfg.WorkDir), device)
	}
	return lib.NewFileCheckpoint(lib.GetCheckpointPath(cfg.WorkDir)), nil
}

// execute runs one partition update, or verifies it when verify is set. It
// owns everything around the engine: the updated marker, the stash directory
// lifetime, and metrics export.
func execute(ctx context.Context, opts RunOptions, verify bool) (types.RunSummary, error) {
	cfg := opts.Config
	summary := types.RunSummary{Session: uuid.NewString(), Partition: opts.partition(), Verify: verify}

	logger := lib.NewLogger(cfg.LogLevel, os.Stderr)
	log := logrus.NewEntry(logger).WithField("session", summary.Session)

	if _, err := lib.EnsureWorkDirs(cfg.WorkDir); err != nil {
		return summary, err
	}

	// A retry of a partition that already finished is a no-op; a fresh run
	// drops a marker left by an earlier update.
	marker := lib.GetUpdatedMarkerPath(cfg.WorkDir, opts.Device)
	if opts.Retry {
		if _, err := os.Stat(marker); err == nil {
			log.Infof("skipping already updated partition %s based on marker", opts.Device)
			summary.AlreadyDone = true
			return summary, nil
		}
	} else if !verify {
		if err := lib.RemoveIfExists(marker); err != nil {
			return summary, fmt.Errorf("failed to remove partition updated marker %s: %w", marker, err)
		}
	}

	in, err := loadInputs(opts)
	if err != nil {
		return summary, err
	}
	defer in.Close()

	dev, err := lib.OpenDevice(opts.Device, cfg.BlockSize, lib.DeviceOptions{
		ReadOnly:       verify,
		WriteRateLimit: cfg.WriteRateLimit,
	})
	if err != nil {
		return summary, err
	}
	defer dev.Close()
	log.Debugf("opened %s (block device: %t)", dev.Path(), dev.IsBlockDevice())

	stashDir := lib.GetStashDir(cfg.WorkDir, opts.Device)
	_, statErr := os.Stat(stashDir)
	createdStash := os.IsNotExist(statErr)
	stash, err := lib.OpenStashStore(stashDir, lib.StashOptions{
		Compress:      cfg.CompressStash,
		CacheEntries:  cfg.StashCacheEntries,
		SweepPatterns: cfg.StashSweepPatterns,
	})
	if err != nil {
		return summary, err
	}

	cp, err := openCheckpoint(cfg, opts.Device)
	if err != nil {
		return summary, err
	}
	defer cp.Close()

	metrics := lib.NewMetrics()
	var progress *lib.Progress
	if !verify {
		progress = lib.NewProgress(summary.Partition, in.tl.TotalBlocks, cfg.BlockSize, os.Stdout)
	}

	e, err := engine.New(engine.Options{
		Partition:  summary.Partition,
		Device:     dev,
		Stash:      stash,
		Checkpoint: cp,
		Patcher:    lib.NewPatcher(cfg.BsdiffCommand, cfg.ImgdiffCommand, cfg.WorkDir),
		NewData:    in.newData,
		PatchData:  in.patchData,
		BlockSize:  cfg.BlockSize,
		Verify:     verify,
		Retry:      opts.Retry,
		Logger:     log,
		Metrics:    metrics,
		Progress:   progress,
	})
	if err != nil {
		return summary, err
	}

	result, runErr := e.Run(ctx, &in.tl)
	if progress != nil {
		_ = progress.Close()
	}
	summary.Executed = result.Executed
	summary.Skipped = result.Skipped
	summary.WrittenBlocks = result.WrittenBlocks
	summary.StashedBlocks = result.StashedBlocks

	if failed, ok := errwrap.GetType(runErr, &engine.CommandError{}).(*engine.CommandError); ok {
		summary.FailedIndex = failed.Index
		summary.FailedCommand = failed.Cmdline
		summary.FailureClass = failed.Class.String()
		log.WithFields(logrus.Fields{"cmd_index": failed.Index, "class": summary.FailureClass}).
			Errorf("stopped at [%s]", failed.Cmdline)
	}

	if runErr == nil && !verify {
		log.Infof("bytes_written_%s: %d", summary.Partition, result.WrittenBlocks*cfg.BlockSize)
		log.Infof("bytes_stashed_%s: %d (%d on disk)", summary.Partition, result.StashedBlocks*cfg.BlockSize, stash.BytesWritten())
	}

	// Stashes survive a failed update so it can resume, unless it cannot.
	// A verification run never leaves a stash directory it created.
	removeStash := (runErr == nil && !verify) || errors.Is(runErr, engine.ErrUnresumable) || (verify && createdStash)
	if removeStash {
		if err := stash.RemoveAll(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete stash %s: %v\n", stashDir, err)
		}
	}
	if runErr == nil && !verify {
		if err := setUpdatedMarker(marker); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to set updated marker; continuing: %v\n", err)
		}
	}

	if cfg.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write metrics to %s: %v\n", cfg.MetricsTextfile, err)
		}
	}
	return summary, runErr
}

// setUpdatedMarker writes the empty marker that lets a retry skip the partition.
func setUpdatedMarker(marker string) error {
	if err := os.MkdirAll(filepath.Dir(marker), 0700); err != nil {
		return err
	}
	return lib.WriteFileAtomic(marker, ".tmp", nil, 0644)
}
