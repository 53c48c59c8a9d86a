package engine

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/rangeset"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
)

// chunkBlocks bounds the buffers used by zero, new and compute_hash_tree.
const chunkBlocks = 256

// chunks splits rs into pieces of at most n blocks, in order.
func chunks(rs rangeset.RangeSet, n uint64) []rangeset.RangeSet {
	var out []rangeset.RangeSet
	for _, r := range rs.Ranges() {
		for first := r.First; first < r.Second; first += n {
			piece, _ := rangeset.New(rangeset.Range{First: first, Second: min(first+n, r.Second)})
			out = append(out, piece)
		}
	}
	return out
}

func (r *run) zero() error {
	t, _ := r.cmd.Target()
	r.log.Infof("zeroing %d blocks", t.Blocks())

	if r.canWrite {
		if r.retry {
			if err := r.opts.Device.Discard(t.Ranges); err != nil &&
				!errors.Is(err, lib.ErrDiscardUnsupported) && !errors.Is(err, lib.ErrNotBlockDevice) {
				return err
			}
		}
		zeros := make([]byte, min(t.Blocks(), chunkBlocks)*r.blockSize)
		for _, piece := range chunks(t.Ranges, chunkBlocks) {
			if err := r.opts.Device.WriteBlocks(piece, zeros); err != nil {
				return err
			}
		}
	}
	r.result.WrittenBlocks += t.Blocks()
	r.addWritten(t.Blocks())
	return nil
}

func (r *run) newData() error {
	t, _ := r.cmd.Target()
	if r.canWrite {
		r.log.Infof("writing %d blocks of new data", t.Blocks())

		buf := make([]byte, min(t.Blocks(), chunkBlocks)*r.blockSize)
		remaining := t.Blocks() * r.blockSize
		for _, piece := range chunks(t.Ranges, chunkBlocks) {
			data := buf[:piece.Blocks()*r.blockSize]
			n, err := io.ReadFull(r.opts.NewData, data)
			if err != nil {
				return fmt.Errorf("missing %d bytes of new data: %w", remaining-uint64(n), err)
			}
			if err := r.opts.Device.WriteBlocks(piece, data); err != nil {
				return err
			}
			remaining -= uint64(n)
		}
	}
	r.result.WrittenBlocks += t.Blocks()
	r.addWritten(t.Blocks())
	return nil
}

func (r *run) erase() error {
	t, _ := r.cmd.Target()
	if !r.canWrite {
		return nil
	}
	r.log.Infof("erasing %d blocks", t.Blocks())
	err := r.opts.Device.Discard(t.Ranges)
	switch {
	case errors.Is(err, lib.ErrNotBlockDevice):
		return fmt.Errorf("erase: %w", err)
	case errors.Is(err, lib.ErrDiscardUnsupported):
		return nil
	}
	return err
}

func (r *run) stash() error {
	st, _ := r.cmd.Stash()
	blocks := st.Blocks()

	// An existing stash with the expected content may be the only copy left
	// of blocks a previous attempt already overwrote.
	if _, err := r.loadStash(st.ID, true); err == nil {
		if r.canWrite {
			return r.reserveStash(st.ID, blocks)
		}
		return nil
	}

	buf := make([]byte, blocks*r.blockSize)
	if err := r.opts.Device.ReadBlocks(st.Ranges, buf); err != nil {
		return err
	}
	r.stashMap[st.ID] = st.Ranges

	// The command consuming this stash may already have completed, so a
	// mismatch only matters if the stash is loaded later.
	if err := lib.VerifyHash(buf, st.ID); err != nil {
		r.log.WithError(err).Errorf("failed to load source blocks for stash %s", st.ID)
		return nil
	}

	if !r.canWrite {
		return nil
	}

	if err := r.reserveStash(st.ID, blocks); err != nil {
		return err
	}
	r.log.Infof("stashing %d blocks to %s", blocks, st.ID)
	if err := r.opts.Stash.Write(st.ID, buf); err != nil {
		return err
	}
	r.addStashed(blocks)
	return nil
}

func (r *run) free() error {
	id := r.cmd.Args().(transfer.FreeArgs).ID
	delete(r.stashMap, id)
	if !r.canWrite {
		return nil
	}
	r.releaseStash(id)
	return r.opts.Stash.Free(id)
}

// loadStash returns the content of a stash. In verify mode the device ranges
// recorded by an earlier stash command are tried first.
func (r *run) loadStash(id string, verify bool) ([]byte, error) {
	if !r.canWrite {
		if rs, ok := r.stashMap[id]; ok {
			buf := make([]byte, rs.Blocks()*r.blockSize)
			if err := r.opts.Device.ReadBlocks(rs, buf); err != nil {
				return nil, fmt.Errorf("failed to read source blocks in stash map: %w", err)
			}
			if err := lib.VerifyHash(buf, id); err != nil {
				return nil, fmt.Errorf("failed to verify loaded source blocks in stash map: %w", err)
			}
			return buf, nil
		}
	}

	data, err := r.opts.Stash.Read(id)
	if err != nil {
		return nil, err
	}
	if uint64(len(data))%r.blockSize != 0 {
		return nil, fmt.Errorf("stash %s size %d not multiple of block size %d", id, len(data), r.blockSize)
	}
	if verify {
		if err := lib.VerifyHash(data, id); err != nil {
			r.log.Errorf("unexpected contents in stash %s", id)
			if r.canWrite {
				if ferr := r.opts.Stash.Free(id); ferr != nil {
					r.log.WithError(ferr).Warnf("failed to delete stash %s", id)
				}
			}
			return nil, err
		}
	}
	return data, nil
}

// reserveStash accounts a live stash against the header limits.
func (r *run) reserveStash(id string, blocks uint64) error {
	if _, ok := r.stashSizes[id]; ok {
		return nil
	}
	entries := uint64(len(r.stashSizes)) + 1
	if entries > r.tl.StashMaxEntries {
		return fmt.Errorf("%w: %d entries, header allows %d", ErrStashLimit, entries, r.tl.StashMaxEntries)
	}
	if err := r.checkStashBlocks(blocks); err != nil {
		return err
	}
	r.stashSizes[id] = blocks
	r.stashBlocks += blocks
	return nil
}

// replayStash accounts a stash or free skipped on resume, so the limits also
// cover stashes an earlier attempt left on disk.
func (r *run) replayStash() {
	switch a := r.cmd.Args().(type) {
	case transfer.StashArgs:
		id := a.Stash.ID
		if _, ok := r.stashSizes[id]; ok || !r.opts.Stash.Exists(id) {
			return
		}
		r.stashSizes[id] = a.Stash.Blocks()
		r.stashBlocks += a.Stash.Blocks()
	case transfer.FreeArgs:
		r.releaseStash(a.ID)
	}
}

func (r *run) checkStashBlocks(extra uint64) error {
	if total := r.stashBlocks + extra; total > r.tl.StashMaxBlocks {
		return fmt.Errorf("%w: %d blocks, header allows %d", ErrStashLimit, total, r.tl.StashMaxBlocks)
	}
	return nil
}

func (r *run) releaseStash(id string) {
	r.stashBlocks -= r.stashSizes[id]
	delete(r.stashSizes, id)
}

// transfer runs move, bsdiff and imgdiff.
func (r *run) transfer() error {
	target, _ := r.cmd.Target()
	source, _ := r.cmd.Source()

	src, skip, err := r.loadSourceAndTarget(target, source)
	if err != nil {
		return err
	}

	if skip {
		r.targetVerified = true
		if r.foundWrites {
			r.log.Warnf("commands executed out of order [%s]", r.cmd.Type())
		}
	} else {
		r.foundWrites = true
	}

	if r.canWrite {
		if skip {
			r.log.Infof("skipping %d blocks already written to %s", source.Blocks(), target.Ranges)
		} else {
			out, err := r.produce(target, src)
			if err != nil {
				return err
			}
			if err := r.opts.Device.WriteBlocks(target.Ranges, out); err != nil {
				return err
			}
		}
	}

	if r.freeStash != "" {
		if err := r.opts.Stash.Free(r.freeStash); err != nil {
			r.log.WithError(err).Warnf("failed to free stash %s", r.freeStash)
		}
		r.freeStash = ""
	}

	r.result.WrittenBlocks += target.Blocks()
	r.addWritten(target.Blocks())
	return nil
}

// produce turns the verified source into the target content.
func (r *run) produce(target transfer.TargetInfo, src []byte) ([]byte, error) {
	want := target.Blocks() * r.blockSize
	if r.cmd.Type() == transfer.TypeMove {
		if uint64(len(src)) < want {
			return nil, fmt.Errorf("move source holds %d bytes, target needs %d", len(src), want)
		}
		r.log.Infof("moving %d blocks", target.Blocks())
		return src[:want], nil
	}

	p, _ := r.cmd.Patch()
	if p.Offset+p.Length < p.Offset || p.Offset+p.Length > uint64(len(r.opts.PatchData)) {
		return nil, fmt.Errorf("%w: patch %d+%d outside patch data of %d bytes", errPatch, p.Offset, p.Length, len(r.opts.PatchData))
	}
	if r.opts.Patcher == nil {
		return nil, fmt.Errorf("%w: %s", lib.ErrNoPatcher, r.cmd.Type())
	}

	r.log.Infof("patching %d blocks to %d", len(src)/int(r.blockSize), target.Blocks())
	out, err := r.opts.Patcher.ApplyPatch(r.cmd.Type(), src, r.opts.PatchData[p.Offset:p.Offset+p.Length])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errPatch, err)
	}
	if uint64(len(out)) != want {
		return nil, fmt.Errorf("%w: patch produced %d bytes, target needs %d", errPatch, len(out), want)
	}
	if err := lib.VerifyHash(out, target.Hash); err != nil {
		return nil, fmt.Errorf("patched target: %w", err)
	}
	return out, nil
}

// loadSourceAndTarget checks the target first; skip is true when it already
// holds the expected content. Otherwise it returns the verified source.
func (r *run) loadSourceAndTarget(target transfer.TargetInfo, source transfer.SourceInfo) ([]byte, bool, error) {
	tgt := make([]byte, target.Blocks()*r.blockSize)
	if err := r.opts.Device.ReadBlocks(target.Ranges, tgt); err != nil {
		return nil, false, err
	}
	if lib.VerifyHash(tgt, target.Hash) == nil {
		return nil, true, nil
	}

	src := make([]byte, source.Blocks()*r.blockSize)
	overlap := source.Overlaps(target)
	readErr := source.ReadAll(src, r.blockSize, r.opts.Device.ReadBlocks, func(id string) ([]byte, error) {
		return r.loadStash(id, false)
	})
	if readErr != nil && !errors.Is(readErr, ErrStashMissing) && !errors.Is(readErr, ErrHashMismatch) {
		return nil, false, readErr
	}

	cause := readErr
	if cause == nil {
		cause = lib.VerifyHash(src, source.Hash)
	}
	if cause == nil {
		// Stash overlapping source blocks so a write interrupted halfway can
		// still be resumed. Verify mode never overwrites the source.
		if overlap && r.canWrite {
			if err := r.stashOverlap(source.Hash, source.Blocks(), src); err != nil {
				return nil, false, err
			}
		}
		return src, false, nil
	}

	if overlap {
		if data, err := r.loadStash(source.Hash, true); err == nil {
			// Recovering from an interrupted command: the stash may still be
			// needed, so it is not freed here.
			return data, false, nil
		}
	}

	r.log.Errorf("partition has unexpected contents: %v", cause)
	return nil, false, fmt.Errorf("%w: %w", ErrUnresumable, cause)
}

func (r *run) stashOverlap(id string, blocks uint64, src []byte) error {
	r.log.Infof("stashing %d overlapping blocks to %s", blocks, id)
	if r.opts.Stash.Exists(id) {
		if _, err := r.loadStash(id, true); err == nil {
			return nil
		}
	}
	if err := r.checkStashBlocks(blocks); err != nil {
		return err
	}
	if err := r.opts.Stash.Write(id, src); err != nil {
		return fmt.Errorf("failed to stash overlapping source blocks: %w", err)
	}
	r.addStashed(blocks)
	r.freeStash = id
	return nil
}

func (r *run) computeHashTree() error {
	info, _ := r.cmd.HashTree()
	if info.HashTreeRanges.Len() != 1 {
		return fmt.Errorf("invalid hash tree ranges %s: must be a single range", info.HashTreeRanges)
	}
	salt, err := hex.DecodeString(info.SaltHex)
	if err != nil || len(salt) == 0 {
		return fmt.Errorf("failed to parse salt %q", info.SaltHex)
	}
	if info.RootHash == "" {
		return errors.New("invalid root hash")
	}

	builder, err := lib.NewHashTreeBuilder(r.blockSize, info.HashAlgorithm, salt, info.SourceRanges.Blocks()*r.blockSize)
	if err != nil {
		return fmt.Errorf("failed to initialize hash tree computation, source %s: %w", info.SourceRanges, err)
	}
	if want := info.HashTreeRanges.Blocks() * r.blockSize; builder.TreeSize() != want {
		return fmt.Errorf("hash tree is %d bytes, hash tree ranges hold %d", builder.TreeSize(), want)
	}
	buf := make([]byte, min(info.SourceRanges.Blocks(), chunkBlocks)*r.blockSize)
	for _, piece := range chunks(info.SourceRanges, chunkBlocks) {
		data := buf[:piece.Blocks()*r.blockSize]
		if err := r.opts.Device.ReadBlocks(piece, data); err != nil {
			return err
		}
		if err := builder.Update(data); err != nil {
			return err
		}
	}
	tree, err := builder.Build()
	if err != nil {
		return err
	}

	if got := tree.RootHashHex(); !strings.EqualFold(got, info.RootHash) {
		return fmt.Errorf("%w: verity root hash expected %s, actual %s", ErrHashMismatch, info.RootHash, got)
	}
	if r.canWrite {
		return r.opts.Device.WriteBlocks(info.HashTreeRanges, tree.Tree)
	}
	return nil
}

func (r *run) addWritten(blocks uint64) {
	if r.opts.Metrics != nil && r.canWrite {
		r.opts.Metrics.AddBlocksWritten(r.opts.Partition, blocks)
	}
}

func (r *run) addStashed(blocks uint64) {
	r.result.StashedBlocks += blocks
	if r.opts.Metrics != nil {
		r.opts.Metrics.AddStashBytes(r.opts.Partition, blocks*r.blockSize)
	}
}
