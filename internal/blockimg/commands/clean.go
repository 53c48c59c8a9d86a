package commands

import (
	"fmt"
	"os"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/lib"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
)

// Clean is the main function for the 'clean' command. It forgets every trace
// of an update of device: stashes, checkpoint and updated marker.
func Clean(cfg types.Config, device string) error {
	fmt.Printf("🧹 Cleaning update state of \"%s\"...\n", device)

	removed := 0
	stashDir := lib.GetStashDir(cfg.WorkDir, device)
	if _, err := os.Stat(stashDir); err == nil {
		stash, err := lib.OpenStashStore(stashDir, lib.StashOptions{SweepPatterns: cfg.StashSweepPatterns})
		if err != nil {
			return err
		}
		ids, err := stash.List()
		if err != nil {
			return fmt.Errorf("failed to list stashes: %w", err)
		}
		removed = len(ids)
		if err := stash.RemoveAll(); err != nil {
			return fmt.Errorf("failed to delete stash %s: %w", stashDir, err)
		}
	}

	cp, err := openCheckpoint(cfg, device)
	if err != nil {
		return err
	}
	if err := cp.Clear(); err != nil {
		cp.Close()
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err := cp.Close(); err != nil {
		return err
	}

	if err := lib.RemoveIfExists(lib.GetUpdatedMarkerPath(cfg.WorkDir, device)); err != nil {
		return fmt.Errorf("failed to remove updated marker: %w", err)
	}

	fmt.Println("✅ Clean complete!")
	fmt.Printf("   - Deleted %d stash(es).\n", removed)
	return nil
}
