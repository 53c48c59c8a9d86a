package commands

import (
	"context"
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
)

// Apply is the main function for the 'apply' command. It updates one
// partition and resumes from the checkpoint of an interrupted attempt.
func Apply(ctx context.Context, opts RunOptions) (types.RunSummary, error) {
	fmt.Printf("🧱 Applying %s to \"%s\"...\n", opts.partition(), opts.Device)

	summary, err := execute(ctx, opts, false)
	if err != nil {
		return summary, fmt.Errorf("update of %s failed: %w", opts.partition(), err)
	}
	if summary.AlreadyDone {
		fmt.Println("✅ Partition already updated, nothing to do.")
		return summary, nil
	}

	fmt.Println("✅ Apply complete!")
	fmt.Printf("   - Session: %s\n", summary.Session)
	fmt.Printf("   - Commands: %d executed, %d skipped\n", summary.Executed, summary.Skipped)
	fmt.Printf("   - Blocks: %d written, %d stashed\n", summary.WrittenBlocks, summary.StashedBlocks)
	return summary, nil
}
