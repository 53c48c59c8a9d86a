package commands

import (
	"context"
	"fmt"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
)

// Verify is the main function for the 'verify' command. It runs the transfer
// list without writing and reports whether the update can still be applied
// or resumed. A checkpoint the device contents contradict is dropped.
func Verify(ctx context.Context, opts RunOptions) (types.RunSummary, error) {
	fmt.Printf("🔍 Verifying %s against \"%s\"...\n", opts.partition(), opts.Device)

	summary, err := execute(ctx, opts, true)
	if err != nil {
		return summary, fmt.Errorf("verification of %s failed: %w", opts.partition(), err)
	}
	if summary.AlreadyDone {
		fmt.Println("✅ Partition already updated, nothing to do.")
		return summary, nil
	}

	fmt.Println("✅ Verification complete! Update may be resumed.")
	fmt.Printf("   - Commands: %d verified\n", summary.Executed)
	return summary, nil
}
