package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gingerrexayers/blockimg-go/internal/blockimg/transfer"
	"github.com/gingerrexayers/blockimg-go/internal/blockimg/types"
)

// InspectOptions selects the transfer list to summarize.
type InspectOptions struct {
	Package      string
	Partition    string
	TransferList string
	// JSON prints the report as JSON instead of a table.
	JSON bool
}

// Summarize builds the report of tl. Stash usage is simulated in command
// order, including the temporary stash an overlapping move or diff creates.
func Summarize(tl transfer.TransferList) types.InspectReport {
	report := types.InspectReport{
		Version:         tl.Version,
		TotalBlocks:     tl.TotalBlocks,
		StashMaxEntries: tl.StashMaxEntries,
		StashMaxBlocks:  tl.StashMaxBlocks,
		Commands:        len(tl.Commands),
	}

	counts := make(map[transfer.Type]int)
	live := make(map[string]uint64)
	var liveBlocks uint64
	peak := func(entries, blocks uint64) {
		report.PeakStashEntries = max(report.PeakStashEntries, entries)
		report.PeakStashBlocks = max(report.PeakStashBlocks, blocks)
	}

	for _, cmd := range tl.Commands {
		counts[cmd.Type()]++
		switch cmd.Type() {
		case transfer.TypeStash:
			st, _ := cmd.Stash()
			if _, ok := live[st.ID]; !ok {
				live[st.ID] = st.Blocks()
				liveBlocks += st.Blocks()
				report.StashedBlocks += st.Blocks()
			}
			peak(uint64(len(live)), liveBlocks)
		case transfer.TypeFree:
			st, _ := cmd.Stash()
			liveBlocks -= live[st.ID]
			delete(live, st.ID)
		case transfer.TypeZero, transfer.TypeNew:
			t, _ := cmd.Target()
			report.WrittenBlocks += t.Blocks()
		case transfer.TypeMove, transfer.TypeBsdiff, transfer.TypeImgdiff:
			t, _ := cmd.Target()
			s, _ := cmd.Source()
			report.WrittenBlocks += t.Blocks()
			if s.Overlaps(t) {
				report.StashedBlocks += s.Blocks()
				peak(uint64(len(live))+1, liveBlocks+s.Blocks())
			}
			if p, ok := cmd.Patch(); ok {
				report.PatchBytes += p.Length
			}
		}
	}

	for _, t := range transfer.Types() {
		if n := counts[t]; n > 0 {
			report.Counts = append(report.Counts, types.CommandCount{Type: t.String(), Count: n})
		}
	}
	return report
}

// Inspect is the main function for the 'inspect' command.
func Inspect(opts InspectOptions) (types.InspectReport, error) {
	text, err := loadTransferList(opts.Package, opts.Partition, opts.TransferList)
	if err != nil {
		return types.InspectReport{}, err
	}
	tl, err := transfer.Parse(text, transfer.ParseConfig{})
	if err != nil {
		return types.InspectReport{}, fmt.Errorf("failed to parse transfer list: %w", err)
	}
	report := Summarize(tl)

	if opts.JSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return report, err
		}
		fmt.Fprintln(os.Stdout, string(out))
		return report, nil
	}

	fmt.Printf("Transfer list version %d, %d blocks, %d commands\n", report.Version, report.TotalBlocks, report.Commands)
	fmt.Printf("Stash limits: %d entries, %d blocks\n", report.StashMaxEntries, report.StashMaxBlocks)
	fmt.Printf("%-20s %s\n", "COMMAND", "COUNT")
	fmt.Printf("%-20s %s\n", "=======", "=====")
	for _, c := range report.Counts {
		fmt.Printf("%-20s %d\n", c.Type, c.Count)
	}
	fmt.Printf("\nBlocks written: %d\n", report.WrittenBlocks)
	fmt.Printf("Blocks stashed: %d\n", report.StashedBlocks)
	fmt.Printf("Peak stash usage: %d entries, %d blocks\n", report.PeakStashEntries, report.PeakStashBlocks)
	fmt.Printf("Patch data referenced: %d bytes\n", report.PatchBytes)
	return report, nil
}
