package lib

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// formatUnit formats n with a size (K, M, G, T) suffix.
func formatUnit(n float64) string {
	var unit string
	for _, unit = range []string{"", "K", "M", "G", "T"} {
		if n < 1000 {
			break
		}
		n /= 1000
	}
	return strings.TrimRight(fmt.Sprintf("%#.3g", n), ".") + unit
}

// Progress reports how many of a transfer list's blocks have been processed.
// Lines are printed at most once per interval; on a terminal they are
// redrawn in place.
type Progress struct {
	name      string
	out       io.Writer
	total     uint64
	blockSize uint64
	interval  time.Duration
	inPlace   bool

	mu         sync.Mutex
	done       uint64
	lastUpdate time.Time
}

// NewProgress creates a reporter for total blocks. A nil out discards output.
func NewProgress(name string, total, blockSize uint64, out io.Writer) *Progress {
	if out == nil {
		out = io.Discard
	}
	p := &Progress{name: name, out: out, total: total, blockSize: blockSize, interval: time.Second}
	if f, ok := out.(*os.File); ok {
		p.inPlace = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

// Add records blocks as processed.
func (p *Progress) Add(blocks uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += blocks
	now := time.Now()
	if now.Sub(p.lastUpdate) > p.interval {
		p.print()
		p.lastUpdate = now
	}
}

// Done returns the number of processed blocks.
func (p *Progress) Done() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Close prints the final line.
func (p *Progress) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.print()
	if p.inPlace {
		fmt.Fprintln(p.out)
	}
	return nil
}

func (p *Progress) print() {
	total := p.total
	if total == 0 {
		total = 1
	}
	line := fmt.Sprintf("[%s]  %5.1f%%  %d/%d blocks  %sB",
		p.name,
		100*float64(p.done)/float64(total),
		p.done, p.total,
		formatUnit(float64(p.done*p.blockSize)),
	)
	if p.inPlace {
		fmt.Fprintf(p.out, "\r%s", line)
		return
	}
	fmt.Fprintln(p.out, line)
}
