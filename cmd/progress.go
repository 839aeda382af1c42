package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const progressWidth = 30

// syncProgress draws a one-line bar for a watch cycle. Workers report each
// finished repository through Done.
type syncProgress struct {
	mu     sync.Mutex
	total  int
	done   int
	failed int
	last   string
	w      io.Writer
}

func newSyncProgress(total int, w io.Writer) *syncProgress {
	return &syncProgress{total: total, w: w}
}

// Done records one synced repository.
func (p *syncProgress) Done(fullName string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done < p.total {
		p.done++
	}
	if err != nil {
		p.failed++
	}
	p.last = fullName
	p.render()
}

// Finish ends the line.
func (p *syncProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		p.last = ""
		p.render()
	}
	fmt.Fprintln(p.w)
}

func (p *syncProgress) render() {
	if p.total <= 0 {
		return
	}
	filled := p.done * progressWidth / p.total
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", progressWidth-filled)

	line := fmt.Sprintf("\rSyncing [%s] %d/%d", bar, p.done, p.total)
	if p.failed > 0 {
		line += fmt.Sprintf(" (%d failed)", p.failed)
	}
	if p.last != "" {
		line += " " + truncateName(p.last, 40)
	}
	fmt.Fprint(p.w, line)
}

func truncateName(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
