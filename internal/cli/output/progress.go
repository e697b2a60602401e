package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar draws a single-line file counter.
type ProgressBar struct {
	w       io.Writer
	title   string
	total   int
	current int
	bytes   int64
	width   int
	mu      sync.Mutex
}

// NewProgressBar creates a progress bar.
func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{w: w, title: title, width: 30}
}

// Update sets the files done out of total and the bytes written so far.
func (p *ProgressBar) Update(done, total int, bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current, p.total, p.bytes = done, total, bytes
	p.render()
}

// Finish draws the final state and ends the line.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.render()
	fmt.Fprintln(p.w)
}

func (p *ProgressBar) render() {
	if p.total <= 0 {
		fmt.Fprintf(p.w, "\r%s %d files %s", p.title, p.current, Bytes(p.bytes))
		return
	}
	ratio := min(float64(p.current)/float64(p.total), 1)
	filled := int(float64(p.width) * ratio)
	bar := strings.Repeat("#", filled) + strings.Repeat(".", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%% %d/%d files %s",
		p.title, bar, ratio*100, p.current, p.total, Bytes(p.bytes))
}
