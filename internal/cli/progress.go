package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

const barWidth = 30

// Progress draws session progress and notices on a terminal line. It only
// redraws when the whole-number percentage changes.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	start   time.Time
	last    int
	drawing bool
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, start: time.Now(), last: -1}
}

// Update is a session.Watch listener.
func (p *Progress) Update(st session.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !st.IsGenerating {
		p.endLineLocked()
		p.last = -1
		return
	}
	pct := int(st.Progress)
	if pct == p.last {
		return
	}
	p.last = pct
	p.drawing = true
	fmt.Fprintf(p.w, "\r  %s %s", ProgressBar(st.Progress, barWidth), FormatDurationShort(time.Since(p.start)))
}

// Notify prints a notice on its own line.
func (p *Progress) Notify(n notify.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLineLocked()
	fmt.Fprintf(p.w, "  %s\n", n.Message)
	p.last = -1
}

func (p *Progress) endLineLocked() {
	if p.drawing {
		fmt.Fprintln(p.w)
		p.drawing = false
	}
}
