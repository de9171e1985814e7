// Package notify carries the short-lived, user-visible notices raised by the
// meme session (the CLI prints them, the web UI shows them as toasts).
package notify

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Level is the visual category of a notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelLoading Level = "loading"
)

// Notice IDs group related notices so a newer one replaces an older one in
// the UI (the "gen" toast goes from loading to success, for example).
const (
	IDGenerate   = "gen"
	IDAutoText   = "autotext"
	IDDownload   = "download"
	IDValidation = "validation"
)

// Notice is one user-visible notification.
type Notice struct {
	Seq     uint64    `json:"seq"`
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier receives notices.
type Notifier interface {
	Notify(n Notice)
}

// Func adapts a plain function to Notifier.
type Func func(n Notice)

func (f Func) Notify(n Notice) { f(n) }

// Log writes notices to the global zerolog logger.
type Log struct{}

func (Log) Notify(n Notice) {
	evt := log.Info()
	if n.Level == LevelError {
		evt = log.Warn()
	}
	evt.Str("id", n.ID).Str("level", string(n.Level)).Msg(n.Message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, nt := range m {
		nt.Notify(n)
	}
}

// Recorder keeps the most recent notices in memory and assigns sequence
// numbers so pollers can ask for everything after a given point.
type Recorder struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	notices []Notice
}

// DefaultRecorderLimit bounds how many notices a Recorder retains.
const DefaultRecorderLimit = 50

// NewRecorder creates a Recorder retaining at most limit notices.
func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultRecorderLimit
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	n.Seq = r.seq
	if n.At.IsZero() {
		n.At = time.Now()
	}
	r.notices = append(r.notices, n)
	if len(r.notices) > r.limit {
		r.notices = append([]Notice(nil), r.notices[len(r.notices)-r.limit:]...)
	}
}

// Since returns the retained notices with Seq greater than seq, oldest first.
func (r *Recorder) Since(seq uint64) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notice, 0, len(r.notices))
	for _, n := range r.notices {
		if n.Seq > seq {
			out = append(out, n)
		}
	}
	return out
}

// Last returns the most recent notice, if any.
func (r *Recorder) Last() (Notice, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}, false
	}
	return r.notices[len(r.notices)-1], true
}
