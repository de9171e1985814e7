// Package session owns the state of one meme being made: prompt, caption,
// text size and the image acquisition in flight. Every user action goes
// through a Session; surfaces (CLI, web, MCP) only render its snapshots and
// notices.
//
// Only the most recent acquisition may change state. Starting a new one
// cancels the previous one and bumps the generation token; events carrying
// an older token are dropped.
package session

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/acquire"
	"github.com/fpang/slop-meme-generator/internal/caption"
	"github.com/fpang/slop-meme-generator/internal/notify"
)

const (
	MinTextScale     = 24
	MaxTextScale     = 100
	DefaultTextScale = 48
)

var (
	ErrTextScale       = errors.New("text scale must be between 24 and 100")
	ErrUnknownTemplate = errors.New("unknown template")
	ErrNoImage         = errors.New("no image generated yet")
	ErrNothingToExport = errors.New("no meme to export")
)

// User-facing notice texts.
const (
	MsgEnterPrompt     = "Enter a prompt!"
	MsgReady           = "✨ SLOP READY!"
	MsgSlow            = "✨ Taking longer than expected..."
	MsgNeedImage       = "Generate an image first!"
	MsgCaptionLoading  = "🤖 Generating garbage text..."
	MsgCaptionReady    = "✨ GARBAGE TEXT READY!"
	MsgNothingToExport = "No meme to download!"
	MsgPreparing       = "Preparing download..."
	MsgDownloaded      = "Downloaded!"
	MsgDownloadFailed  = "Download failed"
)

// State is a snapshot of the session.
type State struct {
	Prompt       string       `json:"prompt"`
	ImageURL     string       `json:"imageUrl"`
	HasImage     bool         `json:"hasImage"`
	IsGenerating bool         `json:"isGenerating"`
	Progress     float64      `json:"progress"`
	Caption      caption.Pair `json:"caption"`
	TextScale    int          `json:"textScale"`
	Generation   uint64       `json:"generation"`

	// Status is the outcome of the latest finished or slow acquisition.
	Status string `json:"status,omitempty"`
	// Error keeps the failure cause of a failed acquisition. The UI still
	// presents failed acquisitions as ready.
	Error string `json:"error,omitempty"`
}

// Acquirer starts image acquisitions. *acquire.Acquirer satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, prompt string, report acquire.Reporter) (*acquire.Result, error)
}

// Options tune session timing.
type Options struct {
	// GraceDelay is how long the finished progress bar stays visible.
	GraceDelay time.Duration
	// AutoCaptionDelay is the pause before an auto caption is applied.
	AutoCaptionDelay time.Duration
}

// DefaultOptions returns the UI timings.
func DefaultOptions() Options {
	return Options{
		GraceDelay:       300 * time.Millisecond,
		AutoCaptionDelay: 300 * time.Millisecond,
	}
}

// Session is safe for concurrent use. Watch listeners run synchronously in
// the order state changed and must not call mutating Session methods.
type Session struct {
	acq      Acquirer
	resolver *caption.Resolver
	notifier notify.Notifier
	opts     Options
	now      func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	// pubMu orders publication; take it before mu.
	pubMu sync.Mutex

	mu        sync.Mutex
	state     State
	image     image.Image
	token     uint64
	cancel    context.CancelFunc
	listeners map[int]func(State)
	nextID    int
}

// New creates a Session in its initial state. A nil resolver uses
// caption.NewResolver and a nil notifier discards notices.
func New(acq Acquirer, resolver *caption.Resolver, notifier notify.Notifier, opts Options) *Session {
	if resolver == nil {
		resolver = caption.NewResolver()
	}
	if notifier == nil {
		notifier = notify.Func(func(notify.Notice) {})
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Session{
		acq:      acq,
		resolver: resolver,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		ctx:      ctx,
		stop:     stop,
		state: State{
			Caption:   caption.Default,
			TextScale: DefaultTextScale,
		},
		listeners: make(map[int]func(State)),
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Image returns the decoded image of the latest finished acquisition, or nil.
func (s *Session) Image() image.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image
}

// Watch registers fn for every state change and returns a function that
// removes it.
func (s *Session) Watch(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Submit starts generating an image for prompt with an automatic caption.
// Blank prompts raise a notice and leave the state untouched.
func (s *Session) Submit(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		s.notifyOnly(notify.IDValidation, notify.LevelError, MsgEnterPrompt)
		return acquire.ErrEmptyPrompt
	}
	s.start(prompt, s.resolver.Resolve(prompt))
	return nil
}

// SelectTemplate starts generating the template's prompt seed and applies
// the template's own caption.
func (s *Session) SelectTemplate(i int) error {
	t, ok := caption.TemplateAt(i)
	if !ok {
		return ErrUnknownTemplate
	}
	s.start(t.PromptSeed, t.Caption)
	return nil
}

// SetCaption replaces both caption lines.
func (s *Session) SetCaption(top, bottom string) {
	s.update(func(st *State) {
		st.Caption = caption.Pair{Top: top, Bottom: bottom}
	})
}

// SetTextScale sets the caption size in logical pixels.
func (s *Session) SetTextScale(px int) error {
	if px < MinTextScale || px > MaxTextScale {
		return ErrTextScale
	}
	s.update(func(st *State) {
		st.TextScale = px
	})
	return nil
}

// AutoCaption replaces the caption with one derived from the current prompt
// after a short pause. It needs an image URL to be present.
func (s *Session) AutoCaption(ctx context.Context) error {
	s.mu.Lock()
	hasURL := s.state.ImageURL != ""
	prompt := s.state.Prompt
	s.mu.Unlock()

	if !hasURL {
		s.notifyOnly(notify.IDAutoText, notify.LevelError, MsgNeedImage)
		return ErrNoImage
	}
	s.notifyOnly(notify.IDAutoText, notify.LevelLoading, MsgCaptionLoading)

	if d := s.opts.AutoCaptionDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	seed := prompt
	if seed == "" {
		seed = caption.AutoCaptionSeed
	}
	pair := s.resolver.Resolve(seed)
	s.update(func(st *State) {
		st.Caption = pair
	}, notice(notify.IDAutoText, notify.LevelSuccess, MsgCaptionReady))
	return nil
}

// Wait blocks until the in-flight acquisition, including its grace delay,
// has finished.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels any acquisition in flight and waits for it to stop.
func (s *Session) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Session) start(prompt string, pair caption.Pair) {
	s.pubMu.Lock()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.token++
	tok := s.token
	ctx, cancel := context.WithCancel(s.ctx)
	s.cancel = cancel

	s.state.Prompt = prompt
	s.state.Caption = pair
	s.state.IsGenerating = true
	s.state.Progress = 0
	s.state.Generation = tok
	s.state.Status = ""
	s.state.Error = ""
	snap := s.state
	listeners := s.listenersLocked()

	s.wg.Add(1)
	s.mu.Unlock()

	publish(listeners, snap)
	s.pubMu.Unlock()

	log.Info().Uint64("generation", tok).Str("prompt", prompt).Msg("Generation started")

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(ctx, tok, prompt)
	}()
}

func (s *Session) run(ctx context.Context, tok uint64, prompt string) {
	res, err := s.acq.Acquire(ctx, prompt, func(e acquire.Event) {
		s.apply(tok, e)
	})
	if err != nil {
		if ctx.Err() == nil {
			log.Error().Err(err).Uint64("generation", tok).Msg("Acquisition could not start")
			s.finish(tok)
		}
		return
	}
	if res == nil {
		return
	}

	if d := s.opts.GraceDelay; d > 0 {
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	s.finish(tok)
}

// apply folds an acquisition event into the state if tok is still current.
func (s *Session) apply(tok uint64, e acquire.Event) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		log.Debug().Uint64("generation", tok).Msg("Dropping event from superseded generation")
		return
	}

	var n *notify.Notice
	switch e.Kind {
	case acquire.EventProgress:
		s.state.Progress = e.Percent
	case acquire.EventSlow:
		s.state.Progress = e.Percent
		if e.URL != "" {
			s.state.ImageURL = e.URL
		}
		s.state.Status = acquire.StatusStillWaiting.String()
		n = notice(notify.IDGenerate, notify.LevelLoading, MsgSlow)
	case acquire.EventDone:
		s.state.Progress = e.Percent
		s.state.ImageURL = e.URL
		if e.Result != nil {
			s.image = e.Result.Image
			s.state.Status = e.Result.Status.String()
			if e.Result.Err != nil {
				s.state.Error = e.Result.Err.Error()
			}
		}
		s.state.HasImage = s.image != nil
		n = notice(notify.IDGenerate, notify.LevelSuccess, MsgReady)
	}
	snap := s.state
	listeners := s.listenersLocked()
	s.mu.Unlock()

	publish(listeners, snap)
	if n != nil {
		s.emit(*n)
	}
}

// finish ends the generating phase once the grace delay has passed.
func (s *Session) finish(tok uint64) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	if tok != s.token {
		s.mu.Unlock()
		return
	}
	s.state.IsGenerating = false
	s.state.Progress = 0
	snap := s.state
	listeners := s.listenersLocked()
	s.mu.Unlock()

	publish(listeners, snap)
}

// update applies fn to the state, publishes the result and then emits the
// given notices.
func (s *Session) update(fn func(*State), notices ...*notify.Notice) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	s.mu.Lock()
	fn(&s.state)
	snap := s.state
	listeners := s.listenersLocked()
	s.mu.Unlock()

	publish(listeners, snap)
	for _, n := range notices {
		s.emit(*n)
	}
}

func (s *Session) notifyOnly(id string, level notify.Level, msg string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.emit(*notice(id, level, msg))
}

func (s *Session) emit(n notify.Notice) {
	n.At = s.now()
	s.notifier.Notify(n)
}

func (s *Session) listenersLocked() []func(State) {
	out := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func publish(listeners []func(State), st State) {
	for _, fn := range listeners {
		fn(st)
	}
}

func notice(id string, level notify.Level, msg string) *notify.Notice {
	return &notify.Notice{ID: id, Level: level, Message: msg}
}
