// Package acquire fetches a generated image for a prompt while reporting a
// best-effort progress percentage.
//
// A streamed download drives progress from bytes read when the response
// declares its length, and from elapsed time otherwise. If streaming fails
// the same URL is loaded directly. Whatever happens, the caller receives a
// completion event at 100%; the Result keeps the real outcome.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/metrics"
)

// ErrEmptyPrompt is returned for empty or whitespace-only prompts.
var ErrEmptyPrompt = errors.New("prompt is empty")

const chunkSize = 32 * 1024

// Status is the internal outcome of an acquisition.
type Status int

const (
	StatusReady Status = iota
	StatusStillWaiting
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusStillWaiting:
		return "still_waiting"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Via records which load path produced the result.
type Via string

const (
	ViaStream Via = "stream"
	ViaDirect Via = "direct"
)

// Result is the tagged outcome of one acquisition. Image is nil unless
// Status is StatusReady.
type Result struct {
	ID      string
	Status  Status
	URL     string
	Image   image.Image
	Format  string
	Via     Via
	Bytes   int64
	Elapsed time.Duration
	Err     error
}

// EventKind identifies an acquisition event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventSlow
	EventDone
)

// Event is delivered to the Reporter. Events of one acquisition arrive in
// order and EventDone is always last.
type Event struct {
	Kind    EventKind
	Percent float64
	URL     string
	Result  *Result
}

// Reporter receives acquisition events. It must not block for long.
type Reporter func(Event)

// Options tune the progress heuristics.
type Options struct {
	EstimatedDuration time.Duration
	TickInterval      time.Duration
	SlowAfter         time.Duration
}

// DefaultOptions matches the behaviour users see in the web UI.
func DefaultOptions() Options {
	return Options{
		EstimatedDuration: 8 * time.Second,
		TickInterval:      100 * time.Millisecond,
		SlowAfter:         10 * time.Second,
	}
}

// Acquirer runs acquisitions against one Source.
type Acquirer struct {
	source Source
	opts   Options
	now    func() time.Time
}

// New creates an Acquirer. Zero option fields take their defaults.
func New(source Source, opts Options) *Acquirer {
	def := DefaultOptions()
	if opts.EstimatedDuration <= 0 {
		opts.EstimatedDuration = def.EstimatedDuration
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.SlowAfter <= 0 {
		opts.SlowAfter = def.SlowAfter
	}
	return &Acquirer{source: source, opts: opts, now: time.Now}
}

// Source returns the source this Acquirer fetches from.
func (a *Acquirer) Source() Source { return a.source }

// Acquire fetches an image for prompt. It returns ErrEmptyPrompt without
// touching the network for blank prompts, and ctx.Err() without a
// completion event when ctx is cancelled first. Load failures are not
// errors: they come back as a StatusFailed Result after EventDone.
func (a *Acquirer) Acquire(ctx context.Context, prompt string, report Reporter) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}
	if report == nil {
		report = func(Event) {}
	}

	start := a.now()
	rawURL := a.source.URL(prompt, start)
	id := uuid.NewString()
	logger := log.With().Str("acquisition", id).Str("source", a.source.Name()).Logger()
	logger.Info().Str("url", rawURL).Msg("Starting image acquisition")

	g := newGauge(TimeEstimator{Start: start, Expected: a.opts.EstimatedDuration})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.watch(ctx, g, rawURL, stop, report)
	}()

	res := a.fetch(ctx, rawURL, start, g, report, logger)
	close(stop)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Debug().Err(err).Msg("Acquisition abandoned")
		return nil, err
	}

	res.ID = id
	res.URL = rawURL
	res.Elapsed = a.now().Sub(start)

	g.complete(func(p float64) {
		report(Event{Kind: EventDone, Percent: p, URL: rawURL, Result: res})
	})

	logEvt := logger.Info()
	if res.Status == StatusFailed {
		logEvt = logger.Warn().Err(res.Err)
	}
	logEvt.
		Str("status", res.Status.String()).
		Str("via", string(res.Via)).
		Int64("bytes", res.Bytes).
		Dur("elapsed", res.Elapsed).
		Msg("Image acquisition finished")

	metrics.New(metrics.Namespace).
		Dimension("Source", a.source.Name()).
		Dimension("Status", res.Status.String()).
		Metric("AcquisitionLatencyMs", float64(res.Elapsed.Milliseconds()), metrics.UnitMilliseconds).
		Metric("BytesRead", float64(res.Bytes), metrics.UnitBytes).
		Property("acquisitionId", id).
		Property("via", string(res.Via)).
		Flush()

	return res, nil
}

// watch drives the time-based ticks and the slow-path timer until stop is
// closed or ctx ends.
func (a *Acquirer) watch(ctx context.Context, g *gauge, rawURL string, stop <-chan struct{}, report Reporter) {
	ticker := time.NewTicker(a.opts.TickInterval)
	defer ticker.Stop()
	slow := time.NewTimer(a.opts.SlowAfter)
	defer slow.Stop()

	tick := ticker.C
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-tick:
			g.advance(a.now(), func(p float64) {
				report(Event{Kind: EventProgress, Percent: p})
			})
		case <-slow.C:
			ticker.Stop()
			tick = nil
			g.pin(func(p float64) {
				report(Event{
					Kind:    EventSlow,
					Percent: p,
					URL:     rawURL,
					Result:  &Result{Status: StatusStillWaiting, URL: rawURL},
				})
			})
		}
	}
}

func (a *Acquirer) fetch(ctx context.Context, rawURL string, start time.Time, g *gauge, report Reporter, logger zerolog.Logger) *Result {
	res, err := a.stream(ctx, rawURL, start, g, report)
	if err == nil {
		return res
	}
	if ctx.Err() != nil {
		return &Result{Status: StatusFailed, Via: ViaStream, Err: ctx.Err()}
	}
	logger.Warn().Err(err).Msg("Streamed load failed, falling back to direct load")

	res, derr := a.direct(ctx, rawURL)
	if derr == nil {
		return res
	}
	return &Result{Status: StatusFailed, Via: ViaDirect, Err: errors.Join(err, derr)}
}

func (a *Acquirer) stream(ctx context.Context, rawURL string, start time.Time, g *gauge, report Reporter) (*Result, error) {
	asset, err := a.source.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer asset.Body.Close()

	est := SelectEstimator(asset.Size, start, a.opts.EstimatedDuration)
	g.use(est)
	bytesEst, _ := est.(*ByteEstimator)

	sp, err := newSpool()
	if err != nil {
		return nil, err
	}
	defer sp.release()

	progress := func(p float64) {
		report(Event{Kind: EventProgress, Percent: p})
	}

	buf := make([]byte, chunkSize)
	var total int64
	for {
		n, rerr := asset.Body.Read(buf)
		if n > 0 {
			if _, werr := sp.Write(buf[:n]); werr != nil {
				return nil, fmt.Errorf("failed to spool image: %w", werr)
			}
			total += int64(n)
			if bytesEst != nil {
				bytesEst.Add(n)
				g.advance(a.now(), progress)
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("failed to read image stream: %w", rerr)
		}
	}

	img, format, err := sp.decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode streamed image: %w", err)
	}

	return &Result{
		Status: StatusReady,
		Image:  img,
		Format: format,
		Via:    ViaStream,
		Bytes:  total,
	}, nil
}

func (a *Acquirer) direct(ctx context.Context, rawURL string) (*Result, error) {
	asset, err := a.source.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer asset.Body.Close()

	cr := &countingReader{r: asset.Body}
	img, format, err := image.Decode(cr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Result{
		Status: StatusReady,
		Image:  img,
		Format: format,
		Via:    ViaDirect,
		Bytes:  cr.n,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
