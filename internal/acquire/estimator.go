package acquire

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// SoftCeiling caps estimated progress until completion is confirmed.
	SoftCeiling = 95.0
	// Complete is reported only once an image (or its fallback) has loaded.
	Complete = 100.0
)

// Estimator turns whatever signal it has into a progress percentage.
// Implementations never return more than SoftCeiling.
type Estimator interface {
	Estimate(now time.Time) float64
}

// TimeEstimator assumes the download takes Expected and scales elapsed
// time onto 0..SoftCeiling.
type TimeEstimator struct {
	Start    time.Time
	Expected time.Duration
}

func (e TimeEstimator) Estimate(now time.Time) float64 {
	if e.Expected <= 0 {
		return SoftCeiling
	}
	elapsed := now.Sub(e.Start)
	if elapsed <= 0 {
		return 0
	}
	return capped(float64(elapsed) / float64(e.Expected) * SoftCeiling)
}

// ByteEstimator scales bytes read against the declared content length.
type ByteEstimator struct {
	total int64
	read  atomic.Int64
}

// NewByteEstimator returns an estimator for a body of total bytes.
func NewByteEstimator(total int64) *ByteEstimator {
	return &ByteEstimator{total: total}
}

// Add records n more bytes read.
func (e *ByteEstimator) Add(n int) {
	e.read.Add(int64(n))
}

// Read returns the bytes recorded so far.
func (e *ByteEstimator) Read() int64 {
	return e.read.Load()
}

func (e *ByteEstimator) Estimate(time.Time) float64 {
	if e.total <= 0 {
		return 0
	}
	return capped(float64(e.read.Load()) / float64(e.total) * SoftCeiling)
}

// SelectEstimator picks the byte-ratio strategy when the body size is known
// and the time-ratio strategy otherwise.
func SelectEstimator(size int64, start time.Time, expected time.Duration) Estimator {
	if size > 0 {
		return NewByteEstimator(size)
	}
	return TimeEstimator{Start: start, Expected: expected}
}

func capped(v float64) float64 {
	if v > SoftCeiling {
		return SoftCeiling
	}
	if v < 0 {
		return 0
	}
	return v
}

// gauge owns the reported progress of one acquisition. Reported values are
// non-decreasing, stay at or below SoftCeiling until complete is called, and
// callbacks run under the gauge lock so listeners observe them in order.
type gauge struct {
	mu    sync.Mutex
	est   Estimator
	last  float64
	final bool
}

func newGauge(est Estimator) *gauge {
	return &gauge{est: est}
}

// use swaps the active estimator.
func (g *gauge) use(est Estimator) {
	g.mu.Lock()
	g.est = est
	g.mu.Unlock()
}

// advance samples the estimator and calls fn if the value moved forward.
func (g *gauge) advance(now time.Time, fn func(float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.final {
		return
	}
	v := capped(g.est.Estimate(now))
	if v <= g.last {
		return
	}
	g.last = v
	fn(v)
}

// pin raises progress straight to the soft ceiling.
func (g *gauge) pin(fn func(float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.final {
		return
	}
	g.last = SoftCeiling
	fn(g.last)
}

// complete reports 100 exactly once.
func (g *gauge) complete(fn func(float64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.final {
		return
	}
	g.final = true
	g.last = Complete
	fn(g.last)
}

func (g *gauge) value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}
