package acquire

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 4), 128, 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// useTempSpool points the spool at a per-test directory and returns it.
func useTempSpool(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := spoolDir
	spoolDir = dir
	t.Cleanup(func() { spoolDir = prev })
	return dir
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) report(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Event(nil), l.events...)
}

// checkOrdering asserts non-decreasing percentages and a single trailing
// EventDone at 100.
func checkOrdering(t *testing.T, events []Event) {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("expected events, got none")
	}
	last := -1.0
	for i, e := range events {
		if e.Percent < last {
			t.Errorf("event %d: progress went backwards from %v to %v", i, last, e.Percent)
		}
		last = e.Percent
		if e.Kind == EventDone && i != len(events)-1 {
			t.Errorf("event %d: EventDone is not last", i)
		}
		if e.Kind != EventDone && e.Percent > SoftCeiling {
			t.Errorf("event %d: progress %v above soft ceiling before completion", i, e.Percent)
		}
	}
	done := events[len(events)-1]
	if done.Kind != EventDone {
		t.Fatalf("expected last event to be EventDone, got kind %d", done.Kind)
	}
	if done.Percent != Complete {
		t.Errorf("expected completion at %v, got %v", Complete, done.Percent)
	}
}

func fastOptions() Options {
	return Options{
		EstimatedDuration: 50 * time.Millisecond,
		TickInterval:      5 * time.Millisecond,
		SlowAfter:         time.Second,
	}
}

func TestPollinationsURL(t *testing.T) {
	p := NewPollinations("http://example.test/", 256, 256, time.Second)
	got := p.URL("a cat & dog", time.UnixMilli(1234))
	want := "http://example.test/prompt/a%20cat%20%26%20dog?width=256&height=256&seed=1234&nologo=true"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestEscapePrompt(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"weird cat", "weird%20cat"},
		{"100% slop?", "100%25%20slop%3F"},
		{"a/b", "a%2Fb"},
		{"plus+sign", "plus%2Bsign"},
		{"wow!! (really) *it's* fine~", "wow!!%20(really)%20*it's*%20fine~"},
		{"café", "caf%C3%A9"},
	}
	for _, tt := range tests {
		if got := EscapePrompt(tt.in); got != tt.want {
			t.Errorf("EscapePrompt(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestAcquire_EmptyPrompt(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), fastOptions())
	for _, prompt := range []string{"", "   ", "\t\n"} {
		res, err := a.Acquire(context.Background(), prompt, nil)
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Errorf("prompt %q: expected ErrEmptyPrompt, got %v", prompt, err)
		}
		if res != nil {
			t.Errorf("prompt %q: expected nil result", prompt)
		}
	}
	if hits.Load() != 0 {
		t.Errorf("expected no requests, got %d", hits.Load())
	}
}

func TestAcquire_StreamWithContentLength(t *testing.T) {
	dir := useTempSpool(t)
	data := testPNG(t)

	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.EscapedPath())
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), fastOptions())
	var log eventLog
	res, err := a.Acquire(context.Background(), "weird cat", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Status != StatusReady {
		t.Fatalf("expected ready, got %s (err=%v)", res.Status, res.Err)
	}
	if res.Via != ViaStream {
		t.Errorf("expected stream path, got %s", res.Via)
	}
	if res.Format != "png" {
		t.Errorf("expected png format, got %s", res.Format)
	}
	if res.Bytes != int64(len(data)) {
		t.Errorf("expected %d bytes, got %d", len(data), res.Bytes)
	}
	if b := res.Image.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("expected 64x64 image, got %v", b)
	}
	if res.ID == "" {
		t.Error("expected an acquisition id")
	}
	if p, _ := gotPath.Load().(string); p != "/prompt/weird%20cat" {
		t.Errorf("expected escaped prompt path, got %s", p)
	}
	if !strings.HasPrefix(res.URL, srv.URL+"/prompt/weird%20cat?") {
		t.Errorf("unexpected result URL %s", res.URL)
	}

	events := log.all()
	checkOrdering(t, events)
	if events[len(events)-1].Result != res {
		t.Error("expected EventDone to carry the returned result")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read spool dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected spool to be released, found %d files", len(entries))
	}
}

func TestAcquire_StreamWithoutContentLength(t *testing.T) {
	useTempSpool(t)
	data := testPNG(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		// Flushing before the body forces chunked encoding.
		w.(http.Flusher).Flush()
		w.Write(data)
	}))
	defer srv.Close()

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), fastOptions())
	var log eventLog
	res, err := a.Acquire(context.Background(), "glitch", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusReady || res.Via != ViaStream {
		t.Errorf("expected ready via stream, got %s via %s", res.Status, res.Via)
	}
	checkOrdering(t, log.all())
}

func TestAcquire_FallsBackToDirect(t *testing.T) {
	useTempSpool(t)
	data := testPNG(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), fastOptions())
	var log eventLog
	res, err := a.Acquire(context.Background(), "blob", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusReady {
		t.Fatalf("expected ready, got %s (err=%v)", res.Status, res.Err)
	}
	if res.Via != ViaDirect {
		t.Errorf("expected direct path, got %s", res.Via)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
	checkOrdering(t, log.all())
}

func TestAcquire_FailureStillCompletes(t *testing.T) {
	dir := useTempSpool(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("definitely not an image"))
	}))
	defer srv.Close()

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), fastOptions())
	var log eventLog
	res, err := a.Acquire(context.Background(), "rock", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", res.Status)
	}
	if res.Err == nil {
		t.Error("expected the failure cause to be kept")
	}
	if res.Image != nil {
		t.Error("expected no image on failure")
	}
	if res.URL == "" {
		t.Error("expected the URL to be kept on failure")
	}
	if hits.Load() != 2 {
		t.Errorf("expected stream and direct attempts, got %d requests", hits.Load())
	}
	checkOrdering(t, log.all())

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("expected spool to be released after failure, found %d files", len(entries))
	}
}

func TestAcquire_SlowPath(t *testing.T) {
	useTempSpool(t)
	data := testPNG(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(80 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()

	opts := fastOptions()
	opts.EstimatedDuration = time.Second
	opts.SlowAfter = 20 * time.Millisecond

	a := New(NewPollinations(srv.URL, 256, 256, time.Second), opts)
	var log eventLog
	res, err := a.Acquire(context.Background(), "pepe", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusReady {
		t.Fatalf("expected the late image to still be accepted, got %s", res.Status)
	}

	events := log.all()
	checkOrdering(t, events)

	slowAt := -1
	for i, e := range events {
		if e.Kind == EventSlow {
			slowAt = i
			if e.Percent != SoftCeiling {
				t.Errorf("expected slow event at %v, got %v", SoftCeiling, e.Percent)
			}
			if e.Result == nil || e.Result.Status != StatusStillWaiting {
				t.Error("expected slow event to carry a still-waiting result")
			}
			if e.URL != res.URL {
				t.Errorf("expected slow event URL %s, got %s", res.URL, e.URL)
			}
		}
	}
	if slowAt < 0 {
		t.Fatal("expected a slow event")
	}
	for _, e := range events[slowAt+1 : len(events)-1] {
		if e.Percent != SoftCeiling {
			t.Errorf("expected progress to stay at %v after slow event, got %v", SoftCeiling, e.Percent)
		}
	}
}

func TestAcquire_Cancelled(t *testing.T) {
	useTempSpool(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	a := New(NewPollinations(srv.URL, 256, 256, 5*time.Second), fastOptions())
	var log eventLog
	res, err := a.Acquire(ctx, "ugly", log.report)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res != nil {
		t.Error("expected no result for a cancelled acquisition")
	}
	for _, e := range log.all() {
		if e.Kind == EventDone {
			t.Error("expected no completion event after cancellation")
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	a := New(NewPollinations("http://x", 1, 1, time.Second), Options{})
	if a.opts != DefaultOptions() {
		t.Errorf("expected default options, got %+v", a.opts)
	}
	if a.Source().Name() != "pollinations" {
		t.Errorf("expected pollinations source, got %s", a.Source().Name())
	}
}

func TestStatusString(t *testing.T) {
	tests := map[Status]string{
		StatusReady:        "ready",
		StatusStillWaiting: "still_waiting",
		StatusFailed:       "failed",
		Status(9):          "status(9)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	}
}
