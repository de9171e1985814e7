package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fpang/slop-meme-generator/internal/notify"
	"github.com/fpang/slop-meme-generator/internal/session"
)

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0:00"},
		{9 * time.Second, "0:09"},
		{75 * time.Second, "1:15"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
	}
	for _, tt := range tests {
		if got := FormatDurationShort(tt.d); got != tt.want {
			t.Errorf("FormatDurationShort(%v): expected %q, got %q", tt.d, tt.want, got)
		}
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "[----------]   0%"},
		{50, "[#####-----]  50%"},
		{99.9, "[#########-]  99%"},
		{100, "[##########] 100%"},
		{150, "[##########] 100%"},
		{-3, "[----------]   0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.pct, 10); got != tt.want {
			t.Errorf("ProgressBar(%v): expected %q, got %q", tt.pct, tt.want, got)
		}
	}
}

func TestReadPrompts(t *testing.T) {
	in := "weird face\n\n# comment\n  crying cat  \n"
	got, err := ReadPrompts(strings.NewReader(in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "weird face" || got[1] != "crying cat" {
		t.Errorf("unexpected prompts %q", got)
	}
}

func TestResolveOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	got, err := ResolveOutputDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("expected absolute path, got %s", got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("expected directory to be created")
	}

	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, []byte("x"), 0o644)
	if _, err := ResolveOutputDir(file); err == nil {
		t.Error("expected an error for a regular file")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)

	p.Update(session.State{IsGenerating: true, Progress: 10.2})
	p.Update(session.State{IsGenerating: true, Progress: 10.8})
	p.Update(session.State{IsGenerating: true, Progress: 55})
	p.Notify(notify.Notice{Message: "✨ SLOP READY!"})
	p.Update(session.State{IsGenerating: false})

	out := buf.String()
	if strings.Count(out, "\r") != 2 {
		t.Errorf("expected two redraws, got %q", out)
	}
	if !strings.Contains(out, " 55%") {
		t.Errorf("expected 55%% to be drawn, got %q", out)
	}
	if !strings.HasSuffix(out, "\n  ✨ SLOP READY!\n") {
		t.Errorf("expected notice on its own line, got %q", out)
	}
}
