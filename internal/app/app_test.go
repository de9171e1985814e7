package app

import (
	"context"
	"testing"
	"time"

	"github.com/fpang/slop-meme-generator/internal/config"
	"github.com/fpang/slop-meme-generator/internal/export"
)

func testConfig() config.Config {
	return config.Config{
		Source:            config.SourcePollinations,
		ImageBaseURL:      "http://img.test",
		Width:             256,
		Height:            256,
		EstimatedDuration: 3 * time.Second,
		TickInterval:      50 * time.Millisecond,
		SlowAfter:         4 * time.Second,
		GraceDelay:        100 * time.Millisecond,
		AutoCaptionDelay:  200 * time.Millisecond,
		HTTPTimeout:       time.Second,
		OutputDir:         "out",
	}
}

func TestNewSource_Pollinations(t *testing.T) {
	src, err := NewSource(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.Name() != "pollinations" {
		t.Errorf("expected pollinations, got %s", src.Name())
	}
}

func TestNewSource_Unknown(t *testing.T) {
	cfg := testConfig()
	cfg.Source = "dalle"
	if _, err := NewSource(context.Background(), cfg); err == nil {
		t.Error("expected an error for an unknown source")
	}
}

func TestNewSource_GeminiWithoutKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SLOP_CREDENTIALS_FILE", "")

	cfg := testConfig()
	cfg.Source = config.SourceGemini
	if _, err := NewSource(context.Background(), cfg); err == nil {
		t.Error("expected an error without an API key")
	}
}

func TestOptions(t *testing.T) {
	cfg := testConfig()
	ao := AcquireOptions(cfg)
	if ao.EstimatedDuration != 3*time.Second || ao.TickInterval != 50*time.Millisecond || ao.SlowAfter != 4*time.Second {
		t.Errorf("unexpected acquire options %+v", ao)
	}
	so := SessionOptions(cfg)
	if so.GraceDelay != 100*time.Millisecond || so.AutoCaptionDelay != 200*time.Millisecond {
		t.Errorf("unexpected session options %+v", so)
	}
}

func TestSinks(t *testing.T) {
	cfg := testConfig()

	sinks := Sinks(cfg, false, nil)
	if len(sinks) != 1 || sinks[0].Name() != "dir" {
		t.Errorf("expected the directory sink by default, got %v", sinks)
	}

	sinks = Sinks(cfg, false, &export.S3Sink{Bucket: "b"})
	if len(sinks) != 2 || sinks[0].Name() != "dir" || sinks[1].Name() != "s3" {
		t.Errorf("expected dir then s3, got %v", sinks)
	}

	sinks = Sinks(cfg, true, &export.S3Sink{Bucket: "b"})
	if len(sinks) != 2 || sinks[0].Name() != "dialog" || sinks[1].Name() != "s3" {
		t.Errorf("expected dialog then s3, got %v", sinks)
	}
}
