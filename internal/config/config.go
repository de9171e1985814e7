// Package config resolves runtime settings from environment variables.
// Command-line flags in cmd/ override the values loaded here.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fpang/slop-meme-generator/internal/logging"
)

// Image sources.
const (
	SourcePollinations = "pollinations"
	SourceGemini       = "gemini"
)

// Defaults.
const (
	DefaultImageBaseURL      = "https://image.pollinations.ai"
	DefaultImageSize         = 256
	DefaultGeminiModel       = "imagen-4.0-generate-001"
	DefaultEstimatedDuration = 8 * time.Second
	DefaultTickInterval      = 100 * time.Millisecond
	DefaultSlowAfter         = 10 * time.Second
	DefaultGraceDelay        = 300 * time.Millisecond
	DefaultAutoCaptionDelay  = 300 * time.Millisecond
	DefaultHTTPTimeout       = 2 * time.Minute
	DefaultRateInterval      = 2 * time.Second
	DefaultOutputDir         = "."
	DefaultS3Prefix          = "memes/"
)

// Config holds every tunable the binaries share.
type Config struct {
	Source       string
	ImageBaseURL string
	GeminiModel  string
	Width        int
	Height       int

	EstimatedDuration time.Duration
	TickInterval      time.Duration
	SlowAfter         time.Duration
	GraceDelay        time.Duration
	AutoCaptionDelay  time.Duration
	HTTPTimeout       time.Duration
	RateInterval      time.Duration

	OutputDir string
	S3Bucket  string
	S3Prefix  string

	Metrics bool
}

// Load reads the environment. Invalid durations or sizes are reported as
// errors rather than silently replaced.
func Load() (Config, error) {
	cfg := Config{
		Source:       logging.EnvOrDefault("SLOP_IMAGE_SOURCE", SourcePollinations),
		ImageBaseURL: logging.EnvOrDefault("SLOP_IMAGE_BASE_URL", DefaultImageBaseURL),
		GeminiModel:  logging.EnvOrDefault("SLOP_GEMINI_MODEL", DefaultGeminiModel),
		OutputDir:    logging.EnvOrDefault("SLOP_OUTPUT_DIR", DefaultOutputDir),
		S3Bucket:     os.Getenv("SLOP_S3_BUCKET"),
		S3Prefix:     logging.EnvOrDefault("SLOP_S3_PREFIX", DefaultS3Prefix),
		Metrics:      os.Getenv("SLOP_METRICS") == "1",

		EstimatedDuration: DefaultEstimatedDuration,
		TickInterval:      DefaultTickInterval,
		SlowAfter:         DefaultSlowAfter,
		GraceDelay:        DefaultGraceDelay,
		AutoCaptionDelay:  DefaultAutoCaptionDelay,
	}

	var err error
	if cfg.Width, err = envInt("SLOP_IMAGE_WIDTH", DefaultImageSize); err != nil {
		return Config{}, err
	}
	if cfg.Height, err = envInt("SLOP_IMAGE_HEIGHT", DefaultImageSize); err != nil {
		return Config{}, err
	}
	if cfg.HTTPTimeout, err = envDuration("SLOP_HTTP_TIMEOUT", DefaultHTTPTimeout); err != nil {
		return Config{}, err
	}
	if cfg.RateInterval, err = envDuration("SLOP_RATE_INTERVAL", DefaultRateInterval); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks values that flags may also have set.
func (c Config) Validate() error {
	switch c.Source {
	case SourcePollinations, SourceGemini:
	default:
		return fmt.Errorf("unknown image source %q (want %s or %s)", c.Source, SourcePollinations, SourceGemini)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("image size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.ImageBaseURL == "" {
		return fmt.Errorf("image base URL is empty")
	}
	return nil
}

func envInt(name string, def int) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return n, nil
}

func envDuration(name string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", name, v, err)
	}
	return d, nil
}
