// Package app assembles the acquirer and session settings that every
// binary shares from a resolved config.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/acquire"
	"github.com/fpang/slop-meme-generator/internal/auth"
	"github.com/fpang/slop-meme-generator/internal/config"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/session"
)

// Version is reported by the binaries and the MCP server.
const Version = "0.1.0"

// NewSource builds the image source named by cfg.Source. The gemini source
// needs an API key and validates it before returning.
func NewSource(ctx context.Context, cfg config.Config) (acquire.Source, error) {
	switch cfg.Source {
	case config.SourcePollinations:
		return acquire.NewPollinations(cfg.ImageBaseURL, cfg.Width, cfg.Height, cfg.HTTPTimeout), nil
	case config.SourceGemini:
		apiKey, err := auth.GetAPIKey()
		if err != nil {
			return nil, err
		}
		client, err := acquire.NewGeminiClient(ctx, apiKey)
		if err != nil {
			return nil, err
		}
		if err := auth.ValidateAPIKey(ctx, client.Models, cfg.GeminiModel); err != nil {
			return nil, err
		}
		return acquire.NewGemini(client, cfg.GeminiModel), nil
	default:
		return nil, fmt.Errorf("unknown image source %q", cfg.Source)
	}
}

// AcquireOptions maps the progress settings.
func AcquireOptions(cfg config.Config) acquire.Options {
	return acquire.Options{
		EstimatedDuration: cfg.EstimatedDuration,
		TickInterval:      cfg.TickInterval,
		SlowAfter:         cfg.SlowAfter,
	}
}

// SessionOptions maps the UI timings.
func SessionOptions(cfg config.Config) session.Options {
	return session.Options{
		GraceDelay:       cfg.GraceDelay,
		AutoCaptionDelay: cfg.AutoCaptionDelay,
	}
}

// NewAcquirer combines NewSource and AcquireOptions.
func NewAcquirer(ctx context.Context, cfg config.Config) (*acquire.Acquirer, error) {
	src, err := NewSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("source", src.Name()).Msg("Image source ready")
	return acquire.New(src, AcquireOptions(cfg)), nil
}

// Sinks lists the export destinations in save order: the save dialog or
// else the output directory, then S3 when configured.
func Sinks(cfg config.Config, dialog bool, s3 *export.S3Sink) []export.Sink {
	var sinks []export.Sink
	if dialog {
		sinks = append(sinks, export.NewDialogSink(cfg.OutputDir))
	} else {
		sinks = append(sinks, export.NewDirSink(cfg.OutputDir))
	}
	if s3 != nil {
		sinks = append(sinks, s3)
	}
	return sinks
}
