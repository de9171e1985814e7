package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/auth"
)

// ResolveOutputDir creates dirPath if needed and returns its absolute path.
func ResolveOutputDir(dirPath string) (string, error) {
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	info, err := os.Stat(dirPath)
	if err != nil {
		return "", fmt.Errorf("failed to access output directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("output path %s is not a directory", dirPath)
	}
	if abs, err := filepath.Abs(dirPath); err == nil {
		dirPath = abs
	}
	return dirPath, nil
}

// HandleSourceError exits with a message matching the cause of a failed
// image source setup.
func HandleSourceError(err error) {
	var validationErr *auth.ValidationError
	if errors.As(err, &validationErr) {
		switch validationErr.Type {
		case auth.ErrTypeNoKey:
			log.Fatal().Msg("No API key configured. Set GEMINI_API_KEY or use --source pollinations")
		case auth.ErrTypeInvalidKey:
			log.Fatal().Err(err).Msg("Invalid API key. Please check your API key and try again")
		case auth.ErrTypeUnknownModel:
			log.Fatal().Err(err).Msg("Unknown image model. Check the --model flag")
		case auth.ErrTypeNetworkError:
			log.Fatal().Err(err).Msg("Network error. Please check your internet connection")
		case auth.ErrTypeQuotaExceeded:
			log.Fatal().Err(err).Msg("API quota exceeded. Please try again later or check your usage limits")
		default:
			log.Fatal().Err(err).Msg("API key validation failed")
		}
	}
	log.Fatal().Err(err).Msg("Failed to set up image source")
}
