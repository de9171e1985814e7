package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const geminiScheme = "gemini"

// imageGenerator is the slice of *genai.Models used here.
type imageGenerator interface {
	GenerateImages(ctx context.Context, model string, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// Gemini generates images with an Imagen model through the Gemini API.
// Its URLs use a gemini:// locator so the acquisition flow can treat it
// like any other source.
type Gemini struct {
	models imageGenerator
	model  string
}

// NewGeminiClient creates a Gemini API client authenticated with apiKey.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// NewGemini creates a Gemini source generating with model.
func NewGemini(client *genai.Client, model string) *Gemini {
	return &Gemini{models: client.Models, model: model}
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) URL(prompt string, seed time.Time) string {
	return fmt.Sprintf("%s://%s/%s?seed=%d", geminiScheme, g.model, EscapePrompt(prompt), seed.UnixMilli())
}

func (g *Gemini) Open(ctx context.Context, rawURL string) (*Asset, error) {
	prompt, err := geminiPrompt(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := g.models.GenerateImages(ctx, g.model, prompt, &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      "1:1",
		OutputMIMEType:   "image/png",
		IncludeRAIReason: true,
	})
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("no image returned from %s", g.model)
	}

	img := resp.GeneratedImages[0].Image
	if len(img.ImageBytes) == 0 {
		reason := resp.GeneratedImages[0].RAIFilteredReason
		return nil, fmt.Errorf("empty image returned from %s: %s", g.model, reason)
	}

	log.Debug().
		Str("model", g.model).
		Int("bytes", len(img.ImageBytes)).
		Dur("duration", time.Since(start)).
		Msg("Gemini image generated")

	return &Asset{
		Body:        io.NopCloser(bytes.NewReader(img.ImageBytes)),
		Size:        int64(len(img.ImageBytes)),
		ContentType: img.MIMEType,
	}, nil
}

func geminiPrompt(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid gemini locator: %w", err)
	}
	if u.Scheme != geminiScheme {
		return "", fmt.Errorf("invalid gemini locator scheme %q", u.Scheme)
	}
	prompt := strings.TrimPrefix(u.Path, "/")
	if prompt == "" {
		return "", fmt.Errorf("gemini locator has no prompt")
	}
	return prompt, nil
}
