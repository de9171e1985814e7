package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Asset is an opened image body. Size is -1 when the length is unknown.
type Asset struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Source locates and opens generated images. URL must be deterministic for
// a given prompt and seed; Open may be called more than once per URL.
type Source interface {
	Name() string
	URL(prompt string, seed time.Time) string
	Open(ctx context.Context, rawURL string) (*Asset, error)
}

// componentUnescaper reverts url.QueryEscape output to the JavaScript
// encodeURIComponent alphabet, which leaves !'()* alone and writes spaces as
// %20.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EscapePrompt percent-encodes a prompt for use as a single path segment,
// byte for byte like encodeURIComponent.
func EscapePrompt(prompt string) string {
	return componentUnescaper.Replace(url.QueryEscape(prompt))
}

// Pollinations fetches images from the Pollinations text-to-image endpoint.
type Pollinations struct {
	baseURL    string
	width      int
	height     int
	httpClient *http.Client
}

// NewPollinations creates a Pollinations source. baseURL is usually
// https://image.pollinations.ai; tests point it at an httptest server.
func NewPollinations(baseURL string, width, height int, timeout time.Duration) *Pollinations {
	return &Pollinations{
		baseURL: strings.TrimRight(baseURL, "/"),
		width:   width,
		height:  height,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *Pollinations) Name() string { return "pollinations" }

// URL builds <base>/prompt/<escaped>?width=W&height=H&seed=<ms>&nologo=true.
// The seed doubles as a cache buster.
func (p *Pollinations) URL(prompt string, seed time.Time) string {
	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&seed=%d&nologo=true",
		p.baseURL, EscapePrompt(prompt), p.width, p.height, seed.UnixMilli())
}

func (p *Pollinations) Open(ctx context.Context, rawURL string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("image service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return &Asset{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
