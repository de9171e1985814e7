package acquire

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	resp   *genai.GenerateImagesResponse
	err    error
	model  string
	prompt string
	config *genai.GenerateImagesConfig
}

func (f *fakeGenerator) GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error) {
	f.model = model
	f.prompt = prompt
	f.config = config
	return f.resp, f.err
}

func TestGeminiURLRoundTrip(t *testing.T) {
	g := &Gemini{model: "imagen-test"}
	rawURL := g.URL("sad cat & co", time.UnixMilli(42))

	want := "gemini://imagen-test/sad%20cat%20%26%20co?seed=42"
	if rawURL != want {
		t.Errorf("expected %s, got %s", want, rawURL)
	}

	prompt, err := geminiPrompt(rawURL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt != "sad cat & co" {
		t.Errorf("expected original prompt, got %q", prompt)
	}
}

func TestGeminiPrompt_Invalid(t *testing.T) {
	for _, raw := range []string{
		"http://imagen/cat",
		"gemini://imagen/",
		"gemini://imagen",
	} {
		if _, err := geminiPrompt(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestGeminiOpen(t *testing.T) {
	data := testPNG(t)
	fake := &fakeGenerator{
		resp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{ImageBytes: data, MIMEType: "image/png"}},
			},
		},
	}
	g := &Gemini{models: fake, model: "imagen-test"}

	asset, err := g.Open(context.Background(), g.URL("blob", time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer asset.Body.Close()

	if fake.prompt != "blob" || fake.model != "imagen-test" {
		t.Errorf("unexpected call: model=%s prompt=%s", fake.model, fake.prompt)
	}
	if fake.config == nil || fake.config.NumberOfImages != 1 {
		t.Error("expected a single image to be requested")
	}
	if asset.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), asset.Size)
	}
	if asset.ContentType != "image/png" {
		t.Errorf("expected image/png, got %s", asset.ContentType)
	}
	body, _ := io.ReadAll(asset.Body)
	if len(body) != len(data) {
		t.Errorf("expected %d body bytes, got %d", len(data), len(body))
	}
}

func TestGeminiOpen_Errors(t *testing.T) {
	tests := []struct {
		name    string
		fake    *fakeGenerator
		wantMsg string
	}{
		{"api error", &fakeGenerator{err: errors.New("quota")}, "quota"},
		{"no images", &fakeGenerator{resp: &genai.GenerateImagesResponse{}}, "no image returned"},
		{"filtered", &fakeGenerator{resp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{}, RAIFilteredReason: "blocked"},
			},
		}}, "blocked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &Gemini{models: tt.fake, model: "imagen-test"}
			_, err := g.Open(context.Background(), g.URL("cat", time.Now()))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error containing %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestGeminiAcquire(t *testing.T) {
	useTempSpool(t)
	fake := &fakeGenerator{
		resp: &genai.GenerateImagesResponse{
			GeneratedImages: []*genai.GeneratedImage{
				{Image: &genai.Image{ImageBytes: testPNG(t), MIMEType: "image/png"}},
			},
		},
	}
	a := New(&Gemini{models: fake, model: "imagen-test"}, fastOptions())

	var log eventLog
	res, err := a.Acquire(context.Background(), "glitch art", log.report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusReady || res.Via != ViaStream {
		t.Errorf("expected ready via stream, got %s via %s", res.Status, res.Via)
	}
	if fake.prompt != "glitch art" {
		t.Errorf("expected prompt to reach the model, got %q", fake.prompt)
	}
	checkOrdering(t, log.all())
}
