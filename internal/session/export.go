package session

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/compose"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/metrics"
	"github.com/fpang/slop-meme-generator/internal/notify"
)

// Frame returns what is currently on screen.
func (s *Session) Frame() compose.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return compose.Frame{
		Image:     s.image,
		Caption:   s.state.Caption,
		TextScale: s.state.TextScale,
		Mounted:   s.state.ImageURL != "",
	}
}

// Render rasterizes the current frame at scale.
func (s *Session) Render(scale int) (*image.RGBA, error) {
	return renderSafe(s.Frame(), scale)
}

// Export rasterizes the meme at 2x, encodes it as PNG and hands it to sink
// exactly once. It returns the location reported by the sink. Any shown
// image URL is exportable; one that never decoded exports as a black panel
// with captions.
func (s *Session) Export(ctx context.Context, sink export.Sink) (string, error) {
	frame := s.Frame()
	if !frame.Mounted {
		s.notifyOnly(notify.IDDownload, notify.LevelError, MsgNothingToExport)
		return "", ErrNothingToExport
	}

	start := time.Now()
	s.notifyOnly(notify.IDDownload, notify.LevelLoading, MsgPreparing)

	rec := metrics.New(metrics.Namespace).Dimension("Sink", sink.Name())

	img, err := renderSafe(frame, compose.ExportScale)
	if err != nil {
		s.exportFailed(rec, err)
		return "", fmt.Errorf("failed to render meme: %w", err)
	}
	data, err := compose.EncodePNG(img)
	if err != nil {
		s.exportFailed(rec, err)
		return "", err
	}

	name := export.Filename(s.now())
	loc, err := sink.Save(ctx, name, data)
	if err != nil {
		s.exportFailed(rec, err)
		return "", err
	}

	s.notifyOnly(notify.IDDownload, notify.LevelSuccess, MsgDownloaded)
	log.Info().
		Str("sink", sink.Name()).
		Str("location", loc).
		Int("size", len(data)).
		Dur("duration", time.Since(start)).
		Msg("Meme exported")
	rec.Count("MemesExported").
		Metric("ExportBytes", float64(len(data)), metrics.UnitBytes).
		Metric("ExportLatencyMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Flush()

	return loc, nil
}

func (s *Session) exportFailed(rec *metrics.Recorder, err error) {
	log.Error().Err(err).Msg("Meme export failed")
	s.notifyOnly(notify.IDDownload, notify.LevelError, MsgDownloadFailed)
	rec.Count("ExportFailures").Flush()
}

// renderSafe turns a panic inside the rasterizer into an error.
func renderSafe(f compose.Frame, scale int) (img *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	return compose.Render(f, scale)
}
