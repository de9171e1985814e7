// Package export names finished memes and hands their PNG bytes to a sink:
// a directory, a native save dialog, an S3 bucket or an HTTP response.
package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/zenity"
	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/s3util"
)

const (
	// ContentType of every exported file.
	ContentType = "image/png"
	// DefaultPresignExpiry is how long S3 download links stay valid.
	DefaultPresignExpiry = 15 * time.Minute
)

// ErrCanceled is returned when the user dismisses the save dialog.
var ErrCanceled = errors.New("export canceled")

// Filename returns meme-<epoch ms>.png.
func Filename(now time.Time) string {
	return fmt.Sprintf("meme-%d.png", now.UnixMilli())
}

// Sink stores an exported meme and returns where it ended up.
type Sink interface {
	Name() string
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// SinkError records which sink failed.
type SinkError struct {
	Sink string
	Err  error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: %v", e.Sink, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

func sinkErr(sink string, err error) error {
	return &SinkError{Sink: sink, Err: err}
}

// DirSink writes files into a local directory, creating it if needed.
type DirSink struct {
	Dir string
}

func NewDirSink(dir string) *DirSink {
	if dir == "" {
		dir = "."
	}
	return &DirSink{Dir: dir}
}

func (d *DirSink) Name() string { return "dir" }

func (d *DirSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", sinkErr(d.Name(), err)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", sinkErr(d.Name(), fmt.Errorf("failed to create output directory: %w", err))
	}
	path := filepath.Join(d.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", sinkErr(d.Name(), fmt.Errorf("failed to write %s: %w", path, err))
	}
	log.Debug().Str("path", path).Int("size", len(data)).Msg("Meme written to disk")
	return path, nil
}

// DialogSink asks for a destination with the native save dialog.
type DialogSink struct {
	Dir string

	// pick is zenity.SelectFileSave outside tests.
	pick func(options ...zenity.Option) (string, error)
}

func NewDialogSink(dir string) *DialogSink {
	return &DialogSink{Dir: dir, pick: zenity.SelectFileSave}
}

func (d *DialogSink) Name() string { return "dialog" }

func (d *DialogSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	path, err := d.pick(
		zenity.Context(ctx),
		zenity.Title("Save meme"),
		zenity.Filename(filepath.Join(d.Dir, name)),
		zenity.ConfirmOverwrite(),
		zenity.FileFilters{
			{Name: "PNG images", Patterns: []string{"*.png"}, CaseFold: true},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", sinkErr(d.Name(), ErrCanceled)
		}
		return "", sinkErr(d.Name(), fmt.Errorf("save dialog failed: %w", err))
	}
	if !strings.EqualFold(filepath.Ext(path), ".png") {
		path += ".png"
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", sinkErr(d.Name(), fmt.Errorf("failed to write %s: %w", path, err))
	}
	log.Info().Str("path", path).Msg("Meme saved via native dialog")
	return path, nil
}

// S3Sink uploads to a bucket and returns a presigned download URL, or an
// s3:// locator when no presigner is configured.
type S3Sink struct {
	Client    s3util.PutObjectAPI
	Presigner s3util.PresignGetAPI
	Bucket    string
	Prefix    string
	Expiry    time.Duration
}

func (s *S3Sink) Name() string { return "s3" }

// Key returns the object key used for name.
func (s *S3Sink) Key(name string) string {
	return s.Prefix + name
}

func (s *S3Sink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if s.Bucket == "" {
		return "", sinkErr(s.Name(), errors.New("no bucket configured"))
	}
	key := s.Key(name)
	if err := s3util.UploadBytes(ctx, s.Client, s.Bucket, key, ContentType, data); err != nil {
		return "", sinkErr(s.Name(), err)
	}
	if s.Presigner == nil {
		return fmt.Sprintf("s3://%s/%s", s.Bucket, key), nil
	}
	expiry := s.Expiry
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	url, err := s3util.GeneratePresignedURL(ctx, s.Presigner, s.Bucket, key, expiry)
	if err != nil {
		return "", sinkErr(s.Name(), err)
	}
	return url, nil
}

// WriterSink streams the file to W. When W is an http.ResponseWriter the
// download headers are set first.
type WriterSink struct {
	W io.Writer
}

func (w *WriterSink) Name() string { return "writer" }

func (w *WriterSink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if hw, ok := w.W.(http.ResponseWriter); ok {
		h := hw.Header()
		h.Set("Content-Type", ContentType)
		h.Set("Content-Length", strconv.Itoa(len(data)))
		h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	}
	if _, err := w.W.Write(data); err != nil {
		return "", sinkErr(w.Name(), err)
	}
	return name, nil
}
