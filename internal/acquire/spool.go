package acquire

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"

	// Decoders for every format the image services return.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// spoolDir is where streamed bodies are buffered; empty means os.TempDir.
var spoolDir = ""

// spool buffers a streamed body on disk until it has been decoded.
// release must run on every path.
type spool struct {
	f *os.File
}

func newSpool() (*spool, error) {
	f, err := os.CreateTemp(spoolDir, "slop-*.img")
	if err != nil {
		return nil, fmt.Errorf("failed to create spool file: %w", err)
	}
	return &spool{f: f}, nil
}

func (s *spool) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *spool) decode() (image.Image, string, error) {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("failed to rewind spool: %w", err)
	}
	return image.Decode(bufio.NewReader(s.f))
}

func (s *spool) release() {
	name := s.f.Name()
	s.f.Close()
	os.Remove(name)
}
