package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nine15pm/GrokEval/pkg/audio"
	"github.com/nine15pm/GrokEval/pkg/audio/wav"
)

// FileSink writes each playback to a numbered WAV file in a directory.
// It is used for dry runs and to audit exactly what was injected.
type FileSink struct {
	dir    string
	count  int
	writer *wav.Writer
	paths  []string
}

// NewFileSink creates a sink writing playback-NNNN.wav files under dir.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Name returns the backend name.
func (s *FileSink) Name() string { return "wav" }

// Paths returns the files written so far.
func (s *FileSink) Paths() []string {
	return append([]string(nil), s.paths...)
}

// Open creates the next playback file.
func (s *FileSink) Open(ctx context.Context, format audio.Format) error {
	if s.writer != nil {
		return errors.New("sink already open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.count++
	path := filepath.Join(s.dir, fmt.Sprintf("playback-%04d.wav", s.count))
	w, err := wav.NewWriter(path, format)
	if err != nil {
		return err
	}
	s.writer = w
	s.paths = append(s.paths, path)
	return nil
}

// Write appends a frame to the current file.
func (s *FileSink) Write(ctx context.Context, frame audio.Frame) error {
	if s.writer == nil {
		return errors.New("sink not open")
	}
	return s.writer.WriteFrame(frame)
}

// Drain is a no-op: file writes complete synchronously.
func (s *FileSink) Drain(ctx context.Context) error {
	if s.writer == nil {
		return errors.New("sink not open")
	}
	return ctx.Err()
}

// Close finalizes the WAV header.
func (s *FileSink) Close() error {
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}
