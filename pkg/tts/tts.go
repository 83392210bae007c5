// Package tts turns prompt text into playable utterances.
//
// A Provider produces a raw PCM stream; the Adapter validates the prompt,
// spools the stream into a temporary WAV artifact and hands back an
// Utterance that the audio injector owns until it calls Release.
package tts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

// SynthesizeRequest contains parameters for text-to-speech synthesis.
type SynthesizeRequest struct {
	Text  string
	Voice string
	Speed float32
}

// Stream is 16-bit little-endian PCM produced by a provider.
// Callers must Close it.
type Stream struct {
	io.ReadCloser
	Format audio.Format
}

// Provider is the main interface for text-to-speech backends.
type Provider interface {
	// Synthesize starts synthesis and returns the PCM stream.
	// Errors before the stream opens are returned here; errors while
	// streaming surface from Read.
	Synthesize(ctx context.Context, req SynthesizeRequest) (*Stream, error)

	// Name identifies the provider in logs.
	Name() string
}

// Utterance is a synthesized waveform backed by a temporary WAV file.
type Utterance struct {
	Text     string
	Path     string
	Format   audio.Format
	Duration time.Duration

	once sync.Once
	err  error
}

// Release removes the backing artifact. Safe to call more than once.
func (u *Utterance) Release() error {
	u.once.Do(func() {
		if err := os.Remove(u.Path); err != nil && !os.IsNotExist(err) {
			u.err = err
		}
	})
	return u.err
}

// Clone copies the backing artifact so the copy can be played and
// released independently of u.
func (u *Utterance) Clone() (*Utterance, error) {
	src, err := os.Open(u.Path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst, err := os.CreateTemp(filepath.Dir(u.Path), "utterance-*.wav")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return nil, err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return nil, err
	}

	return &Utterance{
		Text:     u.Text,
		Path:     dst.Name(),
		Format:   u.Format,
		Duration: u.Duration,
	}, nil
}
