package fake

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/nine15pm/GrokEval/pkg/audio"
	"github.com/nine15pm/GrokEval/pkg/tts"
)

// FakeTTS is a fake TTS provider for testing and dry runs. It produces a
// sine tone whose length is proportional to the text.
type FakeTTS struct {
	// PerChar is the audio length generated per character of text.
	PerChar time.Duration
	// Format of the generated stream.
	Format audio.Format
	// FailTimes makes the first N calls to Synthesize return Err.
	FailTimes int
	// Err is returned while FailTimes is positive.
	Err error
	// StreamErr, when set, is returned by Read halfway through the stream.
	StreamErr error

	mu    sync.Mutex
	calls int
}

// NewFakeTTS creates a new fake TTS provider.
func NewFakeTTS() *FakeTTS {
	return &FakeTTS{
		PerChar: 10 * time.Millisecond,
		Format:  audio.Format{SampleRate: 16000, NumChannels: 1},
	}
}

// Name returns the provider name.
func (f *FakeTTS) Name() string { return "fake" }

// Calls returns how many times Synthesize was invoked.
func (f *FakeTTS) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Synthesize generates a 440Hz tone for the given text.
func (f *FakeTTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.Stream, error) {
	f.mu.Lock()
	f.calls++
	fail := f.FailTimes > 0
	if fail {
		f.FailTimes--
	}
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fail {
		return nil, f.Err
	}

	duration := time.Duration(len(req.Text)) * f.PerChar
	samples := int(int64(f.Format.SampleRate) * int64(duration) / int64(time.Second))

	pcm := make([]byte, 0, samples*f.Format.NumChannels*2)
	sample := make([]byte, 2)
	for i := 0; i < samples; i++ {
		v := math.Sin(2*math.Pi*440*float64(i)/float64(f.Format.SampleRate)) * 0.3
		binary.LittleEndian.PutUint16(sample, uint16(int16(v*32767)))
		for ch := 0; ch < f.Format.NumChannels; ch++ {
			pcm = append(pcm, sample...)
		}
	}

	var r io.Reader = bytes.NewReader(pcm)
	if f.StreamErr != nil {
		r = io.MultiReader(bytes.NewReader(pcm[:len(pcm)/2]), &errReader{err: f.StreamErr})
	}

	return &tts.Stream{ReadCloser: io.NopCloser(r), Format: f.Format}, nil
}

type errReader struct{ err error }

func (e *errReader) Read([]byte) (int, error) { return 0, e.err }
