package wav

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/pkg/audio"
)

func writeSine(t *testing.T, format audio.Format, durationMs int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")

	w, err := NewWriter(path, format)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteSineWave(440, durationMs); err != nil {
		t.Fatalf("WriteSineWave: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func TestReaderStreamsFrames(t *testing.T) {
	is := is.New(t)
	format := audio.Format{SampleRate: 24000, NumChannels: 1}
	path := writeSine(t, format, 95) // 9.5 frames

	r, err := NewReader(path)
	is.NoErr(err)
	defer r.Close()

	h := r.Header()
	is.Equal(h.Format(), format)
	is.Equal(h.BitsPerSample, uint16(16))
	is.Equal(h.DataSize, uint32(24000*95/1000*2))
	is.Equal(h.Duration(), 95*time.Millisecond)

	var frames []audio.Frame
	for {
		f, err := r.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		is.NoErr(err)
		frames = append(frames, f)
	}

	is.Equal(len(frames), 10) // last frame padded
	for i, f := range frames {
		is.Equal(len(f.Data), format.BytesPerFrame())
		is.Equal(f.Timestamp, time.Duration(i)*10*time.Millisecond)
	}

	last := frames[len(frames)-1]
	tail := last.Data[len(last.Data)/2:]
	for _, b := range tail {
		is.Equal(b, byte(0)) // zero padding after the half frame of real data
	}

	is.Equal(r.Elapsed(), 95*time.Millisecond)

	_, err = r.NextFrame()
	is.True(errors.Is(err, io.EOF))
}

func TestWriterRejectsMismatchedFrame(t *testing.T) {
	is := is.New(t)
	w, err := NewWriter(filepath.Join(t.TempDir(), "out.wav"), audio.Format{SampleRate: 16000, NumChannels: 1})
	is.NoErr(err)
	defer w.Close()

	err = w.WriteFrame(audio.Frame{Data: make([]byte, 960), SampleRate: 48000, SamplesPerChannel: 480, NumChannels: 1})
	is.True(err != nil)
}

func TestReaderRejectsNonWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.wav")
	if err := os.WriteFile(path, []byte("definitely not a riff file"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := NewReader(path); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	is := is.New(t)
	w, err := NewWriter(filepath.Join(t.TempDir(), "out.wav"), audio.Format{SampleRate: 24000, NumChannels: 1})
	is.NoErr(err)

	_, err = w.Write(make([]byte, 480))
	is.NoErr(err)
	is.Equal(w.BytesWritten(), uint32(480))
	is.NoErr(w.Close())
	is.NoErr(w.Close())

	_, err = w.Write([]byte{0, 0})
	is.True(errors.Is(err, os.ErrClosed))
}
