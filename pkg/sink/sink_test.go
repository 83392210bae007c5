package sink

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/pkg/audio"
	"github.com/nine15pm/GrokEval/pkg/audio/wav"
)

var mono16k = audio.Format{SampleRate: 16000, NumChannels: 1}

func frames(t *testing.T, n int) []audio.Frame {
	t.Helper()
	out := make([]audio.Frame, n)
	for i := range out {
		data := make([]byte, mono16k.BytesPerFrame())
		for j := range data {
			data[j] = byte(i + j)
		}
		f, err := audio.NewFrame(data, mono16k, time.Duration(i)*audio.FrameDuration)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = *f
	}
	return out
}

func TestExpandArgs(t *testing.T) {
	is := is.New(t)
	got := expandArgs(DefaultCommand, audio.Format{SampleRate: 24000, NumChannels: 2})
	is.Equal(got[4], "--rate=24000")
	is.Equal(got[5], "--channels=2")
	is.Equal(DefaultCommand[4], "--rate={rate}") // template untouched
}

func TestCommandSinkPipesPCM(t *testing.T) {
	is := is.New(t)
	out := filepath.Join(t.TempDir(), "out.raw")
	s, err := NewCommandSink([]string{"sh", "-c", `cat > "$0"`, out}, "", nil)
	is.NoErr(err)

	ctx := context.Background()
	is.NoErr(s.Open(ctx, mono16k))
	var want []byte
	for _, f := range frames(t, 5) {
		is.NoErr(s.Write(ctx, f))
		want = append(want, f.Data...)
	}
	is.NoErr(s.Drain(ctx))
	is.NoErr(s.Close())
	is.NoErr(s.Close()) // idempotent

	got, err := os.ReadFile(out)
	is.NoErr(err)
	is.Equal(got, want)

	// reopen for the next playback
	is.NoErr(s.Open(ctx, mono16k))
	is.NoErr(s.Drain(ctx))
	is.NoErr(s.Close())
}

func TestCommandSinkReportsPlayerFailure(t *testing.T) {
	is := is.New(t)
	s, err := NewCommandSink([]string{"sh", "-c", "echo no such device >&2; exit 3"}, "", nil)
	is.NoErr(err)

	is.NoErr(s.Open(context.Background(), mono16k))
	defer s.Close()

	err = s.Drain(context.Background())
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "no such device"))
}

func TestCommandSinkCloseKillsPlayer(t *testing.T) {
	is := is.New(t)
	s, err := NewCommandSink([]string{"sleep", "30"}, "", nil)
	is.NoErr(err)

	is.NoErr(s.Open(context.Background(), mono16k))
	start := time.Now()
	is.NoErr(s.Close())
	is.True(time.Since(start) < 5*time.Second)
}

func TestCommandSinkDrainHonoursContext(t *testing.T) {
	is := is.New(t)
	s, err := NewCommandSink([]string{"sleep", "30"}, "", nil)
	is.NoErr(err)

	is.NoErr(s.Open(context.Background(), mono16k))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.Drain(ctx)
	is.True(errors.Is(err, context.DeadlineExceeded))
}

func TestNewCommandSinkMissingPlayer(t *testing.T) {
	if _, err := NewCommandSink([]string{"definitely-not-a-player-binary"}, "", nil); err == nil {
		t.Fatal("expected error for missing player")
	}
}

func TestFileSinkWritesNumberedFiles(t *testing.T) {
	is := is.New(t)
	s, err := NewFileSink(t.TempDir())
	is.NoErr(err)
	ctx := context.Background()

	for playback := 0; playback < 2; playback++ {
		is.NoErr(s.Open(ctx, mono16k))
		for _, f := range frames(t, 3) {
			is.NoErr(s.Write(ctx, f))
		}
		is.NoErr(s.Drain(ctx))
		is.NoErr(s.Close())
	}

	paths := s.Paths()
	is.Equal(len(paths), 2)
	is.Equal(filepath.Base(paths[1]), "playback-0002.wav")

	r, err := wav.NewReader(paths[0])
	is.NoErr(err)
	defer r.Close()
	is.Equal(r.Header().Duration(), 30*time.Millisecond)
}
