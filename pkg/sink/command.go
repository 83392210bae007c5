package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

// DefaultCommand plays raw PCM into PulseAudio/PipeWire. Point --device at
// the null sink whose monitor the assistant uses as its microphone.
var DefaultCommand = []string{
	"pacat", "--playback", "--raw", "--format=s16le",
	"--rate={rate}", "--channels={channels}",
}

// CommandSink pipes raw PCM into the stdin of an external player process.
// Each playback starts a fresh process.
type CommandSink struct {
	argv   []string
	logger *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr lockedBuffer
	exited chan struct{}
	err    error // exit status, valid once exited is closed
}

// NewCommandSink creates a sink running argv for every playback. The
// placeholders {rate} and {channels} are replaced with the frame format.
// An optional device is appended as --device=<device>.
func NewCommandSink(argv []string, device string, logger *slog.Logger) (*CommandSink, error) {
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("player %q not found: %w", argv[0], err)
	}
	if device != "" {
		argv = append(append([]string(nil), argv...), "--device="+device)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSink{
		argv:   argv,
		logger: logger.With(slog.String("component", "sink.command")),
	}, nil
}

// Name returns the backend name.
func (s *CommandSink) Name() string { return "command" }

// Open starts the player process. The process is killed when ctx is done.
func (s *CommandSink) Open(ctx context.Context, format audio.Format) error {
	if s.cmd != nil {
		return errors.New("sink already open")
	}
	if err := format.Validate(); err != nil {
		return err
	}

	args := expandArgs(s.argv, format)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	s.stderr.Reset()
	cmd.Stderr = &s.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", args[0], err)
	}

	s.cmd = cmd
	s.stdin = stdin
	s.exited = make(chan struct{})
	go func(exited chan struct{}) {
		s.err = cmd.Wait()
		close(exited)
	}(s.exited)

	s.logger.Debug("Player started",
		slog.String("command", strings.Join(args, " ")),
		slog.Int("pid", cmd.Process.Pid))
	return nil
}

// Write sends one frame to the player's stdin.
func (s *CommandSink) Write(ctx context.Context, frame audio.Frame) error {
	if s.stdin == nil {
		return errors.New("sink not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.stdin.Write(frame.Data); err != nil {
		return fmt.Errorf("write to player: %w%s", err, s.stderrTail())
	}
	return nil
}

// Drain closes stdin to signal end of audio and waits for the player to exit.
func (s *CommandSink) Drain(ctx context.Context) error {
	if s.cmd == nil {
		return errors.New("sink not open")
	}
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}

	select {
	case <-s.exited:
	case <-ctx.Done():
		s.cmd.Process.Kill()
		<-s.exited
		return ctx.Err()
	}

	if s.err != nil {
		return fmt.Errorf("player exited: %w%s", s.err, s.stderrTail())
	}
	return nil
}

// Close kills the player if it is still running.
func (s *CommandSink) Close() error {
	if s.cmd == nil {
		return nil
	}
	if s.stdin != nil {
		s.stdin.Close()
		s.stdin = nil
	}

	select {
	case <-s.exited:
	default:
		s.cmd.Process.Kill()
		<-s.exited
	}

	s.cmd = nil
	s.exited = nil
	return nil
}

func (s *CommandSink) stderrTail() string {
	const max = 256
	msg := strings.TrimSpace(s.stderr.String())
	if msg == "" {
		return ""
	}
	if len(msg) > max {
		msg = msg[len(msg)-max:]
	}
	return ": " + msg
}

// lockedBuffer collects player stderr, which exec copies from its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *lockedBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

func expandArgs(argv []string, format audio.Format) []string {
	r := strings.NewReplacer(
		"{rate}", strconv.Itoa(format.SampleRate),
		"{channels}", strconv.Itoa(format.NumChannels),
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}
