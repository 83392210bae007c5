package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/audio/wav"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"golang.org/x/time/rate"
)

// ErrEmptyText is the cause attached to InvalidInput failures.
var ErrEmptyText = errors.New("prompt text is empty")

// AdapterConfig configures the synthesizer adapter.
type AdapterConfig struct {
	Voice   string
	Speed   float32
	TempDir string // where WAV artifacts are spooled; os.TempDir() when empty
	// RequestsPerMinute throttles provider calls; 0 disables throttling.
	RequestsPerMinute float64
}

// Adapter wraps a Provider and produces Utterances. It performs no retries.
type Adapter struct {
	provider Provider
	config   AdapterConfig
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewAdapter creates a synthesizer adapter around provider.
func NewAdapter(provider Provider, config AdapterConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerMinute/60), 1)
	}
	return &Adapter{
		provider: provider,
		config:   config,
		limiter:  limiter,
		logger:   logger.With(slog.String("component", "tts"), slog.String("provider", provider.Name())),
	}
}

// Synthesize converts text into an Utterance backed by a temporary WAV file.
// The caller owns the Utterance and must Release it.
func (a *Adapter) Synthesize(ctx context.Context, text string) (*Utterance, error) {
	const op = "tts.synthesize"

	if strings.TrimSpace(text) == "" {
		return nil, fault.New(fault.InvalidInput, op, ErrEmptyText)
	}

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			return nil, fault.New(fault.SynthesisFailure, op, fmt.Errorf("throttle: %w", err))
		}
	}

	start := time.Now()
	stream, err := a.provider.Synthesize(ctx, SynthesizeRequest{
		Text:  text,
		Voice: a.config.Voice,
		Speed: a.config.Speed,
	})
	if err != nil {
		// Providers that classify their own failures keep that kind.
		if kind := fault.KindOf(err); kind != "" {
			return nil, fault.New(kind, op, err)
		}
		return nil, fault.New(fault.SynthesisFailure, op, err)
	}
	defer stream.Close()

	tmp, err := os.CreateTemp(a.config.TempDir, "utterance-*.wav")
	if err != nil {
		return nil, fault.New(fault.SynthesisFailure, op, fmt.Errorf("create artifact: %w", err))
	}
	path := tmp.Name()
	tmp.Close()

	utt, err := a.spool(stream, path)
	if err != nil {
		os.Remove(path)
		return nil, fault.New(fault.SynthesisFailure, op, err)
	}
	utt.Text = text

	a.logger.Debug("Synthesized utterance",
		slog.Int("chars", len(text)),
		slog.Duration("audio", utt.Duration),
		slog.Duration("latency", time.Since(start)))

	return utt, nil
}

func (a *Adapter) spool(stream *Stream, path string) (*Utterance, error) {
	w, err := wav.NewWriter(path, stream.Format)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	if _, err := io.Copy(w, stream); err != nil {
		w.Close()
		return nil, fmt.Errorf("read provider stream: %w", err)
	}

	written := w.BytesWritten()
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize artifact: %w", err)
	}
	if written == 0 {
		return nil, errors.New("provider returned no audio")
	}

	bytesPerSecond := stream.Format.SampleRate * stream.Format.NumChannels * 2
	return &Utterance{
		Path:     path,
		Format:   stream.Format,
		Duration: time.Duration(int64(written) * int64(time.Second) / int64(bytesPerSecond)),
	}, nil
}
