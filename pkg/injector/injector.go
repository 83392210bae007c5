// Package injector plays synthesized utterances into the assistant's
// microphone input.
package injector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nine15pm/GrokEval/pkg/audio"
	"github.com/nine15pm/GrokEval/pkg/audio/wav"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/sink"
	"github.com/nine15pm/GrokEval/pkg/tts"
)

const op = "injector.play"

// ErrBusy is returned when Play is called while another playback is running.
var ErrBusy = errors.New("playback already in progress")

// Config configures playback.
type Config struct {
	// Pace feeds frames no faster than real time. Needed for sinks without
	// their own buffering limit so that cancellation stays prompt.
	Pace bool
	// Lead is how far ahead of the wall clock paced playback may run.
	Lead time.Duration
	// SettleDelay is waited after the sink drains, before Play returns.
	SettleDelay time.Duration
	// Gain scales samples; 0 and 1 leave them unchanged.
	Gain float32
}

// Result describes a completed playback.
type Result struct {
	Duration time.Duration
	Frames   int
}

// Injector streams an Utterance into a sink.
type Injector struct {
	sink   sink.Sink
	config Config
	logger *slog.Logger
	busy   atomic.Bool
}

// New creates an injector that plays into s.
func New(s sink.Sink, config Config, logger *slog.Logger) *Injector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Injector{
		sink:   s,
		config: config,
		logger: logger.With(slog.String("component", "injector"), slog.String("sink", s.Name())),
	}
}

// Play streams utt into the sink in 10ms frames, waits for the sink to
// drain and then for the settle delay. Play takes ownership of utt: the
// artifact is released and the sink closed on every return path.
//
// Failures are fault.Playback; cancellation returns the context error.
func (i *Injector) Play(ctx context.Context, utt *tts.Utterance) (Result, error) {
	var res Result

	if utt == nil {
		return res, fault.New(fault.Playback, op, errors.New("nil utterance"))
	}
	defer func() {
		if err := utt.Release(); err != nil {
			i.logger.Warn("Failed to release utterance", slog.String("path", utt.Path), slog.String("error", err.Error()))
		}
	}()

	if !i.busy.CompareAndSwap(false, true) {
		return res, fault.New(fault.Playback, op, ErrBusy)
	}
	defer i.busy.Store(false)

	reader, err := wav.NewReader(utt.Path)
	if err != nil {
		return res, fault.New(fault.Playback, op, err)
	}
	defer reader.Close()

	if err := i.sink.Open(ctx, reader.Header().Format()); err != nil {
		return res, i.fail(ctx, fmt.Errorf("open sink: %w", err))
	}
	defer func() {
		if err := i.sink.Close(); err != nil {
			i.logger.Warn("Failed to close sink", slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("%s: %w", op, err)
		}

		frame, err := reader.NextFrame()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, i.fail(ctx, err)
		}

		if i.config.Gain != 0 && i.config.Gain != 1 {
			frame = scaleVolume(frame, i.config.Gain)
		}
		if err := i.sink.Write(ctx, frame); err != nil {
			return res, i.fail(ctx, fmt.Errorf("write frame %d: %w", res.Frames, err))
		}
		res.Frames++
		res.Duration = reader.Elapsed()

		if i.config.Pace {
			ahead := res.Duration - time.Since(start) - i.config.Lead
			if err := sleep(ctx, ahead); err != nil {
				return res, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	if err := i.sink.Drain(ctx); err != nil {
		return res, i.fail(ctx, fmt.Errorf("drain sink: %w", err))
	}

	i.logger.Debug("Utterance played",
		slog.Int("frames", res.Frames),
		slog.Duration("audio", res.Duration),
		slog.Duration("elapsed", time.Since(start)))

	if err := sleep(ctx, i.config.SettleDelay); err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// fail classifies err, keeping cancellation distinct from device faults.
func (i *Injector) fail(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	return fault.New(fault.Playback, op, err)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// scaleVolume applies a gain to a 16-bit PCM frame with clipping.
func scaleVolume(frame audio.Frame, gain float32) audio.Frame {
	scaled := frame
	scaled.Data = make([]byte, len(frame.Data))

	for j := 0; j+1 < len(frame.Data); j += 2 {
		sample := int16(frame.Data[j]) | int16(frame.Data[j+1])<<8

		v := int32(float32(sample) * gain)
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}

		scaled.Data[j] = byte(v)
		scaled.Data[j+1] = byte(v >> 8)
	}
	return scaled
}
