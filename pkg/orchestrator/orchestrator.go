// Package orchestrator runs the per-prompt collection cycle: reset the
// conversation, speak the prompt, wait for the reply and record it, with
// bounded retries.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/injector"
	"github.com/nine15pm/GrokEval/pkg/session"
	"github.com/nine15pm/GrokEval/pkg/tts"
	"github.com/nine15pm/GrokEval/pkg/watcher"
)

// Defaults for Config.
const (
	DefaultRateLimitBackoff = 30 * time.Second
	DefaultDriftThreshold   = 3
	releaseTimeout          = 5 * time.Second
)

// Cycler resets the conversation and verifies the login.
type Cycler interface {
	ResetAndVerify(ctx context.Context, prev session.State) (session.State, error)
	Release(ctx context.Context)
}

// Synthesizer turns prompt text into an utterance.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*tts.Utterance, error)
}

// Player injects an utterance and takes ownership of it.
type Player interface {
	Play(ctx context.Context, utt *tts.Utterance) (injector.Result, error)
}

// Watcher waits for the assistant to finish responding.
type Watcher interface {
	Wait(ctx context.Context) (watcher.Window, error)
}

// ReplyReader extracts the latest reply transcript.
type ReplyReader interface {
	LastReplyText(ctx context.Context) (string, error)
}

// TextSender types a prompt into the assistant instead of speaking it.
type TextSender interface {
	SendText(ctx context.Context, text string) error
}

// Components are the collaborators of one orchestrator.
type Components struct {
	Cycler      Cycler
	Synthesizer Synthesizer
	Player      Player
	Watcher     Watcher
	Replies     ReplyReader
	// Text, when set, types the prompt after a synthesis or playback
	// failure. The reply then answers a typed prompt, so it is opt-in.
	Text TextSender
}

// Config configures retries and reporting.
type Config struct {
	// Retry bounds attempts per record and spaces them out.
	Retry fault.RetryConfig
	// RateLimitBackoff replaces the retry delay after a rate-limit alert.
	RateLimitBackoff time.Duration
	// DriftThreshold is the number of consecutive ElementNotFound failures
	// after which a UI drift warning is logged. 0 disables the warning.
	DriftThreshold int
	// MaxReplyChars truncates longer replies; 0 keeps them whole.
	MaxReplyChars int
	// ReuseUtterance synthesizes once per record and replays the same audio
	// on retries, instead of synthesizing on every attempt.
	ReuseUtterance bool
}

// Orchestrator is the batch control loop. It is not safe for concurrent use.
type Orchestrator struct {
	c      Components
	config Config
	logger *slog.Logger

	state  session.State
	drift  int // consecutive ElementNotFound failures
	warned bool
}

// New creates an orchestrator.
func New(c Components, config Config, logger *slog.Logger) *Orchestrator {
	if config.Retry.MaxAttempts <= 0 {
		config.Retry.MaxAttempts = fault.DefaultRetryConfig.MaxAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		c:      c,
		config: config,
		logger: logger.With(slog.String("component", "orchestrator")),
		state:  session.Unverified,
	}
}

// State returns the last known session state.
func (o *Orchestrator) State() session.State {
	return o.state
}

// Run processes every record from src in order and writes exactly one
// result per record to w. It stops early only on cancellation, a write
// failure or an expired session; records not yet processed then get no
// result.
func (o *Orchestrator) Run(ctx context.Context, src Source, w Writer) (summary Summary, err error) {
	summary.RunID = uuid.NewString()
	logger := o.logger.With(slog.String("run_id", summary.RunID))
	start := time.Now()
	defer func() { summary.Elapsed = time.Since(start) }()

	total := -1
	if l, ok := src.(interface{ Len() int }); ok {
		total = l.Len()
	}
	logger.Info("Batch started", slog.Int("total", total), slog.Int("max_attempts", o.config.Retry.MaxAttempts))

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("read prompt: %w", err)
		}

		warnedBefore := o.warned
		res, err := o.process(ctx, logger, rec)
		if err != nil {
			logger.Error("Batch aborted",
				slog.String("id", rec.ID),
				slog.Int("processed", summary.Processed),
				slog.String("error", err.Error()))
			return summary, err
		}
		if o.warned && !warnedBefore {
			summary.DriftWarnings++
		}

		if err := w.Write(res); err != nil {
			return summary, fmt.Errorf("write result %s: %w", res.ID, err)
		}

		summary.Processed++
		summary.Attempts += res.Attempts
		if res.Typed {
			summary.Typed++
		}
		if res.Status == StatusOK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}

		attrs := []any{
			slog.String("id", res.ID),
			slog.String("status", string(res.Status)),
			slog.Int("attempts", res.Attempts),
			slog.Int("index", summary.Processed),
		}
		if res.Typed {
			attrs = append(attrs, slog.Bool("typed", true))
		}
		if total >= 0 {
			attrs = append(attrs, slog.Int("total", total), slog.Int("remaining", total-summary.Processed))
		}
		logger.Info("Record complete", attrs...)
	}

	logger.Info("Batch finished",
		slog.Int("processed", summary.Processed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("typed", summary.Typed),
		slog.Duration("elapsed", time.Since(start)))
	return summary, nil
}

// Process runs the cycle for a single record. The error is non-nil only
// when the batch must stop: cancellation or an expired session.
func (o *Orchestrator) Process(ctx context.Context, rec PromptRecord) (ResultRecord, error) {
	return o.process(ctx, o.logger, rec)
}

func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, rec PromptRecord) (ResultRecord, error) {
	logger = logger.With(slog.String("id", rec.ID))

	if strings.TrimSpace(rec.Text) == "" {
		err := fault.New(fault.InvalidInput, "orchestrator.process", tts.ErrEmptyText)
		logger.Warn("Skipping invalid prompt", slog.String("error", err.Error()))
		return failed(rec, 0, err), nil
	}

	var master *tts.Utterance
	if o.config.ReuseUtterance {
		defer func() {
			if master != nil {
				master.Release()
			}
		}()
	}

	var lastErr error
	for attempt := 1; attempt <= o.config.Retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := o.config.Retry.Delay(attempt)
			if errors.Is(lastErr, fault.ErrRateLimited) {
				delay = max(delay, o.rateLimitBackoff())
			}
			logger.Info("Retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("cause", string(fault.KindOf(lastErr))))
			if err := sleep(ctx, delay); err != nil {
				return ResultRecord{}, err
			}
		}
		if err := ctx.Err(); err != nil {
			return ResultRecord{}, err
		}

		reply, typed, err := o.attempt(ctx, logger, rec, &master)
		if err == nil {
			o.drift = 0
			o.warned = false
			return ResultRecord{
				ID:       rec.ID,
				Prompt:   rec.Text,
				Reply:    o.truncate(reply),
				Status:   StatusOK,
				Attempts: attempt,
				Typed:    typed,
			}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ResultRecord{}, ctxErr
		}
		if errors.Is(err, fault.ErrSessionExpired) {
			return ResultRecord{}, err
		}

		o.trackDrift(logger, err)
		lastErr = err
		logger.Warn("Attempt failed",
			slog.Int("attempt", attempt),
			slog.String("kind", string(fault.KindOf(err))),
			slog.String("error", err.Error()))

		if fault.IsFatal(err) {
			return failed(rec, attempt, err), nil
		}
	}

	return failed(rec, o.config.Retry.MaxAttempts, lastErr), nil
}

// attempt runs one full cycle and returns the reply text and whether the
// prompt had to be typed.
func (o *Orchestrator) attempt(ctx context.Context, logger *slog.Logger, rec PromptRecord, master **tts.Utterance) (string, bool, error) {
	state, err := o.c.Cycler.ResetAndVerify(ctx, o.state)
	o.state = state
	if err != nil {
		return "", false, err
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		o.c.Cycler.Release(rctx)
	}()

	typed := false
	if err := o.speak(ctx, rec, master); err != nil {
		if o.c.Text == nil || ctx.Err() != nil || !voiceFailure(err) {
			return "", false, err
		}
		logger.Warn("Speaking failed, typing prompt instead", slog.String("error", err.Error()))
		if terr := o.c.Text.SendText(ctx, rec.Text); terr != nil {
			return "", false, fmt.Errorf("%w; text fallback: %w", err, terr)
		}
		typed = true
	}

	if _, err := o.c.Watcher.Wait(ctx); err != nil {
		return "", typed, err
	}

	reply, err := o.c.Replies.LastReplyText(ctx)
	return reply, typed, err
}

// speak synthesizes the prompt and plays it into the assistant.
func (o *Orchestrator) speak(ctx context.Context, rec PromptRecord, master **tts.Utterance) error {
	utt, err := o.utterance(ctx, rec, master)
	if err != nil {
		return err
	}
	_, err = o.c.Player.Play(ctx, utt)
	return err
}

// voiceFailure reports whether err came from the audio path, after which
// the prompt can still be typed.
func voiceFailure(err error) bool {
	return errors.Is(err, fault.ErrSynthesisFailure) ||
		errors.Is(err, fault.ErrSynthesisRejected) ||
		errors.Is(err, fault.ErrPlayback)
}

// utterance synthesizes the prompt, or clones the record's first synthesis
// when utterances are reused.
func (o *Orchestrator) utterance(ctx context.Context, rec PromptRecord, master **tts.Utterance) (*tts.Utterance, error) {
	if !o.config.ReuseUtterance {
		return o.c.Synthesizer.Synthesize(ctx, rec.Text)
	}
	if *master == nil {
		utt, err := o.c.Synthesizer.Synthesize(ctx, rec.Text)
		if err != nil {
			return nil, err
		}
		*master = utt
	}
	clone, err := (*master).Clone()
	if err != nil {
		return nil, fault.New(fault.SynthesisFailure, "orchestrator.reuse", err)
	}
	return clone, nil
}

func (o *Orchestrator) trackDrift(logger *slog.Logger, err error) {
	if !errors.Is(err, fault.ErrElementNotFound) {
		o.drift = 0
		return
	}
	o.drift++
	if o.config.DriftThreshold > 0 && o.drift >= o.config.DriftThreshold && !o.warned {
		o.warned = true
		logger.Warn("Possible UI drift: identifiers repeatedly not found; run 'grokeval discover'",
			slog.Int("consecutive", o.drift),
			slog.String("identifier", fault.IdentifierOf(err)))
	}
}

func (o *Orchestrator) rateLimitBackoff() time.Duration {
	if o.config.RateLimitBackoff > 0 {
		return o.config.RateLimitBackoff
	}
	return DefaultRateLimitBackoff
}

func (o *Orchestrator) truncate(reply string) string {
	if o.config.MaxReplyChars <= 0 {
		return reply
	}
	r := []rune(reply)
	if len(r) <= o.config.MaxReplyChars {
		return reply
	}
	o.logger.Debug("Reply truncated", slog.Int("chars", len(r)), slog.Int("max", o.config.MaxReplyChars))
	return string(r[:o.config.MaxReplyChars])
}

func failed(rec PromptRecord, attempts int, err error) ResultRecord {
	return ResultRecord{
		ID:       rec.ID,
		Prompt:   rec.Text,
		Reply:    fault.Marker(err),
		Status:   StatusFailed,
		Attempts: attempts,
		Err:      err,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
