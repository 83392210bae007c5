// Package watcher decides when the assistant has finished answering by
// polling the UI for the responding indicator.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/fault"
)

// Defaults for Config.
const (
	DefaultResponseTimeout = 60 * time.Second
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultMaxQueryErrors  = 3
)

// DefaultRateLimitPhrases mark an alert as rate limiting.
var DefaultRateLimitPhrases = []string{"rate limit", "too many"}

// State is the watcher's position in one response.
type State int

const (
	Idle State = iota
	AwaitingStart
	AwaitingFinish
	Done
	TimedOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingStart:
		return "awaiting_start"
	case AwaitingFinish:
		return "awaiting_finish"
	case Done:
		return "done"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Probe is the subset of the UI probe the watcher polls.
type Probe interface {
	IsResponding(ctx context.Context) (bool, error)
	AlertText(ctx context.Context) (string, bool, error)
}

// Config configures the watcher.
type Config struct {
	// ResponseTimeout bounds the whole wait, measured from entering
	// AwaitingStart.
	ResponseTimeout time.Duration
	PollInterval    time.Duration
	// CheckAlerts fails the wait as soon as a UI alert is visible.
	CheckAlerts bool
	// RateLimitPhrases classify an alert as RateLimited instead of UIAlert.
	RateLimitPhrases []string
	// MaxQueryErrors is how many consecutive failed polls are tolerated.
	MaxQueryErrors int
	// OnTransition is called on every state change.
	OnTransition func(from, to State)
}

// Window is what one Wait observed.
type Window struct {
	Started  bool
	Finished bool
	Elapsed  time.Duration
	Polls    int
	State    State
}

// Watcher runs the response state machine.
type Watcher struct {
	probe  Probe
	config Config
	logger *slog.Logger
}

// New creates a watcher.
func New(probe Probe, config Config, logger *slog.Logger) *Watcher {
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = DefaultResponseTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.MaxQueryErrors <= 0 {
		config.MaxQueryErrors = DefaultMaxQueryErrors
	}
	if config.RateLimitPhrases == nil {
		config.RateLimitPhrases = DefaultRateLimitPhrases
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		probe:  probe,
		config: config,
		logger: logger.With(slog.String("component", "watcher")),
	}
}

// Wait blocks until the assistant has started and then stopped responding.
// It must be called after playback has finished. A response counts only
// once the responding indicator has been seen; an idle UI is never taken
// as a finished reply.
//
// Returns fault.TimedOut, fault.UIAlert or fault.RateLimited on failure,
// and the context error on cancellation.
func (w *Watcher) Wait(ctx context.Context) (Window, error) {
	const op = "watcher.wait"

	win := Window{State: Idle}
	w.transition(&win, AwaitingStart)
	start := time.Now()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(w.config.ResponseTimeout)
	defer deadline.Stop()

	queryErrors := 0
	for {
		win.Polls++
		err := w.poll(ctx, op, &win)
		win.Elapsed = time.Since(start)

		switch {
		case err == nil:
			queryErrors = 0
		case ctx.Err() != nil:
			return win, fmt.Errorf("%s: %w", op, ctx.Err())
		case fault.KindOf(err) == fault.UIAlert || fault.KindOf(err) == fault.RateLimited:
			return win, err
		default:
			queryErrors++
			w.logger.Warn("Poll failed",
				slog.Int("consecutive", queryErrors),
				slog.String("error", err.Error()))
			if queryErrors >= w.config.MaxQueryErrors {
				return win, err
			}
		}

		if win.State == Done {
			w.logger.Debug("Response finished",
				slog.Duration("elapsed", win.Elapsed),
				slog.Int("polls", win.Polls))
			return win, nil
		}

		select {
		case <-ctx.Done():
			return win, fmt.Errorf("%s: %w", op, ctx.Err())
		case <-deadline.C:
			return win, w.timeout(op, &win, start)
		case <-ticker.C:
			if time.Since(start) >= w.config.ResponseTimeout {
				return win, w.timeout(op, &win, start)
			}
		}
	}
}

func (w *Watcher) poll(ctx context.Context, op string, win *Window) error {
	if w.config.CheckAlerts {
		text, visible, err := w.probe.AlertText(ctx)
		if err != nil {
			return err
		}
		if visible {
			kind := fault.UIAlert
			if w.isRateLimit(text) {
				kind = fault.RateLimited
			}
			w.logger.Warn("UI alert", slog.String("text", text), slog.String("kind", string(kind)))
			return fault.New(kind, op, fmt.Errorf("alert: %s", text))
		}
	}

	responding, err := w.probe.IsResponding(ctx)
	if err != nil {
		return err
	}

	switch {
	case win.State == AwaitingStart && responding:
		win.Started = true
		w.transition(win, AwaitingFinish)
	case win.State == AwaitingFinish && !responding:
		win.Finished = true
		w.transition(win, Done)
	}
	return nil
}

func (w *Watcher) timeout(op string, win *Window, start time.Time) error {
	win.Elapsed = time.Since(start)
	phase := "start"
	if win.Started {
		phase = "finish"
	}
	w.transition(win, TimedOut)
	return fault.New(fault.TimedOut, op,
		fmt.Errorf("response did not %s within %s", phase, w.config.ResponseTimeout))
}

func (w *Watcher) isRateLimit(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range w.config.RateLimitPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

func (w *Watcher) transition(win *Window, to State) {
	from := win.State
	win.State = to
	w.logger.Debug("State transition", slog.String("from", from.String()), slog.String("to", to.String()))
	if w.config.OnTransition != nil {
		w.config.OnTransition(from, to)
	}
}
