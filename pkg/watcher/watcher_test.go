package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/pkg/fault"
)

// scriptedProbe replays responding values, repeating the last one.
type scriptedProbe struct {
	mu         sync.Mutex
	responding []bool
	errs       []error
	alert      string
	calls      int
}

func (p *scriptedProbe) IsResponding(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return false, p.errs[i]
	}
	if len(p.responding) == 0 {
		return false, nil
	}
	if i >= len(p.responding) {
		i = len(p.responding) - 1
	}
	return p.responding[i], nil
}

func (p *scriptedProbe) AlertText(ctx context.Context) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alert, p.alert != "", nil
}

func fastConfig() Config {
	return Config{
		ResponseTimeout: 200 * time.Millisecond,
		PollInterval:    2 * time.Millisecond,
	}
}

func TestWaitSeesStartThenFinish(t *testing.T) {
	is := is.New(t)
	var transitions []State
	cfg := fastConfig()
	cfg.OnTransition = func(from, to State) { transitions = append(transitions, to) }

	probe := &scriptedProbe{responding: []bool{false, true, true, false}}
	win, err := New(probe, cfg, nil).Wait(context.Background())
	is.NoErr(err)
	is.True(win.Started)
	is.True(win.Finished)
	is.Equal(win.State, Done)
	is.Equal(win.Polls, 4)
	is.Equal(transitions, []State{AwaitingStart, AwaitingFinish, Done})
}

func TestWaitRequiresRespondingEdge(t *testing.T) {
	is := is.New(t)
	cfg := fastConfig()
	cfg.ResponseTimeout = 30 * time.Millisecond

	// Idle UI: never shows the indicator, so it must not count as done.
	win, err := New(&scriptedProbe{}, cfg, nil).Wait(context.Background())
	is.True(errors.Is(err, fault.ErrTimedOut))
	is.True(fault.IsRecoverable(err))
	is.True(!win.Started)
	is.Equal(win.State, TimedOut)
	is.True(win.Elapsed >= 30*time.Millisecond)
}

func TestWaitTimesOutWhileResponding(t *testing.T) {
	is := is.New(t)
	cfg := fastConfig()
	cfg.ResponseTimeout = 30 * time.Millisecond

	win, err := New(&scriptedProbe{responding: []bool{true}}, cfg, nil).Wait(context.Background())
	is.True(errors.Is(err, fault.ErrTimedOut))
	is.True(win.Started)
	is.True(!win.Finished)
	is.Equal(win.State, TimedOut)
}

func TestWaitClassifiesAlerts(t *testing.T) {
	tests := []struct {
		alert string
		want  error
	}{
		{"Too many requests. Try again later.", fault.ErrRateLimited},
		{"You have hit the rate limit", fault.ErrRateLimited},
		{"Something went wrong", fault.ErrUIAlert},
	}

	for _, tt := range tests {
		t.Run(tt.alert, func(t *testing.T) {
			is := is.New(t)
			cfg := fastConfig()
			cfg.CheckAlerts = true

			_, err := New(&scriptedProbe{alert: tt.alert}, cfg, nil).Wait(context.Background())
			is.True(errors.Is(err, tt.want))
			is.True(fault.IsRecoverable(err))
		})
	}
}

func TestWaitIgnoresAlertsWhenDisabled(t *testing.T) {
	is := is.New(t)
	probe := &scriptedProbe{responding: []bool{true, false}, alert: "Something went wrong"}
	_, err := New(probe, fastConfig(), nil).Wait(context.Background())
	is.NoErr(err)
}

func TestWaitToleratesTransientQueryErrors(t *testing.T) {
	is := is.New(t)
	flaky := fault.NotFound("probe.responding", "#stop", errors.New("timeout"))

	probe := &scriptedProbe{
		errs:       []error{flaky, flaky, nil, nil},
		responding: []bool{false, false, true, false},
	}
	win, err := New(probe, fastConfig(), nil).Wait(context.Background())
	is.NoErr(err)
	is.Equal(win.State, Done)

	probe = &scriptedProbe{errs: []error{flaky, flaky, flaky}}
	_, err = New(probe, fastConfig(), nil).Wait(context.Background())
	is.True(errors.Is(err, fault.ErrElementNotFound))
}

func TestWaitCancellation(t *testing.T) {
	is := is.New(t)
	cfg := fastConfig()
	cfg.ResponseTimeout = 10 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(&scriptedProbe{responding: []bool{true}}, cfg, nil).Wait(ctx)
	is.True(errors.Is(err, context.DeadlineExceeded))
	is.True(!errors.Is(err, fault.ErrTimedOut))
	is.True(time.Since(start) < 5*time.Second)
}

func TestStateString(t *testing.T) {
	is := is.New(t)
	is.Equal(AwaitingFinish.String(), "awaiting_finish")
	is.Equal(State(42).String(), "state(42)")
}
