// Package session resets the assistant to a fresh conversation and checks
// that the persistent login is still valid. It never logs in.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/fault"
)

// ErrLoggedOut is the cause of SessionExpired failures.
var ErrLoggedOut = errors.New("login indicator not visible; log in manually and restart")

// State is the orchestrator's knowledge of the login session.
type State int

const (
	Unverified State = iota
	Active
	Expired
)

func (s State) String() string {
	switch s {
	case Unverified:
		return "unverified"
	case Active:
		return "active"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Probe is the subset of the UI probe the cycler needs.
type Probe interface {
	IsLoggedIn(ctx context.Context) (bool, error)
}

// Config configures the cycler.
type Config struct {
	NewChat driver.Identifier
	// VoiceMode, when set, is clicked after every reset.
	VoiceMode driver.Identifier
	// ExitVoiceMode, when set, is clicked by Release.
	ExitVoiceMode driver.Identifier
	// ClickTimeout bounds each click.
	ClickTimeout time.Duration
	// ResetWait is waited after clicking new chat, for the UI to settle.
	ResetWait time.Duration
	// PageURL, when set and the driver can navigate, is loaded to start a
	// new conversation if the new-chat control cannot be clicked.
	PageURL string
	// NavigateTimeout bounds the page load of that fallback.
	NavigateTimeout time.Duration
	// TextInput, when set and the driver can type, is where SendText
	// enters prompts.
	TextInput driver.Identifier
}

// Cycler resets the conversation between prompts.
type Cycler struct {
	driver driver.Driver
	probe  Probe
	config Config
	logger *slog.Logger
}

// New creates a session cycler.
func New(d driver.Driver, probe Probe, config Config, logger *slog.Logger) *Cycler {
	if config.ClickTimeout <= 0 {
		config.ClickTimeout = 5 * time.Second
	}
	if config.NavigateTimeout <= 0 {
		config.NavigateTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cycler{
		driver: d,
		probe:  probe,
		config: config,
		logger: logger.With(slog.String("component", "session")),
	}
}

// ResetAndVerify starts a new conversation and verifies the login.
//
// It returns Active on success and Expired with fault.SessionExpired when
// the login indicator is missing. A missing new-chat control on a
// logged-in page is a retryable fault.ElementNotFound with state
// Unverified.
func (c *Cycler) ResetAndVerify(ctx context.Context, prev State) (State, error) {
	const op = "session.reset"

	if prev == Expired {
		return Expired, fault.New(fault.SessionExpired, op, ErrLoggedOut)
	}

	clickErr := c.click(ctx, c.config.NewChat)
	if clickErr != nil && ctx.Err() != nil {
		return Unverified, fmt.Errorf("%s: %w", op, ctx.Err())
	}
	if clickErr != nil && c.navigate(ctx, clickErr) {
		clickErr = nil
	}
	if clickErr == nil {
		if err := sleep(ctx, c.config.ResetWait); err != nil {
			return Unverified, fmt.Errorf("%s: %w", op, err)
		}
	}

	loggedIn, err := c.probe.IsLoggedIn(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Unverified, fmt.Errorf("%s: %w", op, ctx.Err())
		}
		if clickErr != nil {
			return Unverified, fault.NotFound(op, string(c.config.NewChat), clickErr)
		}
		return Unverified, err
	}

	if !loggedIn {
		c.logger.Error("Session expired", slog.String("previous", prev.String()))
		return Expired, fault.New(fault.SessionExpired, op, ErrLoggedOut)
	}

	if clickErr != nil {
		c.logger.Warn("New chat control not found",
			slog.String("identifier", string(c.config.NewChat)),
			slog.String("error", clickErr.Error()))
		return Unverified, fault.NotFound(op, string(c.config.NewChat), clickErr)
	}

	if c.config.VoiceMode != "" {
		if err := c.click(ctx, c.config.VoiceMode); err != nil {
			if ctx.Err() != nil {
				return Unverified, fmt.Errorf("%s: %w", op, ctx.Err())
			}
			return Unverified, fault.NotFound(op, string(c.config.VoiceMode), err)
		}
	}

	if prev != Active {
		c.logger.Info("Session verified", slog.String("previous", prev.String()))
	}
	return Active, nil
}

// navigate loads the configured page after a failed new-chat click and
// reports whether that succeeded.
func (c *Cycler) navigate(ctx context.Context, clickErr error) bool {
	nav, ok := c.driver.(driver.Navigator)
	if !ok || c.config.PageURL == "" {
		return false
	}
	c.logger.Warn("New chat control not clickable, navigating to page",
		slog.String("identifier", string(c.config.NewChat)),
		slog.String("url", c.config.PageURL),
		slog.String("error", clickErr.Error()))

	nctx, cancel := context.WithTimeout(ctx, c.config.NavigateTimeout)
	defer cancel()
	if err := nav.Navigate(nctx, c.config.PageURL); err != nil {
		c.logger.Warn("Navigation failed", slog.String("error", err.Error()))
		return false
	}
	return true
}

// CanSendText reports whether SendText is configured and supported by the
// driver.
func (c *Cycler) CanSendText() bool {
	_, ok := c.driver.(driver.Typer)
	return ok && c.config.TextInput != ""
}

// SendText types the prompt into the text input and submits it. It is the
// fallback when the prompt cannot be spoken.
func (c *Cycler) SendText(ctx context.Context, text string) error {
	const op = "session.send_text"

	typer, ok := c.driver.(driver.Typer)
	if !ok || c.config.TextInput == "" {
		return fault.New(fault.InvalidInput, op, errors.New("text input not configured"))
	}

	tctx, cancel := context.WithTimeout(ctx, c.config.ClickTimeout)
	defer cancel()
	if err := typer.Type(tctx, c.config.TextInput, text); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return fault.NotFound(op, string(c.config.TextInput), err)
	}
	return nil
}

// Release leaves voice mode. Failures are logged, not returned.
func (c *Cycler) Release(ctx context.Context) {
	if c.config.ExitVoiceMode == "" {
		return
	}
	if err := c.click(ctx, c.config.ExitVoiceMode); err != nil && !errors.Is(err, driver.ErrNotFound) {
		c.logger.Debug("Exit voice mode failed", slog.String("error", err.Error()))
	}
}

func (c *Cycler) click(ctx context.Context, id driver.Identifier) error {
	cctx, cancel := context.WithTimeout(ctx, c.config.ClickTimeout)
	defer cancel()
	return c.driver.Click(cctx, id)
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
