// Package probe answers single-shot questions about the assistant UI.
// It never waits or polls; every query is bounded by QueryTimeout.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/fault"
)

// DefaultQueryTimeout bounds each UI query.
const DefaultQueryTimeout = 5 * time.Second

// Identifiers maps the UI elements the automation relies on.
type Identifiers struct {
	NewChat    driver.Identifier `yaml:"new_chat"`
	LoggedIn   driver.Identifier `yaml:"logged_in"`
	Responding driver.Identifier `yaml:"responding"`
	Reply      driver.Identifier `yaml:"reply"`
	// Optional.
	VoiceMode     driver.Identifier `yaml:"voice_mode"`
	ExitVoiceMode driver.Identifier `yaml:"exit_voice_mode"`
	Alert         driver.Identifier `yaml:"alert"`
	// TextInput enables typing prompts that could not be spoken.
	TextInput driver.Identifier `yaml:"text_input"`
}

// Named returns the configured identifiers keyed by their config names,
// skipping empty ones.
func (ids Identifiers) Named() map[string]driver.Identifier {
	all := map[string]driver.Identifier{
		"new_chat":        ids.NewChat,
		"logged_in":       ids.LoggedIn,
		"responding":      ids.Responding,
		"reply":           ids.Reply,
		"voice_mode":      ids.VoiceMode,
		"exit_voice_mode": ids.ExitVoiceMode,
		"alert":           ids.Alert,
		"text_input":      ids.TextInput,
	}
	for name, id := range all {
		if id == "" {
			delete(all, name)
		}
	}
	return all
}

// Validate checks that the required identifiers are set.
func (ids Identifiers) Validate() error {
	var missing []string
	for name, id := range map[string]driver.Identifier{
		"new_chat":   ids.NewChat,
		"logged_in":  ids.LoggedIn,
		"responding": ids.Responding,
		"reply":      ids.Reply,
	} {
		if strings.TrimSpace(string(id)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing identifiers: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Config configures the probe.
type Config struct {
	Identifiers  Identifiers
	QueryTimeout time.Duration
	// IgnoreAlerts lists case-insensitive substrings of alert text that
	// are not errors (e.g. product announcements).
	IgnoreAlerts []string
}

// Probe queries the UI through a driver.
type Probe struct {
	driver driver.Driver
	config Config
	logger *slog.Logger
}

// New creates a probe.
func New(d driver.Driver, config Config, logger *slog.Logger) *Probe {
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultQueryTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		driver: d,
		config: config,
		logger: logger.With(slog.String("component", "probe")),
	}
}

// Identifiers returns the identifier table in use.
func (p *Probe) Identifiers() Identifiers {
	return p.config.Identifiers
}

// IsLoggedIn reports whether the logged-in indicator is visible.
func (p *Probe) IsLoggedIn(ctx context.Context) (bool, error) {
	return p.present(ctx, "probe.logged_in", p.config.Identifiers.LoggedIn)
}

// IsResponding reports whether the assistant shows its responding indicator.
func (p *Probe) IsResponding(ctx context.Context) (bool, error) {
	return p.present(ctx, "probe.responding", p.config.Identifiers.Responding)
}

// LastReplyText returns the text of the most recent reply element.
func (p *Probe) LastReplyText(ctx context.Context) (string, error) {
	const op = "probe.reply"
	id := p.config.Identifiers.Reply

	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()

	text, err := p.driver.QueryText(qctx, id)
	if err != nil {
		return "", p.classify(ctx, op, id, err)
	}
	return strings.TrimSpace(text), nil
}

// AlertText returns the text of a visible UI alert. Absence is not an error.
func (p *Probe) AlertText(ctx context.Context) (string, bool, error) {
	const op = "probe.alert"
	id := p.config.Identifiers.Alert
	if id == "" {
		return "", false, nil
	}

	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()

	text, err := p.driver.QueryText(qctx, id)
	if errors.Is(err, driver.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, p.classify(ctx, op, id, err)
	}

	text = strings.TrimSpace(text)
	if text == "" || p.ignored(text) {
		return "", false, nil
	}
	return text, true, nil
}

func (p *Probe) ignored(text string) bool {
	lower := strings.ToLower(text)
	for _, s := range p.config.IgnoreAlerts {
		if s != "" && strings.Contains(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func (p *Probe) present(ctx context.Context, op string, id driver.Identifier) (bool, error) {
	qctx, cancel := context.WithTimeout(ctx, p.config.QueryTimeout)
	defer cancel()

	ok, err := p.driver.QueryPresent(qctx, id)
	if err != nil {
		return false, p.classify(ctx, op, id, err)
	}
	return ok, nil
}

// classify maps driver failures to ElementNotFound, keeping cancellation
// of the caller's context distinct.
func (p *Probe) classify(ctx context.Context, op string, id driver.Identifier, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	p.logger.Debug("UI query failed",
		slog.String("op", op),
		slog.String("identifier", string(id)),
		slog.String("error", err.Error()))
	return fault.NotFound(op, string(id), err)
}
