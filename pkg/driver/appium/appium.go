// Package appium drives the assistant's mobile app in an emulator through
// an Appium server speaking the W3C WebDriver protocol.
package appium

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/driver"
)

// DefaultServerURL is where Appium listens by default.
const DefaultServerURL = "http://127.0.0.1:4723"

const (
	// requestTimeout bounds every WebDriver command, including session
	// creation, which can take a while on a cold emulator.
	requestTimeout = 2 * time.Minute
	closeTimeout   = 10 * time.Second

	codeInvalidSession = "invalid session id"
)

// elementKey is the W3C web element reference key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// enterKey is the WebDriver code point for the Enter key.
const enterKey = "\uE007"

// strategies are the locator strategies accepted in "strategy=value"
// identifiers.
var strategies = map[string]bool{
	"id":                   true,
	"accessibility id":     true,
	"xpath":                true,
	"class name":           true,
	"-android uiautomator": true,
}

// Config configures the emulator driver.
type Config struct {
	ServerURL string
	// SessionID attaches to an existing session instead of creating one.
	SessionID string
	// Capabilities are sent as alwaysMatch when creating a session.
	Capabilities map[string]any
}

// Driver implements driver.Driver over WebDriver HTTP.
type Driver struct {
	config    Config
	client    *http.Client
	logger    *slog.Logger
	sessionID string
	owned     bool // session was created by this driver
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Typer  = (*Driver)(nil)
)

// New creates an emulator driver. The session is created on first use.
func New(config Config, logger *slog.Logger) *Driver {
	if config.ServerURL == "" {
		config.ServerURL = DefaultServerURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		config:    config,
		client:    &http.Client{Timeout: requestTimeout},
		logger:    logger.With(slog.String("component", "driver.appium")),
		sessionID: config.SessionID,
	}
}

// webDriverError is the W3C error payload.
type webDriverError struct {
	Status  int
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *webDriverError) Error() string {
	return fmt.Sprintf("webdriver %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *webDriverError) Is(target error) bool {
	return target == driver.ErrNotFound && (e.Code == "no such element" || e.Code == "stale element reference")
}

// do sends a WebDriver command and decodes the "value" member into v.
func (d *Driver) do(ctx context.Context, method, path string, body, v any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(d.config.ServerURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if resp.StatusCode >= 400 {
		wdErr := &webDriverError{Status: resp.StatusCode}
		if json.NewDecoder(resp.Body).Decode(&envelope) != nil ||
			json.Unmarshal(envelope.Value, wdErr) != nil || wdErr.Code == "" {
			wdErr.Code = "unknown error"
			wdErr.Message = resp.Status
		}
		if wdErr.Code == codeInvalidSession && d.owned {
			d.logger.Warn("Emulator session expired", slog.String("session_id", d.sessionID))
			d.sessionID = ""
			d.owned = false
		}
		return wdErr
	}

	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	if v == nil {
		return nil
	}
	return json.Unmarshal(envelope.Value, v)
}

// Connect creates the WebDriver session if there is none.
func (d *Driver) Connect(ctx context.Context) error {
	if d.sessionID != "" {
		return nil
	}

	var session struct {
		SessionID string `json:"sessionId"`
	}
	body := map[string]any{
		"capabilities": map[string]any{"alwaysMatch": d.config.Capabilities},
	}
	if err := d.do(ctx, http.MethodPost, "/session", body, &session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if session.SessionID == "" {
		return errors.New("create session: no session id returned")
	}

	d.sessionID = session.SessionID
	d.owned = true
	d.logger.Info("Emulator session created", slog.String("session_id", d.sessionID))
	return nil
}

// locator splits an identifier into a WebDriver strategy and value.
// Bare identifiers are XPath when they look like one and accessibility
// ids otherwise.
func locator(id driver.Identifier) (using, value string) {
	s := string(id)
	if i := strings.IndexByte(s, '='); i > 0 && strategies[s[:i]] {
		return s[:i], s[i+1:]
	}
	if strings.HasPrefix(s, "/") || strings.HasPrefix(s, "(") {
		return "xpath", s
	}
	return "accessibility id", s
}

// find returns the element references matching id, in document order.
func (d *Driver) find(ctx context.Context, id driver.Identifier) ([]string, error) {
	if err := d.Connect(ctx); err != nil {
		return nil, err
	}

	using, value := locator(id)
	loc := map[string]string{"using": using, "value": value}
	var refs []map[string]string
	err := d.do(ctx, http.MethodPost, d.sessionPath("/elements"), loc, &refs)
	if err != nil && d.sessionID == "" {
		// The owned session expired; look again in a new one.
		if err := d.Connect(ctx); err != nil {
			return nil, err
		}
		err = d.do(ctx, http.MethodPost, d.sessionPath("/elements"), loc, &refs)
	}
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if eid := ref[elementKey]; eid != "" {
			ids = append(ids, eid)
		}
	}
	return ids, nil
}

func (d *Driver) sessionPath(suffix string) string {
	return "/session/" + d.sessionID + suffix
}

func (d *Driver) displayed(ctx context.Context, eid string) (bool, error) {
	var shown bool
	err := d.do(ctx, http.MethodGet, d.sessionPath("/element/"+eid+"/displayed"), nil, &shown)
	return shown, err
}

// Click taps the first displayed element matching id.
func (d *Driver) Click(ctx context.Context, id driver.Identifier) error {
	ids, err := d.find(ctx, id)
	if err != nil {
		return fmt.Errorf("click %s: %w", id, err)
	}

	for _, eid := range ids {
		shown, err := d.displayed(ctx, eid)
		if err != nil || !shown {
			continue
		}
		if err := d.do(ctx, http.MethodPost, d.sessionPath("/element/"+eid+"/click"), map[string]any{}, nil); err != nil {
			return fmt.Errorf("click %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("click %s: %w", id, driver.ErrNotFound)
}

// QueryText returns the text of the last element matching id.
func (d *Driver) QueryText(ctx context.Context, id driver.Identifier) (string, error) {
	ids, err := d.find(ctx, id)
	if err != nil {
		return "", fmt.Errorf("query text %s: %w", id, err)
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("query text %s: %w", id, driver.ErrNotFound)
	}

	var text string
	if err := d.do(ctx, http.MethodGet, d.sessionPath("/element/"+ids[len(ids)-1]+"/text"), nil, &text); err != nil {
		return "", fmt.Errorf("query text %s: %w", id, err)
	}
	return text, nil
}

// QueryPresent reports whether a displayed element matches id.
func (d *Driver) QueryPresent(ctx context.Context, id driver.Identifier) (bool, error) {
	ids, err := d.find(ctx, id)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", id, err)
	}

	for _, eid := range ids {
		shown, err := d.displayed(ctx, eid)
		if errors.Is(err, driver.ErrNotFound) {
			continue // went stale between find and displayed
		}
		if err != nil {
			return false, fmt.Errorf("query %s: %w", id, err)
		}
		if shown {
			return true, nil
		}
	}
	return false, nil
}

// Type sends text followed by Enter to the first displayed element
// matching id.
func (d *Driver) Type(ctx context.Context, id driver.Identifier, text string) error {
	ids, err := d.find(ctx, id)
	if err != nil {
		return fmt.Errorf("type %s: %w", id, err)
	}

	for _, eid := range ids {
		shown, err := d.displayed(ctx, eid)
		if err != nil || !shown {
			continue
		}
		body := map[string]any{"text": text + enterKey}
		if err := d.do(ctx, http.MethodPost, d.sessionPath("/element/"+eid+"/value"), body, nil); err != nil {
			return fmt.Errorf("type %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("type %s: %w", id, driver.ErrNotFound)
}

// Close deletes the session if this driver created it.
func (d *Driver) Close() error {
	if d.sessionID == "" || !d.owned {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := d.do(ctx, http.MethodDelete, d.sessionPath(""), nil, nil)
	d.logger.Info("Emulator session closed", slog.String("session_id", d.sessionID))
	d.sessionID = ""
	d.owned = false
	return err
}
