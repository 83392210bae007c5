// Package cdp drives the assistant's web UI in a desktop browser through
// the Chrome DevTools Protocol. The browser must be started with
// --remote-debugging-port and an already logged-in profile.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/driver"
)

// DefaultDebugURL is the browser's remote debugging endpoint.
const DefaultDebugURL = "http://localhost:9222"

// loadPollInterval spaces document.readyState checks after navigation.
const loadPollInterval = 100 * time.Millisecond

// Config configures the browser driver.
type Config struct {
	// DebugURL is the HTTP endpoint of the remote debugging port.
	DebugURL string
	// PageURL selects the tab whose URL contains it, and is opened in a
	// new tab when no such tab exists.
	PageURL string
}

// Driver implements driver.Driver over a DevTools WebSocket. It connects
// lazily and redials after any transport failure.
type Driver struct {
	config Config
	client *http.Client
	logger *slog.Logger
	conn   *conn
}

var (
	_ driver.Driver    = (*Driver)(nil)
	_ driver.Navigator = (*Driver)(nil)
	_ driver.Typer     = (*Driver)(nil)
)

// New creates a browser driver. No connection is made until the first call.
func New(config Config, logger *slog.Logger) *Driver {
	if config.DebugURL == "" {
		config.DebugURL = DefaultDebugURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		config: config,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With(slog.String("component", "driver.cdp")),
	}
}

// target is one entry of the /json/list endpoint.
type target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Connect attaches to the assistant's tab.
func (d *Driver) Connect(ctx context.Context) error {
	if d.conn != nil {
		return nil
	}

	t, err := d.findTarget(ctx)
	if err != nil {
		return err
	}
	d.logger.Info("Attaching to tab", slog.String("title", t.Title), slog.String("url", t.URL))

	c, err := dial(ctx, t.WebSocketDebuggerURL, d.logger)
	if err != nil {
		return err
	}
	d.conn = c
	return nil
}

func (d *Driver) findTarget(ctx context.Context) (*target, error) {
	var targets []target
	if err := d.getJSON(ctx, http.MethodGet, "/json/list", &targets); err != nil {
		return nil, fmt.Errorf("list browser tabs (is the browser running with --remote-debugging-port?): %w", err)
	}

	for i := range targets {
		t := &targets[i]
		if t.Type == "page" && t.WebSocketDebuggerURL != "" && strings.Contains(t.URL, d.config.PageURL) {
			return t, nil
		}
	}

	if d.config.PageURL == "" {
		return nil, errors.New("no browser tab to attach to")
	}

	d.logger.Info("Opening new tab", slog.String("url", d.config.PageURL))
	var t target
	if err := d.getJSON(ctx, http.MethodPut, "/json/new?"+url.QueryEscape(d.config.PageURL), &t); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &t, nil
}

func (d *Driver) getJSON(ctx context.Context, method, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(d.config.DebugURL, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// call sends one command on the connection, dropping it after a transport
// failure so the next call redials.
func (d *Driver) call(ctx context.Context, method string, params, result any) error {
	if err := d.Connect(ctx); err != nil {
		return err
	}
	err := d.conn.call(ctx, method, params, result)
	if err != nil {
		var rpcErr *rpcError
		if !errors.As(err, &rpcErr) {
			d.conn.close()
			d.conn = nil
		}
	}
	return err
}

// evaluate runs a JavaScript expression in the page and decodes its value.
func (d *Driver) evaluate(ctx context.Context, expression string, v any) error {
	var result struct {
		Result struct {
			Type  string          `json:"type"`
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}

	err := d.call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
	}, &result)
	if err != nil {
		return err
	}

	if ex := result.ExceptionDetails; ex != nil {
		msg := ex.Exception.Description
		if msg == "" {
			msg = ex.Text
		}
		return fmt.Errorf("page script failed: %s", msg)
	}
	if len(result.Result.Value) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(result.Result.Value, v)
}

// selector renders id as a JavaScript string literal.
func selector(id driver.Identifier) string {
	b, _ := json.Marshal(string(id))
	return string(b)
}

const visibleFn = `const visible = (el) => el.getClientRects().length > 0;`

// Click clicks the first visible element matching the CSS selector id.
func (d *Driver) Click(ctx context.Context, id driver.Identifier) error {
	expr := fmt.Sprintf(`(() => {
		%s
		const els = Array.from(document.querySelectorAll(%s));
		const el = els.find(visible) || els[0];
		if (!el) return false;
		el.click();
		return true;
	})()`, visibleFn, selector(id))

	var clicked bool
	if err := d.evaluate(ctx, expr, &clicked); err != nil {
		return fmt.Errorf("click %s: %w", id, err)
	}
	if !clicked {
		return fmt.Errorf("click %s: %w", id, driver.ErrNotFound)
	}
	return nil
}

// QueryText returns the rendered text of the last element matching id.
func (d *Driver) QueryText(ctx context.Context, id driver.Identifier) (string, error) {
	expr := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%s);
		if (els.length === 0) return null;
		const el = els[els.length - 1];
		return el.innerText ?? el.textContent ?? "";
	})()`, selector(id))

	var text *string
	if err := d.evaluate(ctx, expr, &text); err != nil {
		return "", fmt.Errorf("query text %s: %w", id, err)
	}
	if text == nil {
		return "", fmt.Errorf("query text %s: %w", id, driver.ErrNotFound)
	}
	return *text, nil
}

// QueryPresent reports whether a visible element matches id.
func (d *Driver) QueryPresent(ctx context.Context, id driver.Identifier) (bool, error) {
	expr := fmt.Sprintf(`(() => {
		%s
		return Array.from(document.querySelectorAll(%s)).some(visible);
	})()`, visibleFn, selector(id))

	var present bool
	if err := d.evaluate(ctx, expr, &present); err != nil {
		return false, fmt.Errorf("query %s: %w", id, err)
	}
	return present, nil
}

// Navigate loads pageURL in the attached tab and waits until the document
// has finished loading.
func (d *Driver) Navigate(ctx context.Context, pageURL string) error {
	var result struct {
		ErrorText string `json:"errorText"`
	}
	if err := d.call(ctx, "Page.navigate", map[string]any{"url": pageURL}, &result); err != nil {
		return fmt.Errorf("navigate %s: %w", pageURL, err)
	}
	if result.ErrorText != "" {
		return fmt.Errorf("navigate %s: %s", pageURL, result.ErrorText)
	}

	ticker := time.NewTicker(loadPollInterval)
	defer ticker.Stop()
	for {
		// The execution context is replaced while the page loads, so
		// evaluation errors are expected until it settles.
		var state string
		if err := d.evaluate(ctx, "document.readyState", &state); err == nil && state == "complete" {
			d.logger.Debug("Page loaded", slog.String("url", pageURL))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("navigate %s: %w", pageURL, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Type focuses the first visible element matching id, inserts text and
// presses Enter.
func (d *Driver) Type(ctx context.Context, id driver.Identifier, text string) error {
	expr := fmt.Sprintf(`(() => {
		%s
		const els = Array.from(document.querySelectorAll(%s));
		const el = els.find(visible) || els[0];
		if (!el) return false;
		el.focus();
		return true;
	})()`, visibleFn, selector(id))

	var focused bool
	if err := d.evaluate(ctx, expr, &focused); err != nil {
		return fmt.Errorf("type %s: %w", id, err)
	}
	if !focused {
		return fmt.Errorf("type %s: %w", id, driver.ErrNotFound)
	}

	if err := d.call(ctx, "Input.insertText", map[string]any{"text": text}, nil); err != nil {
		return fmt.Errorf("type %s: %w", id, err)
	}
	enter := map[string]any{"type": "keyDown", "key": "Enter", "code": "Enter", "windowsVirtualKeyCode": 13, "text": "\r"}
	if err := d.call(ctx, "Input.dispatchKeyEvent", enter, nil); err != nil {
		return fmt.Errorf("type %s: %w", id, err)
	}
	up := map[string]any{"type": "keyUp", "key": "Enter", "code": "Enter", "windowsVirtualKeyCode": 13}
	if err := d.call(ctx, "Input.dispatchKeyEvent", up, nil); err != nil {
		return fmt.Errorf("type %s: %w", id, err)
	}
	return nil
}

// Close detaches from the tab. The browser keeps running.
func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}
	err := d.conn.close()
	d.conn = nil
	return err
}
