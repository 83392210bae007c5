// Package fake provides a scriptable automation driver for tests.
package fake

import (
	"context"
	"sync"

	"github.com/nine15pm/GrokEval/pkg/driver"
)

// FakeDriver answers queries from maps or hooks. Hooks take precedence.
type FakeDriver struct {
	// Present and Text are consulted when the matching hook is nil.
	Present map[driver.Identifier]bool
	Text    map[driver.Identifier]string

	PresentFunc func(ctx context.Context, id driver.Identifier) (bool, error)
	TextFunc    func(ctx context.Context, id driver.Identifier) (string, error)
	ClickFunc   func(ctx context.Context, id driver.Identifier) error
	// NavigateFunc and TypeFunc, when set, replace the default recording.
	NavigateFunc func(ctx context.Context, url string) error
	TypeFunc     func(ctx context.Context, id driver.Identifier, text string) error

	mu      sync.Mutex
	clicks  []driver.Identifier
	visited []string
	typed   []string
	closed  bool
}

var (
	_ driver.Driver    = (*FakeDriver)(nil)
	_ driver.Navigator = (*FakeDriver)(nil)
	_ driver.Typer     = (*FakeDriver)(nil)
)

// NewFakeDriver creates a driver with empty element tables.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		Present: make(map[driver.Identifier]bool),
		Text:    make(map[driver.Identifier]string),
	}
}

// Click records the click. Without ClickFunc, clicking an absent element
// returns driver.ErrNotFound.
func (d *FakeDriver) Click(ctx context.Context, id driver.Identifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ClickFunc != nil {
		if err := d.ClickFunc(ctx, id); err != nil {
			return err
		}
	} else {
		d.mu.Lock()
		present := d.Present[id]
		d.mu.Unlock()
		if !present {
			return driver.ErrNotFound
		}
	}

	d.mu.Lock()
	d.clicks = append(d.clicks, id)
	d.mu.Unlock()
	return nil
}

// QueryText returns the scripted text or driver.ErrNotFound.
func (d *FakeDriver) QueryText(ctx context.Context, id driver.Identifier) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if d.TextFunc != nil {
		return d.TextFunc(ctx, id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	text, ok := d.Text[id]
	if !ok {
		return "", driver.ErrNotFound
	}
	return text, nil
}

// QueryPresent returns the scripted presence.
func (d *FakeDriver) QueryPresent(ctx context.Context, id driver.Identifier) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if d.PresentFunc != nil {
		return d.PresentFunc(ctx, id)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Present[id], nil
}

// SetPresent updates the presence table.
func (d *FakeDriver) SetPresent(id driver.Identifier, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Present[id] = present
}

// SetText updates the text table.
func (d *FakeDriver) SetText(id driver.Identifier, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Text[id] = text
}

// Clicks returns the identifiers clicked so far.
func (d *FakeDriver) Clicks() []driver.Identifier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]driver.Identifier(nil), d.clicks...)
}

// Navigate records the visit.
func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.NavigateFunc != nil {
		if err := d.NavigateFunc(ctx, url); err != nil {
			return err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visited = append(d.visited, url)
	return nil
}

// Visited returns the URLs navigated to so far.
func (d *FakeDriver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

// Type records the text. Without TypeFunc, typing into an absent element
// returns driver.ErrNotFound.
func (d *FakeDriver) Type(ctx context.Context, id driver.Identifier, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.TypeFunc != nil {
		if err := d.TypeFunc(ctx, id, text); err != nil {
			return err
		}
	} else {
		d.mu.Lock()
		present := d.Present[id]
		d.mu.Unlock()
		if !present {
			return driver.ErrNotFound
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed = append(d.typed, text)
	return nil
}

// Typed returns the texts typed so far.
func (d *FakeDriver) Typed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.typed...)
}

// Close marks the driver closed.
func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Closed reports whether Close was called.
func (d *FakeDriver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
