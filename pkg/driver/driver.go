// Package driver defines the UI automation capability the probe and the
// session cycler are written against. Elements are addressed by stable
// identifiers, never by screen coordinates.
package driver

import (
	"context"
	"errors"
)

// Host names the environment the assistant runs in.
type Host string

const (
	// HostBrowser is a desktop browser reached over the DevTools protocol.
	HostBrowser Host = "browser"
	// HostEmulator is a mobile emulator reached over WebDriver/Appium.
	HostEmulator Host = "emulator"
)

// Identifier addresses a UI element: a CSS selector on the browser host,
// a "strategy=value" locator on the emulator host.
type Identifier string

// ErrNotFound is returned when an identifier matches no element.
var ErrNotFound = errors.New("element not found")

// Driver is the UI automation capability.
type Driver interface {
	// Click activates the first visible element matching id.
	Click(ctx context.Context, id Identifier) error

	// QueryText returns the text of the last element matching id, or
	// ErrNotFound.
	QueryText(ctx context.Context, id Identifier) (string, error)

	// QueryPresent reports whether a visible element matches id.
	QueryPresent(ctx context.Context, id Identifier) (bool, error)

	// Close releases the automation session.
	Close() error
}

// Navigator is implemented by drivers that can load a page directly.
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// Typer is implemented by drivers that can enter text into an input
// element. The text is submitted as if Enter was pressed after it.
type Typer interface {
	Type(ctx context.Context, id Identifier, text string) error
}
