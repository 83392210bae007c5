// Package fault defines the error taxonomy shared by the automation
// components and the retry classification the orchestrator applies to it.
//
// Every component below the orchestrator reports failures as *Error values.
// The orchestrator only needs Retryable and KindOf to decide between retrying
// a cycle, skipping a record, and aborting the batch.
package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Classification sentinels. Every *Error unwraps to exactly one of them.
var (
	// ErrRecoverable indicates a failure that may succeed if the cycle is retried.
	// Examples: synthesis backend overload, UI element not rendered yet, response timeout.
	ErrRecoverable = errors.New("recoverable automation error")

	// ErrFatal indicates a failure that will not succeed if retried.
	// Examples: empty prompt text, logged-out browser session.
	ErrFatal = errors.New("fatal automation error")
)

// Kind names a failure category.
type Kind string

const (
	// InvalidInput is bad prompt text. The record is skipped without retries.
	InvalidInput Kind = "invalid_input"
	// SynthesisFailure is a text-to-speech backend error.
	SynthesisFailure Kind = "synthesis_failure"
	// SynthesisRejected means the backend refused the request outright,
	// e.g. bad credentials or an invalid voice. Fatal to the batch.
	SynthesisRejected Kind = "synthesis_rejected"
	// Playback is an audio sink or artifact read error.
	Playback Kind = "playback"
	// ElementNotFound means a stable identifier could not be resolved in time.
	ElementNotFound Kind = "element_not_found"
	// TimedOut means the assistant did not finish responding within the bound.
	TimedOut Kind = "timed_out"
	// UIAlert means the assistant UI displayed an error banner.
	UIAlert Kind = "ui_alert"
	// RateLimited means the assistant UI reported throttling.
	RateLimited Kind = "rate_limited"
	// SessionExpired means the logged-in session is gone. Fatal to the batch.
	SessionExpired Kind = "session_expired"
)

// Retryable reports whether failures of this kind are retried within a cycle.
func (k Kind) Retryable() bool {
	switch k {
	case InvalidInput, SynthesisRejected, SessionExpired:
		return false
	default:
		return true
	}
}

// Error is a classified automation failure.
type Error struct {
	Kind       Kind
	Op         string // component operation, e.g. "probe.last_reply_text"
	Identifier string // UI identifier involved, if any
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Identifier != "" {
		fmt.Fprintf(&b, " [%s]", e.Identifier)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the classification sentinel and the cause.
func (e *Error) Unwrap() []error {
	class := ErrFatal
	if e.Kind.Retryable() {
		class = ErrRecoverable
	}
	if e.Err == nil {
		return []error{class}
	}
	return []error{class, e.Err}
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: TimedOut}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Identifier == "" && t.Err == nil
}

// New creates a classified error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFound creates an ElementNotFound error for the given identifier.
func NotFound(op, identifier string, err error) error {
	return &Error{Kind: ElementNotFound, Op: op, Identifier: identifier, Err: err}
}

// Sentinel values usable with errors.Is.
var (
	ErrInvalidInput      = &Error{Kind: InvalidInput}
	ErrSynthesisFailure  = &Error{Kind: SynthesisFailure}
	ErrSynthesisRejected = &Error{Kind: SynthesisRejected}
	ErrPlayback          = &Error{Kind: Playback}
	ErrElementNotFound   = &Error{Kind: ElementNotFound}
	ErrTimedOut          = &Error{Kind: TimedOut}
	ErrUIAlert           = &Error{Kind: UIAlert}
	ErrRateLimited       = &Error{Kind: RateLimited}
	ErrSessionExpired    = &Error{Kind: SessionExpired}
)

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IdentifierOf returns the UI identifier recorded in err's chain, if any.
func IdentifierOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Identifier
	}
	return ""
}

// IsRecoverable checks if an error is recoverable and should be retried.
// Unclassified errors are treated as recoverable: the orchestrator bounds
// retries anyway, and no failure below it may terminate the process.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatal) {
		return false
	}
	return true
}

// IsFatal checks if an error is fatal and should not be retried.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// MarkerPrefix starts every failure marker written to the reply column.
const MarkerPrefix = "#ERROR:"

// Marker renders err as the explicit failure marker stored in place of a reply.
func Marker(err error) string {
	kind := KindOf(err)
	if kind == "" {
		kind = "error"
	}
	detail := err.Error()
	var fe *Error
	if errors.As(err, &fe) && fe.Err != nil {
		detail = fe.Err.Error()
		if fe.Identifier != "" {
			detail = fe.Identifier + ": " + detail
		}
	}
	return fmt.Sprintf("%s%s: %s", MarkerPrefix, kind, detail)
}

// IsMarker reports whether a stored reply is a failure marker.
func IsMarker(reply string) bool {
	return strings.HasPrefix(reply, MarkerPrefix)
}
