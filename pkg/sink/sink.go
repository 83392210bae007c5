// Package sink defines where injected speech is played: the virtual
// microphone the assistant listens on, or a file for dry runs.
package sink

import (
	"context"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

// Sink plays PCM frames to an output device.
//
// One playback is Open, any number of Write calls, Drain, then Close.
// A Sink may be reopened after Close. Implementations are not safe for
// concurrent use.
type Sink interface {
	// Open prepares the sink for frames of the given format. Cancelling
	// ctx aborts the playback.
	Open(ctx context.Context, format audio.Format) error

	// Write queues one frame. It may block while the device buffer is full.
	Write(ctx context.Context, frame audio.Frame) error

	// Drain waits until every written frame has been played.
	Drain(ctx context.Context) error

	// Close releases the device. It is safe to call Close multiple times
	// and on a sink that was never opened.
	Close() error

	// Name returns the backend name (e.g. "command", "wav", "fake").
	Name() string
}
