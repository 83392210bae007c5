// Package fake provides a recording audio sink with fault injection.
package fake

import (
	"context"
	"errors"
	"sync"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

// FakeSink records every frame it receives.
type FakeSink struct {
	// OpenErr is returned by Open.
	OpenErr error
	// FailAfter makes Write return WriteErr once this many frames have
	// been accepted in the current playback. Zero disables the fault.
	FailAfter int
	// WriteErr is the injected write failure.
	WriteErr error
	// DrainErr is returned by Drain.
	DrainErr error
	// OnWrite is called after each accepted frame.
	OnWrite func(frame audio.Frame)

	mu      sync.Mutex
	open    bool
	format  audio.Format
	current int
	frames  []audio.Frame
	opens   int
	closes  int
	drains  int
}

// NewFakeSink creates a new fake sink.
func NewFakeSink() *FakeSink {
	return &FakeSink{}
}

// Name returns the backend name.
func (s *FakeSink) Name() string { return "fake" }

// Open starts a playback.
func (s *FakeSink) Open(ctx context.Context, format audio.Format) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	if s.open {
		return errors.New("sink already open")
	}
	s.open = true
	s.format = format
	s.current = 0
	s.opens++
	return nil
}

// Write records a frame.
func (s *FakeSink) Write(ctx context.Context, frame audio.Frame) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return errors.New("sink not open")
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.FailAfter > 0 && s.current >= s.FailAfter {
		s.mu.Unlock()
		return s.WriteErr
	}
	s.current++
	s.frames = append(s.frames, frame)
	onWrite := s.OnWrite
	s.mu.Unlock()

	if onWrite != nil {
		onWrite(frame)
	}
	return nil
}

// Drain returns DrainErr.
func (s *FakeSink) Drain(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains++
	if s.DrainErr != nil {
		return s.DrainErr
	}
	return ctx.Err()
}

// Close ends the playback.
func (s *FakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		s.open = false
		s.closes++
	}
	return nil
}

// OpenHandles returns the number of playbacks opened and not closed.
func (s *FakeSink) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens - s.closes
}

// Opens returns how many playbacks were started.
func (s *FakeSink) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Drains returns how many times Drain was called.
func (s *FakeSink) Drains() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drains
}

// Frames returns a copy of all recorded frames.
func (s *FakeSink) Frames() []audio.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Frame(nil), s.frames...)
}

// Format returns the format of the last playback.
func (s *FakeSink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}
