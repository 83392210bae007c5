// Package audio holds the PCM frame type passed between the WAV artifact
// reader and the audio sinks.
package audio

import (
	"fmt"
	"time"
)

// FrameDuration is the length of every frame produced by this module.
const FrameDuration = 10 * time.Millisecond

// Format describes 16-bit little-endian PCM.
type Format struct {
	SampleRate  int // Hz, e.g. 24000 for OpenAI speech
	NumChannels int // 1 or 2
}

// BytesPerFrame returns the size of one 10 ms frame in this format.
func (f Format) BytesPerFrame() int {
	return f.SampleRate / 100 * f.NumChannels * 2
}

// Validate checks that the format can be framed.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate%100 != 0 {
		return fmt.Errorf("sample rate must be a positive multiple of 100, got %d", f.SampleRate)
	}
	if f.NumChannels != 1 && f.NumChannels != 2 {
		return fmt.Errorf("only mono and stereo are supported, got %d channels", f.NumChannels)
	}
	return nil
}

// Frame represents exactly 10 ms of PCM audio.
// Len(Data) == SamplesPerChannel * NumChannels * 2.
//
// Timestamp is the offset of the frame from the start of the utterance.
type Frame struct {
	Data              []byte        // 16-bit PCM, little-endian
	SampleRate        int           // Hz
	SamplesPerChannel int           // SampleRate / 100
	NumChannels       int           // 1 or 2
	Timestamp         time.Duration // offset from utterance start
}

// NewFrame creates a new Frame with the specified parameters.
// Returns an error if the data length doesn't match the expected size for 10ms of audio.
func NewFrame(data []byte, format Format, timestamp time.Duration) (*Frame, error) {
	expectedLen := format.BytesPerFrame()

	if len(data) != expectedLen {
		return nil, fmt.Errorf("frame data length mismatch: got %d bytes, expected %d bytes for %dHz %d-channel 10ms audio",
			len(data), expectedLen, format.SampleRate, format.NumChannels)
	}

	return &Frame{
		Data:              data,
		SampleRate:        format.SampleRate,
		SamplesPerChannel: format.SampleRate / 100,
		NumChannels:       format.NumChannels,
		Timestamp:         timestamp,
	}, nil
}

// Format returns the PCM format of the frame.
func (f *Frame) Format() Format {
	return Format{SampleRate: f.SampleRate, NumChannels: f.NumChannels}
}

// Duration returns the duration represented by this frame (always 10ms).
func (f *Frame) Duration() time.Duration {
	return FrameDuration
}
