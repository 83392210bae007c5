package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

const bitsPerSample = 16

// Writer writes 16-bit PCM WAV files. It implements io.Writer so a provider
// stream can be copied straight into it.
type Writer struct {
	file         *os.File
	format       audio.Format
	bytesWritten uint32
}

// NewWriter creates a new WAV file writer
func NewWriter(filename string, format audio.Format) (*Writer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create WAV file: %w", err)
	}

	writer := &Writer{
		file:   file,
		format: format,
	}

	// Write header (we'll update it when we close)
	if err := writer.writeHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	return writer, nil
}

// Write appends raw little-endian PCM bytes.
func (w *Writer) Write(p []byte) (int, error) {
	if w.file == nil {
		return 0, os.ErrClosed
	}
	n, err := w.file.Write(p)
	w.bytesWritten += uint32(n)
	if err != nil {
		return n, fmt.Errorf("failed to write samples: %w", err)
	}
	return n, nil
}

// WriteFrame appends one audio frame.
func (w *Writer) WriteFrame(frame audio.Frame) error {
	if frame.Format() != w.format {
		return fmt.Errorf("frame format %+v does not match writer format %+v", frame.Format(), w.format)
	}
	_, err := w.Write(frame.Data)
	return err
}

// WriteSineWave writes a sine wave of the specified frequency and duration
func (w *Writer) WriteSineWave(frequency float64, durationMs int) error {
	samplesPerChannel := w.format.SampleRate * durationMs / 1000
	sample := make([]byte, 2)

	for i := 0; i < samplesPerChannel; i++ {
		t := float64(i) / float64(w.format.SampleRate)
		value := int16(math.Sin(2*math.Pi*frequency*t) * 32767 * 0.5) // 50% amplitude
		binary.LittleEndian.PutUint16(sample, uint16(value))

		for ch := 0; ch < w.format.NumChannels; ch++ {
			if _, err := w.Write(sample); err != nil {
				return err
			}
		}
	}

	return nil
}

// BytesWritten returns the number of PCM bytes written so far.
func (w *Writer) BytesWritten() uint32 {
	return w.bytesWritten
}

// Close finalizes the WAV file by updating the header with correct sizes
func (w *Writer) Close() error {
	if w.file == nil {
		return nil
	}

	dataSize := w.bytesWritten
	chunkSize := dataSize + 36

	if _, err := w.file.Seek(4, io.SeekStart); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to seek to chunk size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, chunkSize); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to write chunk size: %w", err)
	}

	if _, err := w.file.Seek(40, io.SeekStart); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	if err := binary.Write(w.file, binary.LittleEndian, dataSize); err != nil {
		w.closeFile()
		return fmt.Errorf("failed to write data size: %w", err)
	}

	return w.closeFile()
}

func (w *Writer) closeFile() error {
	err := w.file.Close()
	w.file = nil
	return err
}

// writeHeader writes the initial WAV header
func (w *Writer) writeHeader() error {
	numChannels := uint16(w.format.NumChannels)
	sampleRate := uint32(w.format.SampleRate)
	byteRate := sampleRate * uint32(numChannels) * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	fields := []any{
		[]byte("RIFF"),
		uint32(0), // chunk size, updated in Close
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),
		uint16(1), // PCM
		numChannels,
		sampleRate,
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
		[]byte("data"),
		uint32(0), // data size, updated in Close
	}

	for _, f := range fields {
		if err := binary.Write(w.file, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}
