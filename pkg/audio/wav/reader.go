package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nine15pm/GrokEval/pkg/audio"
)

// Header represents a WAV file header
type Header struct {
	ChunkSize     uint32
	SampleRate    uint32
	NumChannels   uint16
	BitsPerSample uint16
	DataSize      uint32
}

// Format returns the PCM format described by the header.
func (h Header) Format() audio.Format {
	return audio.Format{SampleRate: int(h.SampleRate), NumChannels: int(h.NumChannels)}
}

// Duration returns the playback length of the data chunk.
func (h Header) Duration() time.Duration {
	return h.durationOf(int64(h.DataSize))
}

func (h Header) durationOf(n int64) time.Duration {
	bytesPerSecond := int64(h.SampleRate) * int64(h.NumChannels) * int64(h.BitsPerSample/8)
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(n * int64(time.Second) / bytesPerSecond)
}

// Reader streams a WAV file as 10ms frames without loading it into memory.
type Reader struct {
	file      *os.File
	header    Header
	remaining int64
	consumed  int64
	index     int
	buffer    []byte
}

// NewReader opens a WAV file and positions it at the start of the audio data.
func NewReader(filename string) (*Reader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	reader := &Reader{file: file}
	if err := reader.readHeader(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	reader.remaining = int64(reader.header.DataSize)
	reader.buffer = make([]byte, reader.header.Format().BytesPerFrame())
	return reader, nil
}

// Header returns the WAV file header information
func (r *Reader) Header() Header {
	return r.header
}

// NextFrame returns the next 10ms frame, or io.EOF once the data chunk is
// exhausted. A trailing partial frame is zero-padded.
func (r *Reader) NextFrame() (audio.Frame, error) {
	if r.remaining <= 0 {
		return audio.Frame{}, io.EOF
	}

	want := int64(len(r.buffer))
	if want > r.remaining {
		want = r.remaining
	}

	n, err := io.ReadFull(r.file, r.buffer[:want])
	switch {
	case err == io.EOF:
		// Header claimed more data than the file holds.
		r.remaining = 0
		return audio.Frame{}, io.EOF
	case err == io.ErrUnexpectedEOF:
		r.remaining = 0
	case err != nil:
		return audio.Frame{}, fmt.Errorf("failed to read audio data: %w", err)
	default:
		r.remaining -= int64(n)
	}

	r.consumed += int64(n)
	data := make([]byte, len(r.buffer))
	copy(data, r.buffer[:n])

	frame := audio.Frame{
		Data:              data,
		SampleRate:        int(r.header.SampleRate),
		SamplesPerChannel: int(r.header.SampleRate) / 100,
		NumChannels:       int(r.header.NumChannels),
		Timestamp:         time.Duration(r.index) * audio.FrameDuration,
	}
	r.index++
	return frame, nil
}

// Elapsed returns the playback length of the audio returned so far,
// excluding the padding of a trailing partial frame.
func (r *Reader) Elapsed() time.Duration {
	return r.header.durationOf(r.consumed)
}

// Close closes the WAV file
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// readHeader reads and validates the WAV file header
func (r *Reader) readHeader() error {
	// Read RIFF header
	var riffHeader [12]byte
	if _, err := io.ReadFull(r.file, riffHeader[:]); err != nil {
		return fmt.Errorf("failed to read RIFF header: %w", err)
	}

	// Validate RIFF signature
	if string(riffHeader[0:4]) != "RIFF" {
		return fmt.Errorf("not a valid RIFF file")
	}

	// Validate WAVE signature
	if string(riffHeader[8:12]) != "WAVE" {
		return fmt.Errorf("not a valid WAVE file")
	}

	r.header.ChunkSize = binary.LittleEndian.Uint32(riffHeader[4:8])

	// Find and read fmt chunk
	if err := r.readFmtChunk(); err != nil {
		return err
	}

	// Find and read data chunk
	if err := r.readDataChunk(); err != nil {
		return err
	}

	// Validate format
	if r.header.BitsPerSample != 16 {
		return fmt.Errorf("only 16-bit samples are supported, got %d-bit", r.header.BitsPerSample)
	}

	return r.header.Format().Validate()
}

// readFmtChunk reads the format chunk
func (r *Reader) readFmtChunk() error {
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r.file, chunkHeader[:]); err != nil {
			return fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if chunkID == "fmt " {
			if chunkSize < 16 {
				return fmt.Errorf("fmt chunk too small: %d bytes", chunkSize)
			}

			var fmtData [16]byte
			if _, err := io.ReadFull(r.file, fmtData[:]); err != nil {
				return fmt.Errorf("failed to read fmt data: %w", err)
			}

			audioFormat := binary.LittleEndian.Uint16(fmtData[0:2])
			if audioFormat != 1 {
				return fmt.Errorf("only PCM format is supported, got format %d", audioFormat)
			}

			r.header.NumChannels = binary.LittleEndian.Uint16(fmtData[2:4])
			r.header.SampleRate = binary.LittleEndian.Uint32(fmtData[4:8])
			r.header.BitsPerSample = binary.LittleEndian.Uint16(fmtData[14:16])

			// Skip any remaining fmt data
			if chunkSize > 16 {
				if _, err := r.file.Seek(int64(chunkSize-16), io.SeekCurrent); err != nil {
					return fmt.Errorf("failed to skip fmt data: %w", err)
				}
			}

			return nil
		}

		// Skip unknown chunk
		if _, err := r.file.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
			return fmt.Errorf("failed to skip chunk: %w", err)
		}
	}
}

// readDataChunk finds the data chunk and positions the file pointer at the start of audio data
func (r *Reader) readDataChunk() error {
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r.file, chunkHeader[:]); err != nil {
			return fmt.Errorf("failed to read chunk header: %w", err)
		}

		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if chunkID == "data" {
			r.header.DataSize = chunkSize
			return nil
		}

		// Skip unknown chunk
		if _, err := r.file.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
			return fmt.Errorf("failed to skip chunk: %w", err)
		}
	}
}
