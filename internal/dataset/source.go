// Package dataset reads prompt CSV files and writes result CSV files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/nine15pm/GrokEval/pkg/orchestrator"
)

// Source reads prompts from a CSV file one row at a time. The header must
// name an "id" column and a "text" (or "prompt") column; other columns are
// ignored.
type Source struct {
	path    string
	f       *os.File
	r       *csv.Reader
	idCol   int
	textCol int
	line    int
	skip    map[string]bool
}

// Open opens a prompt file and reads its header.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	s := &Source{path: path, f: f}
	if err := s.start(); err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

func (s *Source) start() error {
	s.r = csv.NewReader(s.f)
	s.r.FieldsPerRecord = -1
	s.r.TrimLeadingSpace = true

	header, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("csv: %s is empty (no header row)", s.path)
	}
	if err != nil {
		return fmt.Errorf("csv: parse %s: %w", s.path, err)
	}
	s.line = 1

	s.idCol, s.textCol = -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "id":
			s.idCol = i
		case "text":
			s.textCol = i
		case "prompt":
			if s.textCol < 0 {
				s.textCol = i
			}
		}
	}
	if s.idCol < 0 || s.textCol < 0 {
		return fmt.Errorf("csv: %s header must contain id and text columns, got %q", s.path, header)
	}
	return nil
}

// Skip excludes rows whose id is in ids from subsequent reads.
func (s *Source) Skip(ids map[string]bool) {
	s.skip = ids
}

// Next returns the next prompt, or io.EOF at the end of the file.
func (s *Source) Next() (orchestrator.PromptRecord, error) {
	for {
		record, err := s.r.Read()
		if errors.Is(err, io.EOF) {
			return orchestrator.PromptRecord{}, io.EOF
		}
		if err != nil {
			return orchestrator.PromptRecord{}, fmt.Errorf("csv: parse %s: %w", s.path, err)
		}
		s.line++

		if len(record) == 1 && strings.TrimSpace(record[0]) == "" {
			continue
		}
		if s.idCol >= len(record) {
			return orchestrator.PromptRecord{}, fmt.Errorf("csv: %s line %d has %d columns, missing id", s.path, s.line, len(record))
		}
		id := strings.TrimSpace(record[s.idCol])
		if s.skip[id] {
			continue
		}

		// A short row has an empty prompt; the orchestrator records it as
		// invalid input rather than aborting the batch.
		var text string
		if s.textCol < len(record) {
			text = record[s.textCol]
		}
		return orchestrator.PromptRecord{ID: id, Text: text}, nil
	}
}

// Reset rewinds to the first data row.
func (s *Source) Reset() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("csv: rewind %s: %w", s.path, err)
	}
	return s.start()
}

// Len counts the rows that Next yields from the start of the file,
// honouring Skip. It reads the file separately and leaves the current
// position untouched; it returns -1 if the file cannot be read.
func (s *Source) Len() int {
	other, err := Open(s.path)
	if err != nil {
		return -1
	}
	defer other.Close() //nolint:errcheck
	other.Skip(s.skip)

	n := 0
	for {
		_, err := other.Next()
		if errors.Is(err, io.EOF) {
			return n
		}
		if err != nil {
			return -1
		}
		n++
	}
}

// Close closes the underlying file.
func (s *Source) Close() error {
	return s.f.Close()
}
