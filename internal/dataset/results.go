package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nine15pm/GrokEval/pkg/orchestrator"
)

// Header is the column layout of a results file.
var Header = []string{"id", "prompt", "reply", "status", "attempts"}

// ResultsFileName returns the default results file name for t.
func ResultsFileName(t time.Time) string {
	return "results_" + t.Format("2006-01-02_15-04") + ".csv"
}

// ResultWriter appends result rows to a CSV file. Every Write is flushed
// and synced before it returns, so an interrupted run loses at most the
// record in flight.
type ResultWriter struct {
	path string
	f    *os.File
	w    *csv.Writer
	n    int
}

// Create opens path for appending, creating it and its directory if needed.
// The header is written only when the file is new or empty.
func Create(path string) (*ResultWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("csv: create %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("csv: stat %s: %w", path, err)
	}

	rw := &ResultWriter{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := rw.writeRow(Header); err != nil {
			f.Close() //nolint:errcheck
			return nil, err
		}
	}
	return rw, nil
}

// Path returns the file being written.
func (rw *ResultWriter) Path() string { return rw.path }

// Count returns how many records this writer has written.
func (rw *ResultWriter) Count() int { return rw.n }

// Write appends one result and syncs it to disk.
func (rw *ResultWriter) Write(rec orchestrator.ResultRecord) error {
	err := rw.writeRow([]string{
		rec.ID,
		rec.Prompt,
		rec.Reply,
		string(rec.Status),
		strconv.Itoa(rec.Attempts),
	})
	if err != nil {
		return err
	}
	rw.n++
	return nil
}

func (rw *ResultWriter) writeRow(row []string) error {
	if err := rw.w.Write(row); err != nil {
		return fmt.Errorf("csv: write %s: %w", rw.path, err)
	}
	rw.w.Flush()
	if err := rw.w.Error(); err != nil {
		return fmt.Errorf("csv: write %s: %w", rw.path, err)
	}
	if err := rw.f.Sync(); err != nil {
		return fmt.Errorf("csv: sync %s: %w", rw.path, err)
	}
	return nil
}

// Close closes the file.
func (rw *ResultWriter) Close() error {
	return rw.f.Close()
}

// CompletedIDs returns the ids already present in a results file. A missing
// file yields an empty set.
func CompletedIDs(path string) (map[string]bool, error) {
	ids := make(map[string]bool)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}
	col := -1
	for i, h := range header {
		if strings.EqualFold(strings.TrimSpace(h), "id") {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("csv: %s has no id column", path)
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: parse %s: %w", path, err)
		}
		if col < len(record) {
			ids[strings.TrimSpace(record[col])] = true
		}
	}
}
