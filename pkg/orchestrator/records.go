package orchestrator

import "time"

// PromptRecord is one input row.
type PromptRecord struct {
	ID   string
	Text string
}

// Status is the outcome of a record.
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// ResultRecord is the single output row produced for a PromptRecord.
// On failure Reply holds a fault marker, never an empty string.
type ResultRecord struct {
	ID       string
	Prompt   string
	Reply    string
	Status   Status
	Attempts int
	// Typed is set when the prompt was typed because it could not be spoken.
	Typed bool
	Err   error
}

// Source yields prompts in order and returns io.EOF when exhausted.
type Source interface {
	Next() (PromptRecord, error)
}

// Writer persists results. Write must be durable before it returns.
type Writer interface {
	Write(ResultRecord) error
}

// Summary describes a batch run.
type Summary struct {
	RunID     string
	Processed int
	Succeeded int
	Failed    int
	Attempts  int
	// DriftWarnings counts records that crossed the UI drift threshold.
	DriftWarnings int
	// Typed counts records whose prompt was typed instead of spoken.
	Typed   int
	Elapsed time.Duration
}
