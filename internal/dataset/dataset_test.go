package dataset

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nine15pm/GrokEval/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readAll(t *testing.T, s *Source) []orchestrator.PromptRecord {
	t.Helper()
	var out []orchestrator.PromptRecord
	for {
		rec, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestSource_ReadsInOrder(t *testing.T) {
	path := writeCSV(t, "id,text,notes\n1,hello,x\n2,\"how are you, today\",y\n3,,z\n")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	got := readAll(t, s)
	assert.Equal(t, []orchestrator.PromptRecord{
		{ID: "1", Text: "hello"},
		{ID: "2", Text: "how are you, today"},
		{ID: "3", Text: ""},
	}, got)
	assert.Equal(t, 3, s.Len())
}

func TestSource_PromptAliasAndColumnOrder(t *testing.T) {
	path := writeCSV(t, "prompt,ID\nhi there,a\n")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, []orchestrator.PromptRecord{{ID: "a", Text: "hi there"}}, readAll(t, s))
}

func TestSource_Reset(t *testing.T) {
	path := writeCSV(t, "id,text\n1,one\n2,two\n")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", first.ID)

	require.NoError(t, s.Reset())
	assert.Len(t, readAll(t, s), 2)
}

func TestSource_Skip(t *testing.T) {
	path := writeCSV(t, "id,text\n1,one\n2,two\n3,three\n")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	s.Skip(map[string]bool{"2": true})
	assert.Equal(t, 2, s.Len())

	got := readAll(t, s)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
}

func TestSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "", "no header row"},
		{"missing text column", "id,answer\n1,x\n", "must contain id and text"},
		{"missing id column", "text\nhello\n", "must contain id and text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(writeCSV(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := Open(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: open")
}

func TestResultWriter_HeaderOnceAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(orchestrator.ResultRecord{ID: "1", Prompt: "hello", Reply: "Hi, there!", Status: orchestrator.StatusOK, Attempts: 1}))
	assert.Equal(t, 1, w.Count())
	require.NoError(t, w.Close())

	// Reopening appends without a second header.
	w, err = Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(orchestrator.ResultRecord{ID: "2", Prompt: "", Reply: "#ERROR:invalid_input: empty text", Status: orchestrator.StatusFailed}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"id,prompt,reply,status,attempts\n"+
			"1,hello,\"Hi, there!\",ok,1\n"+
			"2,,#ERROR:invalid_input: empty text,failed,0\n",
		string(data))
}

func TestCompletedIDs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "results.csv")

	ids, err := CompletedIDs(path)
	require.NoError(t, err)
	assert.Empty(t, ids)

	w, err := Create(path)
	require.NoError(t, err)
	for _, id := range []string{"1", "7"} {
		require.NoError(t, w.Write(orchestrator.ResultRecord{ID: id, Status: orchestrator.StatusOK, Attempts: 1}))
	}
	require.NoError(t, w.Close())

	ids, err = CompletedIDs(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"1": true, "7": true}, ids)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,reply\nx,y\n"), 0o644))
	_, err = CompletedIDs(bad)
	require.Error(t, err)
}

func TestResultsFileName(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 5, 59, 0, time.UTC)
	assert.Equal(t, "results_2024-03-09_14-05.csv", ResultsFileName(ts))
}
