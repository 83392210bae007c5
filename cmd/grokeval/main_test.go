package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/internal/config"
	"github.com/nine15pm/GrokEval/pkg/fault"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grokeval.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"session expired", fmt.Errorf("record 3: %w", fault.New(fault.SessionExpired, "session.reset", nil)), exitSessionExpired},
		{"cancelled", fmt.Errorf("run: %w", context.Canceled), exitCancelled},
		{"setup error", errors.New("connect to browser: refused"), exitError},
		{"timeout is not a cancel", context.DeadlineExceeded, exitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			is.Equal(exitCode(tt.err), tt.want)
		})
	}
}

func TestNewLogger(t *testing.T) {
	is := is.New(t)
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := newLogger(&buf, "", "warn")
	logger.Info("hidden")
	logger.Warn("shown", "id", "7")
	is.True(!strings.Contains(buf.String(), "hidden"))
	is.True(strings.Contains(buf.String(), `"msg":"shown"`)) // JSON by default

	buf.Reset()
	logger = newLogger(&buf, "console", "debug")
	logger.Debug("details")
	is.True(strings.Contains(buf.String(), "msg=details"))
}

func TestVersionCommand(t *testing.T) {
	is := is.New(t)
	out, err := execute(t, "version")
	is.NoErr(err)
	is.True(strings.HasPrefix(out, "grokeval version"))
	is.True(strings.Contains(out, "driver: browser, emulator\n"))
	is.True(strings.Contains(out, "tts:    fake, openai\n"))
	is.True(strings.Contains(out, "sink:   command, fake, wav\n"))
}

func TestPluginList(t *testing.T) {
	is := is.New(t)

	out, err := execute(t, "plugin", "list")
	is.NoErr(err)
	for _, name := range []string{"browser", "emulator", "openai", "command", "wav", "fake"} {
		is.True(strings.Contains(out, name)) // registered by blank imports
	}

	out, err = execute(t, "plugin", "list", "sink")
	is.NoErr(err)
	is.True(strings.Contains(out, "command"))
	is.True(!strings.Contains(out, "openai"))

	out, err = execute(t, "plugin", "list", "llm")
	is.NoErr(err)
	is.Equal(out, "No plugins registered for kind: llm\n")
}

func TestTTSTestCommand(t *testing.T) {
	is := is.New(t)
	defer slog.SetDefault(slog.Default())
	sinkDir := t.TempDir()

	path := writeConfig(t, fmt.Sprintf(`
settle_delay: 0s
tts:
  provider: fake
  temp_dir: %q
sink:
  type: wav
  dir: %q
  pace: false
`, t.TempDir(), sinkDir))

	out, err := execute(t, "tts-test", "-c", path, "hello")
	is.NoErr(err)
	is.True(strings.Contains(out, `played "hello": 5 frames`))

	files, err := filepath.Glob(filepath.Join(sinkDir, "playback-*.wav"))
	is.NoErr(err)
	is.Equal(len(files), 1)
}

func TestRunFlagErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing input", []string{"run"}, `required flag(s) "input" not set`},
		{"unknown host", []string{"run", "-i", "prompts.csv", "--host", "desktop"}, "target_host"},
		{"missing config", []string{"run", "-i", "prompts.csv", "-c", "/nonexistent/grokeval.yaml"}, "loading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			_, err := execute(t, tt.args...)
			is.True(err != nil)
			is.True(strings.Contains(err.Error(), tt.wantErr))
		})
	}
}

func TestRunMissingInputFile(t *testing.T) {
	is := is.New(t)
	path := writeConfig(t, "tts:\n  provider: fake\n")

	_, err := execute(t, "run", "-c", path, "-i", filepath.Join(t.TempDir(), "missing.csv"))
	is.True(err != nil)
	is.True(strings.Contains(err.Error(), "csv: open"))
	is.Equal(exitCode(err), exitError)
}

func TestResultsPath(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	cfg := config.New()
	cfg.Output.Dir = dir

	p, err := resultsPath(cfg, "explicit.csv", now)
	is.NoErr(err)
	is.Equal(p, "explicit.csv")

	p, err = resultsPath(cfg, "", now)
	is.NoErr(err)
	is.Equal(p, filepath.Join(dir, "results_2024-05-01_09-30.csv"))

	// Resume continues the newest existing results file.
	for _, name := range []string{"results_2024-04-30_10-00.csv", "results_2024-04-30_18-45.csv"} {
		is.NoErr(os.WriteFile(filepath.Join(dir, name), []byte("id,prompt,reply,status,attempts\n"), 0o644))
	}
	cfg.Output.Resume = true
	p, err = resultsPath(cfg, "", now)
	is.NoErr(err)
	is.Equal(p, filepath.Join(dir, "results_2024-04-30_18-45.csv"))
}
