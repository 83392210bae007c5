package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/nine15pm/GrokEval/internal/config"
	"github.com/nine15pm/GrokEval/internal/dataset"
	"github.com/nine15pm/GrokEval/pkg/orchestrator"
	"github.com/nine15pm/GrokEval/pkg/version"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Speak every prompt of a CSV file and record the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			host, _ := cmd.Flags().GetString("host")
			input, _ := cmd.Flags().GetString("input")
			output, _ := cmd.Flags().GetString("output")
			resume, _ := cmd.Flags().GetBool("resume")

			cfg, err := loadConfig(configPath, host)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("resume") {
				cfg.Output.Resume = resume
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := setupLogger()
			logger.Info("Starting run",
				slog.String("service", "grokeval"),
				slog.String("version", version.Version),
				slog.String("commit", version.GitCommit),
				slog.String("host", string(cfg.TargetHost)),
				slog.String("input", input))

			summary, path, err := runBatch(ctx, cfg, input, output, logger)
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%d processed (%d ok, %d failed) in %s -> %s\n",
					summary.Processed, summary.Succeeded, summary.Failed,
					summary.Elapsed.Round(time.Second), path)
			}
			return err
		},
	}

	cmd.Flags().StringP("input", "i", "", "prompt CSV file with id and text columns")
	cmd.Flags().StringP("output", "o", "", "results CSV file (default results_<timestamp>.csv in output.dir)")
	cmd.Flags().Bool("resume", false, "skip prompts already present in the results file")
	cmd.Flags().String("host", "", "override target_host (browser or emulator)")
	cmd.MarkFlagRequired("input")
	return cmd
}

// runBatch runs the whole input file and returns the summary and the
// results path.
func runBatch(ctx context.Context, cfg *config.Config, input, output string, logger *slog.Logger) (orchestrator.Summary, string, error) {
	src, err := dataset.Open(input)
	if err != nil {
		return orchestrator.Summary{}, "", err
	}
	defer src.Close()

	path, err := resultsPath(cfg, output, time.Now())
	if err != nil {
		return orchestrator.Summary{}, "", err
	}
	if cfg.Output.Resume {
		done, err := dataset.CompletedIDs(path)
		if err != nil {
			return orchestrator.Summary{}, "", err
		}
		src.Skip(done)
		logger.Info("Resuming", slog.String("results", path), slog.Int("completed", len(done)))
	}

	d, err := newDriver(ctx, cfg, logger)
	if err != nil {
		return orchestrator.Summary{}, "", err
	}
	defer d.Close()

	orch, err := newOrchestrator(d, cfg, logger)
	if err != nil {
		return orchestrator.Summary{}, "", err
	}

	w, err := dataset.Create(path)
	if err != nil {
		return orchestrator.Summary{}, "", err
	}
	defer w.Close()

	summary, err := orch.Run(ctx, src, w)
	if errors.Is(err, context.Canceled) {
		logger.Warn("Run cancelled", slog.Int("processed", summary.Processed))
	}
	return summary, path, err
}

// resultsPath picks the results file. Without an explicit output a resumed
// run continues the newest results file in the output directory.
func resultsPath(cfg *config.Config, output string, now time.Time) (string, error) {
	if output != "" {
		return output, nil
	}
	if cfg.Output.Resume {
		matches, err := filepath.Glob(filepath.Join(cfg.Output.Dir, "results_*.csv"))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			sort.Strings(matches)
			return matches[len(matches)-1], nil
		}
	}
	return filepath.Join(cfg.Output.Dir, dataset.ResultsFileName(now)), nil
}
