package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	_ "github.com/nine15pm/GrokEval/pkg/driver/appium" // Import to register the emulator driver
	_ "github.com/nine15pm/GrokEval/pkg/driver/cdp"    // Import to register the browser driver
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/plugin"
	_ "github.com/nine15pm/GrokEval/pkg/sink"       // Import to register command and wav sinks
	_ "github.com/nine15pm/GrokEval/pkg/sink/fake"  // Import to register the fake sink
	_ "github.com/nine15pm/GrokEval/pkg/tts/fake"   // Import to register the fake TTS provider
	_ "github.com/nine15pm/GrokEval/pkg/tts/openai" // Import to register the OpenAI TTS provider
	"github.com/nine15pm/GrokEval/pkg/version"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK             = 0
	exitError          = 1
	exitSessionExpired = 2
	exitCancelled      = 130
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "grokeval",
		Short: "Collect voice assistant replies for a batch of spoken prompts",
		Long: `grokeval speaks each prompt of a CSV file into a voice assistant through a
virtual microphone, waits for the assistant to finish responding, reads the
reply transcript from the UI and writes prompt/reply pairs to a results CSV.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default ./grokeval.yaml if present)")

	root.AddCommand(
		newRunCmd(),
		newDiscoverCmd(),
		newTTSTestCmd(),
		newPluginCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
		},
	}
}

func newPluginCmd() *cobra.Command {
	pluginCmd := &cobra.Command{
		Use:   "plugin",
		Short: "Plugin management commands",
	}
	pluginCmd.AddCommand(&cobra.Command{
		Use:   "list [kind]",
		Short: "List registered plugins",
		Long: `List all registered plugins or plugins of a specific kind.
Available kinds: tts, driver, sink`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) > 0 {
				kind = args[0]
			}
			listPlugins(cmd.OutOrStdout(), kind)
			return nil
		},
	})
	pluginCmd.AddCommand(&cobra.Command{
		Use:   "load [directory]",
		Short: "Load dynamic plugins from directory (Linux only with -tags=plugindyn)",
		Long: `Load .so plugin files from the specified directory, then list every
registered plugin. Without a directory, GROKEVAL_PLUGIN_PATH is used, or
` + plugin.DefaultPluginDir + `.

Each plugin .so file must export a RegisterPlugins() error function that
registers tts, driver or sink factories.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger()
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			if err := plugin.LoadDynamicPlugins(dir); err != nil {
				return err
			}
			listPlugins(cmd.OutOrStdout(), "")
			return nil
		},
	})
	return pluginCmd
}

func listPlugins(w io.Writer, kind string) {
	plugins := plugin.List(kind)
	if len(plugins) == 0 {
		if kind == "" {
			fmt.Fprintln(w, "No plugins registered")
		} else {
			fmt.Fprintf(w, "No plugins registered for kind: %s\n", kind)
		}
		return
	}

	fmt.Fprintf(w, "%-8s %-12s %-10s %s\n", "KIND", "NAME", "VERSION", "DESCRIPTION")
	fmt.Fprintln(w, "------------------------------------------------------------")
	for _, p := range plugins {
		v := p.Version
		if v == "" {
			v = "N/A"
		}
		description := p.Description
		if description == "" {
			description = "No description"
		}
		fmt.Fprintf(w, "%-8s %-12s %-10s %s\n", p.Kind, p.Name, v, description)
	}
}

// setupLogger builds the process logger. Logs go to stderr so that command
// output on stdout stays machine readable.
func setupLogger() *slog.Logger {
	return newLogger(os.Stderr, os.Getenv("GROKEVAL_LOG_FORMAT"), os.Getenv("GROKEVAL_LOG_LEVEL"))
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{}
	switch level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	var handler slog.Handler
	if format == "console" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, fault.ErrSessionExpired):
		return exitSessionExpired
	case errors.Is(err, context.Canceled):
		return exitCancelled
	default:
		return exitError
	}
}

func main() {
	os.Exit(exitCode(newRootCmd().Execute()))
}
