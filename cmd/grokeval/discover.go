package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Report which configured UI identifiers currently resolve",
		Long: `Query every configured identifier once and print its presence and text as
JSON. Use it to find working identifiers after the assistant UI changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			host, _ := cmd.Flags().GetString("host")

			cfg, err := loadConfig(configPath, host)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := setupLogger()
			d, err := newDriver(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			findings, err := newProbe(d, cfg, logger).Discover(ctx)
			if err != nil {
				return err
			}

			found := 0
			for _, f := range findings {
				if f.Present {
					found++
				}
			}
			logger.Info("Discovery complete",
				slog.Int("identifiers", len(findings)),
				slog.Int("present", found))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(findings)
		},
	}
	cmd.Flags().String("host", "", "override target_host (browser or emulator)")
	return cmd
}
