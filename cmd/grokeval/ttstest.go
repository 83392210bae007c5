package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const defaultTestPhrase = "Hello, can you hear me?"

func newTTSTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tts-test [text]",
		Short: "Synthesize a phrase and play it through the configured sink",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			text := defaultTestPhrase
			if len(args) > 0 {
				text = args[0]
			}

			cfg, err := loadConfig(configPath, "")
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			logger := setupLogger()
			synth, err := newSynthesizer(cfg, logger)
			if err != nil {
				return err
			}
			player, err := newInjector(cfg, logger)
			if err != nil {
				return err
			}

			utt, err := synth.Synthesize(ctx, text)
			if err != nil {
				return err
			}
			logger.Info("Synthesized",
				slog.String("provider", cfg.TTS.Provider),
				slog.Duration("duration", utt.Duration))

			res, err := player.Play(ctx, utt)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "played %q: %d frames, %s via %s sink\n",
				text, res.Frames, res.Duration, cfg.Sink.Type)
			return nil
		},
	}
	return cmd
}
