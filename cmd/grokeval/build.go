package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nine15pm/GrokEval/internal/config"
	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/injector"
	"github.com/nine15pm/GrokEval/pkg/orchestrator"
	"github.com/nine15pm/GrokEval/pkg/plugin"
	"github.com/nine15pm/GrokEval/pkg/probe"
	"github.com/nine15pm/GrokEval/pkg/session"
	"github.com/nine15pm/GrokEval/pkg/sink"
	"github.com/nine15pm/GrokEval/pkg/tts"
	"github.com/nine15pm/GrokEval/pkg/watcher"
)

// loadConfig loads the file named by --config and applies the --host flag.
func loadConfig(path, host string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if host != "" {
		cfg.SetHost(driver.Host(host))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newDriver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (driver.Driver, error) {
	var pcfg map[string]any
	switch cfg.TargetHost {
	case driver.HostEmulator:
		pcfg = map[string]any{
			"server_url":   cfg.Emulator.ServerURL,
			"session_id":   cfg.Emulator.SessionID,
			"capabilities": cfg.Emulator.Capabilities,
		}
	default:
		pcfg = map[string]any{
			"debug_url": cfg.Browser.DebugURL,
			"page_url":  cfg.Browser.PageURL,
		}
	}
	pcfg["logger"] = logger

	p, err := plugin.Create(plugin.KindDriver, string(cfg.TargetHost), pcfg)
	if err != nil {
		return nil, err
	}
	d, ok := p.(driver.Driver)
	if !ok {
		return nil, fmt.Errorf("driver plugin %q does not implement driver.Driver", cfg.TargetHost)
	}

	// Fail fast when the browser or Appium server is unreachable.
	if c, ok := d.(interface{ Connect(context.Context) error }); ok {
		if err := c.Connect(ctx); err != nil {
			d.Close()
			return nil, fmt.Errorf("connect to %s: %w", cfg.TargetHost, err)
		}
	}
	return d, nil
}

func newProbe(d driver.Driver, cfg *config.Config, logger *slog.Logger) *probe.Probe {
	return probe.New(d, probe.Config{
		Identifiers:  cfg.Identifiers,
		QueryTimeout: cfg.QueryTimeout,
		IgnoreAlerts: cfg.IgnoreAlerts,
	}, logger)
}

func newSynthesizer(cfg *config.Config, logger *slog.Logger) (*tts.Adapter, error) {
	p, err := plugin.Create(plugin.KindTTS, cfg.TTS.Provider, map[string]any{
		"base_url":     cfg.TTS.BaseURL,
		"model":        cfg.TTS.Model,
		"voice":        cfg.TTS.Voice,
		"instructions": cfg.TTS.Instructions,
		"logger":       logger,
	})
	if err != nil {
		return nil, err
	}
	provider, ok := p.(tts.Provider)
	if !ok {
		return nil, fmt.Errorf("tts plugin %q does not implement tts.Provider", cfg.TTS.Provider)
	}
	return tts.NewAdapter(provider, tts.AdapterConfig{
		Voice:             cfg.TTS.Voice,
		Speed:             cfg.TTS.Speed,
		TempDir:           cfg.TTS.TempDir,
		RequestsPerMinute: cfg.TTS.RequestsPerMinute,
	}, logger), nil
}

func newInjector(cfg *config.Config, logger *slog.Logger) (*injector.Injector, error) {
	p, err := plugin.Create(plugin.KindSink, cfg.Sink.Type, map[string]any{
		"command": cfg.Sink.Command,
		"device":  cfg.Sink.Device,
		"dir":     cfg.Sink.Dir,
		"logger":  logger,
	})
	if err != nil {
		return nil, err
	}
	s, ok := p.(sink.Sink)
	if !ok {
		return nil, fmt.Errorf("sink plugin %q does not implement sink.Sink", cfg.Sink.Type)
	}
	return injector.New(s, injector.Config{
		Pace:        cfg.Sink.Pace,
		Lead:        cfg.Sink.Lead,
		SettleDelay: cfg.SettleDelay,
		Gain:        cfg.Sink.Gain,
	}, logger), nil
}

// newOrchestrator wires the full collection cycle around d.
func newOrchestrator(d driver.Driver, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	synth, err := newSynthesizer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("tts: %w", err)
	}
	player, err := newInjector(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("sink: %w", err)
	}

	pr := newProbe(d, cfg, logger)
	ids := cfg.Identifiers

	scfg := session.Config{
		NewChat:       ids.NewChat,
		VoiceMode:     ids.VoiceMode,
		ExitVoiceMode: ids.ExitVoiceMode,
		ClickTimeout:  cfg.QueryTimeout,
		ResetWait:     cfg.ResetWait,
		TextInput:     ids.TextInput,
	}
	if cfg.TargetHost == driver.HostBrowser {
		scfg.PageURL = cfg.Browser.PageURL
	}
	cycler := session.New(d, pr, scfg, logger)

	var text orchestrator.TextSender
	if cycler.CanSendText() {
		text = cycler
	} else if ids.TextInput != "" {
		logger.Warn("Driver cannot type; text_input fallback disabled", slog.String("host", string(cfg.TargetHost)))
	}

	w := watcher.New(pr, watcher.Config{
		ResponseTimeout: cfg.ResponseTimeout,
		PollInterval:    cfg.PollInterval,
		CheckAlerts:     cfg.CheckAlerts && ids.Alert != "",
		OnTransition: func(from, to watcher.State) {
			logger.Debug("Watcher transition", slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}, logger)

	retry := fault.DefaultRetryConfig
	retry.MaxAttempts = cfg.MaxAttempts
	retry.InitialDelay = cfg.RetryDelay

	return orchestrator.New(orchestrator.Components{
		Cycler:      cycler,
		Synthesizer: synth,
		Player:      player,
		Watcher:     w,
		Replies:     pr,
		Text:        text,
	}, orchestrator.Config{
		Retry:            retry,
		RateLimitBackoff: cfg.RateLimitBackoff,
		DriftThreshold:   cfg.DriftThreshold,
		MaxReplyChars:    cfg.MaxReplyChars,
		ReuseUtterance:   cfg.ReuseUtterance,
	}, logger), nil
}
