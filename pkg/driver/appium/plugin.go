package appium

import (
	"log/slog"

	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/plugin"
)

func newDriver(cfg map[string]any) (any, error) {
	config := Config{}
	if u, ok := cfg["server_url"].(string); ok {
		config.ServerURL = u
	}
	if id, ok := cfg["session_id"].(string); ok {
		config.SessionID = id
	}
	if caps, ok := cfg["capabilities"].(map[string]any); ok {
		config.Capabilities = caps
	}
	logger, _ := cfg["logger"].(*slog.Logger)
	return New(config, logger), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindDriver,
		Name:        string(driver.HostEmulator),
		Factory:     newDriver,
		Description: "Mobile emulator over Appium (W3C WebDriver)",
		Version:     "1.0.0",
		Config: map[string]any{
			"server_url":   DefaultServerURL,
			"session_id":   "attach to an existing session",
			"capabilities": "W3C capabilities, e.g. platformName, appium:appPackage",
		},
	})
}
