package cdp

import (
	"log/slog"

	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/plugin"
)

func newDriver(cfg map[string]any) (any, error) {
	config := Config{}
	if u, ok := cfg["debug_url"].(string); ok {
		config.DebugURL = u
	}
	if u, ok := cfg["page_url"].(string); ok {
		config.PageURL = u
	}
	logger, _ := cfg["logger"].(*slog.Logger)
	return New(config, logger), nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindDriver,
		Name:        string(driver.HostBrowser),
		Factory:     newDriver,
		Description: "Desktop browser over the Chrome DevTools Protocol",
		Version:     "1.0.0",
		Config: map[string]any{
			"debug_url": DefaultDebugURL,
			"page_url":  "https://grok.com",
		},
	})
}
