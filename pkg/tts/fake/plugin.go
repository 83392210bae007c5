package fake

import (
	"time"

	"github.com/nine15pm/GrokEval/pkg/plugin"
)

// newFakeTTS creates a fake TTS provider from configuration.
func newFakeTTS(cfg map[string]any) (any, error) {
	f := NewFakeTTS()
	if ms, ok := cfg["per_char_ms"].(int); ok && ms > 0 {
		f.PerChar = time.Duration(ms) * time.Millisecond
	}
	if rate, ok := cfg["sample_rate"].(int); ok && rate > 0 {
		f.Format.SampleRate = rate
	}
	return f, nil
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "fake",
		Factory:     newFakeTTS,
		Description: "Sine-tone TTS provider for dry runs and tests",
		Version:     "1.0.0",
		Config: map[string]any{
			"per_char_ms": 10,
			"sample_rate": 16000,
		},
	})
}
