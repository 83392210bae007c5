package sink

import (
	"errors"
	"log/slog"

	"github.com/nine15pm/GrokEval/pkg/plugin"
)

func newCommandSink(cfg map[string]any) (any, error) {
	argv, _ := cfg["command"].([]string)
	device, _ := cfg["device"].(string)
	logger, _ := cfg["logger"].(*slog.Logger)
	return NewCommandSink(argv, device, logger)
}

func newFileSink(cfg map[string]any) (any, error) {
	dir, _ := cfg["dir"].(string)
	if dir == "" {
		return nil, errors.New("wav sink requires dir")
	}
	return NewFileSink(dir)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSink,
		Name:        "command",
		Factory:     newCommandSink,
		Description: "Pipe raw PCM into an external player (virtual microphone)",
		Version:     "1.0.0",
		Config: map[string]any{
			"command": DefaultCommand,
			"device":  "virtual microphone sink name, e.g. grokeval_mic",
		},
	})
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSink,
		Name:        "wav",
		Factory:     newFileSink,
		Description: "Write each playback to a WAV file",
		Version:     "1.0.0",
		Config: map[string]any{
			"dir": "output directory",
		},
	})
}
