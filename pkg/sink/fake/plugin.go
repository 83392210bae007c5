package fake

import "github.com/nine15pm/GrokEval/pkg/plugin"

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindSink,
		Name:        "fake",
		Factory:     func(map[string]any) (any, error) { return NewFakeSink(), nil },
		Description: "Discards audio; records frames for tests",
		Version:     "1.0.0",
	})
}
