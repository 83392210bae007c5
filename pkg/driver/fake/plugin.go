package fake

import "github.com/nine15pm/GrokEval/pkg/plugin"

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindDriver,
		Name:        "fake",
		Factory:     func(map[string]any) (any, error) { return NewFakeDriver(), nil },
		Description: "Scriptable driver for tests; every element is absent",
		Version:     "1.0.0",
	})
}
