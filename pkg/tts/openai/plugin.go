package openai

import (
	"log/slog"
	"os"

	"github.com/nine15pm/GrokEval/pkg/plugin"
)

// newOpenAITTS is the factory function for the OpenAI speech provider.
func newOpenAITTS(cfg map[string]any) (any, error) {
	config := Config{}

	// Get API key from config or environment
	if apiKey, ok := cfg["api_key"].(string); ok && apiKey != "" {
		config.APIKey = apiKey
	} else {
		config.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if baseURL, ok := cfg["base_url"].(string); ok {
		config.BaseURL = baseURL
	}
	if model, ok := cfg["model"].(string); ok {
		config.Model = model
	}
	if voice, ok := cfg["voice"].(string); ok {
		config.Voice = voice
	}
	if instructions, ok := cfg["instructions"].(string); ok {
		config.Instructions = instructions
	}

	logger, _ := cfg["logger"].(*slog.Logger)
	return New(config, logger)
}

func init() {
	plugin.RegisterWithMetadata(&plugin.Plugin{
		Kind:        plugin.KindTTS,
		Name:        "openai",
		Factory:     newOpenAITTS,
		Description: "OpenAI text-to-speech (raw 24kHz PCM)",
		Version:     "1.0.0",
		Config: map[string]any{
			"api_key":      "OpenAI API key (or set OPENAI_API_KEY env var)",
			"base_url":     "https://api.openai.com/v1",
			"model":        "tts-1",
			"voice":        "alloy",
			"instructions": "voice style instructions (gpt-4o-mini-tts only)",
		},
	})
}
