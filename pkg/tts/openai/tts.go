// Package openai implements tts.Provider on OpenAI's speech endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nine15pm/GrokEval/pkg/audio"
	"github.com/nine15pm/GrokEval/pkg/fault"
	"github.com/nine15pm/GrokEval/pkg/tts"
	openai "github.com/sashabaranov/go-openai"
)

// pcmFormat is what the speech endpoint returns for response_format=pcm.
var pcmFormat = audio.Format{SampleRate: 24000, NumChannels: 1}

// Config configures the OpenAI speech provider.
type Config struct {
	APIKey       string
	BaseURL      string // optional, for proxies and tests
	Model        string
	Voice        string
	Instructions string // only honoured by gpt-4o-mini-tts
}

// OpenAITTS implements tts.Provider using OpenAI's text-to-speech API
type OpenAITTS struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// New creates an OpenAI speech provider.
func New(config Config, logger *slog.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required (set OPENAI_API_KEY environment variable or provide api_key in config)")
	}
	if config.Model == "" {
		config.Model = string(openai.TTSModel1)
	}
	if config.Voice == "" {
		config.Voice = string(openai.VoiceAlloy)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAITTS{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.With(slog.String("component", "tts.openai")),
	}, nil
}

// Name returns the provider name.
func (o *OpenAITTS) Name() string { return "openai" }

// Synthesize requests raw 24kHz PCM so the stream can be spooled without decoding.
func (o *OpenAITTS) Synthesize(ctx context.Context, req tts.SynthesizeRequest) (*tts.Stream, error) {
	voice := o.config.Voice
	if req.Voice != "" {
		voice = req.Voice
	}

	speechReq := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.Model),
		Input:          req.Text,
		Voice:          openai.SpeechVoice(voice),
		Instructions:   o.config.Instructions,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	}
	if req.Speed > 0 {
		speechReq.Speed = float64(req.Speed)
	}

	o.logger.Debug("Requesting speech",
		slog.String("model", o.config.Model),
		slog.String("voice", voice),
		slog.Int("chars", len(req.Text)))

	resp, err := o.client.CreateSpeech(ctx, speechReq)
	if err != nil {
		if Retryable(err) {
			o.logger.Warn("OpenAI speech request failed, retryable", slog.String("error", err.Error()))
			return nil, fault.New(fault.SynthesisFailure, "openai.speech", err)
		}
		o.logger.Error("OpenAI speech request failed", slog.String("error", err.Error()))
		return nil, fault.New(fault.SynthesisRejected, "openai.speech", err)
	}

	return &tts.Stream{ReadCloser: resp.ReadCloser, Format: pcmFormat}, nil
}

// Retryable reports whether an OpenAI error is worth another attempt:
// rate limiting, server errors, and transport failures are; auth and
// validation errors are not.
func Retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return !errors.Is(err, context.Canceled)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
