// Package config loads the grokeval YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nine15pm/GrokEval/pkg/driver"
	"github.com/nine15pm/GrokEval/pkg/probe"
	"gopkg.in/yaml.v3"
)

// DefaultFile is loaded from the working directory when no path is given.
const DefaultFile = "grokeval.yaml"

// Default values. New references them and no other code should
// duplicate them.
const (
	DefaultTargetHost       = driver.HostBrowser
	DefaultResponseTimeout  = 60 * time.Second
	DefaultSettleDelay      = 1 * time.Second
	DefaultPollInterval     = 500 * time.Millisecond
	DefaultQueryTimeout     = 5 * time.Second
	DefaultMaxAttempts      = 3
	DefaultRetryDelay       = 2 * time.Second
	DefaultRateLimitBackoff = 30 * time.Second
	DefaultDriftThreshold   = 3
	DefaultMaxReplyChars    = 4000
	DefaultResetWait        = 2 * time.Second

	DefaultTTSProvider = "openai"
	DefaultTTSVoice    = "alloy"
	DefaultTTSModel    = "tts-1"

	DefaultSinkType = "command"
	DefaultSinkLead = 200 * time.Millisecond

	DefaultDebugURL  = "http://localhost:9222"
	DefaultPageURL   = "https://grok.com"
	DefaultServerURL = "http://127.0.0.1:4723"

	DefaultOutputDir = "."
)

// TTSConfig selects and configures the speech provider.
type TTSConfig struct {
	Provider          string  `yaml:"provider"`
	Voice             string  `yaml:"voice"`
	Model             string  `yaml:"model"`
	Instructions      string  `yaml:"instructions,omitempty"`
	Speed             float32 `yaml:"speed,omitempty"`
	RequestsPerMinute float64 `yaml:"requests_per_minute,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	TempDir           string  `yaml:"temp_dir,omitempty"`
}

// SinkConfig selects where utterances are played.
type SinkConfig struct {
	Type    string        `yaml:"type"`
	Command []string      `yaml:"command,omitempty"`
	Device  string        `yaml:"device,omitempty"`
	Dir     string        `yaml:"dir,omitempty"`
	Pace    bool          `yaml:"pace"`
	Lead    time.Duration `yaml:"lead"`
	Gain    float32       `yaml:"gain,omitempty"`
}

// BrowserConfig configures the DevTools driver.
type BrowserConfig struct {
	DebugURL string `yaml:"debug_url"`
	PageURL  string `yaml:"page_url"`
}

// EmulatorConfig configures the Appium driver.
type EmulatorConfig struct {
	ServerURL    string         `yaml:"server_url"`
	SessionID    string         `yaml:"session_id,omitempty"`
	Capabilities map[string]any `yaml:"capabilities,omitempty"`
}

// OutputConfig configures the results file.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Resume bool   `yaml:"resume"`
}

// Config is the top-level configuration.
type Config struct {
	TargetHost driver.Host `yaml:"target_host"`

	ResponseTimeout  time.Duration `yaml:"response_timeout"`
	SettleDelay      time.Duration `yaml:"settle_delay"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	QueryTimeout     time.Duration `yaml:"query_timeout"`
	ResetWait        time.Duration `yaml:"reset_wait"`
	MaxAttempts      int           `yaml:"max_attempts"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff"`
	DriftThreshold   int           `yaml:"drift_threshold"`
	MaxReplyChars    int           `yaml:"max_reply_chars"`
	ReuseUtterance   bool          `yaml:"reuse_utterance"`
	CheckAlerts      bool          `yaml:"check_alerts"`
	IgnoreAlerts     []string      `yaml:"ignore_alerts,omitempty"`

	// Identifiers override the host defaults field by field.
	Identifiers probe.Identifiers `yaml:"identifiers,omitempty"`

	TTS      TTSConfig      `yaml:"tts"`
	Sink     SinkConfig     `yaml:"sink"`
	Browser  BrowserConfig  `yaml:"browser"`
	Emulator EmulatorConfig `yaml:"emulator"`
	Output   OutputConfig   `yaml:"output"`

	explicit probe.Identifiers // identifiers as written in the file
}

// New returns a Config with all defaults populated.
func New() *Config {
	return &Config{
		TargetHost:       DefaultTargetHost,
		ResponseTimeout:  DefaultResponseTimeout,
		SettleDelay:      DefaultSettleDelay,
		PollInterval:     DefaultPollInterval,
		QueryTimeout:     DefaultQueryTimeout,
		ResetWait:        DefaultResetWait,
		MaxAttempts:      DefaultMaxAttempts,
		RetryDelay:       DefaultRetryDelay,
		RateLimitBackoff: DefaultRateLimitBackoff,
		DriftThreshold:   DefaultDriftThreshold,
		MaxReplyChars:    DefaultMaxReplyChars,
		CheckAlerts:      true,
		IgnoreAlerts:     []string{"grok"},
		TTS: TTSConfig{
			Provider: DefaultTTSProvider,
			Voice:    DefaultTTSVoice,
			Model:    DefaultTTSModel,
		},
		Sink: SinkConfig{
			Type: DefaultSinkType,
			Pace: true,
			Lead: DefaultSinkLead,
		},
		Browser: BrowserConfig{
			DebugURL: DefaultDebugURL,
			PageURL:  DefaultPageURL,
		},
		Emulator: EmulatorConfig{
			ServerURL: DefaultServerURL,
		},
		Output: OutputConfig{
			Dir: DefaultOutputDir,
		},
	}
}

// Load reads path over the defaults. An empty path loads DefaultFile if it
// exists and returns defaults otherwise; an explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := New()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.explicit = cfg.Identifiers
	cfg.Identifiers = MergeIdentifiers(cfg.explicit, DefaultIdentifiers(cfg.TargetHost))
	return cfg, nil
}

// SetHost switches the target host. Identifiers not set in the file are
// replaced with the new host's defaults.
func (c *Config) SetHost(host driver.Host) {
	c.TargetHost = host
	c.Identifiers = MergeIdentifiers(c.explicit, DefaultIdentifiers(host))
}

// Validate checks the configuration for values the run cannot work with.
func (c *Config) Validate() error {
	var errs []error

	if c.TargetHost != driver.HostBrowser && c.TargetHost != driver.HostEmulator {
		errs = append(errs, fmt.Errorf("target_host must be %q or %q, got %q", driver.HostBrowser, driver.HostEmulator, c.TargetHost))
	}
	for name, d := range map[string]time.Duration{
		"response_timeout": c.ResponseTimeout,
		"poll_interval":    c.PollInterval,
		"query_timeout":    c.QueryTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":       c.SettleDelay,
		"reset_wait":         c.ResetWait,
		"retry_delay":        c.RetryDelay,
		"rate_limit_backoff": c.RateLimitBackoff,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", name))
		}
	}
	if c.PollInterval >= c.ResponseTimeout && c.ResponseTimeout > 0 {
		errs = append(errs, errors.New("poll_interval must be shorter than response_timeout"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max_attempts must be at least 1, got %d", c.MaxAttempts))
	}
	if c.MaxReplyChars < 0 {
		errs = append(errs, errors.New("max_reply_chars must not be negative"))
	}
	if err := c.Identifiers.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.TTS.Provider == "" {
		errs = append(errs, errors.New("tts.provider is required"))
	}
	switch c.Sink.Type {
	case "":
		errs = append(errs, errors.New("sink.type is required"))
	case "wav":
		if c.Sink.Dir == "" {
			errs = append(errs, errors.New("sink.dir is required for the wav sink"))
		}
	}

	return errors.Join(errs...)
}

// DefaultIdentifiers returns the known-good identifiers for a host.
func DefaultIdentifiers(host driver.Host) probe.Identifiers {
	if host == driver.HostEmulator {
		return probe.Identifiers{
			NewChat:       "accessibility id=New chat",
			LoggedIn:      "accessibility id=Profile",
			Responding:    "accessibility id=Stop",
			Reply:         "xpath=//android.widget.TextView[contains(@resource-id,'message')]",
			VoiceMode:     "accessibility id=Voice mode",
			ExitVoiceMode: "accessibility id=Exit voice mode",
		}
	}
	return probe.Identifiers{
		NewChat:       "a[href='/']",
		LoggedIn:      "[aria-label*='profile' i]",
		Responding:    "[aria-label='Stop']",
		Reply:         "[class*='message']",
		VoiceMode:     "[aria-label*='voice']",
		ExitVoiceMode: "[aria-label='Exit voice mode']",
		Alert:         "[role='alert']",
	}
}

// MergeIdentifiers fills the empty fields of ids from defaults.
func MergeIdentifiers(ids, defaults probe.Identifiers) probe.Identifiers {
	pick := func(v, d driver.Identifier) driver.Identifier {
		if v != "" {
			return v
		}
		return d
	}
	return probe.Identifiers{
		NewChat:       pick(ids.NewChat, defaults.NewChat),
		LoggedIn:      pick(ids.LoggedIn, defaults.LoggedIn),
		Responding:    pick(ids.Responding, defaults.Responding),
		Reply:         pick(ids.Reply, defaults.Reply),
		VoiceMode:     pick(ids.VoiceMode, defaults.VoiceMode),
		ExitVoiceMode: pick(ids.ExitVoiceMode, defaults.ExitVoiceMode),
		Alert:         pick(ids.Alert, defaults.Alert),
		TextInput:     pick(ids.TextInput, defaults.TextInput),
	}
}
