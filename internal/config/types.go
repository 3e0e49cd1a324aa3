// Package config resolves, parses, validates, and defaults storybook configuration.
package config

import "time"

const (
	ModeLocal  = "local"
	ModeServer = "server"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

const (
	DisplayTerminal = "terminal"
	DisplayConsole  = "console"
)

// Config is the fully materialized runtime configuration used by storybook.
type Config struct {
	Mode          string
	Generation    GenerationConfig
	Speech        SpeechConfig
	Audio         AudioConfig
	Display       DisplayConfig
	Indicator     IndicatorConfig
	Backlight     BacklightConfig
	Health        HealthConfig
	ShutdownGrace time.Duration
}

// GenerationConfig controls the story backend request, retry, and prompt settings.
type GenerationConfig struct {
	Provider      string
	LocalURL      string
	ServerURL     string
	Model         string
	APIKey        string
	MaxStoryWords int
	Temperature   float64
	TopP          float64
	NumPredict    int
	NumCtx        int
	KeepAlive     int
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
}

// SpeechConfig controls listening bounds and the recognizer endpoint.
type SpeechConfig struct {
	RecognizerURL   string
	Language        string
	VoiceTimeout    time.Duration
	ListenTimeout   time.Duration
	PhraseLimit     time.Duration
	Pause           time.Duration
	EnergyThreshold float64
}

// AudioConfig controls preferred and fallback input-source selection.
type AudioConfig struct {
	Input    string
	Fallback string
}

// DisplayConfig selects the display backend and its pacing.
type DisplayConfig struct {
	Backend      string
	WelcomePause time.Duration
	MessagePause time.Duration
	PollInterval time.Duration
}

// IndicatorConfig controls status cue playback.
type IndicatorConfig struct {
	SoundEnable bool
}

// BacklightConfig controls the optional sysfs backlight sink.
type BacklightConfig struct {
	Enable bool
	Device string
}

// HealthConfig controls the gRPC health endpoint. Empty Listen disables it.
type HealthConfig struct {
	Listen string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// BackendURL returns the generation base URL for the configured mode.
func (c Config) BackendURL() string {
	if c.Mode == ModeServer {
		return c.Generation.ServerURL
	}
	return c.Generation.LocalURL
}
