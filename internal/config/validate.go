package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Mode != ModeLocal && cfg.Mode != ModeServer {
		return nil, fmt.Errorf("mode must be one of: local, server")
	}

	g := cfg.Generation
	if g.Provider != ProviderOllama && g.Provider != ProviderOpenAI {
		return nil, fmt.Errorf("generation.provider must be one of: ollama, openai")
	}
	if err := validateURL("generation.local_url", g.LocalURL); err != nil {
		return nil, err
	}
	if err := validateURL("generation.server_url", g.ServerURL); err != nil {
		return nil, err
	}
	if strings.TrimSpace(g.Model) == "" {
		return nil, fmt.Errorf("generation.model must not be empty")
	}
	if g.MaxStoryWords <= 0 {
		return nil, fmt.Errorf("generation.max_story_words must be > 0")
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		return nil, fmt.Errorf("generation.temperature must be within [0, 2]")
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return nil, fmt.Errorf("generation.top_p must be within (0, 1]")
	}
	if g.NumPredict <= 0 {
		return nil, fmt.Errorf("generation.num_predict must be > 0")
	}
	if g.NumCtx <= 0 {
		return nil, fmt.Errorf("generation.num_ctx must be > 0")
	}
	if g.Timeout <= 0 {
		return nil, fmt.Errorf("generation.timeout_ms must be > 0")
	}
	if g.MaxRetries < 1 {
		return nil, fmt.Errorf("generation.max_retries must be >= 1")
	}
	if g.RetryDelay < 0 {
		return nil, fmt.Errorf("generation.retry_delay_ms must be >= 0")
	}

	s := cfg.Speech
	if err := validateURL("speech.recognizer_url", s.RecognizerURL); err != nil {
		return nil, err
	}
	if s.VoiceTimeout <= 0 {
		return nil, fmt.Errorf("speech.voice_timeout_ms must be > 0")
	}
	if s.ListenTimeout <= 0 {
		return nil, fmt.Errorf("speech.listen_timeout_ms must be > 0")
	}
	if s.PhraseLimit <= 0 {
		return nil, fmt.Errorf("speech.phrase_limit_ms must be > 0")
	}
	if s.Pause <= 0 {
		return nil, fmt.Errorf("speech.pause_ms must be > 0")
	}
	if s.EnergyThreshold < 0 {
		return nil, fmt.Errorf("speech.energy_threshold must be >= 0")
	}
	if s.ListenTimeout+s.PhraseLimit > s.VoiceTimeout {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"speech.voice_timeout_ms (%s) is shorter than listen timeout plus phrase limit (%s); long prompts will time out",
			s.VoiceTimeout, s.ListenTimeout+s.PhraseLimit,
		)})
	}

	if cfg.Display.Backend != DisplayTerminal && cfg.Display.Backend != DisplayConsole {
		return nil, fmt.Errorf("display.backend must be one of: terminal, console")
	}
	if cfg.Display.WelcomePause < 0 || cfg.Display.MessagePause < 0 {
		return nil, fmt.Errorf("display pauses must be >= 0")
	}
	if cfg.Display.PollInterval <= 0 {
		return nil, fmt.Errorf("display.poll_interval_ms must be > 0")
	}

	if cfg.Backlight.Enable && strings.Contains(cfg.Backlight.Device, "/") {
		return nil, fmt.Errorf("backlight.device must be a device name, not a path")
	}

	if cfg.ShutdownGrace <= 0 {
		return nil, fmt.Errorf("shutdown_grace_ms must be > 0")
	}

	return warnings, nil
}

func validateURL(key string, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s must not be empty", key)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", key)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
