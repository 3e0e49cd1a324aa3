package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type jsoncConfig struct {
	Mode       *string          `json:"mode"`
	Generation *jsoncGeneration `json:"generation"`
	Speech     *jsoncSpeech     `json:"speech"`
	Audio      *jsoncAudio      `json:"audio"`
	Display    *jsoncDisplay    `json:"display"`
	Indicator  *jsoncIndicator  `json:"indicator"`
	Backlight  *jsoncBacklight  `json:"backlight"`
	Health     *jsoncHealth     `json:"health"`

	ShutdownGraceMS *int `json:"shutdown_grace_ms"`
}

type jsoncGeneration struct {
	Provider      *string  `json:"provider"`
	LocalURL      *string  `json:"local_url"`
	ServerURL     *string  `json:"server_url"`
	Model         *string  `json:"model"`
	APIKey        *string  `json:"api_key"`
	MaxStoryWords *int     `json:"max_story_words"`
	Temperature   *float64 `json:"temperature"`
	TopP          *float64 `json:"top_p"`
	NumPredict    *int     `json:"num_predict"`
	NumCtx        *int     `json:"num_ctx"`
	KeepAlive     *int     `json:"keep_alive"`
	TimeoutMS     *int     `json:"timeout_ms"`
	MaxRetries    *int     `json:"max_retries"`
	RetryDelayMS  *int     `json:"retry_delay_ms"`
}

type jsoncSpeech struct {
	RecognizerURL   *string  `json:"recognizer_url"`
	Language        *string  `json:"language"`
	VoiceTimeoutMS  *int     `json:"voice_timeout_ms"`
	ListenTimeoutMS *int     `json:"listen_timeout_ms"`
	PhraseLimitMS   *int     `json:"phrase_limit_ms"`
	PauseMS         *int     `json:"pause_ms"`
	EnergyThreshold *float64 `json:"energy_threshold"`
}

type jsoncAudio struct {
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
}

type jsoncDisplay struct {
	Backend        *string `json:"backend"`
	WelcomePauseMS *int    `json:"welcome_pause_ms"`
	MessagePauseMS *int    `json:"message_pause_ms"`
	PollIntervalMS *int    `json:"poll_interval_ms"`
}

type jsoncIndicator struct {
	SoundEnable *bool `json:"sound_enable"`
}

type jsoncBacklight struct {
	Enable *bool   `json:"enable"`
	Device *string `json:"device"`
}

type jsoncHealth struct {
	Listen *string `json:"listen"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings := payload.applyTo(&cfg)

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) []Warning {
	warnings := make([]Warning, 0)

	if payload.Mode != nil {
		cfg.Mode = strings.ToLower(strings.TrimSpace(*payload.Mode))
	}

	if g := payload.Generation; g != nil {
		if g.Provider != nil {
			cfg.Generation.Provider = strings.ToLower(strings.TrimSpace(*g.Provider))
		}
		if g.LocalURL != nil {
			cfg.Generation.LocalURL = strings.TrimSpace(*g.LocalURL)
		}
		if g.ServerURL != nil {
			cfg.Generation.ServerURL = strings.TrimSpace(*g.ServerURL)
		}
		if g.Model != nil {
			cfg.Generation.Model = strings.TrimSpace(*g.Model)
		}
		if g.APIKey != nil {
			cfg.Generation.APIKey = strings.TrimSpace(*g.APIKey)
		}
		if g.MaxStoryWords != nil {
			cfg.Generation.MaxStoryWords = *g.MaxStoryWords
		}
		if g.Temperature != nil {
			cfg.Generation.Temperature = *g.Temperature
		}
		if g.TopP != nil {
			cfg.Generation.TopP = *g.TopP
		}
		if g.NumPredict != nil {
			cfg.Generation.NumPredict = *g.NumPredict
		}
		if g.NumCtx != nil {
			cfg.Generation.NumCtx = *g.NumCtx
		}
		if g.KeepAlive != nil {
			cfg.Generation.KeepAlive = *g.KeepAlive
		}
		if g.TimeoutMS != nil {
			cfg.Generation.Timeout = millis(*g.TimeoutMS)
		}
		if g.MaxRetries != nil {
			cfg.Generation.MaxRetries = *g.MaxRetries
		}
		if g.RetryDelayMS != nil {
			cfg.Generation.RetryDelay = millis(*g.RetryDelayMS)
		}
	}

	if s := payload.Speech; s != nil {
		if s.RecognizerURL != nil {
			cfg.Speech.RecognizerURL = strings.TrimSpace(*s.RecognizerURL)
		}
		if s.Language != nil {
			cfg.Speech.Language = strings.TrimSpace(*s.Language)
		}
		if s.VoiceTimeoutMS != nil {
			cfg.Speech.VoiceTimeout = millis(*s.VoiceTimeoutMS)
		}
		if s.ListenTimeoutMS != nil {
			cfg.Speech.ListenTimeout = millis(*s.ListenTimeoutMS)
		}
		if s.PhraseLimitMS != nil {
			cfg.Speech.PhraseLimit = millis(*s.PhraseLimitMS)
		}
		if s.PauseMS != nil {
			cfg.Speech.Pause = millis(*s.PauseMS)
		}
		if s.EnergyThreshold != nil {
			cfg.Speech.EnergyThreshold = *s.EnergyThreshold
		}
	}

	if payload.Audio != nil {
		if payload.Audio.Input != nil {
			cfg.Audio.Input = *payload.Audio.Input
		}
		if payload.Audio.Fallback != nil {
			cfg.Audio.Fallback = *payload.Audio.Fallback
		}
	}

	if d := payload.Display; d != nil {
		if d.Backend != nil {
			cfg.Display.Backend = strings.ToLower(strings.TrimSpace(*d.Backend))
		}
		if d.WelcomePauseMS != nil {
			cfg.Display.WelcomePause = millis(*d.WelcomePauseMS)
		}
		if d.MessagePauseMS != nil {
			cfg.Display.MessagePause = millis(*d.MessagePauseMS)
		}
		if d.PollIntervalMS != nil {
			cfg.Display.PollInterval = millis(*d.PollIntervalMS)
		}
	}

	if payload.Indicator != nil && payload.Indicator.SoundEnable != nil {
		cfg.Indicator.SoundEnable = *payload.Indicator.SoundEnable
	}

	if payload.Backlight != nil {
		if payload.Backlight.Enable != nil {
			cfg.Backlight.Enable = *payload.Backlight.Enable
		}
		if payload.Backlight.Device != nil {
			cfg.Backlight.Device = strings.TrimSpace(*payload.Backlight.Device)
		}
	}

	if payload.Health != nil && payload.Health.Listen != nil {
		cfg.Health.Listen = strings.TrimSpace(*payload.Health.Listen)
	}

	if payload.ShutdownGraceMS != nil {
		cfg.ShutdownGrace = millis(*payload.ShutdownGraceMS)
	}

	if cfg.Generation.Provider == ProviderOpenAI && cfg.Generation.APIKey == "" {
		warnings = append(warnings, Warning{Message: "generation.api_key is empty; openai provider will send no credentials"})
	}

	return warnings
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
