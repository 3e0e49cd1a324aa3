package config

import "time"

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Mode: ModeLocal,
		Generation: GenerationConfig{
			Provider:      ProviderOllama,
			LocalURL:      "http://localhost:11434",
			ServerURL:     "http://localhost:11434",
			Model:         "llama3.2:3b",
			MaxStoryWords: 150,
			Temperature:   0.8,
			TopP:          0.9,
			NumPredict:    300,
			NumCtx:        2048,
			KeepAlive:     -1,
			Timeout:       60 * time.Second,
			MaxRetries:    3,
			RetryDelay:    2 * time.Second,
		},
		Speech: SpeechConfig{
			RecognizerURL:   "http://127.0.0.1:8080",
			Language:        "en",
			VoiceTimeout:    20 * time.Second,
			ListenTimeout:   5 * time.Second,
			PhraseLimit:     10 * time.Second,
			Pause:           time.Second,
			EnergyThreshold: 300,
		},
		Audio: AudioConfig{
			Input:    "auto",
			Fallback: "default",
		},
		Display: DisplayConfig{
			Backend:      DisplayTerminal,
			WelcomePause: 2 * time.Second,
			MessagePause: time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Indicator: IndicatorConfig{SoundEnable: true},
		Backlight: BacklightConfig{
			Enable: false,
			Device: "",
		},
		Health:        HealthConfig{Listen: "127.0.0.1:7450"},
		ShutdownGrace: 3 * time.Second,
	}
}
