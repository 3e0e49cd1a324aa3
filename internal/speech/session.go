package speech

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rbright/storybook/internal/capture"
	"github.com/rbright/storybook/internal/config"
)

// Listener is the recording half of a capture session.
type Listener interface {
	Listen(context.Context) ([]byte, error)
	Close() error
}

// Session pairs a microphone with a recognizer as one capture device.
type Session struct {
	mic        Listener
	recognizer *Recognizer
}

func (s *Session) Listen(ctx context.Context) ([]byte, error) {
	return s.mic.Listen(ctx)
}

func (s *Session) Recognize(ctx context.Context, pcm []byte) (string, error) {
	return s.recognizer.Recognize(ctx, pcm)
}

func (s *Session) Close() error {
	return s.mic.Close()
}

// Opener selects an input source and opens a capture session per call.
func Opener(cfg config.Config, logger *slog.Logger) capture.Opener {
	recognizer := NewRecognizer(cfg.Speech.RecognizerURL, cfg.Speech.Language, nil)
	listen := ListenConfig{
		EnergyThreshold: cfg.Speech.EnergyThreshold,
		ListenTimeout:   cfg.Speech.ListenTimeout,
		PhraseLimit:     cfg.Speech.PhraseLimit,
		Pause:           cfg.Speech.Pause,
	}

	return func(ctx context.Context) (capture.Device, error) {
		selection, err := SelectDevice(ctx, cfg.Audio.Input, cfg.Audio.Fallback)
		if err != nil {
			return nil, err
		}
		if selection.Warning != "" && logger != nil {
			logger.Warn(selection.Warning)
		}

		mic, err := OpenMicrophone(selection.Device, listen)
		if err != nil {
			return nil, err
		}
		session, err := NewSession(mic, recognizer)
		if err != nil {
			_ = mic.Close()
			return nil, err
		}
		if logger != nil {
			logger.Info("capture device opened", "device", selection.Device.Label())
		}
		return session, nil
	}
}

var errNoRecognizer = errors.New("recognizer not configured")

// NewSession builds a session from an already opened listener.
func NewSession(mic Listener, recognizer *Recognizer) (*Session, error) {
	if recognizer == nil {
		return nil, errNoRecognizer
	}
	return &Session{mic: mic, recognizer: recognizer}, nil
}
