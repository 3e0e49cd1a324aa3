package speech

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/rbright/storybook/internal/capture"
)

const (
	sampleRate     = 16000
	bytesPerSample = 2
	chunkSizeBytes = 640 // 20ms @ 16kHz mono s16
	preRoll        = 300 * time.Millisecond
)

// ListenConfig bounds one listen phase.
type ListenConfig struct {
	EnergyThreshold float64
	ListenTimeout   time.Duration
	PhraseLimit     time.Duration
	Pause           time.Duration
}

// segmenter finds one utterance in a PCM stream using an RMS energy gate.
type segmenter struct {
	cfg ListenConfig

	waited  time.Duration
	started bool
	phrase  time.Duration
	silence time.Duration

	preRoll [][]byte
	voiced  []byte
}

func newSegmenter(cfg ListenConfig) *segmenter {
	return &segmenter{cfg: cfg}
}

// Feed consumes one chunk of s16le mono PCM. It returns done once the
// utterance ended by pause or phrase limit, and capture.ErrListenTimeout when
// no speech started within the listen timeout.
func (s *segmenter) Feed(chunk []byte) (bool, error) {
	if len(chunk) < bytesPerSample {
		return false, nil
	}
	d := chunkDuration(len(chunk))
	loud := rms(chunk) > s.cfg.EnergyThreshold

	if !s.started {
		if !loud {
			s.waited += d
			s.keepPreRoll(chunk)
			if s.waited >= s.cfg.ListenTimeout {
				return false, capture.ErrListenTimeout
			}
			return false, nil
		}
		s.started = true
		for _, c := range s.preRoll {
			s.voiced = append(s.voiced, c...)
		}
		s.preRoll = nil
	}

	s.voiced = append(s.voiced, chunk...)
	s.phrase += d
	if loud {
		s.silence = 0
	} else {
		s.silence += d
	}

	if s.silence >= s.cfg.Pause {
		return true, nil
	}
	if s.cfg.PhraseLimit > 0 && s.phrase >= s.cfg.PhraseLimit {
		return true, nil
	}
	return false, nil
}

// Audio returns the captured utterance PCM.
func (s *segmenter) Audio() []byte {
	return s.voiced
}

func (s *segmenter) keepPreRoll(chunk []byte) {
	s.preRoll = append(s.preRoll, append([]byte(nil), chunk...))
	var total time.Duration
	for i := len(s.preRoll) - 1; i >= 0; i-- {
		total += chunkDuration(len(s.preRoll[i]))
		if total > preRoll {
			s.preRoll = s.preRoll[i+1:]
			return
		}
	}
}

func chunkDuration(n int) time.Duration {
	samples := n / bytesPerSample
	return time.Duration(samples) * time.Second / sampleRate
}

// rms returns the root-mean-square amplitude of s16le samples.
func rms(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
