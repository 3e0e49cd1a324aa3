package speech

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/rbright/storybook/internal/capture"
	"github.com/stretchr/testify/require"
)

func toneChunk(amplitude int16) []byte {
	chunk := make([]byte, chunkSizeBytes)
	for i := 0; i < chunkSizeBytes/2; i++ {
		v := amplitude
		if i%2 == 1 {
			v = -amplitude
		}
		binary.LittleEndian.PutUint16(chunk[i*2:], uint16(v))
	}
	return chunk
}

var listenCfg = ListenConfig{
	EnergyThreshold: 300,
	ListenTimeout:   200 * time.Millisecond,
	PhraseLimit:     time.Second,
	Pause:           100 * time.Millisecond,
}

func TestChunkDuration(t *testing.T) {
	require.Equal(t, 20*time.Millisecond, chunkDuration(chunkSizeBytes))
}

func TestRMS(t *testing.T) {
	require.InDelta(t, 1000, rms(toneChunk(1000)), 0.01)
	require.Zero(t, rms(nil))
}

func TestSegmenterListenTimeout(t *testing.T) {
	seg := newSegmenter(listenCfg)
	quiet := toneChunk(10)

	var err error
	for i := 0; i < 9; i++ {
		_, err = seg.Feed(quiet)
		require.NoError(t, err)
	}
	_, err = seg.Feed(quiet)
	require.ErrorIs(t, err, capture.ErrListenTimeout)
}

func TestSegmenterEndsOnPause(t *testing.T) {
	seg := newSegmenter(listenCfg)
	quiet := toneChunk(10)
	loud := toneChunk(2000)

	for i := 0; i < 3; i++ {
		done, err := seg.Feed(quiet)
		require.NoError(t, err)
		require.False(t, done)
	}
	for i := 0; i < 10; i++ {
		done, err := seg.Feed(loud)
		require.NoError(t, err)
		require.False(t, done)
	}
	var done bool
	for i := 0; i < 5; i++ {
		var err error
		done, err = seg.Feed(quiet)
		require.NoError(t, err)
	}
	require.True(t, done)

	// 3 pre-roll chunks + 10 voiced + 5 trailing silence.
	require.Len(t, seg.Audio(), 18*chunkSizeBytes)
}

func TestSegmenterEndsOnPhraseLimit(t *testing.T) {
	cfg := listenCfg
	cfg.PhraseLimit = 100 * time.Millisecond
	seg := newSegmenter(cfg)
	loud := toneChunk(2000)

	for i := 0; i < 4; i++ {
		done, err := seg.Feed(loud)
		require.NoError(t, err)
		require.False(t, done)
	}
	done, err := seg.Feed(loud)
	require.NoError(t, err)
	require.True(t, done)
}

func TestSegmenterPreRollIsBounded(t *testing.T) {
	cfg := listenCfg
	cfg.ListenTimeout = time.Minute
	seg := newSegmenter(cfg)

	for i := 0; i < 100; i++ {
		_, err := seg.Feed(toneChunk(10))
		require.NoError(t, err)
	}
	require.Len(t, seg.preRoll, 15)
}

func TestSegmenterIgnoresTinyChunks(t *testing.T) {
	seg := newSegmenter(listenCfg)
	done, err := seg.Feed([]byte{1})
	require.NoError(t, err)
	require.False(t, done)
}
