package speech

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Microphone records utterances from one selected Pulse source.
type Microphone struct {
	device Device
	cfg    ListenConfig

	mu     sync.Mutex
	client *pulse.Client
	source *pulse.Source
}

// OpenMicrophone connects to Pulse and resolves the selected source.
func OpenMicrophone(selected Device, cfg ListenConfig) (*Microphone, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(selected.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", selected.ID, err)
	}

	return &Microphone{device: selected, cfg: cfg, client: client, source: source}, nil
}

// Device returns the selected source metadata.
func (m *Microphone) Device() Device {
	return m.device
}

// Listen records until one utterance completes and returns its PCM
// (16kHz mono s16le).
func (m *Microphone) Listen(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	client, source := m.client, m.source
	m.mu.Unlock()
	if client == nil {
		return nil, fmt.Errorf("microphone closed")
	}

	rec, err := startRecording(client, source)
	if err != nil {
		return nil, err
	}
	defer rec.Stop()

	seg := newSegmenter(m.cfg)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-rec.chunks:
			if !ok {
				return nil, fmt.Errorf("record stream ended: %w", rec.Err())
			}
			done, err := seg.Feed(chunk)
			if err != nil {
				return nil, err
			}
			if done {
				return seg.Audio(), nil
			}
		}
	}
}

// Close disconnects from Pulse. It is idempotent.
func (m *Microphone) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.source = nil
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
	return nil
}

// recording streams fixed-size PCM chunks from one Pulse record stream.
type recording struct {
	stream *pulse.RecordStream

	chunks chan []byte
	stopCh chan struct{}

	mu       sync.Mutex
	pending  []byte
	stopped  bool
	inflight sync.WaitGroup
}

func startRecording(client *pulse.Client, source *pulse.Source) (*recording, error) {
	rec := &recording{
		chunks: make(chan []byte, 128),
		stopCh: make(chan struct{}),
	}

	writer := pulse.NewWriter(writerFunc(rec.onPCM), pulseproto.FormatInt16LE)
	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(sampleRate),
		pulse.RecordBufferFragmentSize(chunkSizeBytes),
		pulse.RecordMediaName("storybook prompt"),
	)
	if err != nil {
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	rec.stream = stream
	stream.Start()
	return rec, nil
}

// Err reports the stream error, if any.
func (r *recording) Err() error {
	if r.stream == nil {
		return nil
	}
	if err := r.stream.Error(); err != nil {
		return err
	}
	return io.EOF
}

// Stop halts the stream and closes chunks exactly once.
func (r *recording) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	if r.stream != nil {
		r.stream.Stop()
		r.stream.Close()
	}

	r.inflight.Wait()
	close(r.chunks)
}

// onPCM receives raw Pulse frames and emits chunkSizeBytes slices to r.chunks.
func (r *recording) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as r.stopped to avoid Add/Wait races.
	r.inflight.Add(1)

	r.pending = append(r.pending, buffer...)
	chunks := make([][]byte, 0, len(r.pending)/chunkSizeBytes)
	for len(r.pending) >= chunkSizeBytes {
		chunk := make([]byte, chunkSizeBytes)
		copy(chunk, r.pending[:chunkSizeBytes])
		r.pending = r.pending[chunkSizeBytes:]
		chunks = append(chunks, chunk)
	}
	r.mu.Unlock()
	defer r.inflight.Done()

	for _, chunk := range chunks {
		select {
		case <-r.stopCh:
			return 0, io.EOF
		case r.chunks <- chunk:
		}
	}
	return len(buffer), nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
