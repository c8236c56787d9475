package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tone(samples int) []byte {
	b := make([]byte, samples*BytesPerSample)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16((i%64)*256)))
	}
	return b
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, 3200, ChunkSize(16_000, 100*time.Millisecond))
	assert.Equal(t, 960, ChunkSize(24_000, 20*time.Millisecond))
}

func TestFixedChunkReader(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader(make([]byte, 10)), 4)

	buf := make([]byte, 4)
	var sizes []int
	for {
		n, err := r.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		sizes = append(sizes, n)
	}
	assert.Equal(t, []int{4, 4, 2}, sizes)

	_, err := r.Read(make([]byte, 2))
	assert.Error(t, err)
}

func TestResample(t *testing.T) {
	in := tone(1600)

	same, err := Resample(in, 16_000, 16_000)
	require.NoError(t, err)
	assert.Equal(t, in, same)

	down, err := Resample(in, 16_000, 8_000)
	require.NoError(t, err)
	assert.Zero(t, len(down)%BytesPerSample)
	assert.InDelta(t, 800, len(down)/BytesPerSample, 50)

	_, err = Resample(in, 0, 8_000)
	assert.Error(t, err)
}

type sinkRecorder struct {
	mu     sync.Mutex
	chunks [][]byte
	errs   []error
	got    chan struct{}
}

func newSinkRecorder() *sinkRecorder {
	return &sinkRecorder{got: make(chan struct{}, 64)}
}

func (s *sinkRecorder) OnAudioCaptured(pcm []byte) {
	s.mu.Lock()
	s.chunks = append(s.chunks, append([]byte(nil), pcm...))
	s.mu.Unlock()
	s.got <- struct{}{}
}

func (s *sinkRecorder) OnCaptureError(err error) {
	s.mu.Lock()
	s.errs = append(s.errs, err)
	s.mu.Unlock()
}

func (s *sinkRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func TestStreamCapture_DeliversFixedChunks(t *testing.T) {
	pr, pw := io.Pipe()
	c := NewStreamCapture(func() (io.ReadCloser, error) { return pr, nil }, CaptureConfig{Chunk: 20 * time.Millisecond})
	sink := newSinkRecorder()

	require.NoError(t, c.Start(sink))
	assert.ErrorIs(t, c.Start(sink), ErrCaptureRunning)

	go func() {
		_, _ = pw.Write(tone(640))
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-sink.got:
		case <-time.After(2 * time.Second):
			t.Fatal("chunk not delivered")
		}
	}
	sink.mu.Lock()
	assert.Len(t, sink.chunks[0], ChunkSize(InputRate, 20*time.Millisecond))
	sink.mu.Unlock()

	c.Stop()
	c.Stop()
	assert.Equal(t, 2, sink.count())
	sink.mu.Lock()
	assert.Empty(t, sink.errs)
	sink.mu.Unlock()
}

func TestStreamCapture_OpenFailure(t *testing.T) {
	c := NewStreamCapture(func() (io.ReadCloser, error) { return nil, errors.New("permission denied") }, CaptureConfig{})
	err := c.Start(newSinkRecorder())
	assert.ErrorContains(t, err, "permission denied")

	// a failed start leaves the capture idle
	c.Stop()
}

func TestRingPlayback_PlayReadStop(t *testing.T) {
	p := NewRingPlayback(OutputRate, time.Second)

	require.NoError(t, p.Play(tone(240)))
	assert.Equal(t, 480, p.Buffered())

	out := make([]byte, 960)
	n, err := p.Read(out)
	require.NoError(t, err)
	assert.Equal(t, 960, n)
	assert.Equal(t, tone(240), out[:480])
	assert.Equal(t, make([]byte, 480), out[480:])

	require.NoError(t, p.Play(tone(240)))
	p.Stop()
	assert.Zero(t, p.Buffered())
}

func TestRingPlayback_DropsWhenFull(t *testing.T) {
	p := NewRingPlayback(OutputRate, 10*time.Millisecond)

	err := p.Play(tone(1000))
	assert.ErrorIs(t, err, ErrPlaybackFull)
	assert.Equal(t, ChunkSize(OutputRate, 10*time.Millisecond), p.Buffered())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func TestRingPlayback_Pump(t *testing.T) {
	p := NewRingPlayback(OutputRate, time.Second)
	require.NoError(t, p.Play(tone(480)))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var w lockedBuffer
	err := p.Pump(ctx, &w, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Positive(t, w.Len())
	assert.Zero(t, w.Len()%ChunkSize(OutputRate, 10*time.Millisecond))
}
