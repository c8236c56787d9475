package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/smallnest/ringbuffer"
)

var ErrPlaybackFull = errors.New("playback buffer full")

// RingPlayback queues model audio in a ring buffer at the device rate. It is
// drained by Read or Pump; Stop drops everything queued.
type RingPlayback struct {
	buf        *ringbuffer.RingBuffer
	sourceRate int
	deviceRate int
}

// NewRingPlayback creates a playback buffer holding up to capacity of audio
// at deviceRate. Audio passed to Play is expected at OutputRate.
func NewRingPlayback(deviceRate int, capacity time.Duration) *RingPlayback {
	if deviceRate == 0 {
		deviceRate = OutputRate
	}
	return &RingPlayback{
		buf:        ringbuffer.New(ChunkSize(deviceRate, capacity)),
		sourceRate: OutputRate,
		deviceRate: deviceRate,
	}
}

func (p *RingPlayback) Play(pcm []byte) error {
	data, err := Resample(pcm, p.sourceRate, p.deviceRate)
	if err != nil {
		return err
	}

	truncated := false
	if free := p.buf.Free() &^ 1; free < len(data) {
		data = data[:free]
		truncated = true
	}
	if len(data) > 0 {
		if _, err := p.buf.Write(data); err != nil {
			return fmt.Errorf("queue audio: %w", err)
		}
	}
	if truncated {
		return ErrPlaybackFull
	}
	return nil
}

func (p *RingPlayback) Stop() {
	p.buf.Reset()
}

// Buffered returns the number of queued bytes.
func (p *RingPlayback) Buffered() int {
	return p.buf.Length()
}

// Read fills b with queued audio and pads the rest with silence. It never
// blocks.
func (p *RingPlayback) Read(b []byte) (int, error) {
	n, err := p.buf.Read(b)
	if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
		return 0, err
	}
	clear(b[n:])
	return len(b), nil
}

// Pump writes one frame of audio to w per frame duration until ctx is done.
func (p *RingPlayback) Pump(ctx context.Context, w io.Writer, frame time.Duration) error {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	chunk := make([]byte, ChunkSize(p.deviceRate, frame))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := p.Read(chunk)
			if err != nil {
				return err
			}
			if _, err := w.Write(chunk[:n]); err != nil {
				return fmt.Errorf("write playback: %w", err)
			}
		}
	}
}
