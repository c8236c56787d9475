package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var ErrCaptureRunning = errors.New("capture already running")

// Opener opens the device stream. It is called once per Start.
type Opener func() (io.ReadCloser, error)

type CaptureConfig struct {
	// SourceRate is the rate of the opened stream. Zero means InputRate.
	SourceRate int
	// Chunk is the duration delivered per OnAudioCaptured. Zero means 100ms.
	Chunk  time.Duration
	Logger *slog.Logger
}

// StreamCapture reads PCM from a stream, cuts it into fixed chunks and
// resamples them to InputRate.
type StreamCapture struct {
	open   Opener
	config CaptureConfig

	mu      sync.Mutex
	src     io.ReadCloser
	stopped *atomic.Bool
}

func NewStreamCapture(open Opener, config CaptureConfig) *StreamCapture {
	if config.SourceRate == 0 {
		config.SourceRate = InputRate
	}
	if config.Chunk == 0 {
		config.Chunk = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &StreamCapture{open: open, config: config}
}

func (c *StreamCapture) Start(sink Sink) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.src != nil {
		return ErrCaptureRunning
	}

	src, err := c.open()
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}

	stopped := &atomic.Bool{}
	c.src = src
	c.stopped = stopped

	go c.run(src, sink, stopped)
	return nil
}

// Stop closes the stream. Chunks read after Stop are discarded.
func (c *StreamCapture) Stop() {
	c.mu.Lock()
	src, stopped := c.src, c.stopped
	c.src, c.stopped = nil, nil
	c.mu.Unlock()

	if src == nil {
		return
	}
	stopped.Store(true)
	if err := src.Close(); err != nil {
		c.config.Logger.Debug("closing capture stream", slog.Any("err", err))
	}
}

func (c *StreamCapture) run(src io.Reader, sink Sink, stopped *atomic.Bool) {
	reader := NewFixedAudioChunkReader(src, c.config.SourceRate, c.config.Chunk)
	buf := make([]byte, reader.ChunkSize())

	for {
		n, err := reader.Read(buf)
		if stopped.Load() {
			return
		}
		if n > 0 {
			pcm, rerr := Resample(buf[:n], c.config.SourceRate, InputRate)
			if rerr != nil {
				sink.OnCaptureError(rerr)
				return
			}
			sink.OnAudioCaptured(pcm)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.config.Logger.Error("capture read failed", slog.Any("err", err))
				sink.OnCaptureError(err)
			}
			return
		}
	}
}
