package main

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/MarkKremer/microphone/v2"
	"github.com/codewandler/voicebridge-go/audio"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	playLatency     = 200 * time.Millisecond // speaker buffer
	captureFrames   = 1024                   // mic pull size
	playChannelSize = 48_000                 // 1 s @ 48 kHz
)

// Microphone captures the default input device and delivers 16 kHz chunks.
type Microphone struct {
	rate beep.SampleRate

	mu  sync.Mutex
	mic *microphone.Streamer
}

func NewMicrophone(sampleRate int) *Microphone {
	return &Microphone{rate: beep.SampleRate(sampleRate)}
}

func (m *Microphone) Start(sink audio.Sink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mic != nil {
		return errors.New("microphone already running")
	}

	mic, _, err := microphone.OpenDefaultStream(m.rate, 1)
	if err != nil {
		return err
	}
	mic.Start()
	m.mic = mic

	go m.captureLoop(mic, sink)
	return nil
}

func (m *Microphone) Stop() {
	m.mu.Lock()
	mic := m.mic
	m.mic = nil
	m.mu.Unlock()

	if mic != nil {
		mic.Stop()
		_ = mic.Close()
	}
}

func (m *Microphone) captureLoop(mic *microphone.Streamer, sink audio.Sink) {
	frames := make([][2]float64, captureFrames)
	for {
		n, ok := mic.Stream(frames)
		if !ok {
			if err := mic.Err(); err != nil {
				sink.OnCaptureError(err)
			}
			return
		}

		pcm, err := audio.Resample(stereoSamplesToPCM16Mono(frames[:n]), int(m.rate), audio.InputRate)
		if err != nil {
			sink.OnCaptureError(err)
			return
		}
		sink.OnAudioCaptured(pcm)
	}
}

// Speaker plays model audio on the default output device.
type Speaker struct {
	rate   beep.SampleRate
	playCh chan [2]float64
}

func NewSpeaker(sampleRate int) (*Speaker, error) {
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(playLatency)); err != nil {
		return nil, err
	}

	s := &Speaker{rate: sr, playCh: make(chan [2]float64, playChannelSize)}
	speaker.Play(&chanStreamer{ch: s.playCh})
	return s, nil
}

// Play queues 24 kHz PCM. Samples that do not fit are dropped.
func (s *Speaker) Play(pcm []byte) error {
	pcm, err := audio.Resample(pcm, audio.OutputRate, int(s.rate))
	if err != nil {
		return err
	}
	for i := 0; i+audio.BytesPerSample <= len(pcm); i += audio.BytesPerSample {
		f := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		select {
		case s.playCh <- [2]float64{f, f}:
		default:
			return audio.ErrPlaybackFull
		}
	}
	return nil
}

// Stop drops everything queued, both ours and the mixer's.
func (s *Speaker) Stop() {
drain:
	for {
		select {
		case <-s.playCh:
		default:
			break drain
		}
	}

	speaker.Lock()
	speaker.Clear()
	speaker.Unlock()
	speaker.Play(&chanStreamer{ch: s.playCh})
}

func stereoSamplesToPCM16Mono(s [][2]float64) []byte {
	b := make([]byte, len(s)*audio.BytesPerSample)
	for i, v := range s {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(int16(clamp(v[0])*32767)))
	}
	return b
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

// chanStreamer plays silence while the channel is empty.
type chanStreamer struct {
	ch <-chan [2]float64
}

func (c *chanStreamer) Stream(buf [][2]float64) (int, bool) {
	for i := range buf {
		select {
		case smp := <-c.ch:
			buf[i] = smp
		default:
			buf[i] = [2]float64{}
		}
	}
	return len(buf), true
}

func (c *chanStreamer) Err() error { return nil }
