package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/faiface/beep"
)

const resampleQuality = 3

// pcmStreamer exposes mono PCM as a beep.Streamer, duplicating the channel.
type pcmStreamer struct {
	data []int16
	pos  int
}

func newPCMStreamer(b []byte) *pcmStreamer {
	samples := make([]int16, len(b)/BytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return &pcmStreamer{data: samples}
}

func (s *pcmStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= len(s.data) {
			return i, i > 0
		}
		v := float64(s.data[s.pos]) / 32768.0
		samples[i][0] = v
		samples[i][1] = v
		s.pos++
	}
	return len(samples), true
}

func (s *pcmStreamer) Err() error { return nil }

// Resample converts mono PCM from one sample rate to another.
func Resample(pcm []byte, fromRate, toRate int) ([]byte, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate {
		return append([]byte(nil), pcm...), nil
	}

	resampler := beep.Resample(resampleQuality, beep.SampleRate(fromRate), beep.SampleRate(toRate), newPCMStreamer(pcm))

	expected := len(pcm)/BytesPerSample*toRate/fromRate + 1
	out := make([]byte, 0, expected*BytesPerSample)
	frame := make([][2]float64, 1024)
	for {
		n, ok := resampler.Stream(frame)
		for i := 0; i < n; i++ {
			v := int16(clamp((frame[i][0]+frame[i][1])/2) * 32767)
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}
		if !ok {
			break
		}
	}
	return out, nil
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
