// Package audio defines the capture and playback collaborators of a voice
// session and stream backed implementations of both. All audio is 16-bit
// little endian mono PCM.
package audio

import "time"

const (
	BytesPerSample = 2
	Channels       = 1

	// InputRate is the rate the model expects for microphone audio.
	InputRate = 16_000
	// OutputRate is the rate of the audio the model sends back.
	OutputRate = 24_000
)

// Sink receives captured audio. OnAudioCaptured must not retain pcm.
type Sink interface {
	OnAudioCaptured(pcm []byte)
	OnCaptureError(err error)
}

type Capture interface {
	Start(sink Sink) error
	Stop()
}

type Playback interface {
	Play(pcm []byte) error
	// Stop discards everything queued. It may be called mid stream.
	Stop()
}

// ChunkSize returns the number of bytes holding d of mono PCM at sampleRate.
func ChunkSize(sampleRate int, d time.Duration) int {
	frames := int(float64(sampleRate) * d.Seconds())
	return frames * BytesPerSample * Channels
}
