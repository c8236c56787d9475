package audio

import (
	"fmt"
	"io"
	"time"
)

// FixedChunkReader turns an arbitrary PCM stream into reads of exactly
// chunkSize bytes. Only the final read before io.EOF may be shorter.
type FixedChunkReader struct {
	r         io.Reader
	buf       []byte
	tmp       []byte
	chunkSize int
	eof       bool
}

func NewFixedChunkReader(r io.Reader, chunkSize int) *FixedChunkReader {
	return &FixedChunkReader{
		r:         r,
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize*2),
		tmp:       make([]byte, chunkSize),
	}
}

func NewFixedAudioChunkReader(r io.Reader, sampleRate int, chunk time.Duration) *FixedChunkReader {
	return NewFixedChunkReader(r, ChunkSize(sampleRate, chunk))
}

func (f *FixedChunkReader) ChunkSize() int {
	return f.chunkSize
}

func (f *FixedChunkReader) Read(p []byte) (int, error) {
	if len(p) < f.chunkSize {
		return 0, fmt.Errorf("buffer passed to Read must be at least %d bytes", f.chunkSize)
	}

	for len(f.buf) < f.chunkSize && !f.eof {
		n, err := f.r.Read(f.tmp)
		if n > 0 {
			f.buf = append(f.buf, f.tmp[:n]...)
		}
		if err == io.EOF {
			f.eof = true
			break
		}
		if err != nil {
			return 0, err
		}
	}

	if len(f.buf) == 0 && f.eof {
		return 0, io.EOF
	}

	n := min(f.chunkSize, len(f.buf))
	copy(p, f.buf[:n])
	f.buf = f.buf[n:]
	return n, nil
}
