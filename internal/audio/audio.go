package audio

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrMicrophoneUnavailable = errors.New("microphone is unavailable")
	ErrPermissionDenied      = errors.New("microphone access was denied")
	ErrCaptureEnded          = errors.New("capture device stopped delivering audio")
)

// InputStream is an open microphone delivering signed 16-bit little-endian PCM.
type InputStream interface {
	io.Reader
	Close() error
}

type Microphone interface {
	Open(ctx context.Context) (InputStream, error)
}

type Chunk struct {
	Seq        int
	CapturedAt time.Time
	Data       []byte
}

type Recording struct {
	Data        []byte
	ContentType string
	Filename    string
}

// Codec turns captured PCM into chunks whose in-order concatenation is a
// complete stream, and wraps that stream into a storable file.
type Codec interface {
	EncodeChunk(pcm []byte) ([]byte, error)
	Finalize(stream []byte) Recording
}

type CodecFactory func() Codec

func IsCaptureUnavailable(err error) bool {
	return errors.Is(err, ErrMicrophoneUnavailable) || errors.Is(err, ErrPermissionDenied)
}
