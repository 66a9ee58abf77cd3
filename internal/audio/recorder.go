package audio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultChunkInterval = time.Second
	readBufferBytes      = 3200
)

var ErrRecorderStopped = errors.New("recorder already stopped")

type RecorderOptions struct {
	Interval time.Duration
	// OnChunk receives every encoded chunk in capture order, from a single goroutine.
	OnChunk func(Chunk)
	// OnError is called at most once, when the device fails while capturing.
	OnError func(error)
	// Tap receives raw PCM as it is read, before chunking.
	Tap func(pcm []byte)
	Now func() time.Time
}

// Recorder is the capture unit of one session. It owns the stream it is
// given and closes it on Stop or on device failure.
type Recorder struct {
	stream InputStream
	codec  Codec
	opts   RecorderOptions

	mu        sync.Mutex
	capturing bool
	started   bool
	stopped   bool
	stopCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	seq       int
}

func NewRecorder(stream InputStream, codec Codec, opts RecorderOptions) *Recorder {
	if opts.Interval <= 0 {
		opts.Interval = DefaultChunkInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{
		stream: stream,
		codec:  codec,
		opts:   opts,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrRecorderStopped
	}
	if r.started {
		return nil
	}
	r.started = true
	r.capturing = true

	frames := make(chan []byte, 64)
	readErr := make(chan error, 1)
	go r.readLoop(frames, readErr)
	go r.run(frames, readErr)
	return nil
}

// Stop is idempotent and safe before Start. The PCM already buffered is
// flushed as one final chunk before Done closes; nothing is emitted after that.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	close(r.stopCh)
	r.mu.Unlock()

	r.closeStream()
	if !started {
		close(r.done)
	}
}

// Done closes once the recorder has delivered its last chunk.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) IsCapturing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

func (r *Recorder) readLoop(frames chan<- []byte, readErr chan<- error) {
	buf := make([]byte, readBufferBytes)
	for {
		n, err := r.stream.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			select {
			case frames <- frame:
			case <-r.stopCh:
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrCaptureEnded
			}
			select {
			case readErr <- err:
			case <-r.stopCh:
			}
			return
		}
	}
}

func (r *Recorder) run(frames <-chan []byte, readErr <-chan error) {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	var pending []byte
	for {
		select {
		case <-r.stopCh:
			pending = r.drain(frames, pending)
			r.emit(pending)
			r.setIdle()
			return
		case frame := <-frames:
			pending = r.accept(pending, frame)
		case <-ticker.C:
			r.emit(pending)
			pending = nil
		case err := <-readErr:
			pending = r.drain(frames, pending)
			r.emit(pending)
			r.setIdle()
			r.closeStream()
			if r.isStopped() {
				return
			}
			slog.Warn("capture device failed; recording stops", "error", err)
			if r.opts.OnError != nil {
				r.opts.OnError(fmt.Errorf("capture: %w", err))
			}
			return
		}
	}
}

func (r *Recorder) accept(pending, frame []byte) []byte {
	if r.opts.Tap != nil {
		r.opts.Tap(frame)
	}
	return append(pending, frame...)
}

func (r *Recorder) drain(frames <-chan []byte, pending []byte) []byte {
	for {
		select {
		case frame := <-frames:
			pending = r.accept(pending, frame)
		default:
			return pending
		}
	}
}

func (r *Recorder) emit(pcm []byte) {
	if len(pcm) == 0 {
		return
	}
	data, err := r.codec.EncodeChunk(pcm)
	if err != nil {
		slog.Warn("failed to encode audio chunk", "error", err, "pcm_bytes", len(pcm))
		return
	}
	if len(data) == 0 {
		return
	}
	r.mu.Lock()
	seq := r.seq
	r.seq++
	r.mu.Unlock()
	if r.opts.OnChunk != nil {
		r.opts.OnChunk(Chunk{Seq: seq, CapturedAt: r.opts.Now(), Data: data})
	}
}

func (r *Recorder) setIdle() {
	r.mu.Lock()
	r.capturing = false
	r.mu.Unlock()
}

func (r *Recorder) isStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Recorder) closeStream() {
	r.closeOnce.Do(func() {
		if err := r.stream.Close(); err != nil {
			slog.Debug("failed to close capture stream", "error", err)
		}
	})
}
