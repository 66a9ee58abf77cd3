package audio

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

type pipeStream struct {
	r *io.PipeReader
}

func (p *pipeStream) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pipeStream) Close() error               { return p.r.Close() }

type identityCodec struct{}

func (identityCodec) EncodeChunk(pcm []byte) ([]byte, error) {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

func (identityCodec) Finalize(stream []byte) Recording {
	return Recording{Data: stream, ContentType: "application/octet-stream", Filename: "recording.raw"}
}

type chunkCollector struct {
	mu     sync.Mutex
	chunks []Chunk
	tapped int
	errs   []error
}

func (c *chunkCollector) onChunk(ch Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, ch)
}

func (c *chunkCollector) onTap(pcm []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tapped += len(pcm)
}

func (c *chunkCollector) onError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *chunkCollector) snapshot() ([]Chunk, int, []error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Chunk(nil), c.chunks...), c.tapped, append([]error(nil), c.errs...)
}

func newTestRecorder(interval time.Duration) (*Recorder, *io.PipeWriter, *chunkCollector) {
	pr, pw := io.Pipe()
	col := &chunkCollector{}
	rec := NewRecorder(&pipeStream{r: pr}, identityCodec{}, RecorderOptions{
		Interval: interval,
		OnChunk:  col.onChunk,
		OnError:  col.onError,
		Tap:      col.onTap,
	})
	return rec, pw, col
}

func TestRecorder_EmitsChunksInCaptureOrder(t *testing.T) {
	rec, pw, col := newTestRecorder(20 * time.Millisecond)
	if err := rec.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	if _, err := pw.Write([]byte("aaaa")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { chunks, _, _ := col.snapshot(); return len(chunks) == 1 }, "expected first chunk")
	if _, err := pw.Write([]byte("bbbb")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { chunks, _, _ := col.snapshot(); return len(chunks) == 2 }, "expected second chunk")

	rec.Stop()
	<-rec.Done()

	chunks, tapped, errs := col.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if tapped != 8 {
		t.Fatalf("expected 8 tapped bytes, got %d", tapped)
	}
	if chunks[0].Seq != 0 || chunks[1].Seq != 1 {
		t.Fatalf("unexpected sequence numbers: %d, %d", chunks[0].Seq, chunks[1].Seq)
	}
	if string(chunks[0].Data)+string(chunks[1].Data) != "aaaabbbb" {
		t.Fatalf("unexpected chunk payloads: %q %q", chunks[0].Data, chunks[1].Data)
	}
	if chunks[1].CapturedAt.Before(chunks[0].CapturedAt) {
		t.Fatal("chunks are not ordered by capture time")
	}
}

func TestRecorder_StopFlushesBufferedTail(t *testing.T) {
	rec, pw, col := newTestRecorder(time.Hour)
	if err := rec.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if _, err := pw.Write([]byte("tail")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { _, tapped, _ := col.snapshot(); return tapped == 4 }, "expected pcm to reach the recorder")

	rec.Stop()
	<-rec.Done()

	chunks, _, _ := col.snapshot()
	if len(chunks) != 1 || string(chunks[0].Data) != "tail" {
		t.Fatalf("expected a single tail chunk, got %+v", chunks)
	}
}

func TestRecorder_StopIsIdempotent(t *testing.T) {
	rec, _, col := newTestRecorder(20 * time.Millisecond)
	if err := rec.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}

	rec.Stop()
	<-rec.Done()
	first, _, _ := col.snapshot()
	capturingAfterFirst := rec.IsCapturing()

	rec.Stop()
	<-rec.Done()
	second, _, errs := col.snapshot()

	if capturingAfterFirst || rec.IsCapturing() {
		t.Fatal("expected recorder to be idle after stop")
	}
	if len(first) != len(second) {
		t.Fatalf("second stop changed emitted chunks: %d -> %d", len(first), len(second))
	}
	if len(errs) != 0 {
		t.Fatalf("stop must not report errors, got %v", errs)
	}
}

func TestRecorder_StopBeforeStart(t *testing.T) {
	rec, _, col := newTestRecorder(20 * time.Millisecond)

	rec.Stop()
	rec.Stop()

	select {
	case <-rec.Done():
	default:
		t.Fatal("expected done to be closed when stopped before start")
	}
	if err := rec.Start(); !errors.Is(err, ErrRecorderStopped) {
		t.Fatalf("expected ErrRecorderStopped, got %v", err)
	}
	chunks, _, _ := col.snapshot()
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(chunks))
	}
}

func TestRecorder_DeviceErrorStopsCaptureWithoutRetry(t *testing.T) {
	rec, pw, col := newTestRecorder(time.Hour)
	if err := rec.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if _, err := pw.Write([]byte("last")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	_ = pw.Close()

	<-rec.Done()
	chunks, _, errs := col.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], ErrCaptureEnded) {
		t.Fatalf("expected a single ErrCaptureEnded, got %v", errs)
	}
	if len(chunks) != 1 || string(chunks[0].Data) != "last" {
		t.Fatalf("expected buffered audio to be kept, got %+v", chunks)
	}
	if rec.IsCapturing() {
		t.Fatal("expected recorder to be idle after device error")
	}
	rec.Stop()
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(message)
}
