package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/foxseedlab/voicedesk/internal/config"
)

func TestPCMCodec_FinalizeWrapsStreamInWAV(t *testing.T) {
	codec := NewPCMCodec(16000, 1)
	first, err := codec.EncodeChunk([]byte{1, 0, 2, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := codec.EncodeChunk([]byte{3, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := codec.Finalize(append(first, second...))
	if rec.ContentType != "audio/wav" || rec.Filename != "recording.wav" {
		t.Fatalf("unexpected recording metadata: %s %s", rec.ContentType, rec.Filename)
	}
	if len(rec.Data) != wavHeaderBytes+6 {
		t.Fatalf("unexpected wav size: %d", len(rec.Data))
	}
	if string(rec.Data[0:4]) != "RIFF" || string(rec.Data[8:12]) != "WAVE" || string(rec.Data[36:40]) != "data" {
		t.Fatalf("unexpected wav header: %q", rec.Data[:wavHeaderBytes])
	}
	if got := binary.LittleEndian.Uint32(rec.Data[24:28]); got != 16000 {
		t.Fatalf("unexpected sample rate: %d", got)
	}
	if got := binary.LittleEndian.Uint32(rec.Data[40:44]); got != 6 {
		t.Fatalf("unexpected data size: %d", got)
	}
}

func TestPCMCodec_EncodeChunkCopiesInput(t *testing.T) {
	codec := NewPCMCodec(16000, 1)
	in := []byte{1, 2}
	out, _ := codec.EncodeChunk(in)
	in[0] = 9
	if out[0] != 1 {
		t.Fatal("expected chunk to be independent of the read buffer")
	}
}

func TestSampleAligner_CarriesOddByteIntoNextChunk(t *testing.T) {
	var a sampleAligner
	first := a.align([]byte{1, 0, 2})
	if len(first) != 2 || first[0] != 1 || first[1] != 0 {
		t.Fatalf("expected the split sample held back, got %v", first)
	}
	second := a.align([]byte{0, 3, 0})
	want := []byte{2, 0, 3, 0}
	if len(second) != len(want) {
		t.Fatalf("expected %v, got %v", want, second)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, second)
		}
	}
	if got := a.align(nil); len(got) != 0 {
		t.Fatalf("expected nothing pending, got %v", got)
	}
}

func TestNewCodecFactory_DefaultsToPCM(t *testing.T) {
	codec := NewCodecFactory(config.AudioCodecPCM, 16000)()
	if _, ok := codec.(*PCMCodec); !ok {
		t.Fatalf("expected pcm codec, got %T", codec)
	}
}

func TestCommandMicrophone_MissingBinaryIsUnavailable(t *testing.T) {
	mic := NewCommandMicrophone("voicedesk-no-such-recorder -q")
	_, err := mic.Open(context.Background())
	if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestCommandMicrophone_EmptyCommandIsUnavailable(t *testing.T) {
	mic := NewCommandMicrophone("   ")
	_, err := mic.Open(context.Background())
	if !errors.Is(err, audio.ErrMicrophoneUnavailable) {
		t.Fatalf("expected ErrMicrophoneUnavailable, got %v", err)
	}
}

func TestCommandMicrophone_ImmediateExitIsDenied(t *testing.T) {
	mic := NewCommandMicrophone("false")
	_, err := mic.Open(context.Background())
	if !errors.Is(err, audio.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
}

func TestCommandMicrophone_StreamsStdout(t *testing.T) {
	mic := NewCommandMicrophone("cat /dev/zero")
	stream, err := mic.Open(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := make([]byte, 64)
	n, err := stream.Read(buf)
	if err != nil || n == 0 {
		t.Fatalf("expected pcm from capture command, got n=%d err=%v", n, err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("second close must be a no-op, got %v", err)
	}
}
