//go:build opus

package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/hraban/opus"
)

const (
	frameSizeMs       = 20
	maxOpusPacketSize = 4000
)

// OpusCodec encodes 20ms frames and writes each packet with a big-endian
// uint16 length prefix, so chunks can be concatenated without a container.
// PCM that does not fill a frame is carried into the next chunk, and so is
// a byte that splits a sample.
type OpusCodec struct {
	enc             *opus.Encoder
	channels        int
	samplesPerFrame int
	carry           []int16
	aligner         sampleAligner
}

func NewOpusCodec(sampleRate, channels int) (audio.Codec, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return &OpusCodec{
		enc:             enc,
		channels:        channels,
		samplesPerFrame: sampleRate * frameSizeMs * channels / 1000,
	}, nil
}

func (c *OpusCodec) EncodeChunk(pcm []byte) ([]byte, error) {
	samples := append(c.carry, bytesToSamples(c.aligner.align(pcm))...)
	out := make([]byte, 0, len(pcm)/4)
	packet := make([]byte, maxOpusPacketSize)
	for len(samples) >= c.samplesPerFrame {
		n, err := c.enc.Encode(samples[:c.samplesPerFrame], packet)
		if err != nil {
			return nil, fmt.Errorf("encode opus frame: %w", err)
		}
		out = binary.BigEndian.AppendUint16(out, uint16(n))
		out = append(out, packet[:n]...)
		samples = samples[c.samplesPerFrame:]
	}
	c.carry = append([]int16(nil), samples...)
	return out, nil
}

func (c *OpusCodec) Finalize(stream []byte) audio.Recording {
	return audio.Recording{
		Data:        stream,
		ContentType: "audio/opus",
		Filename:    "recording.opus",
	}
}

func bytesToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}
