package audio

import (
	"bytes"
	"encoding/binary"

	"github.com/foxseedlab/voicedesk/internal/audio"
)

const (
	pcmBitsPerSample = 16
	wavHeaderBytes   = 44
)

type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

// PCMCodec keeps chunks as raw s16le PCM and wraps the full stream in a WAV container.
type PCMCodec struct {
	sampleRate int
	channels   int
}

func NewPCMCodec(sampleRate, channels int) audio.Codec {
	return &PCMCodec{sampleRate: sampleRate, channels: channels}
}

func (c *PCMCodec) EncodeChunk(pcm []byte) ([]byte, error) {
	out := make([]byte, len(pcm))
	copy(out, pcm)
	return out, nil
}

func (c *PCMCodec) Finalize(stream []byte) audio.Recording {
	return audio.Recording{
		Data:        encodeWAV(stream, c.sampleRate, c.channels),
		ContentType: "audio/wav",
		Filename:    "recording.wav",
	}
}

func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := uint32(len(pcm))
	blockAlign := uint16(channels * pcmBitsPerSample / 8)
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: pcmBitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderBytes+len(pcm)))
	// bytes.Buffer writes cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, header)
	buf.Write(pcm)
	return buf.Bytes()
}
