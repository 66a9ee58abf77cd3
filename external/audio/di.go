package audio

import (
	"log/slog"

	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/samber/do/v2"
)

const captureChannels = 1

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (audio.Microphone, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewCommandMicrophone(cfg.CaptureCommand), nil
	})
	do.Provide(injector, func(i do.Injector) (audio.CodecFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewCodecFactory(cfg.AudioCodec, cfg.CaptureSampleRate), nil
	})
}

// NewCodecFactory returns a factory producing a fresh codec per session.
// Opus falls back to PCM when the encoder cannot be created.
func NewCodecFactory(codec string, sampleRate int) audio.CodecFactory {
	return func() audio.Codec {
		if codec == config.AudioCodecOpus {
			c, err := NewOpusCodec(sampleRate, captureChannels)
			if err == nil {
				return c
			}
			slog.Warn("opus codec unavailable; recording as wav", "error", err)
		}
		return NewPCMCodec(sampleRate, captureChannels)
	}
}
