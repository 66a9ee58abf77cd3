package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/voicedesk/internal/config"
)

type envConfig struct {
	Env                   string `env:"ENV" envDefault:"production"`
	AgentID               string `env:"AGENT_ID,required"`
	AgentTransportID      string `env:"AGENT_TRANSPORT_ID"`
	TokenEndpointURL      string `env:"TOKEN_ENDPOINT_URL,required"`
	TransportURL          string `env:"TRANSPORT_URL" envDefault:"wss://api.elevenlabs.io/v1/convai/conversation"`
	PersistenceURL        string `env:"PERSISTENCE_URL"`
	DatabaseURL           string `env:"DATABASE_URL"`
	CallerPhoneNumber     string `env:"CALLER_PHONE_NUMBER"`
	CaptureCommand        string `env:"CAPTURE_COMMAND" envDefault:"arecord -q -f S16_LE -r 16000 -c 1 -t raw"`
	CaptureSampleRate     int    `env:"CAPTURE_SAMPLE_RATE" envDefault:"16000"`
	AudioCodec            string `env:"AUDIO_CODEC" envDefault:"pcm"`
	ChunkIntervalMs       int    `env:"CHUNK_INTERVAL_MS" envDefault:"1000"`
	DrainGraceMs          int    `env:"DRAIN_GRACE_MS" envDefault:"500"`
	LevelSampleIntervalMs int    `env:"LEVEL_SAMPLE_INTERVAL_MS" envDefault:"16"`
	HTTPTimeoutSec        int    `env:"HTTP_TIMEOUT_SEC" envDefault:"30"`
	CallWebhookURL        string `env:"CALL_WEBHOOK_URL"`
	MetricsAddr           string `env:"METRICS_ADDR"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                   raw.Env,
		AgentID:               raw.AgentID,
		AgentTransportID:      raw.AgentTransportID,
		TokenEndpointURL:      raw.TokenEndpointURL,
		TransportURL:          raw.TransportURL,
		PersistenceURL:        raw.PersistenceURL,
		DatabaseURL:           raw.DatabaseURL,
		CallerPhoneNumber:     raw.CallerPhoneNumber,
		CaptureCommand:        raw.CaptureCommand,
		CaptureSampleRate:     raw.CaptureSampleRate,
		AudioCodec:            raw.AudioCodec,
		ChunkIntervalMs:       raw.ChunkIntervalMs,
		DrainGraceMs:          raw.DrainGraceMs,
		LevelSampleIntervalMs: raw.LevelSampleIntervalMs,
		HTTPTimeoutSec:        raw.HTTPTimeoutSec,
		CallWebhookURL:        raw.CallWebhookURL,
		MetricsAddr:           raw.MetricsAddr,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
