package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	AudioCodecPCM  = "pcm"
	AudioCodecOpus = "opus"
)

type Config struct {
	Env                   string
	AgentID               string
	AgentTransportID      string
	TokenEndpointURL      string
	TransportURL          string
	PersistenceURL        string
	DatabaseURL           string
	CallerPhoneNumber     string
	CaptureCommand        string
	CaptureSampleRate     int
	AudioCodec            string
	ChunkIntervalMs       int
	DrainGraceMs          int
	LevelSampleIntervalMs int
	HTTPTimeoutSec        int
	CallWebhookURL        string
	MetricsAddr           string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if strings.TrimSpace(req.value) == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.PersistenceURL == "" && c.DatabaseURL == "" {
		return fmt.Errorf("either PERSISTENCE_URL or DATABASE_URL is required")
	}
	for _, u := range c.urlFieldChecks() {
		if u.value == "" {
			continue
		}
		if _, err := url.ParseRequestURI(u.value); err != nil {
			return fmt.Errorf("%s is invalid: %w", u.name, err)
		}
	}
	if c.AudioCodec != AudioCodecPCM && c.AudioCodec != AudioCodecOpus {
		return fmt.Errorf("AUDIO_CODEC must be %q or %q, got %q", AudioCodecPCM, AudioCodecOpus, c.AudioCodec)
	}
	for _, p := range c.positiveFieldChecks() {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.DrainGraceMs < 0 {
		return fmt.Errorf("DRAIN_GRACE_MS must not be negative, got %d", c.DrainGraceMs)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

type positiveEnvField struct {
	name  string
	value int
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "AGENT_ID", value: c.AgentID},
		{name: "TOKEN_ENDPOINT_URL", value: c.TokenEndpointURL},
		{name: "TRANSPORT_URL", value: c.TransportURL},
		{name: "CAPTURE_COMMAND", value: c.CaptureCommand},
	}
}

func (c *Config) urlFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "TOKEN_ENDPOINT_URL", value: c.TokenEndpointURL},
		{name: "TRANSPORT_URL", value: c.TransportURL},
		{name: "PERSISTENCE_URL", value: c.PersistenceURL},
		{name: "CALL_WEBHOOK_URL", value: c.CallWebhookURL},
	}
}

func (c *Config) positiveFieldChecks() []positiveEnvField {
	return []positiveEnvField{
		{name: "CAPTURE_SAMPLE_RATE", value: c.CaptureSampleRate},
		{name: "CHUNK_INTERVAL_MS", value: c.ChunkIntervalMs},
		{name: "LEVEL_SAMPLE_INTERVAL_MS", value: c.LevelSampleIntervalMs},
		{name: "HTTP_TIMEOUT_SEC", value: c.HTTPTimeoutSec},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// TransportAgentID falls back to AgentID when the gateway uses the same identifier.
func (c *Config) TransportAgentID() string {
	if c.AgentTransportID != "" {
		return c.AgentTransportID
	}
	return c.AgentID
}

func (c *Config) ChunkInterval() time.Duration {
	return time.Duration(c.ChunkIntervalMs) * time.Millisecond
}

func (c *Config) DrainGrace() time.Duration {
	return time.Duration(c.DrainGraceMs) * time.Millisecond
}

func (c *Config) LevelSampleInterval() time.Duration {
	return time.Duration(c.LevelSampleIntervalMs) * time.Millisecond
}

func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}
