package transport

import (
	"context"
	"strings"
)

// Event is one loosely-typed payload from the gateway. Every field is optional.
type Event map[string]any

// Text returns the trimmed string value of key, or "" when the key is
// absent or not a string.
func (e Event) Text(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// Handlers are invoked by the transport from its own goroutines.
type Handlers struct {
	OnConnect    func(conversationID string)
	OnDisconnect func(reason string)
	OnEvent      func(Event)
	OnError      func(err error)
}

type Conversation interface {
	ID() string
	Disconnect() error
	// Volume readers are best effort and return values in [0,1].
	InputVolume() (float64, error)
	OutputVolume() (float64, error)
	IsSpeaking() bool
}

// AudioSink is implemented by conversations that accept microphone PCM.
type AudioSink interface {
	SendAudio(pcm []byte) error
}

type Transport interface {
	Connect(ctx context.Context, credential string, handlers Handlers) (Conversation, error)
}
