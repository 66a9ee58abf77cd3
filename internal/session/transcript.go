package session

import (
	"sync"
	"time"

	"github.com/foxseedlab/voicedesk/internal/transport"
)

type Role string

const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Message is one transcript turn. It is never mutated after it is appended.
type Message struct {
	Role Role
	Text string
	At   time.Time
}

type eventMatcher func(ev transport.Event) (Role, string)

// eventMatchers are checked in order; the first one yielding text wins.
var eventMatchers = []eventMatcher{
	matchUserTranscript,
	matchAgentResponse,
	matchRoleTaggedMessage,
}

func matchUserTranscript(ev transport.Event) (Role, string) {
	return RoleUser, ev.Text("user_transcript")
}

func matchAgentResponse(ev transport.Event) (Role, string) {
	return RoleAgent, ev.Text("agent_response")
}

func matchRoleTaggedMessage(ev transport.Event) (Role, string) {
	text := ev.Text("message")
	if text == "" {
		return "", ""
	}
	role := ev.Text("role")
	if role == "" {
		role = ev.Text("source")
	}
	return parseRole(role), text
}

// parseRole maps the gateway's role spellings onto the two transcript roles.
// Anything that is not the user is treated as the agent.
func parseRole(raw string) Role {
	switch raw {
	case "user", "User", "USER", "human":
		return RoleUser
	default:
		return RoleAgent
	}
}

func extractMessage(ev transport.Event) (Role, string, bool) {
	if len(ev) == 0 {
		return "", "", false
	}
	for _, match := range eventMatchers {
		role, text := match(ev)
		if text != "" {
			return role, text, true
		}
	}
	return "", "", false
}

type transcriptAssembler struct {
	now func() time.Time

	mu       sync.Mutex
	messages []Message
}

func newTranscriptAssembler(now func() time.Time) *transcriptAssembler {
	if now == nil {
		now = time.Now
	}
	return &transcriptAssembler{now: now}
}

// Consume appends the message carried by ev, if any, and returns it.
func (a *transcriptAssembler) Consume(ev transport.Event) (Message, bool) {
	role, text, ok := extractMessage(ev)
	if !ok {
		return Message{}, false
	}
	msg := Message{Role: role, Text: text, At: a.now()}
	a.mu.Lock()
	a.messages = append(a.messages, msg)
	a.mu.Unlock()
	return msg, true
}

func (a *transcriptAssembler) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

func (a *transcriptAssembler) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.messages)
}
