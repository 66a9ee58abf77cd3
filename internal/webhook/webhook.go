package webhook

import "context"

const CallSavedSchemaVersion = "2026-10-01"

type CallSavedPayload struct {
	SchemaVersion   string `json:"schema_version"`
	Event           string `json:"event"`
	RecordID        string `json:"record_id"`
	SessionID       string `json:"session_id"`
	AgentID         string `json:"agent_id"`
	ConversationID  string `json:"conversation_id,omitempty"`
	DurationSeconds int64  `json:"duration_seconds"`
	Outcome         string `json:"outcome"`
	MessageCount    int    `json:"message_count"`
	HasRecording    bool   `json:"has_recording"`
	EndedAt         string `json:"ended_at"`
}

type Sender interface {
	SendCallSaved(ctx context.Context, payload CallSavedPayload) error
}
