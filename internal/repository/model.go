package repository

import "github.com/foxseedlab/voicedesk/internal/audio"

type CallOutcome string

const (
	CallOutcomeCompleted CallOutcome = "completed"
	CallOutcomeNoContent CallOutcome = "no_content"
)

type CallStatus string

const (
	CallStatusEnded CallStatus = "ended"
)

// TranscriptLine is the persisted form of one turn; capture timestamps are not kept.
type TranscriptLine struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

// CallRecord is written once per session and never updated in place.
type CallRecord struct {
	AgentID         string
	ConversationID  string
	Transcript      []TranscriptLine
	DurationSeconds int64
	Outcome         CallOutcome
	Status          CallStatus
	PhoneNumber     string
	Recording       *audio.Recording
}
