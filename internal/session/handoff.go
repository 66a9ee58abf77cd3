package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/foxseedlab/voicedesk/internal/repository"
	"github.com/foxseedlab/voicedesk/internal/webhook"
)

// isSaveWorthy reports whether a finished session carries anything to persist.
func isSaveWorthy(messages []Message, durationSeconds int64) bool {
	return len(messages) > 0 || durationSeconds > 0
}

func durationSeconds(startedAt, endedAt time.Time) int64 {
	if startedAt.IsZero() || endedAt.Before(startedAt) {
		return 0
	}
	return int64(endedAt.Sub(startedAt) / time.Second)
}

func outcomeLabel(messages []Message) repository.CallOutcome {
	if len(messages) > 0 {
		return repository.CallOutcomeCompleted
	}
	return repository.CallOutcomeNoContent
}

func formatTranscript(messages []Message) []repository.TranscriptLine {
	lines := make([]repository.TranscriptLine, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, repository.TranscriptLine{Role: string(msg.Role), Message: msg.Text})
	}
	return lines
}

func buildRecording(codec audio.Codec, chunks []audio.Chunk) *audio.Recording {
	if codec == nil || len(chunks) == 0 {
		return nil
	}
	size := 0
	for _, c := range chunks {
		size += len(c.Data)
	}
	if size == 0 {
		return nil
	}
	stream := make([]byte, 0, size)
	for _, c := range chunks {
		stream = append(stream, c.Data...)
	}
	rec := codec.Finalize(stream)
	return &rec
}

type handoffInput struct {
	agentID         string
	conversationID  string
	phoneNumber     string
	messages        []Message
	chunks          []audio.Chunk
	codec           audio.Codec
	durationSeconds int64
}

func buildCallRecord(in handoffInput) repository.CallRecord {
	return repository.CallRecord{
		AgentID:         in.agentID,
		ConversationID:  in.conversationID,
		Transcript:      formatTranscript(in.messages),
		DurationSeconds: in.durationSeconds,
		Outcome:         outcomeLabel(in.messages),
		Status:          repository.CallStatusEnded,
		PhoneNumber:     in.phoneNumber,
		Recording:       buildRecording(in.codec, in.chunks),
	}
}

// handOff submits the record once. A failure is final; nothing is queued for retry.
func (m *Manager) handOff(s *activeSession, in handoffInput) Outcome {
	record := buildCallRecord(in)
	outcome := Outcome{
		SessionID:       s.id,
		ConversationID:  in.conversationID,
		DurationSeconds: in.durationSeconds,
		MessageCount:    len(in.messages),
	}

	ctx := context.Background()
	recordID, err := m.repo.SaveCall(ctx, record)
	if err != nil {
		slog.Error("failed to save call", "error", err, "session_id", s.id, "conversation_id", in.conversationID)
		m.metrics.CallSaveFailures.Inc()
		outcome.Kind = OutcomeSaveFailed
		outcome.Err = err
		return outcome
	}
	slog.Info("call saved", "session_id", s.id, "record_id", recordID, "duration_seconds", in.durationSeconds, "messages", len(in.messages))
	m.metrics.CallsSaved.Inc()
	outcome.Kind = OutcomeSaved
	outcome.RecordID = recordID

	if err := m.webhook.SendCallSaved(ctx, webhook.CallSavedPayload{
		RecordID:        recordID,
		SessionID:       s.id,
		AgentID:         in.agentID,
		ConversationID:  in.conversationID,
		DurationSeconds: in.durationSeconds,
		Outcome:         string(record.Outcome),
		MessageCount:    len(in.messages),
		HasRecording:    record.Recording != nil,
		EndedAt:         m.now().Format(time.RFC3339),
	}); err != nil {
		slog.Error("failed to send call saved webhook", "error", err, "session_id", s.id, "record_id", recordID)
	}
	return outcome
}
