package repository

import (
	"context"
	"fmt"

	"github.com/foxseedlab/voicedesk/internal/repository"
	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) SaveCall(ctx context.Context, record repository.CallRecord) (string, error) {
	transcript, err := json.Marshal(transcriptOrEmpty(record.Transcript))
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	var (
		audioData   []byte
		contentType *string
		filename    *string
	)
	if rec := record.Recording; rec != nil && len(rec.Data) > 0 {
		audioData = rec.Data
		contentType = &rec.ContentType
		filename = &rec.Filename
	}

	var id string
	err = r.pool.QueryRow(ctx,
		`INSERT INTO call_records (agent_id, conversation_id, transcript, duration_seconds, outcome, status, phone_number, recording, recording_content_type, recording_filename)
		 VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id::text`,
		record.AgentID,
		nullableText(record.ConversationID),
		string(transcript),
		record.DurationSeconds,
		string(record.Outcome),
		string(record.Status),
		nullableText(record.PhoneNumber),
		audioData,
		contentType,
		filename,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
