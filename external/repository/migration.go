package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE call_outcome AS ENUM ('completed', 'no_content'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS call_records (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id TEXT NOT NULL,
		conversation_id TEXT,
		transcript JSONB NOT NULL DEFAULT '[]'::jsonb,
		duration_seconds BIGINT NOT NULL DEFAULT 0,
		outcome call_outcome NOT NULL,
		status TEXT NOT NULL,
		phone_number TEXT,
		recording BYTEA,
		recording_content_type TEXT,
		recording_filename TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_call_records_agent ON call_records (agent_id, created_at DESC)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
