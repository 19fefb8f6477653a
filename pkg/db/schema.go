package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// auditSchema is the embedded DDL for the audit store. Statements are
// idempotent so EnsureAuditSchema can run on every startup.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS query_runs (
		id UUID PRIMARY KEY,
		client_id TEXT NOT NULL,
		query_text TEXT NOT NULL,
		total_requests INT NOT NULL,
		successful_requests INT NOT NULL,
		sections TEXT[] NOT NULL DEFAULT '{}',
		completeness INT NOT NULL DEFAULT 0,
		elapsed_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_runs_client_created
		ON query_runs (client_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS normalization_maps (
		id BIGSERIAL PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES query_runs(id) ON DELETE CASCADE,
		connector TEXT NOT NULL,
		field_map JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_normalization_maps_run
		ON normalization_maps (run_id)`,
}

// EnsureAuditSchema creates the audit tables if they do not exist.
func EnsureAuditSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	for _, stmt := range auditSchema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply audit schema: %w", err)
		}
	}
	return nil
}
