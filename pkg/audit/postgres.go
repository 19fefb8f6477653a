package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Recorder using PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// RecordRun inserts the run and its normalization maps in one transaction.
func (s *PostgresStore) RecordRun(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO query_runs (
			id, client_id, query_text, total_requests, successful_requests,
			sections, completeness, elapsed_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID,
		run.ClientID,
		run.QueryText,
		run.TotalRequests,
		run.SuccessfulRequests,
		run.Sections,
		run.Completeness,
		run.Elapsed.Milliseconds(),
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert query run: %w", err)
	}

	for _, m := range run.Maps {
		fieldsJSON, err := json.Marshal(m.Fields)
		if err != nil {
			return fmt.Errorf("marshal normalization map: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO normalization_maps (run_id, connector, field_map)
			VALUES ($1, $2, $3)`,
			run.ID, m.Connector, fieldsJSON,
		)
		if err != nil {
			return fmt.Errorf("insert normalization map: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// ListRuns returns the most recent runs for a client, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, clientID string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, client_id, query_text, total_requests, successful_requests,
			sections, completeness, created_at
		FROM query_runs
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		clientID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(
			&r.ID, &r.ClientID, &r.QueryText, &r.TotalRequests,
			&r.SuccessfulRequests, &r.Sections, &r.Completeness, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Ping verifies the audit database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
