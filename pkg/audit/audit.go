// Package audit persists query-run records and the per-record field
// normalization maps, giving every answer a traceable provenance.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/emailpilot/epctl/pkg/normalize"
)

// Run is one processed comprehensive query.
type Run struct {
	ID                 uuid.UUID
	ClientID           string
	QueryText          string
	TotalRequests      int
	SuccessfulRequests int
	Sections           []string
	Completeness       int
	Elapsed            time.Duration
	CreatedAt          time.Time

	// Maps carries the normalization audit trail: which upstream alias
	// supplied each canonical field, per normalized record.
	Maps []MapRecord
}

// MapRecord is one record's field-provenance map, tagged with the connector
// whose unit convention was applied.
type MapRecord struct {
	Connector string
	Fields    normalize.Map
}

// RunSummary is the listing projection of a Run.
type RunSummary struct {
	ID                 uuid.UUID
	ClientID           string
	QueryText          string
	TotalRequests      int
	SuccessfulRequests int
	Sections           []string
	Completeness       int
	CreatedAt          time.Time
}

// Recorder defines the audit store interface. Recording is best-effort at
// the call sites: a failed write is logged, never fatal to the query.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
	ListRuns(ctx context.Context, clientID string, limit int) ([]RunSummary, error)
	Ping(ctx context.Context) error
}

// NewRun builds a Run skeleton with a fresh ID and timestamp.
func NewRun(clientID, queryText string) *Run {
	return &Run{
		ID:        uuid.New(),
		ClientID:  clientID,
		QueryText: queryText,
		CreatedAt: time.Now().UTC(),
	}
}

// Nop is a Recorder that discards everything, for running without a
// configured audit database.
type Nop struct{}

func (Nop) RecordRun(context.Context, *Run) error { return nil }

func (Nop) ListRuns(context.Context, string, int) ([]RunSummary, error) {
	return nil, nil
}

func (Nop) Ping(context.Context) error { return nil }
