package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus is the result of one audit-pool health probe.
type HealthStatus struct {
	Healthy       bool
	Latency       time.Duration
	TotalConns    int32
	IdleConns     int32
	AcquiredConns int32
	Err           error
}

// Summary renders the pool state for health output, e.g. "2/10 conns in use, 8 idle".
func (s *HealthStatus) Summary() string {
	if s == nil || !s.Healthy {
		return ""
	}
	return fmt.Sprintf("%d/%d conns in use, %d idle",
		s.AcquiredConns, s.TotalConns, s.IdleConns)
}

// Ping checks if the database is reachable.
func Ping(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("pool is nil")
	}
	return pool.Ping(ctx)
}

// Check probes the audit database and reports ping latency plus pool
// connection counts.
func Check(ctx context.Context, pool *pgxpool.Pool) *HealthStatus {
	status := &HealthStatus{}

	start := time.Now()
	if err := Ping(ctx, pool); err != nil {
		status.Err = fmt.Errorf("ping failed: %w", err)
		return status
	}
	status.Latency = time.Since(start)

	stat := pool.Stat()
	status.Healthy = true
	status.TotalConns = stat.TotalConns()
	status.IdleConns = stat.IdleConns()
	status.AcquiredConns = stat.AcquiredConns()
	return status
}
