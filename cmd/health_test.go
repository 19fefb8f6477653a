package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/emailpilot/epctl/config"
)

// TestHealthCommand verifies the health command structure.
func TestHealthCommand(t *testing.T) {
	cmd := newHealthCommand()

	assert.Equal(t, "health", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotNil(t, cmd.Flags().Lookup("check-timeout"))
}

func TestHealthReport_Add(t *testing.T) {
	t.Run("failure marks report unhealthy", func(t *testing.T) {
		r := &HealthReport{Healthy: true}
		r.add(ComponentHealth{Name: "gateway", Healthy: true})
		r.add(ComponentHealth{Name: "redis", Healthy: false, Error: "connection refused"})

		assert.False(t, r.Healthy)
		assert.Len(t, r.Components, 2)
	})

	t.Run("skipped component does not fail report", func(t *testing.T) {
		r := &HealthReport{Healthy: true}
		r.add(ComponentHealth{Name: "audit-db", Healthy: true, Skipped: true})

		assert.True(t, r.Healthy)
	})
}

func TestFormatComponent(t *testing.T) {
	tests := []struct {
		name string
		c    ComponentHealth
		want string
	}{
		{
			name: "skipped",
			c:    ComponentHealth{Name: "redis", Healthy: true, Skipped: true},
			want: "skipped (not configured)",
		},
		{
			name: "failure",
			c:    ComponentHealth{Name: "gateway", Healthy: false, Error: "connection refused"},
			want: "FAIL: connection refused",
		},
		{
			name: "ok with latency",
			c:    ComponentHealth{Name: "gateway", Healthy: true, Latency: "12ms"},
			want: "ok (12ms)",
		},
		{
			name: "ok with pool detail",
			c:    ComponentHealth{Name: "audit-db", Healthy: true, Latency: "3ms", Detail: "2/10 conns in use, 8 idle"},
			want: "ok (3ms), 2/10 conns in use, 8 idle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatComponent(tt.c))
		})
	}
}

// TestCheckSkipsUnconfiguredBackends verifies that optional backends are
// reported as skipped when the config leaves them out.
func TestCheckSkipsUnconfiguredBackends(t *testing.T) {
	origCfg := cfg
	defer func() { cfg = origCfg }()
	cfg = config.DefaultConfig()

	redisHealth := checkRedis(context.Background())
	assert.True(t, redisHealth.Skipped)
	assert.True(t, redisHealth.Healthy)

	auditHealth := checkAuditDB(context.Background())
	assert.True(t, auditHealth.Skipped)
	assert.True(t, auditHealth.Healthy)
}
