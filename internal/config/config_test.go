package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("LIFECYCLE_SWEEP_INTERVAL_SECONDS", "")
	t.Setenv("POSTGRES_CONNECT_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Equal(t, 5, cfg.Postgres.ConnectAttempts)
	assert.Equal(t, time.Minute, cfg.Lifecycle.SweepInterval())
	assert.Equal(t, "community.tickets", cfg.Notification.AMQPExchange)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9000")
	t.Setenv("LIFECYCLE_SWEEP_INTERVAL_SECONDS", "15")
	t.Setenv("NOTIFY_WORKERS", "not-a-number")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, 15*time.Second, cfg.Lifecycle.SweepInterval())
	assert.Equal(t, 4, cfg.Notification.Workers)
	assert.True(t, cfg.Telemetry.OTLPInsecure)
}

func TestLoadInvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	assert.Error(t, err)
}
