package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "synclife", cfg.Database.Database)
	assert.Equal(t, 25, cfg.Database.MaxConns)
	assert.Equal(t, 5, cfg.Database.MaxIdle)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "sync-posture-1", cfg.Ingest.ConsumerName)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.SessionTTL)
	assert.Equal(t, "", cfg.PoseServiceURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "15432")
	t.Setenv("DB_MAX_CONNS", "50")
	t.Setenv("DB_MAX_IDLE", "10")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("SESSION_IDLE_TTL", "10m")
	t.Setenv("POSE_SERVICE_URL", "http://pose.internal:8080")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, 50, cfg.Database.MaxConns)
	assert.Equal(t, 10, cfg.Database.MaxIdle)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Ingest.SessionTTL)
	assert.Equal(t, "http://pose.internal:8080", cfg.PoseServiceURL)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("DB_PORT", "not-a-number")
	t.Setenv("SESSION_IDLE_TTL", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30*time.Minute, cfg.Ingest.SessionTTL)
}

func TestDatabaseDSN(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Contains(t, cfg.Database.GetDSN(), "host=localhost")
	assert.Contains(t, cfg.Database.GetDSN(), "dbname=synclife")
}
