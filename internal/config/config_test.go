package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "treeline.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("full config", func(t *testing.T) {
		path := writeConfig(t, `
redis:
  addr: redis.internal:6380
  password: hunter2
  db: 3
user:
  name: alice
  color: "#ff0000"
log:
  level: debug
presence:
  ttl_seconds: 60
  heartbeat_ms: 10000
undo:
  capture_window_ms: 500
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
		assert.Equal(t, "hunter2", cfg.Redis.Password)
		assert.Equal(t, 3, cfg.Redis.DB)
		assert.Equal(t, "alice", cfg.User.Name)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, 60*time.Second, cfg.PresenceTTL())
		assert.Equal(t, 10*time.Second, cfg.PresenceHeartbeat())
		assert.Equal(t, 500*time.Millisecond, cfg.UndoCaptureWindow())
	})

	t.Run("minimal config fills defaults", func(t *testing.T) {
		path := writeConfig(t, `
user:
  name: alice
`)
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 30*time.Second, cfg.PresenceTTL())
		assert.Equal(t, 5*time.Second, cfg.PresenceHeartbeat())
		assert.Equal(t, 300*time.Millisecond, cfg.UndoCaptureWindow())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})

	t.Run("invalid YAML", func(t *testing.T) {
		path := writeConfig(t, "user: [unclosed")
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.User.Name = "alice"
		return cfg
	}

	t.Run("accepts defaults with a user", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("requires user name", func(t *testing.T) {
		cfg := valid()
		cfg.User.Name = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "user.name")
	})

	t.Run("rejects heartbeat at or beyond TTL", func(t *testing.T) {
		cfg := valid()
		cfg.Presence.TTLSeconds = 5
		cfg.Presence.HeartbeatMs = 5000
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects non-positive tunables", func(t *testing.T) {
		cfg := valid()
		cfg.Presence.TTLSeconds = -1
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.Presence.HeartbeatMs = 0
		assert.Error(t, cfg.Validate())

		cfg = valid()
		cfg.Undo.CaptureWindowMs = -100
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects unknown log level", func(t *testing.T) {
		cfg := valid()
		cfg.Log.Level = "verbose"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "log level")
	})
}
