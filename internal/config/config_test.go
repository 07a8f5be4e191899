package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
storage:
  driver: sqlite
  data_dir: /tmp/snippets
scheduler:
  weekday: Thursday
  start_hour: 9
  end_hour: 12
  integration_types: [github, jira]
security:
  jwt_secret: secret
  encryption_key: 0123456789abcdef
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("should apply defaults", func(t *testing.T) {
		cfg, err := LoadConfig(writeConfig(t, validYAML), false)
		require.NoError(t, err)

		assert.Equal(t, "sqlite", cfg.Storage.Driver)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 500*time.Millisecond, cfg.Worker.PollInterval)
		assert.Equal(t, 15*time.Minute, cfg.Worker.StaleAfter)
		assert.Equal(t, time.Hour, cfg.Redis.TTL)
		assert.Equal(t, []string{"github", "jira"}, cfg.Scheduler.IntegrationTypes)
		assert.Equal(t, 9, cfg.Scheduler.StartHour)
	})

	t.Run("should let env override secrets", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "from-env")
		cfg, err := LoadConfig(writeConfig(t, validYAML), true)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.Security.JWTSecret)
		assert.True(t, cfg.Runtime.Dev)
	})

	t.Run("should require a url for postgres", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := LoadConfig(writeConfig(t, `
storage:
  driver: postgres
security:
  jwt_secret: s
  encryption_key: 0123456789abcdef
`), false)
		assert.ErrorContains(t, err, "storage.url")
	})

	t.Run("should reject a short encryption key", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, `
storage:
  driver: sqlite
security:
  jwt_secret: s
  encryption_key: short
`), false)
		assert.ErrorContains(t, err, "encryption_key")
	})

	t.Run("should fail on a missing explicit file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), false)
		assert.ErrorContains(t, err, "read config")
	})
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("friday")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, d)

	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}
