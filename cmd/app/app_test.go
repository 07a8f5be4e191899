//go:build !integration

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"weekly-snippets/internal/config"
	aiAdapters "weekly-snippets/internal/infra/adapters/ai"
	"weekly-snippets/internal/infra/adapters/integration"
	"weekly-snippets/internal/infra/security"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := strings.Join([]string{
		"log:",
		"  level: error",
		"storage:",
		"  driver: sqlite",
		"  data_dir: " + filepath.Join(dir, "data"),
		"security:",
		"  jwt_secret: test-secret",
		"  encryption_key: 0123456789abcdef0123456789abcdef",
	}, "\n")
	path := filepath.Join(dir, "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestCommands(t *testing.T) {
	path := writeConfig(t)

	t.Run("should migrate the sqlite store", func(t *testing.T) {
		out := execute(t, "--config", path, "migrate")
		assert.Contains(t, out, "sqlite schema is up to date")
	})

	t.Run("should add a user and mint tokens for it", func(t *testing.T) {
		out := execute(t, "--config", path, "user", "add", "--email", "Ada@Example.com", "--tz", "Europe/London")
		var id, tok string
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if v, ok := strings.CutPrefix(line, "id="); ok {
				id = v
			}
			if v, ok := strings.CutPrefix(line, "token="); ok {
				tok = v
			}
		}
		require.NotEmpty(t, id)
		auth := security.NewAuthManager("test-secret")
		sub, err := auth.Parse(tok)
		require.NoError(t, err)
		assert.Equal(t, id, sub)

		out = execute(t, "--config", path, "user", "token", "--id", id)
		sub, err = auth.Parse(strings.TrimSpace(out))
		require.NoError(t, err)
		assert.Equal(t, id, sub)
	})

	t.Run("should run a single tick", func(t *testing.T) {
		out := execute(t, "--config", path, "tick", "--at", "2025-07-23T12:00:00Z")
		assert.Contains(t, out, "enqueued=0")
	})
}

func TestWiringHelpers(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("should size the sqlite pool above held sessions", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Storage.MaxConns = 4
		cfg.Worker.Workers = 4
		cfg.Scheduler.Concurrency = 4
		assert.Equal(t, 20, sqliteConns(cfg))

		cfg.Storage.MaxConns = 64
		assert.Equal(t, 64, sqliteConns(cfg))
	})

	t.Run("should fall back to the noop AI adapter", func(t *testing.T) {
		a, err := buildAI(context.Background(), config.AIConfig{DefaultModel: "gemini-2.0-flash"}, &logger)
		require.NoError(t, err)
		assert.IsType(t, &aiAdapters.NoopAIAdapter{}, a)
	})

	t.Run("should build an openai only router", func(t *testing.T) {
		a, err := buildAI(context.Background(), config.AIConfig{
			OpenAIKey:       "sk-test",
			DefaultModel:    "gemini-2.0-flash",
			ConcurrentLimit: 0,
		}, &logger)
		require.NoError(t, err)
		m, ok := a.(*aiAdapters.MultiAIAdapter)
		require.True(t, ok)
		assert.Equal(t, 1, m.Providers())
	})

	t.Run("should pick the integration source from config", func(t *testing.T) {
		s, err := buildSources(config.IntegrationsConfig{}, &logger)
		require.NoError(t, err)
		assert.IsType(t, integration.NoopSource{}, s)

		s, err = buildSources(config.IntegrationsConfig{BaseURL: "http://activity.local", Timeout: time.Second}, &logger)
		require.NoError(t, err)
		assert.IsType(t, &integration.HTTPSource{}, s)
	})

	t.Run("should parse the scheduler window", func(t *testing.T) {
		p, err := schedulerPolicy(config.SchedulerConfig{Weekday: "Friday", StartHour: 15, EndHour: 18})
		require.NoError(t, err)
		assert.Equal(t, time.Friday, p.Weekday)

		_, err = schedulerPolicy(config.SchedulerConfig{Weekday: "someday"})
		assert.Error(t, err)
	})
}
