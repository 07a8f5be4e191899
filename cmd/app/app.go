package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"weekly-snippets/internal/config"
	"weekly-snippets/internal/domain/ports/adapter"
	"weekly-snippets/internal/domain/ports/repository"
	aiAdapters "weekly-snippets/internal/infra/adapters/ai"
	"weekly-snippets/internal/infra/adapters/integration"
	pg "weekly-snippets/internal/infra/db/postgres"
	"weekly-snippets/internal/infra/db/sqlite"
	red "weekly-snippets/internal/infra/redis"
	"weekly-snippets/internal/infra/sched"
	"weekly-snippets/internal/infra/security"
	"weekly-snippets/internal/usecase"
)

// app holds the storage and cache wiring shared by all commands.
type app struct {
	cfg    *config.Config
	log    *zerolog.Logger
	driver string

	users    repository.UserRepository
	ops      repository.OperationRepository
	sessions repository.SessionOpener
	tm       repository.TransactionManager
	stats    sched.StatsSource
	ping     func(ctx context.Context) error

	redis   *red.Client
	closers []func() error
}

// openApp connects storage (running migrations) and, when configured, Redis.
// A Redis failure is logged and the app continues without it.
func openApp(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	cipher, err := security.NewTokenCipher(cfg.Security.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption: %w", err)
	}

	a := &app{cfg: cfg, log: logger, driver: cfg.Storage.Driver}
	switch cfg.Storage.Driver {
	case "postgres":
		pool, err := pg.Connect(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		applied, err := pg.Migrate(ctx, pool)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			logger.Info().Ints("versions", applied).Msg("applied migrations")
		}
		a.users = pg.NewUserRepo(pool)
		a.ops = pg.NewOperationRepo(pool)
		a.sessions = pg.NewSessionOpener(pool, cipher)
		a.tm = pg.NewTxManager(pool)
		a.stats = pg.PoolStats{Pool: pool}
		a.ping = func(ctx context.Context) error { return pool.Ping(ctx) }
	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.DataDir, sqliteConns(cfg))
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		a.users = sqlite.NewUserRepo(store)
		a.ops = sqlite.NewOperationRepo(store)
		a.sessions = sqlite.NewSessionOpener(store, cipher)
		a.tm = sqlite.NewTxManager(store)
		a.stats = store
		a.ping = store.Ping
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, continuing without cache, locks and rate limits")
		} else {
			a.redis = rc
			a.closers = append(a.closers, rc.Close)
			a.ops = red.NewCachedOperationRepo(a.ops, rc, cfg.Redis.TTL, logger)
		}
	}
	return a, nil
}

// sqliteConns sizes the SQLite pool so held scoped sessions never starve the
// progress writes and owner lookups issued alongside them.
func sqliteConns(cfg *config.Config) int {
	need := (cfg.Worker.Workers+cfg.Scheduler.Concurrency)*2 + 4
	return max(int(cfg.Storage.MaxConns), need)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
	a.closers = nil
}

func (a *app) healthCheck(ctx context.Context) error {
	if err := a.ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if a.redis != nil {
		if err := a.redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// locker returns nil without Redis so callers see an untyped nil interface.
func (a *app) locker() usecase.Locker {
	if a.redis == nil {
		return nil
	}
	return red.NewLocker(a.redis)
}

func (a *app) scopes() *usecase.ScopeFactory {
	return usecase.NewScopeFactory(a.sessions, a.ops, a.users, a.log)
}

// buildAI routes by model name across every configured provider and falls
// back to the noop adapter when no key is set.
func buildAI(ctx context.Context, cfg config.AIConfig, logger *zerolog.Logger) (adapter.AIServiceAdapter, error) {
	providers := map[string]adapter.AIServiceAdapter{}
	if cfg.GeminiKey != "" {
		g, err := aiAdapters.NewGeminiAdapter(ctx, cfg.GeminiKey, cfg.GeminiURL, cfg.DefaultModel, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("gemini adapter: %w", err)
		}
		providers["gemini"] = g
	}
	if cfg.OpenAIKey != "" {
		model := cfg.DefaultModel
		if strings.HasPrefix(strings.ToLower(model), "gemini") {
			model = ""
		}
		o, err := aiAdapters.NewOpenAIAdapter(cfg.OpenAIKey, cfg.OpenAIBaseURL, model, cfg.MaxOutputTokens)
		if err != nil {
			return nil, fmt.Errorf("openai adapter: %w", err)
		}
		providers["openai"] = o
	}
	if len(providers) == 0 {
		logger.Warn().Msg("no AI provider configured, using noop adapter")
		return aiAdapters.NewNoopAIAdapter(logger), nil
	}

	def := "gemini"
	if strings.HasPrefix(strings.ToLower(cfg.DefaultModel), "gpt") {
		def = "openai"
	}
	if _, ok := providers[def]; !ok {
		for name := range providers {
			def = name
		}
	}
	logger.Info().Str("default_provider", def).Str("model", cfg.DefaultModel).Int("providers", len(providers)).Msg("AI adapter ready")
	return aiAdapters.NewLimitedAI(aiAdapters.NewMultiAIAdapter(def, providers, nil), cfg.ConcurrentLimit), nil
}

func buildSources(cfg config.IntegrationsConfig, logger *zerolog.Logger) (adapter.IntegrationSource, error) {
	if cfg.BaseURL == "" {
		logger.Warn().Msg("integrations.base_url not set, activity fetches return nothing")
		return integration.NoopSource{}, nil
	}
	return integration.NewHTTPSource(cfg.BaseURL, cfg.Timeout)
}

func schedulerPolicy(cfg config.SchedulerConfig) (usecase.WeeklyWindowPolicy, error) {
	day, err := config.ParseWeekday(cfg.Weekday)
	if err != nil {
		return usecase.WeeklyWindowPolicy{}, err
	}
	return usecase.WeeklyWindowPolicy{Weekday: day, StartHour: cfg.StartHour, EndHour: cfg.EndHour}, nil
}

// ignoreShutdown drops the errors every component returns on a clean stop.
func ignoreShutdown(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
