package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/infra/api"
	"weekly-snippets/internal/infra/metrics"
	"weekly-snippets/internal/infra/rabbitmq"
	red "weekly-snippets/internal/infra/redis"
	"weekly-snippets/internal/infra/sched"
	"weekly-snippets/internal/infra/scheduler"
	"weekly-snippets/internal/infra/security"
	"weekly-snippets/internal/infra/worker"
	"weekly-snippets/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, workers and the generation scheduler",
	RunE:  runServe,
}

var serveNoScheduler bool

func init() {
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "do not run scheduled generation in this process")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	logger.Info().Str("version", version).Str("driver", cfg.Storage.Driver).Msg("starting")

	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ai, err := buildAI(ctx, cfg.AI, logger)
	if err != nil {
		return err
	}
	sources, err := buildSources(cfg.Integrations, logger)
	if err != nil {
		return err
	}

	scopes := a.scopes()
	handler := usecase.NewSnippetGenerationHandler(a.users, scopes, ai, sources, usecase.SnippetGenerationOptions{
		Model:            cfg.AI.DefaultModel,
		PreviousSnippets: cfg.Scheduler.PreviousSnippets,
		TokenBudget:      cfg.AI.ContextTokenBudget,
		FetchTimeout:     cfg.Integrations.Timeout,
	}, logger)
	registry := usecase.NewRegistry(map[string]usecase.Handler{
		model.OperationTypeWeeklySnippet: handler,
	})
	dispatcher := usecase.NewDispatcher(a.ops, registry, logger)

	g, gctx := errgroup.WithContext(ctx)

	// The pool and poller always run: they pick up anything an enqueue missed.
	pool := worker.NewPool(cfg.Worker.Workers, logger)
	pool.Start(gctx)
	defer pool.Stop()
	processor := worker.NewOperationProcessor(a.ops, dispatcher, pool, cfg.Worker.PollInterval, logger)
	g.Go(func() error { processor.Start(gctx); return nil })

	var enqueuer usecase.Enqueuer = processor
	if cfg.Queue.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.Queue.AMQPURL)
		if err != nil {
			return fmt.Errorf("amqp: %w", err)
		}
		defer conn.Close()

		pub, err := rabbitmq.NewPublisher(conn, cfg.Queue.Exchange, cfg.Queue.Queue)
		if err != nil {
			return fmt.Errorf("amqp publisher: %w", err)
		}
		defer pub.Close()
		consumer, err := rabbitmq.NewConsumer(conn, cfg.Queue.Exchange, cfg.Queue.Queue, cfg.Queue.Queue, cfg.Worker.Workers, dispatcher, logger)
		if err != nil {
			return fmt.Errorf("amqp consumer: %w", err)
		}
		defer consumer.Close()
		g.Go(func() error { return consumer.Start(gctx) })
		enqueuer = pub
		logger.Info().Str("exchange", cfg.Queue.Exchange).Str("queue", cfg.Queue.Queue).Msg("using rabbitmq transport")
	}

	reclaim := sched.NewReclaimWorker(cfg.Worker.StaleAfter/4, cfg.Worker.StaleAfter, a.ops, logger)
	g.Go(func() error { return reclaim.Run(gctx) })
	sampler := sched.NewPoolStatsSampler(a.driver, a.stats, 15*time.Second)
	g.Go(func() error { return sampler.Run(gctx) })

	if !serveNoScheduler {
		s, err := newGenerationScheduler(a, enqueuer)
		if err != nil {
			return err
		}
		s.Start(gctx)
		defer s.Stop()
	}

	deps := api.Deps{
		Auth:           security.NewAuthManager(cfg.Security.JWTSecret),
		Scopes:         scopes,
		Operations:     usecase.NewOperationUseCase(a.users, scopes, enqueuer, logger),
		TriggerKey:     red.TriggerKey,
		TriggerLimit:   cfg.Server.TriggerLimit,
		TriggerEvery:   cfg.Server.TriggerWindow,
		Health:         a.healthCheck,
		RequestTimeout: cfg.Server.RequestTimeout,
		Logger:         logger,
	}
	if a.redis != nil {
		deps.Limiter = red.NewWindowLimiter(a.redis)
	}
	srv := api.NewServer(deps).HTTPServer(cfg.Server.Port)

	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return ignoreShutdown(g.Wait())
}

// newGenerationScheduler builds the interval runner around the tick logic,
// guarded by the cluster-wide tick lock when Redis is available.
func newGenerationScheduler(a *app, enqueuer usecase.Enqueuer) (*scheduler.Scheduler, error) {
	policy, err := schedulerPolicy(a.cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	locker := a.locker()
	gs := usecase.NewGenerationScheduler(a.users, a.scopes(), enqueuer, policy, locker, usecase.SchedulerOptions{
		IntegrationTypes:       a.cfg.Scheduler.IntegrationTypes,
		Concurrency:            a.cfg.Scheduler.Concurrency,
		IncludePreviousContext: true,
	}, a.log)

	s := scheduler.NewScheduler(a.cfg.Scheduler.Interval, gs, a.log)
	if locker != nil {
		s = s.WithLock(locker, red.TickLockKey())
	}
	return s, nil
}
