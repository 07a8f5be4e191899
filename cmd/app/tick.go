package main

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"

	"weekly-snippets/internal/infra/rabbitmq"
	"weekly-snippets/internal/usecase"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass and exit",
	Long: "Runs the generation scheduler once, ignoring the interval. Created operations are " +
		"published when a queue is configured and otherwise stay queued for a running serve process.",
	RunE: runTick,
}

var tickAt string

func init() {
	tickCmd.Flags().StringVar(&tickAt, "at", "", "evaluate the trigger window at this RFC3339 time instead of now")
	rootCmd.AddCommand(tickCmd)
}

// storedOnly leaves operations queued in storage for the serve poller.
type storedOnly struct{}

func (storedOnly) Enqueue(context.Context, string) error { return nil }

func runTick(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	now := time.Now()
	if tickAt != "" {
		if now, err = time.Parse(time.RFC3339, tickAt); err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	a, err := openApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var enqueuer usecase.Enqueuer = storedOnly{}
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
		enqueuer = pub
	}

	policy, err := schedulerPolicy(cfg.Scheduler)
	if err != nil {
		return err
	}
	gs := usecase.NewGenerationScheduler(a.users, a.scopes(), enqueuer, policy, a.locker(), usecase.SchedulerOptions{
		IntegrationTypes:       cfg.Scheduler.IntegrationTypes,
		Concurrency:            cfg.Scheduler.Concurrency,
		IncludePreviousContext: true,
	}, logger)

	report, err := gs.Tick(cmd.Context(), now)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "eligible=%d enqueued=%d skipped=%d failed=%d\n",
		report.Eligible, report.Enqueued, report.Skipped, report.Failed)
	return nil
}
