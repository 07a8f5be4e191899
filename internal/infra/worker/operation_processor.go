package worker

import (
	"context"
	"sync"
	"time"

	"weekly-snippets/internal/infra/logging"

	"github.com/rs/zerolog"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, operationID string) error
}

type QueuedLister interface {
	ListQueuedIDs(ctx context.Context, limit int) ([]string, error)
}

// OperationProcessor feeds queued operations to the pool. Ids arrive either
// through Enqueue or by polling storage, so nothing is lost when a submit
// fails or the process restarts.
type OperationProcessor struct {
	ops        QueuedLister
	dispatcher Dispatcher
	pool       *Pool
	interval   time.Duration
	batch      int
	log        *zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOperationProcessor(ops QueuedLister, dispatcher Dispatcher, pool *Pool, interval time.Duration, logger *zerolog.Logger) *OperationProcessor {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	l := logger.With().Str("component", "operation_processor").Logger()
	return &OperationProcessor{
		ops:        ops,
		dispatcher: dispatcher,
		pool:       pool,
		interval:   interval,
		batch:      pool.Size() * 4,
		log:        &l,
		inFlight:   make(map[string]struct{}),
	}
}

// Enqueue submits id unless it is already being handled by this process.
func (p *OperationProcessor) Enqueue(ctx context.Context, id string) error {
	if !p.claim(id) {
		return nil
	}
	err := p.pool.Submit(func(ctx context.Context) error {
		defer p.release(id)
		return p.dispatcher.Dispatch(logging.WithOperationID(ctx, id), id)
	})
	if err != nil {
		p.release(id)
	}
	return err
}

func (p *OperationProcessor) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.inFlight[id]; ok {
		return false
	}
	p.inFlight[id] = struct{}{}
	return true
}

func (p *OperationProcessor) release(id string) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

func (p *OperationProcessor) InFlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inFlight)
}

// Start polls for queued operations until ctx is done.
// This should be run in a goroutine.
func (p *OperationProcessor) Start(ctx context.Context) {
	p.log.Info().Dur("interval", p.interval).Msg("operation processor started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("operation processor stopping")
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll submits one batch of queued ids.
func (p *OperationProcessor) Poll(ctx context.Context) {
	ids, err := p.ops.ListQueuedIDs(ctx, p.batch)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list queued operations")
		return
	}
	for _, id := range ids {
		if err := p.Enqueue(ctx, id); err != nil {
			p.log.Debug().Err(err).Str("operation_id", id).Msg("pool saturated, retrying next poll")
			return
		}
	}
}
