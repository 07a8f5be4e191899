package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"
	"weekly-snippets/internal/infra/logging"
	"weekly-snippets/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Handler performs the work of one operation type. The returned value is
// stored as the operation result after JSON encoding.
type Handler interface {
	Process(ctx context.Context, input json.RawMessage, hctx *HandlerContext) (any, error)
}

type HandlerFunc func(ctx context.Context, input json.RawMessage, hctx *HandlerContext) (any, error)

func (f HandlerFunc) Process(ctx context.Context, input json.RawMessage, hctx *HandlerContext) (any, error) {
	return f(ctx, input, hctx)
}

// FailureReporter lets a result mark the operation failed without an error return.
type FailureReporter interface {
	FailureMessage() (string, bool)
}

// Registry maps operation types to handlers. It is immutable once built.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers map[string]Handler) *Registry {
	m := make(map[string]Handler, len(handlers))
	for k, h := range handlers {
		if h != nil {
			m[k] = h
		}
	}
	return &Registry{handlers: m}
}

func (r *Registry) Lookup(opType string) (Handler, bool) {
	h, ok := r.handlers[opType]
	return h, ok
}

func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HandlerContext is handed to a running handler.
type HandlerContext struct {
	ops         repository.OperationRepository
	operationID string
	ownerID     string
	now         func() time.Time

	mu   sync.Mutex
	last int
}

func (h *HandlerContext) OwnerID() string     { return h.ownerID }
func (h *HandlerContext) OperationID() string { return h.operationID }

// UpdateProgress persists progress immediately. Values are clamped to
// [0,100] and never move backwards.
func (h *HandlerContext) UpdateProgress(ctx context.Context, percent int, message string) error {
	h.mu.Lock()
	p := model.ClampProgress(percent)
	if p < h.last {
		p = h.last
	}
	h.last = p
	h.mu.Unlock()

	if _, err := h.ops.UpdateProgress(ctx, h.operationID, p, message, h.now()); err != nil {
		return err
	}
	metrics.IncProgressUpdate()
	return nil
}

type Dispatcher struct {
	ops             repository.OperationRepository
	registry        *Registry
	log             *zerolog.Logger
	now             func() time.Time
	terminalTimeout time.Duration
}

func NewDispatcher(ops repository.OperationRepository, registry *Registry, logger *zerolog.Logger) *Dispatcher {
	l := logger.With().Str("component", "dispatcher").Logger()
	return &Dispatcher{
		ops:             ops,
		registry:        registry,
		log:             &l,
		now:             time.Now,
		terminalTimeout: 10 * time.Second,
	}
}

// Dispatch runs the queued operation id to a terminal state. Operations that
// are not queued, or that another worker claims first, are left alone.
// Returned errors come from loading or claiming only; handler failures are
// recorded on the operation.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	op, err := d.ops.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load operation %s: %w", id, err)
	}
	if op.Status != model.OperationStatusQueued {
		return nil
	}

	ctx = logging.WithOperationID(logging.WithOwnerID(ctx, op.OwnerID), op.ID)
	log := logging.With(ctx, d.log)

	claimed, err := d.ops.MarkRunning(ctx, op.ID, d.now())
	if err != nil {
		return fmt.Errorf("claim operation %s: %w", id, err)
	}
	if !claimed {
		log.Debug().Msg("operation claimed elsewhere")
		return nil
	}
	start := time.Now()

	handler, ok := d.registry.Lookup(op.Type)
	if !ok {
		d.fail(ctx, op, fmt.Sprintf("no handler registered for operation type %s", op.Type), start)
		return nil
	}

	hctx := &HandlerContext{ops: d.ops, operationID: op.ID, ownerID: op.OwnerID, now: d.now}
	result, herr := d.invoke(ctx, handler, op.Input, hctx)
	if herr != nil {
		msg := herr.Error()
		if msg == "" {
			msg = "operation failed"
		}
		d.fail(ctx, op, msg, start)
		return nil
	}
	if fr, ok := result.(FailureReporter); ok {
		if msg, failed := fr.FailureMessage(); failed {
			d.fail(ctx, op, msg, start)
			return nil
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		d.fail(ctx, op, "encode result: "+err.Error(), start)
		return nil
	}

	tctx, cancel := d.terminalContext(ctx)
	defer cancel()
	if _, err := d.ops.MarkCompleted(tctx, op.ID, data, d.now()); err != nil {
		log.Error().Err(err).Msg("failed to mark operation completed")
		return nil
	}
	metrics.ObserveOperation(op.Type, string(model.OperationStatusCompleted), time.Since(start))
	log.Info().Dur("duration", time.Since(start)).Msg("operation completed")
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, input json.RawMessage, hctx *HandlerContext) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Process(ctx, input, hctx)
}

// terminalContext survives cancellation of the dispatch context so a
// shutdown never strands an operation in running.
func (d *Dispatcher) terminalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), d.terminalTimeout)
}

func (d *Dispatcher) fail(ctx context.Context, op *model.Operation, msg string, start time.Time) {
	log := logging.With(ctx, d.log)
	tctx, cancel := d.terminalContext(ctx)
	defer cancel()
	if _, err := d.ops.MarkFailed(tctx, op.ID, msg, d.now()); err != nil {
		log.Error().Err(err).Str("reason", msg).Msg("failed to mark operation failed")
		return
	}
	metrics.ObserveOperation(op.Type, string(model.OperationStatusFailed), time.Since(start))
	log.Warn().Str("reason", msg).Msg("operation failed")
}
