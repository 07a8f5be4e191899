package postgres

import (
	"context"
	"encoding/json"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.OperationRepository = (*operationRepo)(nil)

type operationRepo struct {
	pool *pgxpool.Pool
}

func NewOperationRepo(pool *pgxpool.Pool) repository.OperationRepository {
	return &operationRepo{pool: pool}
}

const operationColumns = `id, owner_id, operation_type, status, progress, progress_message, period_key, manual,
input_data, result_data, error_message, created_at, updated_at, started_at, completed_at`

func scanOperation(row pgx.Row) (*model.Operation, error) {
	var (
		op            model.Operation
		status        string
		input, result []byte
	)
	err := row.Scan(&op.ID, &op.OwnerID, &op.Type, &status, &op.Progress, &op.ProgressMessage, &op.PeriodKey, &op.Manual,
		&input, &result, &op.ErrorMessage, &op.CreatedAt, &op.UpdatedAt, &op.StartedAt, &op.CompletedAt)
	if err != nil {
		return nil, notFound(err)
	}
	op.Status = model.OperationStatus(status)
	op.Input = json.RawMessage(input)
	if result != nil {
		op.Result = json.RawMessage(result)
	}
	return &op, nil
}

// Create relies on the partial unique index over active period keys; a
// conflicting insert is skipped rather than raised.
func (r *operationRepo) Create(ctx context.Context, op *model.Operation) (bool, error) {
	const q = `
INSERT INTO operations (id, owner_id, operation_type, status, progress, progress_message, period_key, manual, input_data, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT DO NOTHING`
	tag, err := r.pool.Exec(ctx, q,
		op.ID, op.OwnerID, op.Type, string(op.Status), op.Progress, op.ProgressMessage, op.PeriodKey, op.Manual,
		string(op.Input), stamp(op.CreatedAt), stamp(op.UpdatedAt))
	if err != nil {
		return false, wrap("create operation", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *operationRepo) FindByID(ctx context.Context, id string) (*model.Operation, error) {
	op, err := scanOperation(r.pool.QueryRow(ctx, `SELECT `+operationColumns+` FROM operations WHERE id = $1`, id))
	return op, wrap("find operation", err)
}

func (r *operationRepo) FindByIDForOwner(ctx context.Context, ownerID, id string) (*model.Operation, error) {
	op, err := scanOperation(r.pool.QueryRow(ctx,
		`SELECT `+operationColumns+` FROM operations WHERE id = $1 AND owner_id = $2`, id, ownerID))
	return op, wrap("find operation", err)
}

func (r *operationRepo) FindActiveForPeriod(ctx context.Context, ownerID, opType, periodKey string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations
WHERE owner_id = $1 AND operation_type = $2 AND period_key = $3 AND status IN ('queued', 'running', 'completed')
ORDER BY created_at DESC LIMIT 1`
	op, err := scanOperation(r.pool.QueryRow(ctx, q, ownerID, opType, periodKey))
	return op, wrap("find active operation", err)
}

func (r *operationRepo) ListQueuedIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM operations WHERE status = 'queued' ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, wrap("list queued operations", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap("list queued operations", err)
		}
		ids = append(ids, id)
	}
	return ids, wrap("list queued operations", rows.Err())
}

func (r *operationRepo) MarkRunning(ctx context.Context, id string, at time.Time) (bool, error) {
	const q = `UPDATE operations SET status = 'running', started_at = $1, updated_at = $1 WHERE id = $2 AND status = 'queued'`
	return r.execChanged(ctx, "mark operation running", q, stamp(at), id)
}

func (r *operationRepo) UpdateProgress(ctx context.Context, id string, progress int, message string, at time.Time) (bool, error) {
	const q = `UPDATE operations SET progress = GREATEST(progress, $1), progress_message = $2, updated_at = $3
WHERE id = $4 AND status = 'running'`
	return r.execChanged(ctx, "update operation progress", q, model.ClampProgress(progress), message, stamp(at), id)
}

func (r *operationRepo) MarkCompleted(ctx context.Context, id string, result json.RawMessage, at time.Time) (bool, error) {
	const q = `UPDATE operations SET status = 'completed', progress = 100, result_data = $1, error_message = NULL,
completed_at = $2, updated_at = $2 WHERE id = $3 AND status = 'running'`
	return r.execChanged(ctx, "complete operation", q, string(result), stamp(at), id)
}

func (r *operationRepo) MarkFailed(ctx context.Context, id, message string, at time.Time) (bool, error) {
	const q = `UPDATE operations SET status = 'failed', error_message = $1, result_data = NULL,
completed_at = $2, updated_at = $2 WHERE id = $3 AND status = 'running'`
	return r.execChanged(ctx, "fail operation", q, message, stamp(at), id)
}

func (r *operationRepo) FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error) {
	const q = `UPDATE operations SET status = 'failed', error_message = $1, completed_at = $2, updated_at = $2
WHERE status = 'running' AND updated_at < $3`
	tag, err := r.pool.Exec(ctx, q, message, stamp(at), cutoff.UTC())
	if err != nil {
		return 0, wrap("fail stale operations", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *operationRepo) execChanged(ctx context.Context, op, q string, args ...any) (bool, error) {
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return false, wrap(op, err)
	}
	return tag.RowsAffected() > 0, nil
}
