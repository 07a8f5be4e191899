package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"
)

var _ repository.OperationRepository = (*operationRepo)(nil)

type operationRepo struct {
	db *sql.DB
}

func NewOperationRepo(s *Store) repository.OperationRepository {
	return &operationRepo{db: s.db}
}

const operationColumns = `id, owner_id, operation_type, status, progress, progress_message, period_key, manual,
input_data, result_data, error_message, created_at, updated_at, started_at, completed_at`

func scanOperation(row interface{ Scan(...any) error }) (*model.Operation, error) {
	var (
		op                   model.Operation
		status               string
		periodKey            sql.NullString
		input                string
		result, errMsg       sql.NullString
		createdAt, updatedAt string
		startedAt, doneAt    sql.NullString
	)
	if err := row.Scan(&op.ID, &op.OwnerID, &op.Type, &status, &op.Progress, &op.ProgressMessage, &periodKey, &op.Manual,
		&input, &result, &errMsg, &createdAt, &updatedAt, &startedAt, &doneAt); err != nil {
		return nil, notFound(err)
	}
	op.Status = model.OperationStatus(status)
	op.PeriodKey = nullString(periodKey)
	op.Input = json.RawMessage(input)
	if result.Valid {
		op.Result = json.RawMessage(result.String)
	}
	op.ErrorMessage = nullString(errMsg)

	var err error
	if op.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if op.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if op.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if op.CompletedAt, err = parseNullTime(doneAt); err != nil {
		return nil, err
	}
	return &op, nil
}

func (r *operationRepo) Create(ctx context.Context, op *model.Operation) (bool, error) {
	const q = `
INSERT INTO operations (id, owner_id, operation_type, status, progress, progress_message, period_key, manual, input_data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, q,
		op.ID, op.OwnerID, op.Type, string(op.Status), op.Progress, op.ProgressMessage, op.PeriodKey, op.Manual,
		string(op.Input), stamp(op.CreatedAt), stamp(op.UpdatedAt))
	if err != nil {
		return false, wrap("create operation", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap("create operation", err)
	}
	return n == 1, nil
}

func (r *operationRepo) FindByID(ctx context.Context, id string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE id = ?`
	op, err := scanOperation(r.db.QueryRowContext(ctx, q, id))
	return op, wrap("find operation", err)
}

func (r *operationRepo) FindByIDForOwner(ctx context.Context, ownerID, id string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations WHERE id = ? AND owner_id = ?`
	op, err := scanOperation(r.db.QueryRowContext(ctx, q, id, ownerID))
	return op, wrap("find operation", err)
}

func (r *operationRepo) FindActiveForPeriod(ctx context.Context, ownerID, opType, periodKey string) (*model.Operation, error) {
	const q = `SELECT ` + operationColumns + ` FROM operations
WHERE owner_id = ? AND operation_type = ? AND period_key = ? AND status IN ('queued', 'running', 'completed')
ORDER BY created_at DESC LIMIT 1`
	op, err := scanOperation(r.db.QueryRowContext(ctx, q, ownerID, opType, periodKey))
	return op, wrap("find active operation", err)
}

func (r *operationRepo) ListQueuedIDs(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM operations WHERE status = 'queued' ORDER BY created_at, id LIMIT ?`, limit)
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
	const q = `UPDATE operations SET status = 'running', started_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`
	return r.execChanged(ctx, "mark operation running", q, formatTime(at), formatTime(at), id)
}

func (r *operationRepo) UpdateProgress(ctx context.Context, id string, progress int, message string, at time.Time) (bool, error) {
	const q = `UPDATE operations SET progress = MAX(progress, ?), progress_message = ?, updated_at = ?
WHERE id = ? AND status = 'running'`
	return r.execChanged(ctx, "update operation progress", q, model.ClampProgress(progress), message, formatTime(at), id)
}

func (r *operationRepo) MarkCompleted(ctx context.Context, id string, result json.RawMessage, at time.Time) (bool, error) {
	const q = `UPDATE operations SET status = 'completed', progress = 100, result_data = ?, error_message = NULL,
completed_at = ?, updated_at = ? WHERE id = ? AND status = 'running'`
	return r.execChanged(ctx, "complete operation", q, string(result), formatTime(at), formatTime(at), id)
}

func (r *operationRepo) MarkFailed(ctx context.Context, id, message string, at time.Time) (bool, error) {
	const q = `UPDATE operations SET status = 'failed', error_message = ?, result_data = NULL,
completed_at = ?, updated_at = ? WHERE id = ? AND status = 'running'`
	return r.execChanged(ctx, "fail operation", q, message, formatTime(at), formatTime(at), id)
}

func (r *operationRepo) FailStale(ctx context.Context, cutoff time.Time, message string, at time.Time) (int, error) {
	const q = `UPDATE operations SET status = 'failed', error_message = ?, completed_at = ?, updated_at = ?
WHERE status = 'running' AND updated_at < ?`
	res, err := r.db.ExecContext(ctx, q, message, formatTime(at), formatTime(at), formatTime(cutoff))
	if err != nil {
		return 0, wrap("fail stale operations", err)
	}
	n, err := res.RowsAffected()
	return int(n), wrap("fail stale operations", err)
}

func (r *operationRepo) execChanged(ctx context.Context, op, q string, args ...any) (bool, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, wrap(op, err)
	}
	return n > 0, nil
}
