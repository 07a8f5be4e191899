package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

const txAttempts = 3

// TxManager hands repositories a pgx.Tx as their repository.Tx.
type TxManager struct {
	pool     *pgxpool.Pool
	attempts int
}

func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool, attempts: txAttempts}
}

// WithTx runs fn in one read-committed transaction. When Postgres aborts it
// with a serialization failure or deadlock the whole callback runs again, so
// fn must not have side effects outside tx.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := m.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error { return fn(ctx, tx) })
		if err == nil || attempt >= m.attempts || ctx.Err() != nil || !isRetryableTx(err) {
			return err
		}
	}
}

// inTx is a single attempt: commit on success, rollback otherwise.
func (m *TxManager) inTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isRetryableTx matches serialization_failure (40001) and deadlock_detected (40P01).
func isRetryableTx(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

type executor interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// getExecutor resolves a repository.Tx to something that can run SQL; nil
// means the pool.
func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (executor, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case nil:
		if pool == nil {
			return nil, domain.ErrInvalidArgument
		}
		return pool, nil
	default:
		return nil, domain.ErrInvalidExecContext
	}
}
