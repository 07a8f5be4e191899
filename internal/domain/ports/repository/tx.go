package repository

import "context"

// Tx is an infra-defined transaction handle (pgx.Tx, *sql.Tx). Repositories
// accept nil for the non-transactional path.
type Tx interface{}

// TransactionManager runs fn inside one transaction; a returned error rolls it back.
type TransactionManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
