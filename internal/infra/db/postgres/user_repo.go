package postgres

import (
	"context"
	"strings"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) repository.UserRepository {
	return &userRepo{pool: pool}
}

const userColumns = `id, email, timezone, onboarded, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Timezone, &u.Onboarded, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Save upserts by id; a duplicate email surfaces as domain.ErrAlreadyExists.
func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO users (id, email, timezone, onboarded, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  timezone = EXCLUDED.timezone,
  onboarded = EXCLUDED.onboarded;`
	_, err = ex.Exec(ctx, q, u.ID, u.Email, u.Timezone, u.Onboarded, stamp(u.CreatedAt))
	return wrap("save user", err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(ex.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	return u, wrap("find user", err)
}

func (r *userRepo) SeedProfile(ctx context.Context, tx repository.Tx, ownerID, name string) error {
	ex, err := getExecutor(r.pool, tx)
	if err != nil {
		return err
	}
	_, err = ex.Exec(ctx,
		`INSERT INTO profiles (owner_id, name, updated_at) VALUES ($1, $2, $3) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, name, time.Now().UTC())
	return wrap("seed profile", err)
}

func (r *userRepo) ListEligible(ctx context.Context, integrationTypes []string) ([]*model.User, error) {
	types := make([]string, 0, len(integrationTypes))
	for _, t := range integrationTypes {
		types = append(types, strings.ToLower(t))
	}
	const q = `
SELECT ` + userColumns + ` FROM users u
WHERE u.onboarded AND EXISTS (
  SELECT 1 FROM integrations i
  WHERE i.owner_id = u.id AND i.is_active AND (cardinality($1::text[]) = 0 OR i.type = ANY($1::text[]))
)
ORDER BY u.created_at, u.id`
	rows, err := r.pool.Query(ctx, q, types)
	if err != nil {
		return nil, wrap("list eligible users", err)
	}
	defer rows.Close()

	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, wrap("list eligible users", err)
		}
		out = append(out, u)
	}
	return out, wrap("list eligible users", rows.Err())
}
