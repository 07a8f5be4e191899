package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	db *sql.DB
}

func NewUserRepo(s *Store) repository.UserRepository {
	return &userRepo{db: s.db}
}

const userColumns = `id, email, timezone, onboarded, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var createdAt string
	if err := row.Scan(&u.ID, &u.Email, &u.Timezone, &u.Onboarded, &createdAt); err != nil {
		return nil, notFound(err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	u.CreatedAt = t
	return &u, nil
}

func (r *userRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO users (id, email, timezone, onboarded, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
  email = excluded.email,
  timezone = excluded.timezone,
  onboarded = excluded.onboarded`
	_, err = ex.ExecContext(ctx, q, u.ID, u.Email, u.Timezone, u.Onboarded, stamp(u.CreatedAt))
	return wrap("save user", err)
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(ex.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	return u, wrap("find user", err)
}

func (r *userRepo) SeedProfile(ctx context.Context, tx repository.Tx, ownerID, name string) error {
	ex, err := getExecutor(r.db, tx)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO profiles (owner_id, name, updated_at) VALUES (?, ?, ?) ON CONFLICT (owner_id) DO NOTHING`,
		ownerID, name, stamp(time.Time{}))
	return wrap("seed profile", err)
}

func (r *userRepo) ListEligible(ctx context.Context, integrationTypes []string) ([]*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users u WHERE u.onboarded = 1 AND EXISTS (
  SELECT 1 FROM integrations i WHERE i.owner_id = u.id AND i.is_active = 1`
	args := make([]any, 0, len(integrationTypes))
	if len(integrationTypes) > 0 {
		q += ` AND i.type IN (?` + strings.Repeat(",?", len(integrationTypes)-1) + `)`
		for _, t := range integrationTypes {
			args = append(args, strings.ToLower(t))
		}
	}
	q += `) ORDER BY u.created_at, u.id`

	rows, err := r.db.QueryContext(ctx, q, args...)
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
