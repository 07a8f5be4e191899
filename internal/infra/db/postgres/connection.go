package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"weekly-snippets/internal/config"
	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/infra/metrics"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect returns a live pool sized from config.
func Connect(ctx context.Context, cfg config.StorageConfig) (*pgxpool.Pool, error) {
	if cfg.URL == "" {
		return nil, errors.New("storage.url is required")
	}
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect failed: %w", err)
	}
	return pool, nil
}

// Migrate applies embedded migrations not yet recorded in schema_version.
// Each file runs in its own transaction.
func Migrate(ctx context.Context, pool *pgxpool.Pool) ([]int, error) {
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return nil, fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var applied []int
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &version); err != nil {
			return applied, fmt.Errorf("parsing migration version from %q: %w", entry.Name(), err)
		}
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return applied, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		err = NewTxManager(pool).inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1) ON CONFLICT DO NOTHING`, version)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return errAlreadyApplied
			}
			_, err = tx.Exec(ctx, string(content))
			return err
		})
		switch {
		case errors.Is(err, errAlreadyApplied):
			continue
		case err != nil:
			return applied, fmt.Errorf("applying migration %d: %w", version, err)
		}
		applied = append(applied, version)
	}
	return applied, nil
}

var errAlreadyApplied = errors.New("migration already applied")

// isUniqueViolation reports a 23505 from Postgres.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func wrap(op string, err error) error {
	if err == nil || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, domain.ErrAlreadyExists)
	}
	if !errors.Is(err, context.Canceled) {
		metrics.IncStorageError(op)
	}
	return domain.NewStorageError(op, err)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
