package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var (
	_ repository.SessionOpener = (*SessionOpener)(nil)
	_ repository.Session       = (*session)(nil)
)

type SessionOpener struct {
	pool   *pgxpool.Pool
	cipher repository.TokenCipher
}

func NewSessionOpener(pool *pgxpool.Pool, cipher repository.TokenCipher) *SessionOpener {
	return &SessionOpener{pool: pool, cipher: cipher}
}

// Open acquires one pooled connection; Close releases it.
func (o *SessionOpener) Open(ctx context.Context) (repository.Session, error) {
	conn, err := o.pool.Acquire(ctx)
	if err != nil {
		return nil, wrap("acquire connection", err)
	}
	return &session{conn: conn, cipher: o.cipher}, nil
}

type session struct {
	conn    *pgxpool.Conn
	cipher  repository.TokenCipher
	release sync.Once
}

func (s *session) Close() error {
	s.release.Do(s.conn.Release)
	return nil
}

// --- snippets ---

const snippetColumns = `id, year, week, start_date, end_date, content, summary, highlights, created_at, updated_at`

func scanSnippet(row pgx.Row) (*model.WeeklySnippet, error) {
	var sn model.WeeklySnippet
	err := row.Scan(&sn.ID, &sn.Year, &sn.Week, &sn.StartDate, &sn.EndDate, &sn.Content,
		&sn.Summary, &sn.Highlights, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if sn.Highlights == nil {
		sn.Highlights = []string{}
	}
	return &sn, nil
}

func (s *session) UpsertSnippet(ctx context.Context, ownerID string, sn *model.WeeklySnippet) (*model.WeeklySnippet, error) {
	if sn.ID == "" {
		sn.ID = uuid.NewString()
	}
	highlights := sn.Highlights
	if highlights == nil {
		highlights = []string{}
	}
	now := stamp(sn.UpdatedAt)

	const q = `
INSERT INTO weekly_snippets (id, owner_id, year, week, start_date, end_date, content, summary, highlights, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (owner_id, year, week) DO UPDATE SET
  start_date = EXCLUDED.start_date,
  end_date = EXCLUDED.end_date,
  content = EXCLUDED.content,
  summary = COALESCE(EXCLUDED.summary, weekly_snippets.summary),
  highlights = EXCLUDED.highlights,
  updated_at = EXCLUDED.updated_at
RETURNING ` + snippetColumns

	out, err := scanSnippet(s.conn.QueryRow(ctx, q,
		sn.ID, ownerID, sn.Year, sn.Week, sn.StartDate, sn.EndDate, sn.Content, sn.Summary, highlights, now))
	return out, wrap("upsert snippet", err)
}

func (s *session) ListSnippets(ctx context.Context, ownerID string, limit int) ([]*model.WeeklySnippet, error) {
	q := `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE owner_id = $1 ORDER BY year DESC, week DESC`
	args := []any{ownerID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, wrap("list snippets", err)
	}
	defer rows.Close()

	var out []*model.WeeklySnippet
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, wrap("list snippets", err)
		}
		out = append(out, sn)
	}
	return out, wrap("list snippets", rows.Err())
}

func (s *session) FindSnippet(ctx context.Context, ownerID, id string) (*model.WeeklySnippet, error) {
	const q = `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE id = $1 AND owner_id = $2`
	sn, err := scanSnippet(s.conn.QueryRow(ctx, q, id, ownerID))
	return sn, wrap("find snippet", err)
}

func (s *session) FindSnippetByPeriod(ctx context.Context, ownerID string, year, week int) (*model.WeeklySnippet, error) {
	const q = `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE owner_id = $1 AND year = $2 AND week = $3`
	sn, err := scanSnippet(s.conn.QueryRow(ctx, q, ownerID, year, week))
	return sn, wrap("find snippet by period", err)
}

func (s *session) UpdateSnippetContent(ctx context.Context, ownerID, id, content string, at time.Time) (*model.WeeklySnippet, error) {
	const q = `UPDATE weekly_snippets SET content = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4 RETURNING ` + snippetColumns
	sn, err := scanSnippet(s.conn.QueryRow(ctx, q, content, stamp(at), id, ownerID))
	return sn, wrap("update snippet", err)
}

func (s *session) DeleteSnippet(ctx context.Context, ownerID, id string) error {
	tag, err := s.conn.Exec(ctx, `DELETE FROM weekly_snippets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	return wrap("delete snippet", affected(tag, err))
}

// --- cycle artifacts ---

func cycleTable(kind model.CycleKind) (string, error) {
	switch kind {
	case model.CycleKindAssessment:
		return "performance_assessments", nil
	case model.CycleKindCheckin:
		return "career_checkins", nil
	default:
		return "", domain.ErrUnknownCycleKind
	}
}

const cycleColumns = `id, cycle_name, content, created_at, updated_at`

func scanCycle(kind model.CycleKind, row pgx.Row) (*model.CycleArtifact, error) {
	a := model.CycleArtifact{Kind: kind}
	if err := row.Scan(&a.ID, &a.CycleName, &a.Content, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &a, nil
}

func (s *session) UpsertCycleArtifact(ctx context.Context, ownerID string, a *model.CycleArtifact) (*model.CycleArtifact, error) {
	table, err := cycleTable(a.Kind)
	if err != nil {
		return nil, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	q := fmt.Sprintf(`
INSERT INTO %[1]s (id, owner_id, cycle_name, content, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (owner_id, cycle_name) DO UPDATE SET
  content = EXCLUDED.content,
  updated_at = EXCLUDED.updated_at
RETURNING %[2]s`, table, cycleColumns)

	out, err := scanCycle(a.Kind, s.conn.QueryRow(ctx, q, a.ID, ownerID, a.CycleName, a.Content, stamp(a.UpdatedAt)))
	return out, wrap("upsert cycle artifact", err)
}

func (s *session) ListCycleArtifacts(ctx context.Context, ownerID string, kind model.CycleKind) ([]*model.CycleArtifact, error) {
	table, err := cycleTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = $1 ORDER BY created_at DESC`, cycleColumns, table), ownerID)
	if err != nil {
		return nil, wrap("list cycle artifacts", err)
	}
	defer rows.Close()

	var out []*model.CycleArtifact
	for rows.Next() {
		a, err := scanCycle(kind, rows)
		if err != nil {
			return nil, wrap("list cycle artifacts", err)
		}
		out = append(out, a)
	}
	return out, wrap("list cycle artifacts", rows.Err())
}

func (s *session) UpdateCycleArtifactContent(ctx context.Context, ownerID string, kind model.CycleKind, id, content string, at time.Time) (*model.CycleArtifact, error) {
	table, err := cycleTable(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`UPDATE %s SET content = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4 RETURNING %s`, table, cycleColumns)
	a, err := scanCycle(kind, s.conn.QueryRow(ctx, q, content, stamp(at), id, ownerID))
	return a, wrap("update cycle artifact", err)
}

func (s *session) DeleteCycleArtifact(ctx context.Context, ownerID string, kind model.CycleKind, id string) error {
	table, err := cycleTable(kind)
	if err != nil {
		return err
	}
	tag, err := s.conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1 AND owner_id = $2`, table), id, ownerID)
	return wrap("delete cycle artifact", affected(tag, err))
}

// --- profile ---

const profileColumns = `name, job_title, level, team, manager, career_goals, updated_at`

func scanProfile(row pgx.Row) (*model.Profile, error) {
	var p model.Profile
	if err := row.Scan(&p.Name, &p.JobTitle, &p.Level, &p.Team, &p.Manager, &p.CareerGoals, &p.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *session) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	p, err := scanProfile(s.conn.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE owner_id = $1`, ownerID))
	return p, wrap("get profile", err)
}

// MergeProfile relies on EXCLUDED carrying NULL for absent fields, so the
// insert path defaults them to '' while the update path keeps stored values.
func (s *session) MergeProfile(ctx context.Context, ownerID string, patch model.ProfilePatch, at time.Time) (*model.Profile, error) {
	const q = `
INSERT INTO profiles AS p (owner_id, name, job_title, level, team, manager, career_goals, updated_at)
VALUES ($1, COALESCE($2, ''), COALESCE($3, ''), COALESCE($4, ''), COALESCE($5, ''), COALESCE($6, ''), COALESCE($7, ''), $8)
ON CONFLICT (owner_id) DO UPDATE SET
  name = COALESCE($2, p.name),
  job_title = COALESCE($3, p.job_title),
  level = COALESCE($4, p.level),
  team = COALESCE($5, p.team),
  manager = COALESCE($6, p.manager),
  career_goals = COALESCE($7, p.career_goals),
  updated_at = EXCLUDED.updated_at
RETURNING ` + profileColumns

	p, err := scanProfile(s.conn.QueryRow(ctx, q, ownerID,
		patch.Name, patch.JobTitle, patch.Level, patch.Team, patch.Manager, patch.CareerGoals, stamp(at)))
	return p, wrap("merge profile", err)
}

// --- integrations ---

const integrationColumns = `id, type, access_token, is_active, last_sync_at, created_at, updated_at`

func (s *session) scanIntegration(row pgx.Row) (*model.Integration, error) {
	var in model.Integration
	var token string
	if err := row.Scan(&in.ID, &in.Type, &token, &in.IsActive, &in.LastSyncAt, &in.CreatedAt, &in.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	pt, err := s.cipher.Decrypt(token)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	in.AccessToken = pt
	return &in, nil
}

func (s *session) ListIntegrations(ctx context.Context, ownerID string) ([]*model.Integration, error) {
	rows, err := s.conn.Query(ctx, `SELECT `+integrationColumns+` FROM integrations WHERE owner_id = $1 ORDER BY type`, ownerID)
	if err != nil {
		return nil, wrap("list integrations", err)
	}
	defer rows.Close()

	var out []*model.Integration
	for rows.Next() {
		in, err := s.scanIntegration(rows)
		if err != nil {
			return nil, wrap("list integrations", err)
		}
		out = append(out, in)
	}
	return out, wrap("list integrations", rows.Err())
}

func (s *session) UpsertIntegration(ctx context.Context, ownerID string, in *model.Integration) (*model.Integration, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	token, err := s.cipher.Encrypt(in.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypt access token: %w", err)
	}
	const q = `
INSERT INTO integrations (id, owner_id, type, access_token, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (owner_id, type) DO UPDATE SET
  access_token = EXCLUDED.access_token,
  is_active = EXCLUDED.is_active,
  updated_at = EXCLUDED.updated_at
RETURNING ` + integrationColumns

	out, err := s.scanIntegration(s.conn.QueryRow(ctx, q,
		in.ID, ownerID, strings.ToLower(in.Type), token, in.IsActive, stamp(in.UpdatedAt)))
	return out, wrap("upsert integration", err)
}

func (s *session) MarkIntegrationSynced(ctx context.Context, ownerID, integrationType string, at time.Time) error {
	tag, err := s.conn.Exec(ctx,
		`UPDATE integrations SET last_sync_at = $1, updated_at = $1 WHERE owner_id = $2 AND type = $3`,
		stamp(at), ownerID, integrationType)
	return wrap("mark integration synced", affected(tag, err))
}

func affected(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
