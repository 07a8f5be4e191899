package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"weekly-snippets/internal/domain"
	"weekly-snippets/internal/domain/model"
	"weekly-snippets/internal/domain/ports/repository"

	"github.com/google/uuid"
)

var (
	_ repository.SessionOpener = (*SessionOpener)(nil)
	_ repository.Session       = (*session)(nil)
)

type SessionOpener struct {
	db     *sql.DB
	cipher repository.TokenCipher
}

func NewSessionOpener(s *Store, cipher repository.TokenCipher) *SessionOpener {
	return &SessionOpener{db: s.db, cipher: cipher}
}

// Open reserves one connection from the pool until Close.
func (o *SessionOpener) Open(ctx context.Context) (repository.Session, error) {
	conn, err := o.db.Conn(ctx)
	if err != nil {
		return nil, wrap("open session", err)
	}
	return &session{conn: conn, cipher: o.cipher}, nil
}

type session struct {
	conn   *sql.Conn
	cipher repository.TokenCipher
}

func (s *session) Close() error { return s.conn.Close() }

// --- snippets ---

const snippetColumns = `id, year, week, start_date, end_date, content, summary, highlights, created_at, updated_at`

func scanSnippet(row interface{ Scan(...any) error }) (*model.WeeklySnippet, error) {
	var (
		sn                   model.WeeklySnippet
		start, end           string
		summary              sql.NullString
		highlights           string
		createdAt, updatedAt string
	)
	if err := row.Scan(&sn.ID, &sn.Year, &sn.Week, &start, &end, &sn.Content, &summary, &highlights, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if sn.StartDate, err = parseDate(start); err != nil {
		return nil, err
	}
	if sn.EndDate, err = parseDate(end); err != nil {
		return nil, err
	}
	if sn.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sn.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	sn.Summary = nullString(summary)
	if err := json.Unmarshal([]byte(highlights), &sn.Highlights); err != nil {
		return nil, fmt.Errorf("decode highlights: %w", err)
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
	hl, err := json.Marshal(highlights)
	if err != nil {
		return nil, err
	}
	now := stamp(sn.UpdatedAt)

	const q = `
INSERT INTO weekly_snippets (id, owner_id, year, week, start_date, end_date, content, summary, highlights, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, year, week) DO UPDATE SET
  start_date = excluded.start_date,
  end_date = excluded.end_date,
  content = excluded.content,
  summary = COALESCE(excluded.summary, weekly_snippets.summary),
  highlights = excluded.highlights,
  updated_at = excluded.updated_at
RETURNING ` + snippetColumns

	out, err := scanSnippet(s.conn.QueryRowContext(ctx, q,
		sn.ID, ownerID, sn.Year, sn.Week,
		sn.StartDate.Format(dateLayout), sn.EndDate.Format(dateLayout),
		sn.Content, sn.Summary, string(hl), now, now))
	return out, wrap("upsert snippet", err)
}

func (s *session) ListSnippets(ctx context.Context, ownerID string, limit int) ([]*model.WeeklySnippet, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE owner_id = ? ORDER BY year DESC, week DESC LIMIT ?`
	rows, err := s.conn.QueryContext(ctx, q, ownerID, limit)
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
	const q = `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE id = ? AND owner_id = ?`
	sn, err := scanSnippet(s.conn.QueryRowContext(ctx, q, id, ownerID))
	return sn, wrap("find snippet", err)
}

func (s *session) FindSnippetByPeriod(ctx context.Context, ownerID string, year, week int) (*model.WeeklySnippet, error) {
	const q = `SELECT ` + snippetColumns + ` FROM weekly_snippets WHERE owner_id = ? AND year = ? AND week = ?`
	sn, err := scanSnippet(s.conn.QueryRowContext(ctx, q, ownerID, year, week))
	return sn, wrap("find snippet by period", err)
}

func (s *session) UpdateSnippetContent(ctx context.Context, ownerID, id, content string, at time.Time) (*model.WeeklySnippet, error) {
	const q = `UPDATE weekly_snippets SET content = ?, updated_at = ? WHERE id = ? AND owner_id = ? RETURNING ` + snippetColumns
	sn, err := scanSnippet(s.conn.QueryRowContext(ctx, q, content, formatTime(at), id, ownerID))
	return sn, wrap("update snippet", err)
}

func (s *session) DeleteSnippet(ctx context.Context, ownerID, id string) error {
	res, err := s.conn.ExecContext(ctx, `DELETE FROM weekly_snippets WHERE id = ? AND owner_id = ?`, id, ownerID)
	return wrap("delete snippet", affected(res, err))
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

func scanCycle(kind model.CycleKind, row interface{ Scan(...any) error }) (*model.CycleArtifact, error) {
	a := model.CycleArtifact{Kind: kind}
	var createdAt, updatedAt string
	if err := row.Scan(&a.ID, &a.CycleName, &a.Content, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
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
	now := stamp(a.UpdatedAt)
	q := fmt.Sprintf(`
INSERT INTO %[1]s (id, owner_id, cycle_name, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, cycle_name) DO UPDATE SET
  content = excluded.content,
  updated_at = excluded.updated_at
RETURNING %[2]s`, table, cycleColumns)

	out, err := scanCycle(a.Kind, s.conn.QueryRowContext(ctx, q, a.ID, ownerID, a.CycleName, a.Content, now, now))
	return out, wrap("upsert cycle artifact", err)
}

func (s *session) ListCycleArtifacts(ctx context.Context, ownerID string, kind model.CycleKind) ([]*model.CycleArtifact, error) {
	table, err := cycleTable(kind)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT %s FROM %s WHERE owner_id = ? ORDER BY created_at DESC`, cycleColumns, table)
	rows, err := s.conn.QueryContext(ctx, q, ownerID)
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
	q := fmt.Sprintf(`UPDATE %s SET content = ?, updated_at = ? WHERE id = ? AND owner_id = ? RETURNING %s`, table, cycleColumns)
	a, err := scanCycle(kind, s.conn.QueryRowContext(ctx, q, content, formatTime(at), id, ownerID))
	return a, wrap("update cycle artifact", err)
}

func (s *session) DeleteCycleArtifact(ctx context.Context, ownerID string, kind model.CycleKind, id string) error {
	table, err := cycleTable(kind)
	if err != nil {
		return err
	}
	res, err := s.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ? AND owner_id = ?`, table), id, ownerID)
	return wrap("delete cycle artifact", affected(res, err))
}

// --- profile ---

const profileColumns = `name, job_title, level, team, manager, career_goals, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	var p model.Profile
	var updatedAt string
	if err := row.Scan(&p.Name, &p.JobTitle, &p.Level, &p.Team, &p.Manager, &p.CareerGoals, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	t, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = t
	return &p, nil
}

func (s *session) GetProfile(ctx context.Context, ownerID string) (*model.Profile, error) {
	const q = `SELECT ` + profileColumns + ` FROM profiles WHERE owner_id = ?`
	p, err := scanProfile(s.conn.QueryRowContext(ctx, q, ownerID))
	return p, wrap("get profile", err)
}

func (s *session) MergeProfile(ctx context.Context, ownerID string, patch model.ProfilePatch, at time.Time) (*model.Profile, error) {
	const q = `
INSERT INTO profiles (owner_id, name, job_title, level, team, manager, career_goals, updated_at)
VALUES (?, COALESCE(?, ''), COALESCE(?, ''), COALESCE(?, ''), COALESCE(?, ''), COALESCE(?, ''), COALESCE(?, ''), ?)
ON CONFLICT (owner_id) DO UPDATE SET
  name = COALESCE(?, profiles.name),
  job_title = COALESCE(?, profiles.job_title),
  level = COALESCE(?, profiles.level),
  team = COALESCE(?, profiles.team),
  manager = COALESCE(?, profiles.manager),
  career_goals = COALESCE(?, profiles.career_goals),
  updated_at = excluded.updated_at
RETURNING ` + profileColumns

	fields := []any{patch.Name, patch.JobTitle, patch.Level, patch.Team, patch.Manager, patch.CareerGoals}
	args := make([]any, 0, 2+2*len(fields))
	args = append(args, ownerID)
	args = append(args, fields...)
	args = append(args, formatTime(at))
	args = append(args, fields...)

	p, err := scanProfile(s.conn.QueryRowContext(ctx, q, args...))
	return p, wrap("merge profile", err)
}

// --- integrations ---

const integrationColumns = `id, type, access_token, is_active, last_sync_at, created_at, updated_at`

func (s *session) scanIntegration(row interface{ Scan(...any) error }) (*model.Integration, error) {
	var (
		in                   model.Integration
		token                string
		lastSync             sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&in.ID, &in.Type, &token, &in.IsActive, &lastSync, &createdAt, &updatedAt); err != nil {
		return nil, notFound(err)
	}
	var err error
	if in.AccessToken, err = s.cipher.Decrypt(token); err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	if in.LastSyncAt, err = parseNullTime(lastSync); err != nil {
		return nil, err
	}
	if in.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if in.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &in, nil
}

func (s *session) ListIntegrations(ctx context.Context, ownerID string) ([]*model.Integration, error) {
	const q = `SELECT ` + integrationColumns + ` FROM integrations WHERE owner_id = ? ORDER BY type`
	rows, err := s.conn.QueryContext(ctx, q, ownerID)
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
	now := stamp(in.UpdatedAt)
	const q = `
INSERT INTO integrations (id, owner_id, type, access_token, is_active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (owner_id, type) DO UPDATE SET
  access_token = excluded.access_token,
  is_active = excluded.is_active,
  updated_at = excluded.updated_at
RETURNING ` + integrationColumns

	out, err := s.scanIntegration(s.conn.QueryRowContext(ctx, q,
		in.ID, ownerID, strings.ToLower(in.Type), token, in.IsActive, now, now))
	return out, wrap("upsert integration", err)
}

func (s *session) MarkIntegrationSynced(ctx context.Context, ownerID, integrationType string, at time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE integrations SET last_sync_at = ?, updated_at = ? WHERE owner_id = ? AND type = ?`,
		formatTime(at), formatTime(at), ownerID, integrationType)
	return wrap("mark integration synced", affected(res, err))
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
