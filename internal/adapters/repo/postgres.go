package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"coach-nudge-bot/internal/domain"
	"coach-nudge-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.PreferenceRepo = (*Postgres)(nil)
	_ domain.LedgerRepo     = (*Postgres)(nil)
	_ domain.TaskRepo       = (*Postgres)(nil)
	_ domain.SessionRepo    = (*Postgres)(nil)
	_ domain.TemplateRepo   = (*Postgres)(nil)
	_ domain.WorkspaceRepo  = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// ListByFrequencies реализует domain.PreferenceRepo.
func (p *Postgres) ListByFrequencies(ctx context.Context, freqs []domain.Frequency) ([]domain.RecipientPreference, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	values := make([]string, 0, len(freqs))
	for _, f := range freqs {
		values = append(values, string(f))
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT recipient_id, enabled, frequency, preferred_time, timezone, slack_channel_id, slack_team_id
FROM nudge_preferences
WHERE enabled = TRUE AND frequency = ANY($1)
ORDER BY recipient_id
`, values)
	metrics.ObserveNetworkRequest("postgres", "preferences_list_by_frequencies", "nudge_preferences", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []domain.RecipientPreference
	for rows.Next() {
		pref, err := scanPreference(rows)
		if err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

// GetByRecipient реализует domain.PreferenceRepo.
func (p *Postgres) GetByRecipient(ctx context.Context, recipientID string) (domain.RecipientPreference, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT recipient_id, enabled, frequency, preferred_time, timezone, slack_channel_id, slack_team_id
FROM nudge_preferences
WHERE recipient_id = $1
`, recipientID)
	pref, err := scanPreference(row)
	metrics.ObserveNetworkRequest("postgres", "preferences_get", "nudge_preferences", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RecipientPreference{}, fmt.Errorf("настройки %s: %w", recipientID, domain.ErrNotFound)
	}
	return pref, err
}

func scanPreference(row pgx.Row) (domain.RecipientPreference, error) {
	var (
		pref      domain.RecipientPreference
		frequency string
		preferred sql.NullString
		timezone  sql.NullString
	)
	if err := row.Scan(&pref.RecipientID, &pref.Enabled, &frequency, &preferred, &timezone, &pref.SlackChannelID, &pref.SlackTeamID); err != nil {
		return domain.RecipientPreference{}, err
	}
	pref.Frequency = domain.Frequency(frequency)
	if preferred.Valid {
		pref.PreferredTime = preferred.String
	}
	if timezone.Valid {
		pref.Timezone = timezone.String
	}
	return pref, nil
}

// ExistsForPeriod реализует domain.LedgerRepo.
func (p *Postgres) ExistsForPeriod(ctx context.Context, recipientID string, category domain.NudgeCategory, periodKey string) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var exists bool
	err := p.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1 FROM nudge_ledger
	WHERE recipient_id = $1 AND category = $2 AND period_key = $3
)
`, recipientID, string(category), periodKey).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "ledger_exists_for_period", "nudge_ledger", start, err)
	return exists, err
}

// Append реализует domain.LedgerRepo. Уникальный индекс по
// (recipient_id, category, period_key) закрывает гонку между воркерами:
// повторная вставка по тому же ключу возвращает false, а не ошибку.
func (p *Postgres) Append(ctx context.Context, entry domain.NudgeLedgerEntry) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var referenceID, referenceKind sql.NullString
	if entry.ReferenceID != nil {
		referenceID = sql.NullString{String: *entry.ReferenceID, Valid: true}
	}
	if entry.ReferenceKind != nil {
		referenceKind = sql.NullString{String: *entry.ReferenceKind, Valid: true}
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
INSERT INTO nudge_ledger (recipient_id, category, reference_id, reference_kind, period_key, slack_channel_id, slack_message_ts, sent_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (recipient_id, category, period_key) DO NOTHING
`, entry.RecipientID, string(entry.Category), referenceID, referenceKind, entry.PeriodKey, entry.Message.ChannelID, entry.Message.Timestamp, entry.SentAt)
	metrics.ObserveNetworkRequest("postgres", "ledger_append", "nudge_ledger", start, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetByMessage реализует domain.LedgerRepo.
func (p *Postgres) GetByMessage(ctx context.Context, ref domain.MessageRef) (domain.NudgeLedgerEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, recipient_id, category, reference_id, reference_kind, period_key, slack_channel_id, slack_message_ts, sent_at, response, responded_at
FROM nudge_ledger
WHERE slack_channel_id = $1 AND slack_message_ts = $2
`, ref.ChannelID, ref.Timestamp)

	var (
		entry         domain.NudgeLedgerEntry
		category      string
		referenceID   sql.NullString
		referenceKind sql.NullString
		response      sql.NullString
		respondedAt   sql.NullTime
	)
	err := row.Scan(&entry.ID, &entry.RecipientID, &category, &referenceID, &referenceKind, &entry.PeriodKey, &entry.Message.ChannelID, &entry.Message.Timestamp, &entry.SentAt, &response, &respondedAt)
	metrics.ObserveNetworkRequest("postgres", "ledger_get_by_message", "nudge_ledger", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NudgeLedgerEntry{}, fmt.Errorf("сообщение %s/%s: %w", ref.ChannelID, ref.Timestamp, domain.ErrNotFound)
	}
	if err != nil {
		return domain.NudgeLedgerEntry{}, err
	}
	entry.Category = domain.NudgeCategory(category)
	if referenceID.Valid {
		v := referenceID.String
		entry.ReferenceID = &v
	}
	if referenceKind.Valid {
		v := referenceKind.String
		entry.ReferenceKind = &v
	}
	if response.Valid {
		v := response.String
		entry.Response = &v
	}
	if respondedAt.Valid {
		ts := respondedAt.Time
		entry.RespondedAt = &ts
	}
	return entry, nil
}

// MarkAnswered реализует domain.LedgerRepo. Условие responded_at IS NULL
// делает повторную доставку callback-а идемпотентной.
func (p *Postgres) MarkAnswered(ctx context.Context, ref domain.MessageRef, response string, at time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE nudge_ledger
SET response = $1, responded_at = $2
WHERE slack_channel_id = $3 AND slack_message_ts = $4 AND responded_at IS NULL
`, response, at, ref.ChannelID, ref.Timestamp)
	metrics.ObserveNetworkRequest("postgres", "ledger_mark_answered", "nudge_ledger", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListOpenTasks реализует domain.TaskRepo.
func (p *Postgres) ListOpenTasks(ctx context.Context, recipientID string, limit int) ([]domain.Task, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, title, status, created_at
FROM tasks
WHERE recipient_id = $1 AND status = 'open'
ORDER BY created_at DESC
LIMIT $2
`, recipientID, limit)
	metrics.ObserveNetworkRequest("postgres", "tasks_list_open", "tasks", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var (
			task   domain.Task
			status string
		)
		if err := rows.Scan(&task.ID, &task.RecipientID, &task.Title, &status, &task.CreatedAt); err != nil {
			return nil, err
		}
		task.Status = domain.TaskStatus(status)
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// CountTasks реализует domain.TaskRepo.
func (p *Postgres) CountTasks(ctx context.Context, recipientID string) (int, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var open, done int
	err := p.pool.QueryRow(ctx, `
SELECT
	COUNT(*) FILTER (WHERE status = 'open'),
	COUNT(*) FILTER (WHERE status = 'done')
FROM tasks
WHERE recipient_id = $1
`, recipientID).Scan(&open, &done)
	metrics.ObserveNetworkRequest("postgres", "tasks_count", "tasks", start, err)
	return open, done, err
}

// CompleteTask реализует domain.TaskRepo.
func (p *Postgres) CompleteTask(ctx context.Context, taskID int64) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE tasks SET status = 'done', updated_at = NOW()
WHERE id = $1 AND status = 'open'
`, taskID)
	metrics.ObserveNetworkRequest("postgres", "tasks_complete", "tasks", start, err)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListCompletedWithGoal реализует domain.SessionRepo.
func (p *Postgres) ListCompletedWithGoal(ctx context.Context, from, to time.Time) ([]domain.Session, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, coach_name, goal, status, scheduled_at, completed_at
FROM sessions
WHERE status = 'completed'
  AND completed_at >= $1 AND completed_at < $2
  AND goal IS NOT NULL AND goal <> ''
ORDER BY completed_at
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "sessions_list_completed_with_goal", "sessions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// ListScheduledBetween реализует domain.SessionRepo.
func (p *Postgres) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]domain.Session, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, recipient_id, coach_name, goal, status, scheduled_at, completed_at
FROM sessions
WHERE status = 'scheduled'
  AND scheduled_at >= $1 AND scheduled_at < $2
ORDER BY scheduled_at
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "sessions_list_scheduled", "sessions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// GetSession реализует domain.SessionRepo.
func (p *Postgres) GetSession(ctx context.Context, id int64) (domain.Session, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, recipient_id, coach_name, goal, status, scheduled_at, completed_at
FROM sessions
WHERE id = $1
`, id)
	session, err := scanSession(row)
	metrics.ObserveNetworkRequest("postgres", "sessions_get", "sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, fmt.Errorf("сессия %d: %w", id, domain.ErrNotFound)
	}
	return session, err
}

func scanSessions(rows pgx.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		session     domain.Session
		goal        sql.NullString
		status      string
		completedAt sql.NullTime
	)
	if err := row.Scan(&session.ID, &session.RecipientID, &session.CoachName, &goal, &status, &session.ScheduledAt, &completedAt); err != nil {
		return domain.Session{}, err
	}
	if goal.Valid {
		session.Goal = goal.String
	}
	session.Status = domain.SessionStatus(status)
	if completedAt.Valid {
		ts := completedAt.Time
		session.CompletedAt = &ts
	}
	return session, nil
}

// ListTemplates реализует domain.TemplateRepo. Шаблоны хранятся как JSON
// блочной структуры с токенами {{name}}.
func (p *Postgres) ListTemplates(ctx context.Context) (map[domain.NudgeCategory][]domain.Block, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT category, blocks FROM nudge_templates`)
	metrics.ObserveNetworkRequest("postgres", "templates_list", "nudge_templates", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := make(map[domain.NudgeCategory][]domain.Block)
	for rows.Next() {
		var (
			category string
			raw      []byte
		)
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, err
		}
		var blocks []domain.Block
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return nil, fmt.Errorf("шаблон %s: %w", category, err)
		}
		templates[domain.NudgeCategory(category)] = blocks
	}
	return templates, rows.Err()
}

// GetWorkspace реализует domain.WorkspaceRepo.
func (p *Postgres) GetWorkspace(ctx context.Context, teamID string) (domain.Workspace, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var ws domain.Workspace
	err := p.pool.QueryRow(ctx, `
SELECT team_id, team_name, bot_token
FROM slack_workspaces
WHERE team_id = $1
`, teamID).Scan(&ws.TeamID, &ws.TeamName, &ws.BotToken)
	metrics.ObserveNetworkRequest("postgres", "workspaces_get", "slack_workspaces", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Workspace{}, fmt.Errorf("воркспейс %s: %w", teamID, domain.ErrNotFound)
	}
	return ws, err
}
