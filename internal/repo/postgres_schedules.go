package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
)

type PostgresScheduleRepo struct {
	db *sql.DB
}

func NewPostgresScheduleRepo(db *sql.DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

// EnsureSchema creates the schedules table and its scan index if missing.
func (r *PostgresScheduleRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schedules (
			id              TEXT PRIMARY KEY,
			sender          TEXT NOT NULL,
			recipients      JSONB NOT NULL,
			subject         TEXT NOT NULL,
			body            TEXT NOT NULL,
			time_of_day     TEXT NOT NULL,
			start_date      TEXT NOT NULL,
			end_date        TEXT NOT NULL,
			trigger_instant TIMESTAMPTZ NOT NULL,
			status          TEXT NOT NULL,
			sent_dates      JSONB NOT NULL DEFAULT '[]'::jsonb,
			claimed_at      TIMESTAMPTZ,
			last_error      TEXT,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schedules table: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS schedules_due_idx
		ON schedules (status, start_date, end_date)
	`)
	if err != nil {
		return fmt.Errorf("create schedules index: %w", err)
	}
	return nil
}

func (r *PostgresScheduleRepo) Create(ctx context.Context, s *model.Schedule) error {
	recipients, err := json.Marshal(s.Recipients)
	if err != nil {
		return err
	}
	sentDates, err := json.Marshal(emptyIfNil(s.SentDates))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, sender, recipients, subject, body,
			time_of_day, start_date, end_date, trigger_instant,
			status, sent_dates
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		s.ID, s.Sender, recipients, s.Subject, s.Body,
		s.TimeOfDay, s.ActiveRange.Start, s.ActiveRange.End, s.TriggerInstant.UTC(),
		string(s.Status), sentDates,
	)
	return err
}

const scheduleColumns = `
	id, sender, recipients, subject, body,
	time_of_day, start_date, end_date, trigger_instant,
	status, sent_dates, claimed_at, last_error, created_at, updated_at`

func (r *PostgresScheduleRepo) Get(ctx context.Context, id string) (*model.Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE id = $1
	`, id)

	s, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresScheduleRepo) List(ctx context.Context, limit, offset int) ([]model.Schedule, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *PostgresScheduleRepo) ListDue(ctx context.Context, date string) ([]model.Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+scheduleColumns+`
		FROM schedules
		WHERE status = 'PENDING'
		  AND start_date <= $1
		  AND end_date >= $1
		ORDER BY created_at ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *PostgresScheduleRepo) Claim(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'IN_PROGRESS',
		    claimed_at = $2,
		    updated_at = now()
		WHERE id = $1 AND status = 'PENDING'
	`, id, at.UTC())
	if err != nil {
		return err
	}
	return oneRowOrContended(res)
}

func (r *PostgresScheduleRepo) CompleteSend(ctx context.Context, id, date string, final bool) error {
	status := model.Pending
	if final {
		status = model.Sent
	}

	// The append guard keeps sent_dates duplicate-free even if the same
	// completion is replayed.
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET sent_dates = CASE
		        WHEN sent_dates @> jsonb_build_array($2::text) THEN sent_dates
		        ELSE sent_dates || jsonb_build_array($2::text)
		    END,
		    status = $3,
		    claimed_at = NULL,
		    last_error = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'IN_PROGRESS'
	`, id, date, string(status))
	if err != nil {
		return err
	}
	return oneRowOrContended(res)
}

func (r *PostgresScheduleRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'FAILED',
		    claimed_at = NULL,
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, reason)
	return err
}

func (r *PostgresScheduleRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET status = 'PENDING',
		    claimed_at = NULL,
		    updated_at = now()
		WHERE status = 'IN_PROGRESS' AND claimed_at < $1
	`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func oneRowOrContended(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrContended
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*model.Schedule, error) {
	var (
		s          model.Schedule
		status     string
		recipients []byte
		sentDates  []byte
		claimedAt  sql.NullTime
		lastErr    sql.NullString
	)

	if err := row.Scan(
		&s.ID,
		&s.Sender,
		&recipients,
		&s.Subject,
		&s.Body,
		&s.TimeOfDay,
		&s.ActiveRange.Start,
		&s.ActiveRange.End,
		&s.TriggerInstant,
		&status,
		&sentDates,
		&claimedAt,
		&lastErr,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.Status = model.Status(status)

	if err := json.Unmarshal(recipients, &s.Recipients); err != nil {
		return nil, fmt.Errorf("decode recipients for %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(sentDates, &s.SentDates); err != nil {
		return nil, fmt.Errorf("decode sent_dates for %s: %w", s.ID, err)
	}

	if claimedAt.Valid {
		t := claimedAt.Time
		s.ClaimedAt = &t
	}
	if lastErr.Valid {
		v := lastErr.String
		s.LastError = &v
	}
	return &s, nil
}

func collectSchedules(rows *sql.Rows) ([]model.Schedule, error) {
	var out []model.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func emptyIfNil(dates []string) []string {
	if dates == nil {
		return []string{}
	}
	return dates
}
