package postgres

import (
	"context"
	"database/sql"
	"errors"

	settings "watertap/internal/settings/domain"
)

// ScheduleRepository is a Postgres repository for the ai_settings row.
type ScheduleRepository struct {
	db *sql.DB
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository(db *sql.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// Get returns the first stored schedule.
func (r *ScheduleRepository) Get(ctx context.Context) (*settings.Schedule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("schedule repo: nil db")
	}
	var (
		s          settings.Schedule
		start, end sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
SELECT id, ai_enabled, work_start, work_end,
	monday, tuesday, wednesday, thursday, friday, saturday, sunday
FROM ai_settings
ORDER BY id ASC
LIMIT 1`).Scan(
		&s.ID, &s.AIEnabled, &start, &end,
		&s.Monday, &s.Tuesday, &s.Wednesday, &s.Thursday, &s.Friday, &s.Saturday, &s.Sunday,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if s.WorkStart, err = parseNullableTime(start); err != nil {
		return nil, err
	}
	if s.WorkEnd, err = parseNullableTime(end); err != nil {
		return nil, err
	}
	return &s, nil
}

// Save inserts the schedule when it has no id, otherwise updates it.
func (r *ScheduleRepository) Save(ctx context.Context, s *settings.Schedule) error {
	if r == nil || r.db == nil {
		return errors.New("schedule repo: nil db")
	}
	if s == nil {
		return errors.New("schedule repo: nil schedule")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if s.ID == 0 {
		err = tx.QueryRowContext(ctx, `
INSERT INTO ai_settings (
	ai_enabled, work_start, work_end,
	monday, tuesday, wednesday, thursday, friday, saturday, sunday
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
			s.AIEnabled, formatNullableTime(s.WorkStart), formatNullableTime(s.WorkEnd),
			s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday, s.Saturday, s.Sunday,
		).Scan(&s.ID)
	} else {
		_, err = tx.ExecContext(ctx, `
UPDATE ai_settings
SET ai_enabled = $1, work_start = $2, work_end = $3,
	monday = $4, tuesday = $5, wednesday = $6, thursday = $7, friday = $8, saturday = $9, sunday = $10
WHERE id = $11`,
			s.AIEnabled, formatNullableTime(s.WorkStart), formatNullableTime(s.WorkEnd),
			s.Monday, s.Tuesday, s.Wednesday, s.Thursday, s.Friday, s.Saturday, s.Sunday,
			s.ID,
		)
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func parseNullableTime(value sql.NullString) (*settings.TimeOfDay, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := settings.ParseTimeOfDay(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatNullableTime(t *settings.TimeOfDay) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.String(), Valid: true}
}
