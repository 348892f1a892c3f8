package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

const defaultExclusionTable = "telemetry_exclusions"

// ExclusionRepository stores soft-delete ranges.
type ExclusionRepository struct {
	db    *sql.DB
	table string
}

// NewExclusionRepository constructs a repository.
func NewExclusionRepository(db *sql.DB) *ExclusionRepository {
	return &ExclusionRepository{db: db, table: defaultExclusionTable}
}

// Save inserts a range and assigns its id.
func (r *ExclusionRepository) Save(ctx context.Context, rng *telemetry.ExclusionRange) error {
	if r == nil || r.db == nil {
		return errors.New("exclusion repo: nil db")
	}
	if rng == nil {
		return errors.New("exclusion repo: nil range")
	}
	if rng.End.Before(rng.Start) {
		return errors.New("exclusion repo: end before start")
	}
	if rng.CreatedAt.IsZero() {
		rng.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (sensor_id, start_time, end_time, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`, r.table)
	if err := tx.QueryRowContext(ctx, query, rng.SensorID, rng.Start.UTC(), rng.End.UTC(), rng.CreatedAt.UTC()).Scan(&rng.ID); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// FindOverlapping returns ranges of the sensors that intersect [from, to].
func (r *ExclusionRepository) FindOverlapping(ctx context.Context, sensorIDs []int, from, to time.Time) ([]telemetry.ExclusionRange, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("exclusion repo: nil db")
	}
	if len(sensorIDs) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(sensorIDs))
	for _, id := range sensorIDs {
		ids = append(ids, int64(id))
	}

	query := fmt.Sprintf(`
SELECT id, sensor_id, start_time, end_time, created_at
FROM %s
WHERE sensor_id = ANY($1)
	AND start_time <= $3
	AND end_time >= $2`, r.table)
	rows, err := r.db.QueryContext(ctx, query, ids, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]telemetry.ExclusionRange, 0)
	for rows.Next() {
		var rng telemetry.ExclusionRange
		if err := rows.Scan(&rng.ID, &rng.SensorID, &rng.Start, &rng.End, &rng.CreatedAt); err != nil {
			return nil, err
		}
		rng.Start = rng.Start.UTC()
		rng.End = rng.End.UTC()
		rng.CreatedAt = rng.CreatedAt.UTC()
		out = append(out, rng)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
