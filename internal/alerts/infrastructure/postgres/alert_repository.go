package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "watertap/internal/alerts/domain"
)

const alertColumns = `id, sensor_id, description, severity, active, solution, created_at, updated_at`

// AlertRepository is a Postgres repository for sensor alerts.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert and assigns its id.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}

	return r.inTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `
INSERT INTO sensor_alerts (
	sensor_id, description, severity, active, solution, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
RETURNING id`,
			alert.SensorID,
			alert.Description,
			string(alert.Severity),
			alert.Active,
			nullableString(alert.Solution),
			alert.CreatedAt.UTC(),
			alert.UpdatedAt.UTC(),
		).Scan(&alert.ID)
	})
}

// Update overwrites the mutable fields of an alert.
func (r *AlertRepository) Update(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil || alert.ID == 0 {
		return errors.New("alert repo: missing id")
	}
	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE sensor_alerts
SET description = $1, severity = $2, active = $3, solution = $4, updated_at = $5
WHERE id = $6`,
			alert.Description,
			string(alert.Severity),
			alert.Active,
			nullableString(alert.Solution),
			alert.UpdatedAt.UTC(),
			alert.ID,
		)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return alerts.ErrNotFound
		}
		return nil
	})
}

// GetByID fetches an alert by id.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM sensor_alerts WHERE id = $1`, id)
	return scanAlert(row)
}

// Delete removes an alert.
func (r *AlertRepository) Delete(ctx context.Context, id int64) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alert repo: nil db")
	}
	var affected int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM sensor_alerts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected > 0, err
}

// ListActive returns active alerts, oldest first.
func (r *AlertRepository) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alertColumns+`
FROM sensor_alerts
WHERE active
ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

// FindActiveBySensor returns the newest active alert of a sensor.
func (r *AlertRepository) FindActiveBySensor(ctx context.Context, sensorID int) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+alertColumns+`
FROM sensor_alerts
WHERE sensor_id = $1 AND active
ORDER BY created_at DESC
LIMIT 1`, sensorID)
	return scanAlert(row)
}

// ListActiveCreatedBefore returns active alerts created before cutoff.
func (r *AlertRepository) ListActiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+alertColumns+`
FROM sensor_alerts
WHERE active AND created_at < $1
ORDER BY created_at ASC, id ASC`, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	return scanAlerts(rows)
}

func (r *AlertRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type alertScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row alertScanner) (*alerts.Alert, error) {
	var (
		alert    alerts.Alert
		severity string
		solution sql.NullString
	)
	err := row.Scan(
		&alert.ID,
		&alert.SensorID,
		&alert.Description,
		&severity,
		&alert.Active,
		&solution,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	alert.Severity = alerts.ParseSeverity(severity)
	if solution.Valid {
		alert.Solution = solution.String
	}
	alert.CreatedAt = alert.CreatedAt.UTC()
	alert.UpdatedAt = alert.UpdatedAt.UTC()
	return &alert, nil
}

func scanAlerts(rows *sql.Rows) ([]alerts.Alert, error) {
	defer rows.Close()
	out := make([]alerts.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *alert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullableString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
