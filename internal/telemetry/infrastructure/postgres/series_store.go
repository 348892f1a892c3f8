package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

const (
	defaultRawTable  = "water_sensors"
	defaultViewTable = "view_sensors"
)

// SeriesStore reads and writes water telemetry. RAW reads hit the raw table,
// HOURLY and DAILY reads hit the aggregate view filtered by agg.
type SeriesStore struct {
	db        *sql.DB
	rawTable  string
	viewTable string
}

// SeriesOption configures the store.
type SeriesOption func(*SeriesStore)

// WithRawTable overrides the raw table name.
func WithRawTable(table string) SeriesOption {
	return func(s *SeriesStore) {
		if table != "" {
			s.rawTable = table
		}
	}
}

// WithViewTable overrides the aggregate view name.
func WithViewTable(table string) SeriesOption {
	return func(s *SeriesStore) {
		if table != "" {
			s.viewTable = table
		}
	}
}

// NewSeriesStore constructs a store with default table names.
func NewSeriesStore(db *sql.DB, opts ...SeriesOption) *SeriesStore {
	store := &SeriesStore{db: db, rawTable: defaultRawTable, viewTable: defaultViewTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Query returns points within [From, To] ordered by ts.
func (s *SeriesStore) Query(ctx context.Context, q telemetry.SeriesQuery) ([]telemetry.TelemetryPoint, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("series store: nil db")
	}
	if q.From.IsZero() || q.To.IsZero() {
		return nil, errors.New("series store: invalid range")
	}

	var (
		rows *sql.Rows
		err  error
	)
	switch q.Tier {
	case telemetry.TierRaw, "":
		query := fmt.Sprintf(`
SELECT ts, sensor_id, ph, turbidity, conductivity, flow_rate
FROM %s
WHERE ts >= $1
	AND ts <= $2
ORDER BY ts ASC`, s.rawTable)
		rows, err = s.db.QueryContext(ctx, query, q.From.UTC(), q.To.UTC())
	case telemetry.TierHourly, telemetry.TierDaily:
		query := fmt.Sprintf(`
SELECT ts, sensor_id, ph, turbidity, conductivity, flow_rate
FROM %s
WHERE agg = $1
	AND ts >= $2
	AND ts <= $3
ORDER BY ts ASC`, s.viewTable)
		rows, err = s.db.QueryContext(ctx, query, q.Tier.Agg(), q.From.UTC(), q.To.UTC())
	default:
		return nil, fmt.Errorf("series store: unknown tier %q", q.Tier)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := make([]telemetry.TelemetryPoint, 0)
	for rows.Next() {
		var (
			ts                                 time.Time
			sensorID                           sql.NullInt64
			ph, turbidity, conductivity, flowR sql.NullFloat64
		)
		if err := rows.Scan(&ts, &sensorID, &ph, &turbidity, &conductivity, &flowR); err != nil {
			return nil, err
		}
		p := telemetry.TelemetryPoint{
			At:           ts.UTC(),
			PH:           nullableFloat(ph),
			Turbidity:    nullableFloat(turbidity),
			Conductivity: nullableFloat(conductivity),
			FlowRate:     nullableFloat(flowR),
		}
		if sensorID.Valid {
			p.SensorID = telemetry.Sensor(int(sensorID.Int64))
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return points, nil
}

// Write inserts raw points in one transaction.
func (s *SeriesStore) Write(ctx context.Context, points []telemetry.TelemetryPoint) error {
	if s == nil || s.db == nil {
		return errors.New("series store: nil db")
	}
	if len(points) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	ts,
	sensor_id,
	ph,
	turbidity,
	conductivity,
	flow_rate
) VALUES (
	$1, $2, $3, $4, $5, $6
)`, s.rawTable)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if !p.HasIdentity() {
			_ = tx.Rollback()
			return errors.New("series store: point missing sensor id or timestamp")
		}
		if _, err := stmt.ExecContext(ctx,
			p.At.UTC(),
			*p.SensorID,
			nullFloat(p.PH),
			nullFloat(p.Turbidity),
			nullFloat(p.Conductivity),
			nullFloat(p.FlowRate),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
