package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	telemetryapp "watertap/internal/telemetry/application"
	telemetry "watertap/internal/telemetry/domain"
	telemetrypostgres "watertap/internal/telemetry/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestSeriesStoreAndExclusions_Postgres(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for _, table := range []string{"water_sensors", "view_sensors", "telemetry_exclusions"} {
		if !tableExists(db, table) {
			t.Skipf("%s missing; run migrations", table)
		}
	}

	ctx := context.Background()
	sensorID := 990001
	hourStart := time.Date(2026, time.January, 21, 9, 0, 0, 0, time.UTC)
	_, _ = db.ExecContext(ctx, "DELETE FROM water_sensors WHERE sensor_id = $1", sensorID)
	_, _ = db.ExecContext(ctx, "DELETE FROM telemetry_exclusions WHERE sensor_id = $1", sensorID)

	series := telemetrypostgres.NewSeriesStore(db)
	exclusions := telemetrypostgres.NewExclusionRepository(db)

	points := []telemetry.TelemetryPoint{
		{At: hourStart.Add(5 * time.Minute), SensorID: telemetry.Sensor(sensorID), PH: telemetry.Float(7.0), FlowRate: telemetry.Float(0.2)},
		{At: hourStart.Add(20 * time.Minute), SensorID: telemetry.Sensor(sensorID), PH: telemetry.Float(7.4)},
	}
	if err := series.Write(ctx, points); err != nil {
		t.Fatalf("write: %v", err)
	}

	raw, err := series.Query(ctx, telemetry.SeriesQuery{Tier: telemetry.TierRaw, From: hourStart, To: hourStart.Add(time.Hour)})
	if err != nil {
		t.Fatalf("query raw: %v", err)
	}
	found := 0
	for _, p := range raw {
		if p.SensorID != nil && *p.SensorID == sensorID {
			found++
			if p.At.Equal(hourStart.Add(20*time.Minute)) && p.FlowRate != nil {
				t.Fatalf("expected absent flow to stay nil")
			}
		}
	}
	if found != 2 {
		t.Fatalf("expected 2 raw points, got %d", found)
	}

	hourly, err := series.Query(ctx, telemetry.SeriesQuery{Tier: telemetry.TierHourly, From: hourStart, To: hourStart.Add(time.Hour)})
	if err != nil {
		t.Fatalf("query hourly: %v", err)
	}
	for _, p := range hourly {
		if p.SensorID != nil && *p.SensorID == sensorID && (p.PH == nil || *p.PH < 7.19 || *p.PH > 7.21) {
			t.Fatalf("expected hourly pH 7.2, got %v", p.PH)
		}
	}

	svc, err := telemetryapp.NewService(series, series, exclusions)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	from := hourStart
	to := hourStart.Add(10 * time.Minute)
	if _, err := svc.DeleteData(ctx, []*int{telemetry.Sensor(sensorID)}, &from, &to); err != nil {
		t.Fatalf("delete data: %v", err)
	}
	visible, err := svc.RawHistory(ctx, hourStart, hourStart.Add(time.Hour))
	if err != nil {
		t.Fatalf("raw history: %v", err)
	}
	for _, p := range visible {
		if p.SensorID != nil && *p.SensorID == sensorID && p.At.Before(to) {
			t.Fatalf("excluded point still visible at %s", p.At)
		}
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
