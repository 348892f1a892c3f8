package application

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

type stubHistory struct {
	now    time.Time
	points []telemetry.TelemetryPoint
	err    error
	from   time.Time
	to     time.Time
}

func (s *stubHistory) Now() time.Time { return s.now }

func (s *stubHistory) RawHistory(_ context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	s.from, s.to = from, to
	return s.points, s.err
}

func at(base time.Time, minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func TestBuildGroupsBucketsPerSensor(t *testing.T) {
	from := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)
	history := &stubHistory{now: to, points: []telemetry.TelemetryPoint{
		{At: at(from, 1), SensorID: telemetry.Sensor(2), PH: telemetry.Float(7.0)},
		{At: at(from, 5), SensorID: telemetry.Sensor(2), PH: telemetry.Float(8.0)},
		{At: at(from, 20), SensorID: telemetry.Sensor(2), PH: telemetry.Float(6.0)},
		{At: at(from, 2), SensorID: telemetry.Sensor(1), Turbidity: telemetry.Float(0.5)},
	}}
	svc, err := NewService(history, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := svc.Build(context.Background(), from, to)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Width != 15*time.Minute {
		t.Fatalf("expected 15m buckets for a short range, got %s", report.Width)
	}
	if len(report.Sensors) != 2 || report.Sensors[0].SensorID != 1 || report.Sensors[1].SensorID != 2 {
		t.Fatalf("expected sensors ordered by id, got %+v", report.Sensors)
	}

	sensor := report.Sensors[1]
	if len(sensor.Buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(sensor.Buckets))
	}
	ph := sensor.Summary[telemetry.MetricPH]
	// bucket averages are 7.5 and 6.0
	if ph.Mean == nil || math.Abs(*ph.Mean-6.75) > 1e-9 {
		t.Fatalf("unexpected mean %v", ph.Mean)
	}
	if *ph.Min != 6.0 || *ph.Max != 8.0 {
		t.Fatalf("unexpected min/max %v/%v", *ph.Min, *ph.Max)
	}
	if sensor.Summary[telemetry.MetricTurbidity].Mean != nil {
		t.Fatalf("expected nil summary for a metric without samples")
	}
	if sensor.Coverage != 0.5 {
		t.Fatalf("expected coverage 0.5, got %v", sensor.Coverage)
	}
	if report.Sensors[0].Coverage != 0.25 {
		t.Fatalf("expected coverage 0.25, got %v", report.Sensors[0].Coverage)
	}
}

func TestBuildUsesHourlyBucketsForLongRanges(t *testing.T) {
	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	svc, _ := NewService(&stubHistory{now: to}, nil)
	report, err := svc.Build(context.Background(), from, to)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if report.Width != time.Hour || len(report.Sensors) != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestBuildPropagatesErrors(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	svc, _ := NewService(&stubHistory{now: now, err: telemetry.ErrDataSourceUnavailable}, nil)
	if _, err := svc.Build(context.Background(), now.Add(-time.Hour), now); !errors.Is(err, telemetry.ErrDataSourceUnavailable) {
		t.Fatalf("expected data source error, got %v", err)
	}
	if _, err := svc.Build(context.Background(), now, now.Add(-time.Hour)); err == nil {
		t.Fatalf("expected error for inverted range")
	}
}
