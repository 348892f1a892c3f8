package anomaly

import (
	"math"
	"testing"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

func TestBuildGroupsRecentBySensor(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	builder := NewBuilder(0.1, func() time.Time { return now })

	recent := []telemetry.TelemetryPoint{
		reading(now.Add(-9*time.Minute), 2, 7.0, 0.05),
		reading(now.Add(-8*time.Minute), 1, 5.8, 0.2),
		reading(now.Add(-3*time.Minute), 1, 5.8, 0.4),
		{At: now.Add(-2 * time.Minute), PH: telemetry.Float(7)},
	}
	context := []telemetry.TelemetryPoint{reading(now.Add(-2*time.Hour), 1, 7.1, 0.3)}

	s := builder.Build(recent, context, false)
	if !s.GeneratedAt.Equal(now) || s.WorkTime {
		t.Fatalf("unexpected header: %+v", s)
	}
	if s.WindowStart == nil || !s.WindowStart.Equal(now.Add(-9*time.Minute)) {
		t.Fatalf("unexpected window start: %v", s.WindowStart)
	}
	if s.WindowEnd == nil || !s.WindowEnd.Equal(now.Add(-2*time.Minute)) {
		t.Fatalf("unexpected window end: %v", s.WindowEnd)
	}
	if len(s.Recent) != 2 || s.Recent[0].SensorID != 2 || s.Recent[1].SensorID != 1 {
		t.Fatalf("expected sensors in first-seen order, got %+v", s.Recent)
	}

	one := s.Recent[1]
	if one.Count != 2 || one.ActiveMin != 2 {
		t.Fatalf("unexpected counts: %+v", one)
	}
	if one.LastFlow == nil || *one.LastFlow != 0.4 {
		t.Fatalf("unexpected last flow: %v", one.LastFlow)
	}
	if one.AvgFlowRate == nil || math.Abs(*one.AvgFlowRate-0.3) > 1e-9 {
		t.Fatalf("unexpected avg flow: %v", one.AvgFlowRate)
	}
	if one.MinPh == nil || *one.MinPh != 5.8 || one.StdPh == nil || *one.StdPh > 1e-6 {
		t.Fatalf("unexpected ph stats: %+v", one)
	}
	if one.AvgTurbidity != nil {
		t.Fatalf("expected nil turbidity stats")
	}
	if s.Recent[0].ActiveMin != 0 {
		t.Fatalf("expected inactive sensor 2, got %+v", s.Recent[0])
	}

	if len(s.Context) != 1 || *s.Context[0].SensorID != 1 {
		t.Fatalf("unexpected context: %+v", s.Context)
	}
}

func TestBuildEmpty(t *testing.T) {
	s := NewBuilder(0.1, nil).Build(nil, nil, true)
	if len(s.Recent) != 0 || len(s.Context) != 0 || s.WindowStart != nil {
		t.Fatalf("expected empty summary, got %+v", s)
	}
}
