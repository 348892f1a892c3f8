package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"watertap/internal/analytics/domain/statistic"
	telemetry "watertap/internal/telemetry/domain"
)

// SeriesStore is an in-memory time-series store for demo/testing. HOURLY and
// DAILY tiers are derived from raw points on read.
type SeriesStore struct {
	mu     sync.RWMutex
	points []telemetry.TelemetryPoint
}

// NewSeriesStore constructs a store.
func NewSeriesStore() *SeriesStore {
	return &SeriesStore{}
}

// Write appends raw points.
func (s *SeriesStore) Write(ctx context.Context, points []telemetry.TelemetryPoint) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = append(s.points, points...)
	return nil
}

// Query returns points of the requested tier within [From, To].
func (s *SeriesStore) Query(ctx context.Context, query telemetry.SeriesQuery) ([]telemetry.TelemetryPoint, error) {
	_ = ctx
	s.mu.RLock()
	raw := make([]telemetry.TelemetryPoint, 0, len(s.points))
	for _, p := range s.points {
		if p.At.Before(query.From) || p.At.After(query.To) {
			continue
		}
		raw = append(raw, p)
	}
	s.mu.RUnlock()

	switch query.Tier {
	case telemetry.TierHourly:
		return rollup(raw, time.Hour), nil
	case telemetry.TierDaily:
		return rollup(raw, 24*time.Hour), nil
	default:
		sort.SliceStable(raw, func(i, j int) bool { return raw[i].At.Before(raw[j].At) })
		return raw, nil
	}
}

func rollup(points []telemetry.TelemetryPoint, width time.Duration) []telemetry.TelemetryPoint {
	buckets := statistic.Aggregate(points, width)
	out := make([]telemetry.TelemetryPoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, telemetry.TelemetryPoint{
			At:           b.BucketStart,
			SensorID:     telemetry.Sensor(b.SensorID),
			PH:           b.Stat(telemetry.MetricPH).Avg,
			Turbidity:    b.Stat(telemetry.MetricTurbidity).Avg,
			Conductivity: b.Stat(telemetry.MetricConductivity).Avg,
			FlowRate:     b.Stat(telemetry.MetricFlowRate).Avg,
		})
	}
	return out
}
