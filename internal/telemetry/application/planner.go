package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"watertap/internal/observability/metrics"
	telemetry "watertap/internal/telemetry/domain"
)

// Planner routes range reads to the tier matching the span.
type Planner struct {
	reader telemetry.SeriesReader
}

// NewPlanner constructs a planner.
func NewPlanner(reader telemetry.SeriesReader) (*Planner, error) {
	if reader == nil {
		return nil, errors.New("planner: nil reader")
	}
	return &Planner{reader: reader}, nil
}

// Plan returns the tier used for [from, to].
func (p *Planner) Plan(from, to time.Time) telemetry.Tier {
	return telemetry.SelectTier(from, to)
}

// Read loads points for [from, to] from the planned tier, ascending by timestamp.
func (p *Planner) Read(ctx context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	return p.ReadTier(ctx, p.Plan(from, to), from, to)
}

// ReadTier loads points of an explicit tier, ascending by timestamp. Failures
// are not retried.
func (p *Planner) ReadTier(ctx context.Context, tier telemetry.Tier, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	if p == nil || p.reader == nil {
		return nil, errors.New("planner: not initialized")
	}
	if to.Before(from) {
		return nil, fmt.Errorf("planner: range end %s before start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
	}

	start := time.Now()
	points, err := p.reader.Query(ctx, telemetry.SeriesQuery{Tier: tier, From: from, To: to})
	if err != nil {
		metrics.ObserveTelemetryRead(string(tier), metrics.ResultError, time.Since(start))
		return nil, fmt.Errorf("planner: %s read: %w: %w", tier, telemetry.ErrDataSourceUnavailable, err)
	}
	metrics.ObserveTelemetryRead(string(tier), metrics.ResultSuccess, time.Since(start))

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].At.Before(points[j].At)
	})
	return points, nil
}
