package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

// ExclusionFilter drops points hidden by soft-delete ranges.
type ExclusionFilter struct {
	store telemetry.ExclusionStore
}

// NewExclusionFilter constructs a filter.
func NewExclusionFilter(store telemetry.ExclusionStore) (*ExclusionFilter, error) {
	if store == nil {
		return nil, errors.New("exclusion filter: nil store")
	}
	return &ExclusionFilter{store: store}, nil
}

// Apply returns the points not covered by any range of their sensor. Ranges
// are loaded with one store query for all sensors present. Points without a
// sensor id or timestamp are kept. Applying twice yields the same result.
func (f *ExclusionFilter) Apply(ctx context.Context, points []telemetry.TelemetryPoint, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	if len(points) == 0 {
		return points, nil
	}

	sensorIDs := distinctSensors(points)
	if len(sensorIDs) == 0 {
		return points, nil
	}

	ranges, err := f.store.FindOverlapping(ctx, sensorIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("exclusion filter: %w: %w", telemetry.ErrDataSourceUnavailable, err)
	}
	if len(ranges) == 0 {
		return points, nil
	}

	bySensor := make(map[int][]telemetry.ExclusionRange, len(ranges))
	for _, r := range ranges {
		bySensor[r.SensorID] = append(bySensor[r.SensorID], r)
	}

	kept := make([]telemetry.TelemetryPoint, 0, len(points))
	for _, p := range points {
		if !p.HasIdentity() || !excluded(p, bySensor[*p.SensorID]) {
			kept = append(kept, p)
		}
	}
	return kept, nil
}

func excluded(p telemetry.TelemetryPoint, ranges []telemetry.ExclusionRange) bool {
	for _, r := range ranges {
		if r.Covers(p) {
			return true
		}
	}
	return false
}

func distinctSensors(points []telemetry.TelemetryPoint) []int {
	seen := make(map[int]struct{})
	for _, p := range points {
		if p.SensorID == nil {
			continue
		}
		seen[*p.SensorID] = struct{}{}
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
