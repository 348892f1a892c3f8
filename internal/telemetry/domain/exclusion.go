package telemetry

import (
	"context"
	"time"
)

// ExclusionRange hides a sensor's readings in [Start, End] from every read.
// Ranges are append-only.
type ExclusionRange struct {
	ID        int64     `json:"id"`
	SensorID  int       `json:"sensorId"`
	Start     time.Time `json:"startTime"`
	End       time.Time `json:"endTime"`
	CreatedAt time.Time `json:"createdAt"`
}

// Covers reports whether the range hides the point.
func (r ExclusionRange) Covers(p TelemetryPoint) bool {
	if !p.HasIdentity() || *p.SensorID != r.SensorID {
		return false
	}
	return !p.At.Before(r.Start) && !p.At.After(r.End)
}

// ExclusionStore persists exclusion ranges.
type ExclusionStore interface {
	Save(ctx context.Context, r *ExclusionRange) error
	// FindOverlapping returns ranges of the given sensors that intersect [from, to].
	FindOverlapping(ctx context.Context, sensorIDs []int, from, to time.Time) ([]ExclusionRange, error)
}
