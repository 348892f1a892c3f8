package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	telemetry "watertap/internal/telemetry/domain"
)

// ExclusionStore is an in-memory append-only exclusion store.
type ExclusionStore struct {
	mu     sync.RWMutex
	nextID int64
	ranges []telemetry.ExclusionRange
}

// NewExclusionStore constructs a store.
func NewExclusionStore() *ExclusionStore {
	return &ExclusionStore{}
}

// Save appends a range and assigns its id.
func (s *ExclusionStore) Save(ctx context.Context, r *telemetry.ExclusionRange) error {
	_ = ctx
	if r == nil {
		return errors.New("exclusion store: nil range")
	}
	if r.End.Before(r.Start) {
		return errors.New("exclusion store: end before start")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	r.ID = s.nextID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.ranges = append(s.ranges, *r)
	return nil
}

// FindOverlapping returns ranges of the sensors that intersect [from, to].
func (s *ExclusionStore) FindOverlapping(ctx context.Context, sensorIDs []int, from, to time.Time) ([]telemetry.ExclusionRange, error) {
	_ = ctx
	wanted := make(map[int]struct{}, len(sensorIDs))
	for _, id := range sensorIDs {
		wanted[id] = struct{}{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]telemetry.ExclusionRange, 0)
	for _, r := range s.ranges {
		if _, ok := wanted[r.SensorID]; !ok {
			continue
		}
		if r.Start.After(to) || r.End.Before(from) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
