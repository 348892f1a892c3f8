package memory

import (
	"context"
	"errors"
	"sync"

	settings "watertap/internal/settings/domain"
)

// ScheduleRepository keeps the schedule in memory for demo/testing.
type ScheduleRepository struct {
	mu       sync.RWMutex
	schedule *settings.Schedule
	saves    int
}

// NewScheduleRepository constructs a repository.
func NewScheduleRepository() *ScheduleRepository {
	return &ScheduleRepository{}
}

// Get returns a copy of the stored schedule.
func (r *ScheduleRepository) Get(ctx context.Context) (*settings.Schedule, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.schedule == nil {
		return nil, nil
	}
	copied := *r.schedule
	return &copied, nil
}

// Save stores the schedule, assigning id 1 on first save.
func (r *ScheduleRepository) Save(ctx context.Context, schedule *settings.Schedule) error {
	_ = ctx
	if schedule == nil {
		return errors.New("schedule repo: nil schedule")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if schedule.ID == 0 {
		schedule.ID = 1
	}
	copied := *schedule
	r.schedule = &copied
	r.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (r *ScheduleRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}
