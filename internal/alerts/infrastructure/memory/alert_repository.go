package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	alerts "watertap/internal/alerts/domain"
)

// AlertRepository is an in-memory alert repository for demo/testing. Reads
// return copies.
type AlertRepository struct {
	mu     sync.RWMutex
	nextID int64
	data   map[int64]alerts.Alert
}

// NewAlertRepository constructs a repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{data: make(map[int64]alerts.Alert)}
}

// Create stores a new alert and assigns its id.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	alert.ID = r.nextID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	r.data[alert.ID] = *alert
	return nil
}

// Update overwrites a stored alert.
func (r *AlertRepository) Update(ctx context.Context, alert *alerts.Alert) error {
	_ = ctx
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[alert.ID]; !ok {
		return alerts.ErrNotFound
	}
	r.data[alert.ID] = *alert
	return nil
}

// GetByID returns a copy of the alert, nil when missing.
func (r *AlertRepository) GetByID(ctx context.Context, id int64) (*alerts.Alert, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	alert, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	return &alert, nil
}

// Delete removes an alert.
func (r *AlertRepository) Delete(ctx context.Context, id int64) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return false, nil
	}
	delete(r.data, id)
	return true, nil
}

// ListActive returns active alerts, oldest first.
func (r *AlertRepository) ListActive(ctx context.Context) ([]alerts.Alert, error) {
	return r.filter(ctx, func(a alerts.Alert) bool { return a.Active }), nil
}

// FindActiveBySensor returns the newest active alert of a sensor.
func (r *AlertRepository) FindActiveBySensor(ctx context.Context, sensorID int) (*alerts.Alert, error) {
	matches := r.filter(ctx, func(a alerts.Alert) bool { return a.Active && a.SensorID == sensorID })
	if len(matches) == 0 {
		return nil, nil
	}
	latest := matches[len(matches)-1]
	return &latest, nil
}

// ListActiveCreatedBefore returns active alerts created before cutoff.
func (r *AlertRepository) ListActiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]alerts.Alert, error) {
	return r.filter(ctx, func(a alerts.Alert) bool { return a.Active && a.CreatedAt.Before(cutoff) }), nil
}

func (r *AlertRepository) filter(ctx context.Context, keep func(alerts.Alert) bool) []alerts.Alert {
	_ = ctx
	r.mu.RLock()
	out := make([]alerts.Alert, 0)
	for _, a := range r.data {
		if keep(a) {
			out = append(out, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
