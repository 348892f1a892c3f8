package alerts

import (
	"context"
	"time"
)

// Alert is the persisted alert of one sensor. At most one alert per sensor is
// active at a time.
type Alert struct {
	ID          int64     `json:"id"`
	SensorID    int       `json:"sensor_id"`
	Description string    `json:"description"`
	Severity    Severity  `json:"severity"`
	Active      bool      `json:"active"`
	Solution    string    `json:"solution,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Repository persists alerts. Implementations run each mutation in a
// transaction and return copies.
type Repository interface {
	Create(ctx context.Context, alert *Alert) error
	Update(ctx context.Context, alert *Alert) error
	// GetByID returns nil, nil when the alert does not exist.
	GetByID(ctx context.Context, id int64) (*Alert, error)
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
	ListActive(ctx context.Context) ([]Alert, error)
	// FindActiveBySensor returns nil, nil when the sensor has no active alert.
	FindActiveBySensor(ctx context.Context, sensorID int) (*Alert, error)
	ListActiveCreatedBefore(ctx context.Context, cutoff time.Time) ([]Alert, error)
}
