package application

import (
	"context"
	"time"

	alerts "watertap/internal/alerts/domain"
)

// EventType names an alert lifecycle event.
type EventType string

const (
	EventSnapshot    EventType = "snapshot"
	EventCreated     EventType = "created"
	EventUpdated     EventType = "updated"
	EventActivated   EventType = "activated"
	EventDeactivated EventType = "deactivated"
	EventDeleted     EventType = "deleted"
	// EventOverflow tells a subscriber that Dropped events were lost because
	// its queue was full.
	EventOverflow EventType = "overflow"
)

// Event is delivered to subscribers and notifiers.
type Event struct {
	Type    EventType     `json:"type"`
	Alert   *alerts.Alert `json:"alert,omitempty"`
	Dropped int           `json:"dropped,omitempty"`
}

func newEvent(eventType EventType, alert alerts.Alert) Event {
	a := alert
	return Event{Type: eventType, Alert: &a}
}

// Notifier receives committed alert events outside the hub lock.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
