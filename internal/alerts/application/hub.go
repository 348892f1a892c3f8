package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "watertap/internal/alerts/domain"
	"watertap/internal/observability/metrics"
)

// DefaultSubscriberBuffer is the per-subscriber queue capacity.
const DefaultSubscriberBuffer = 64

// Hub owns the alert lifecycle and fans committed changes out to
// subscribers. Mutations, publication and snapshot capture are serialized,
// so a subscriber never sees a change both in its snapshot and as an event.
type Hub struct {
	repo       alerts.Repository
	notifier   Notifier
	clock      Clock
	logger     *zap.Logger
	bufferSize int

	mu   sync.Mutex
	subs map[string]*Subscription
}

// HubOption customizes the hub.
type HubOption func(*Hub)

// WithNotifier assigns a notifier for committed events.
func WithNotifier(notifier Notifier) HubOption {
	return func(h *Hub) {
		h.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) HubOption {
	return func(h *Hub) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithSubscriberBuffer sets the per-subscriber queue capacity.
func WithSubscriberBuffer(size int) HubOption {
	return func(h *Hub) {
		if size > 0 {
			h.bufferSize = size
		}
	}
}

// NewHub constructs a hub.
func NewHub(repo alerts.Repository, opts ...HubOption) (*Hub, error) {
	if repo == nil {
		return nil, errors.New("alert hub: nil repository")
	}
	hub := &Hub{
		repo:       repo,
		clock:      systemClock{},
		logger:     zap.NewNop(),
		bufferSize: DefaultSubscriberBuffer,
		subs:       make(map[string]*Subscription),
	}
	for _, opt := range opts {
		opt(hub)
	}
	return hub, nil
}

// Active returns the active alerts.
func (h *Hub) Active(ctx context.Context) ([]alerts.Alert, error) {
	list, err := h.repo.ListActive(ctx)
	if err != nil {
		return nil, storeErr("list active", err)
	}
	return list, nil
}

// CreateOrUpdateForSensor overwrites the sensor's active alert with the
// candidate, or creates one when the sensor has none.
func (h *Hub) CreateOrUpdateForSensor(ctx context.Context, candidate alerts.Candidate) (alerts.Alert, error) {
	severity := alerts.ParseSeverity(string(candidate.Severity))
	description := strings.TrimSpace(candidate.Description)
	if description == "" {
		description = alerts.DefaultDescription
	}
	solution := strings.TrimSpace(candidate.Solution)

	var result alerts.Alert
	err := h.mutate(ctx, func(now time.Time) ([]Event, error) {
		existing, err := h.repo.FindActiveBySensor(ctx, candidate.SensorID)
		if err != nil {
			return nil, storeErr("find active", err)
		}
		if existing != nil {
			updated := *existing
			updated.Description = description
			updated.Severity = severity
			updated.Solution = solution
			updated.UpdatedAt = now
			if err := h.repo.Update(ctx, &updated); err != nil {
				return nil, storeErr("update", err)
			}
			result = updated
			return []Event{newEvent(EventUpdated, updated)}, nil
		}

		created := alerts.Alert{
			SensorID:    candidate.SensorID,
			Description: description,
			Severity:    severity,
			Active:      true,
			Solution:    solution,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := h.repo.Create(ctx, &created); err != nil {
			return nil, storeErr("create", err)
		}
		result = created
		return []Event{newEvent(EventCreated, created)}, nil
	})
	return result, err
}

// Create stores an operator-supplied alert. It goes through
// CreateOrUpdateForSensor so a sensor keeps a single active alert.
func (h *Hub) Create(ctx context.Context, alert alerts.Alert) (alerts.Alert, error) {
	return h.CreateOrUpdateForSensor(ctx, alerts.Candidate{
		SensorID:    alert.SensorID,
		Severity:    alert.Severity,
		Description: alert.Description,
		Solution:    alert.Solution,
	})
}

// Deactivate marks an alert inactive. found is false for an unknown id, in
// which case nothing changes.
func (h *Hub) Deactivate(ctx context.Context, id int64) (alert alerts.Alert, found bool, err error) {
	return h.setActive(ctx, id, false)
}

// Activate marks an alert active. Any other active alert of the same sensor
// is deactivated first.
func (h *Hub) Activate(ctx context.Context, id int64) (alert alerts.Alert, found bool, err error) {
	return h.setActive(ctx, id, true)
}

func (h *Hub) setActive(ctx context.Context, id int64, active bool) (alerts.Alert, bool, error) {
	var (
		result alerts.Alert
		found  bool
	)
	err := h.mutate(ctx, func(now time.Time) ([]Event, error) {
		current, err := h.repo.GetByID(ctx, id)
		if err != nil {
			return nil, storeErr("get", err)
		}
		if current == nil {
			return nil, nil
		}
		found = true
		result = *current
		if current.Active == active {
			return nil, nil
		}

		events := make([]Event, 0, 2)
		if active {
			other, err := h.repo.FindActiveBySensor(ctx, current.SensorID)
			if err != nil {
				return nil, storeErr("find active", err)
			}
			if other != nil && other.ID != current.ID {
				replaced := *other
				replaced.Active = false
				replaced.UpdatedAt = now
				if err := h.repo.Update(ctx, &replaced); err != nil {
					return nil, storeErr("update", err)
				}
				events = append(events, newEvent(EventDeactivated, replaced))
			}
		}

		changed := *current
		changed.Active = active
		changed.UpdatedAt = now
		if err := h.repo.Update(ctx, &changed); err != nil {
			return events, storeErr("update", err)
		}
		result = changed
		eventType := EventDeactivated
		if active {
			eventType = EventActivated
		}
		return append(events, newEvent(eventType, changed)), nil
	})
	return result, found, err
}

// Delete removes an alert. It reports false for an unknown id.
func (h *Hub) Delete(ctx context.Context, id int64) (bool, error) {
	var found bool
	err := h.mutate(ctx, func(time.Time) ([]Event, error) {
		current, err := h.repo.GetByID(ctx, id)
		if err != nil {
			return nil, storeErr("get", err)
		}
		if current == nil {
			return nil, nil
		}
		removed, err := h.repo.Delete(ctx, id)
		if err != nil {
			return nil, storeErr("delete", err)
		}
		if !removed {
			return nil, nil
		}
		found = true
		return []Event{newEvent(EventDeleted, *current)}, nil
	})
	return found, err
}

// AutoResolve deactivates active alerts created more than olderThan ago and
// returns how many it closed. A non-positive threshold disables it.
func (h *Hub) AutoResolve(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	resolved := 0
	err := h.mutate(ctx, func(now time.Time) ([]Event, error) {
		stale, err := h.repo.ListActiveCreatedBefore(ctx, now.Add(-olderThan))
		if err != nil {
			return nil, storeErr("list stale", err)
		}
		events := make([]Event, 0, len(stale))
		for _, alert := range stale {
			alert.Active = false
			alert.UpdatedAt = now
			if err := h.repo.Update(ctx, &alert); err != nil {
				return events, storeErr("update", err)
			}
			resolved++
			events = append(events, newEvent(EventDeactivated, alert))
		}
		return events, nil
	})
	metrics.AddAutoResolved(resolved)
	return resolved, err
}

// StartAutoResolve runs AutoResolve every interval until ctx ends.
func (h *Hub) StartAutoResolve(ctx context.Context, every, olderThan time.Duration) {
	if every <= 0 || olderThan <= 0 {
		h.logger.Info("alert auto-resolve disabled")
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := h.AutoResolve(ctx, olderThan)
			if err != nil {
				h.logger.Error("alert auto-resolve failed", zap.Error(err))
				continue
			}
			if n > 0 {
				h.logger.Info("alerts auto-resolved", zap.Int("count", n), zap.Duration("older_than", olderThan))
			}
		}
	}
}

// Subscribe registers a subscriber. The snapshot of active alerts is read
// under the hub lock.
func (h *Hub) Subscribe(ctx context.Context) (*Subscription, error) {
	h.mu.Lock()
	active, err := h.repo.ListActive(ctx)
	if err != nil {
		h.mu.Unlock()
		return nil, storeErr("snapshot", err)
	}
	snapshot := make([]Event, 0, len(active))
	for _, alert := range active {
		snapshot = append(snapshot, newEvent(EventSnapshot, alert))
	}
	sub := newSubscription(uuid.NewString(), h, h.bufferSize, snapshot)
	h.subs[sub.id] = sub
	count := len(h.subs)
	h.mu.Unlock()

	metrics.AddAlertSubscribers(1)
	h.logger.Debug("alert subscriber attached", zap.String("subscription", sub.id), zap.Int("subscribers", count))
	return sub, nil
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) unsubscribe(id string) {
	h.mu.Lock()
	_, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		metrics.AddAlertSubscribers(-1)
		h.logger.Debug("alert subscriber detached", zap.String("subscription", id))
	}
}

// mutate runs fn under the hub lock and publishes the events it returns,
// including those returned alongside an error, since they were committed.
func (h *Hub) mutate(ctx context.Context, fn func(now time.Time) ([]Event, error)) error {
	h.mu.Lock()
	events, err := fn(h.clock.Now())
	for _, event := range events {
		h.publishLocked(event)
	}
	h.mu.Unlock()

	if h.notifier != nil {
		for _, event := range events {
			h.notifier.Notify(ctx, event)
		}
	}
	return err
}

func (h *Hub) publishLocked(event Event) {
	metrics.IncAlertEvent(string(event.Type))
	for _, sub := range h.subs {
		if sub.enqueue(event) {
			metrics.IncAlertDropped()
			h.logger.Warn("alert subscriber overflow",
				zap.String("subscription", sub.id),
				zap.String("event", string(event.Type)),
			)
		}
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("alert hub: %s: %w: %w", op, alerts.ErrStoreUnavailable, err)
}
