package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	alertapp "watertap/internal/alerts/application"
	alerts "watertap/internal/alerts/domain"
	"watertap/internal/observability/metrics"
)

// AlertReader loads alert records for escalation checks.
type AlertReader interface {
	GetByID(ctx context.Context, id int64) (*alerts.Alert, error)
}

// Clock provides time for cooldown and dedupe.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier renders alert events and sends them through a channel. HIGH
// alerts still active after the escalation delay are sent again as
// escalated.
type Notifier struct {
	alerts         AlertReader
	channel        Channel
	template       *Template
	name           string
	escalation     time.Duration
	clock          Clock
	logger         *zap.Logger
	mu             sync.Mutex
	timers         map[int64]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout bounds the lookup and send of an escalation.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alert and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithChannelName labels the channel in metrics.
func WithChannelName(name string) Option {
	return func(n *Notifier) {
		if name != "" {
			n.name = name
		}
	}
}

// WithLogger sets the notifier logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs an alert notifier.
func NewNotifier(reader AlertReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if reader == nil {
		return nil, errors.New("alert notifier: nil alert reader")
	}
	if channel == nil {
		return nil, errors.New("alert notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		alerts:         reader,
		channel:        channel,
		template:       template,
		name:           "webhook",
		clock:          systemClock{},
		logger:         zap.NewNop(),
		timers:         make(map[int64]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements alertapp.Notifier.
func (n *Notifier) Notify(ctx context.Context, event alertapp.Event) {
	if n == nil || n.channel == nil || event.Alert == nil {
		return
	}
	switch event.Type {
	case alertapp.EventSnapshot, alertapp.EventOverflow:
		return
	}
	alert := *event.Alert
	n.dispatch(ctx, string(event.Type), alert)

	switch event.Type {
	case alertapp.EventCreated, alertapp.EventUpdated, alertapp.EventActivated:
		if alert.Severity == alerts.SeverityHigh {
			n.scheduleEscalation(alert.ID)
		} else {
			n.cancelEscalation(alert.ID)
		}
	case alertapp.EventDeactivated, alertapp.EventDeleted:
		n.cancelEscalation(alert.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[int64]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alert alerts.Alert) {
	content, err := n.template.Render(buildTemplateData(eventType, alert))
	if err != nil {
		metrics.IncAlertNotify(n.name, metrics.ResultError)
		n.logger.Warn("alert notification render failed", zap.Int64("alert_id", alert.ID), zap.Error(err))
		return
	}
	if !n.shouldSend(alert.ID, eventType, content) {
		metrics.IncAlertNotify(n.name, metrics.ResultSkipped)
		return
	}
	if err := n.channel.Send(ctx, Message{Event: eventType, Content: content, Alert: alert}); err != nil {
		metrics.IncAlertNotify(n.name, metrics.ResultError)
		n.logger.Warn("alert notification failed",
			zap.Int64("alert_id", alert.ID),
			zap.String("event", eventType),
			zap.Error(err),
		)
		return
	}
	metrics.IncAlertNotify(n.name, metrics.ResultSuccess)
	n.markSent(alert.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alertID int64) {
	if n.escalation <= 0 || alertID == 0 {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alertID]; ok && existing != nil {
		existing.Stop()
	}
	n.timers[alertID] = time.AfterFunc(n.escalation, func() {
		n.runEscalation(alertID)
	})
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alertID int64) {
	if alertID == 0 {
		return
	}
	n.mu.Lock()
	timer := n.timers[alertID]
	delete(n.timers, alertID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alertID int64) {
	n.mu.Lock()
	delete(n.timers, alertID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	alert, err := n.alerts.GetByID(ctx, alertID)
	if err != nil || alert == nil {
		return
	}
	if !alert.Active || alert.Severity != alerts.SeverityHigh {
		return
	}
	n.dispatch(ctx, "escalated", *alert)
}

func buildTemplateData(eventType string, alert alerts.Alert) TemplateData {
	status := "inactive"
	if alert.Active {
		status = "active"
	}
	return TemplateData{
		AlertID:     alert.ID,
		SensorID:    alert.SensorID,
		Severity:    string(alert.Severity),
		Description: alert.Description,
		Solution:    alert.Solution,
		CreatedAt:   alert.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   alert.UpdatedAt.UTC().Format(time.RFC3339),
		Status:      status,
		Suggestion:  suggestionFor(alert.Severity),
		Event:       eventType,
		EventLabel:  eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case string(alertapp.EventCreated):
		return "Triggered"
	case string(alertapp.EventUpdated):
		return "Updated"
	case string(alertapp.EventActivated):
		return "Reactivated"
	case string(alertapp.EventDeactivated):
		return "Resolved"
	case string(alertapp.EventDeleted):
		return "Deleted"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(severity alerts.Severity) string {
	switch severity {
	case alerts.SeverityHigh:
		return "Inspect the basin immediately and stop use if water quality is compromised."
	case alerts.SeverityMedium:
		return "Verify the sensor readings and check the installation."
	default:
		return "Monitor the sensor."
	}
}

func (n *Notifier) shouldSend(alertID int64, eventType, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alertID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alertID int64, eventType, content string) {
	key := notificationKey(alertID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alertID int64, eventType string) string {
	return strconv.FormatInt(alertID, 10) + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
