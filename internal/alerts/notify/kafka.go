package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	alertapp "watertap/internal/alerts/application"
	"watertap/internal/observability/metrics"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessage is the payload published for each alert event.
type KafkaMessage struct {
	Type       alertapp.EventType `json:"type"`
	AlertID    int64              `json:"alertId"`
	SensorID   int                `json:"sensorId"`
	Severity   string             `json:"severity"`
	Active     bool               `json:"active"`
	Message    string             `json:"description"`
	Solution   string             `json:"solution,omitempty"`
	OccurredAt time.Time          `json:"occurredAt"`
}

// KafkaPublisher publishes committed alert events to a topic, keyed by
// sensor id so a sensor's events stay ordered within a partition.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *zap.Logger
}

// NewKafkaWriter builds a synchronous writer for the topic.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka publisher: empty topic")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}, nil
}

// NewKafkaPublisher constructs a publisher.
func NewKafkaPublisher(writer MessageWriter, timeout time.Duration, logger *zap.Logger) (*KafkaPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka publisher: nil writer")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{writer: writer, timeout: timeout, logger: logger}, nil
}

// Notify implements alertapp.Notifier. Failures are logged and counted.
func (p *KafkaPublisher) Notify(ctx context.Context, event alertapp.Event) {
	if p == nil || event.Alert == nil {
		return
	}
	switch event.Type {
	case alertapp.EventSnapshot, alertapp.EventOverflow:
		return
	}
	alert := event.Alert
	body, err := json.Marshal(KafkaMessage{
		Type:       event.Type,
		AlertID:    alert.ID,
		SensorID:   alert.SensorID,
		Severity:   string(alert.Severity),
		Active:     alert.Active,
		Message:    alert.Description,
		Solution:   alert.Solution,
		OccurredAt: alert.UpdatedAt.UTC(),
	})
	if err != nil {
		metrics.IncAlertNotify("kafka", metrics.ResultError)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(strconv.Itoa(alert.SensorID)),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		metrics.IncAlertNotify("kafka", metrics.ResultError)
		p.logger.Warn("alert event publish failed",
			zap.Int64("alert_id", alert.ID),
			zap.String("event", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	metrics.IncAlertNotify("kafka", metrics.ResultSuccess)
}

// Close closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
