package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"watertap/internal/observability/metrics"
	telemetry "watertap/internal/telemetry/domain"
)

const source = "mqtt"

// Saver persists decoded points.
type Saver interface {
	Save(ctx context.Context, points []telemetry.TelemetryPoint) error
}

// Config holds broker settings.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// Subscriber ingests telemetry published on an MQTT topic. Each message is
// one JSON point or a JSON array of points.
type Subscriber struct {
	cfg    Config
	saver  Saver
	client paho.Client
	logger *zap.Logger
}

// NewSubscriber validates cfg and builds an unconnected client.
func NewSubscriber(cfg Config, saver Saver, logger *zap.Logger) (*Subscriber, error) {
	if saver == nil {
		return nil, errors.New("mqtt subscriber: nil saver")
	}
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt subscriber: broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("mqtt subscriber: topic is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "watertap-ingest"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Subscriber{cfg: cfg, saver: saver, logger: logger}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetOnConnectHandler(func(c paho.Client) {
			// Subscriptions are not kept across reconnects without a persistent session.
			if err := s.subscribe(c); err != nil {
				s.logger.Error("mqtt resubscribe failed", zap.Error(err))
			}
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			s.logger.Warn("mqtt connection lost", zap.Error(err))
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	s.client = paho.NewClient(opts)
	return s, nil
}

// Start connects and subscribes. It returns once the broker acknowledged
// the connection.
func (s *Subscriber) Start() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.Timeout) {
		return fmt.Errorf("mqtt subscriber: connect to %s timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscriber: connect: %w", err)
	}
	s.logger.Info("mqtt subscriber connected", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
	return nil
}

// Stop disconnects, waiting up to 250ms for in-flight work.
func (s *Subscriber) Stop() {
	if s == nil || s.client == nil {
		return
	}
	s.client.Disconnect(250)
}

func (s *Subscriber) subscribe(c paho.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		if err := s.HandlePayload(ctx, msg.Payload()); err != nil {
			s.logger.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if !token.WaitTimeout(s.cfg.Timeout) {
		return errors.New("mqtt subscriber: subscribe timed out")
	}
	return token.Error()
}

// HandlePayload decodes and saves one message.
func (s *Subscriber) HandlePayload(ctx context.Context, payload []byte) error {
	points, err := Decode(payload)
	if err != nil {
		metrics.AddIngestedPoints(source, metrics.ResultError, 1)
		return err
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.saver.Save(ctx, points); err != nil {
		metrics.AddIngestedPoints(source, metrics.ResultError, len(points))
		return err
	}
	metrics.AddIngestedPoints(source, metrics.ResultSuccess, len(points))
	return nil
}

// Decode parses one point or an array of points.
func Decode(payload []byte) ([]telemetry.TelemetryPoint, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("mqtt: empty payload")
	}
	if trimmed[0] == '[' {
		var points []telemetry.TelemetryPoint
		if err := json.Unmarshal(trimmed, &points); err != nil {
			return nil, fmt.Errorf("mqtt: decode array: %w", err)
		}
		return points, nil
	}
	var point telemetry.TelemetryPoint
	if err := json.Unmarshal(trimmed, &point); err != nil {
		return nil, fmt.Errorf("mqtt: decode point: %w", err)
	}
	return []telemetry.TelemetryPoint{point}, nil
}
