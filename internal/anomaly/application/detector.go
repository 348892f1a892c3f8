package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	alerts "watertap/internal/alerts/domain"
	"watertap/internal/analytics/domain/statistic"
	anomaly "watertap/internal/anomaly/domain"
	"watertap/internal/observability/metrics"
	settings "watertap/internal/settings/domain"
	telemetry "watertap/internal/telemetry/domain"
)

const (
	defaultRecentWindow    = statistic.RecentWindow
	defaultClassifyTimeout = 60 * time.Second
)

// Settings is the schedule capability the detector needs.
type Settings interface {
	EnsureDefault(ctx context.Context) (settings.Schedule, error)
	IsWorkTime(ctx context.Context, now time.Time) (bool, error)
}

// Telemetry is the read capability the detector needs.
type Telemetry interface {
	Now() time.Time
	Recent(ctx context.Context, window time.Duration) ([]telemetry.TelemetryPoint, error)
	AggregatedHistory(ctx context.Context, tier telemetry.Tier, from, to time.Time) ([]telemetry.TelemetryPoint, error)
}

// Classifier turns a prompt into a free-form reply.
type Classifier interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AlertSink receives merged candidates.
type AlertSink interface {
	CreateOrUpdateForSensor(ctx context.Context, candidate alerts.Candidate) (alerts.Alert, error)
}

// Detector runs the anomaly-check cycle.
type Detector struct {
	settings   Settings
	telemetry  Telemetry
	classifier Classifier
	alerts     AlertSink
	rules      anomaly.RuleSet
	builder    *anomaly.Builder

	recentWindow    time.Duration
	contextWindow   time.Duration
	classifyTimeout time.Duration
	logger          *zap.Logger
}

// DetectorOption configures the detector.
type DetectorOption func(*Detector)

// WithRecentWindow sets how far back the recent read goes.
func WithRecentWindow(window time.Duration) DetectorOption {
	return func(d *Detector) {
		if window > 0 {
			d.recentWindow = window
		}
	}
}

// WithClassifyTimeout bounds a single classifier call.
func WithClassifyTimeout(timeout time.Duration) DetectorOption {
	return func(d *Detector) {
		if timeout > 0 {
			d.classifyTimeout = timeout
		}
	}
}

// WithLogger sets the detector logger.
func WithLogger(logger *zap.Logger) DetectorOption {
	return func(d *Detector) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDetector constructs a detector.
func NewDetector(settingsSvc Settings, telemetrySvc Telemetry, classifier Classifier, sink AlertSink, rules anomaly.RuleSet, opts ...DetectorOption) (*Detector, error) {
	if settingsSvc == nil {
		return nil, errors.New("detector: nil settings")
	}
	if telemetrySvc == nil {
		return nil, errors.New("detector: nil telemetry")
	}
	if classifier == nil {
		return nil, errors.New("detector: nil classifier")
	}
	if sink == nil {
		return nil, errors.New("detector: nil alert sink")
	}
	d := &Detector{
		settings:        settingsSvc,
		telemetry:       telemetrySvc,
		classifier:      classifier,
		alerts:          sink,
		rules:           rules,
		builder:         anomaly.NewBuilder(rules.ActiveFlow, telemetrySvc.Now),
		recentWindow:    defaultRecentWindow,
		contextWindow:   statistic.ContextWindow,
		classifyTimeout: defaultClassifyTimeout,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// RunOnce performs one cycle and returns the alerts it created or updated.
// Classifier and parse failures are logged and yield no alerts; settings and
// telemetry failures are returned. The classifier is only called when at
// least one recent reading passes the validity filter: hourly context alone
// never triggers a call, since the prompt forbids alerts without recent data.
func (d *Detector) RunOnce(ctx context.Context) ([]alerts.Alert, error) {
	started := time.Now()
	result, err := d.runOnce(ctx)
	switch {
	case err != nil:
		metrics.ObserveAnomalyCycle(metrics.ResultError, time.Since(started))
	case result == nil:
		metrics.ObserveAnomalyCycle(metrics.ResultSkipped, time.Since(started))
	default:
		metrics.ObserveAnomalyCycle(metrics.ResultSuccess, time.Since(started))
	}
	if result == nil {
		result = []alerts.Alert{}
	}
	return result, err
}

func (d *Detector) runOnce(ctx context.Context) ([]alerts.Alert, error) {
	schedule, err := d.settings.EnsureDefault(ctx)
	if err != nil {
		return nil, fmt.Errorf("detector: settings: %w", err)
	}
	if !schedule.AIEnabled {
		d.logger.Debug("anomaly check skipped: ai disabled")
		return nil, nil
	}

	now := d.telemetry.Now()
	workTime, err := d.settings.IsWorkTime(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("detector: work time: %w", err)
	}

	var recent, hourly []telemetry.TelemetryPoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		recent, err = d.telemetry.Recent(gctx, d.recentWindow)
		return err
	})
	g.Go(func() error {
		var err error
		hourly, err = d.telemetry.AggregatedHistory(gctx, telemetry.TierHourly, now.Add(-d.contextWindow), now)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("detector: read telemetry: %w", err)
	}
	if len(recent) == 0 && len(hourly) == 0 {
		d.logger.Debug("anomaly check skipped: no telemetry")
		return nil, nil
	}
	if !d.rules.Eligible(recent) {
		d.logger.Debug("anomaly check skipped: no valid recent readings", zap.Int("recent", len(recent)))
		return nil, nil
	}

	summary := d.builder.Build(recent, hourly, workTime)
	findings := d.rules.Findings(recent, workTime)
	prompt, err := d.rules.Prompt(summary, findings)
	if err != nil {
		metrics.IncClassificationFailure("prompt")
		d.logger.Error("anomaly prompt failed", zap.Error(err))
		return nil, nil
	}

	callCtx, cancel := contextWithTimeout(ctx, d.classifyTimeout)
	reply, err := d.classifier.Complete(callCtx, prompt)
	cancel()
	if err != nil {
		metrics.IncClassificationFailure("classifier")
		d.logger.Error("anomaly classification failed", zap.Error(err))
		return nil, nil
	}

	candidates, err := anomaly.ParseResponse(reply)
	if err != nil {
		metrics.IncClassificationFailure("parse")
		d.logger.Warn("anomaly reply not parsed", zap.Error(err), zap.Int("reply_bytes", len(reply)))
		return nil, nil
	}

	merged := alerts.Merge(candidates)
	out := make([]alerts.Alert, 0, len(merged))
	for _, sensorID := range alerts.SensorIDs(merged) {
		alert, err := d.alerts.CreateOrUpdateForSensor(ctx, merged[sensorID])
		if err != nil {
			d.logger.Error("alert upsert failed", zap.Int("sensor_id", sensorID), zap.Error(err))
			continue
		}
		out = append(out, alert)
	}
	d.logger.Info("anomaly check completed",
		zap.Bool("work_time", workTime),
		zap.Int("recent", len(recent)),
		zap.Int("context", len(hourly)),
		zap.Int("findings", len(findings)),
		zap.Int("candidates", len(candidates)),
		zap.Int("alerts", len(out)),
	)
	return out, nil
}

// Start runs RunOnce after initialDelay and then every interval until ctx
// ends. A failing or panicking cycle never stops the loop.
func (d *Detector) Start(ctx context.Context, interval, initialDelay time.Duration) {
	if interval <= 0 {
		d.logger.Info("anomaly detector disabled")
		return
	}
	if initialDelay > 0 {
		timer := time.NewTimer(initialDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	d.safeRun(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.safeRun(ctx)
		}
	}
}

func (d *Detector) safeRun(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ObserveAnomalyCycle(metrics.ResultError, 0)
			d.logger.Error("anomaly check panicked", zap.Any("panic", r))
		}
	}()
	if _, err := d.RunOnce(ctx); err != nil {
		d.logger.Error("anomaly check failed", zap.Error(err))
	}
}

func contextWithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
