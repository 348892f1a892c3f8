package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"watertap/internal/observability/metrics"
	telemetry "watertap/internal/telemetry/domain"
)

// Clock provides current time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service serves filtered telemetry reads, uploads, and soft deletes.
type Service struct {
	planner    *Planner
	filter     *ExclusionFilter
	writer     telemetry.SeriesWriter
	exclusions telemetry.ExclusionStore
	clock      Clock
	logger     *zap.Logger
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithClock overrides the service clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a telemetry service.
func NewService(reader telemetry.SeriesReader, writer telemetry.SeriesWriter, exclusions telemetry.ExclusionStore, opts ...ServiceOption) (*Service, error) {
	if writer == nil {
		return nil, errors.New("telemetry service: nil writer")
	}
	planner, err := NewPlanner(reader)
	if err != nil {
		return nil, err
	}
	filter, err := NewExclusionFilter(exclusions)
	if err != nil {
		return nil, err
	}
	svc := &Service{
		planner:    planner,
		filter:     filter,
		writer:     writer,
		exclusions: exclusions,
		clock:      systemClock{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Now returns the service clock time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Recent returns raw points of the last window, ending now.
func (s *Service) Recent(ctx context.Context, window time.Duration) ([]telemetry.TelemetryPoint, error) {
	if window <= 0 {
		return nil, fmt.Errorf("telemetry service: invalid window %s", window)
	}
	to := s.clock.Now()
	return s.RawHistory(ctx, to.Add(-window), to)
}

// History returns points for [from, to] from the tier the planner selects.
func (s *Service) History(ctx context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	return s.read(ctx, s.planner.Plan(from, to), from, to)
}

// AggregatedHistory returns points of an explicit tier.
func (s *Service) AggregatedHistory(ctx context.Context, tier telemetry.Tier, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	return s.read(ctx, tier, from, to)
}

// RawHistory returns raw points for [from, to] regardless of span.
func (s *Service) RawHistory(ctx context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	return s.read(ctx, telemetry.TierRaw, from, to)
}

func (s *Service) read(ctx context.Context, tier telemetry.Tier, from, to time.Time) ([]telemetry.TelemetryPoint, error) {
	points, err := s.planner.ReadTier(ctx, tier, from, to)
	if err != nil {
		return nil, err
	}
	return s.filter.Apply(ctx, points, from, to)
}

// Save writes raw points. Points without a sensor id or timestamp are rejected.
func (s *Service) Save(ctx context.Context, points []telemetry.TelemetryPoint) error {
	if len(points) == 0 {
		return nil
	}
	for i, p := range points {
		if !p.HasIdentity() {
			return fmt.Errorf("telemetry service: point %d missing sensor id or timestamp", i)
		}
	}
	if err := s.writer.Write(ctx, points); err != nil {
		return fmt.Errorf("telemetry service: write: %w: %w", telemetry.ErrDataSourceUnavailable, err)
	}
	return nil
}

// DeleteData records one exclusion range per sensor over [from, to]. A nil
// from means the epoch, a nil to means now. Nil sensor ids are skipped and a
// range that fails to save is logged and skipped. It returns the number of
// ranges recorded.
func (s *Service) DeleteData(ctx context.Context, sensorIDs []*int, from, to *time.Time) (int, error) {
	if len(sensorIDs) == 0 {
		return 0, fmt.Errorf("telemetry service: %w: no sensor ids", telemetry.ErrInvalidExclusion)
	}

	now := s.clock.Now()
	start := time.Unix(0, 0).UTC()
	if from != nil {
		start = from.UTC()
	}
	end := now
	if to != nil {
		end = to.UTC()
	}
	if end.Before(start) {
		return 0, fmt.Errorf("telemetry service: %w: end before start", telemetry.ErrInvalidExclusion)
	}

	created := 0
	for _, id := range sensorIDs {
		if id == nil {
			continue
		}
		r := &telemetry.ExclusionRange{SensorID: *id, Start: start, End: end, CreatedAt: now}
		if err := s.exclusions.Save(ctx, r); err != nil {
			s.logger.Warn("exclusion range not saved", zap.Int("sensor_id", *id), zap.Error(err))
			continue
		}
		created++
	}
	metrics.AddExclusionRanges(created)
	s.logger.Info("telemetry soft delete",
		zap.Int("ranges", created),
		zap.Time("from", start),
		zap.Time("to", end),
	)
	return created, nil
}
