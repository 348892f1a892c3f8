package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"watertap/internal/analytics/domain/statistic"
	reports "watertap/internal/reports/domain"
	telemetry "watertap/internal/telemetry/domain"
)

// HistoryReader reads raw telemetry regardless of span.
type HistoryReader interface {
	Now() time.Time
	RawHistory(ctx context.Context, from, to time.Time) ([]telemetry.TelemetryPoint, error)
}

// Service builds reports.
type Service struct {
	history HistoryReader
	logger  *zap.Logger
}

// NewService constructs a report service.
func NewService(history HistoryReader, logger *zap.Logger) (*Service, error) {
	if history == nil {
		return nil, errors.New("report service: nil history reader")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{history: history, logger: logger}, nil
}

// Now returns the clock of the underlying reader.
func (s *Service) Now() time.Time {
	return s.history.Now()
}

// Build reads raw history for [from, to] and buckets it per sensor.
func (s *Service) Build(ctx context.Context, from, to time.Time) (*reports.Report, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("report service: to %s before from %s", to, from)
	}
	raw, err := s.history.RawHistory(ctx, from, to)
	if err != nil {
		return nil, err
	}

	width := statistic.ReportWidth(from, to)
	buckets := statistic.Aggregate(raw, width)

	bySensor := make(map[int][]statistic.BucketStat)
	order := make([]int, 0)
	for _, b := range buckets {
		if _, ok := bySensor[b.SensorID]; !ok {
			order = append(order, b.SensorID)
		}
		bySensor[b.SensorID] = append(bySensor[b.SensorID], b)
	}

	expected := reports.ExpectedBuckets(from, to, width)
	sensors := make([]reports.SensorReport, 0, len(order))
	sort.Ints(order)
	for _, id := range order {
		list := bySensor[id]
		coverage := 0.0
		if expected > 0 {
			coverage = float64(len(list)) / float64(expected)
			if coverage > 1 {
				coverage = 1
			}
		}
		sensors = append(sensors, reports.SensorReport{
			SensorID: id,
			Buckets:  list,
			Summary:  reports.Summarize(list),
			Coverage: coverage,
		})
	}

	s.logger.Debug("report built",
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Duration("width", width),
		zap.Int("points", len(raw)),
		zap.Int("sensors", len(sensors)),
	)
	return &reports.Report{
		From:        from.UTC(),
		To:          to.UTC(),
		Width:       width,
		GeneratedAt: s.history.Now().UTC(),
		Raw:         raw,
		Sensors:     sensors,
	}, nil
}
