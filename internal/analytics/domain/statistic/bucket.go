package statistic

import (
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	telemetry "watertap/internal/telemetry/domain"
)

// DefaultBucketWidth applies when a caller passes a non-positive width.
const DefaultBucketWidth = 10 * time.Minute

// BucketStat holds per-metric statistics of one sensor over one bucket.
type BucketStat struct {
	SensorID    int                             `json:"sensorId"`
	BucketStart time.Time                       `json:"bucketStart"`
	BucketWidth time.Duration                   `json:"bucketWidth"`
	Metrics     map[telemetry.Metric]MetricStat `json:"metrics"`
}

// Stat returns the statistic of a metric, zero-count when absent.
func (b BucketStat) Stat(metric telemetry.Metric) MetricStat {
	return b.Metrics[metric]
}

// BucketEnd returns the exclusive end of the bucket.
func (b BucketStat) BucketEnd() time.Time {
	return b.BucketStart.Add(b.BucketWidth)
}

type options struct {
	stdDev      bool
	percentiles bool
}

// Option configures aggregation.
type Option func(*options)

// WithStdDev adds a population standard deviation per metric.
func WithStdDev() Option {
	return func(o *options) { o.stdDev = true }
}

// WithPercentiles adds a p95 estimate per metric.
func WithPercentiles() Option {
	return func(o *options) { o.percentiles = true }
}

// BucketStartOf returns floor(t / width) * width on the Unix epoch.
func BucketStartOf(t time.Time, width time.Duration) time.Time {
	w := width.Milliseconds()
	ms := t.UnixMilli()
	start := ms / w * w
	if ms < 0 && ms%w != 0 {
		start -= w
	}
	return time.UnixMilli(start).UTC()
}

// Aggregate groups points by sensor and bucket and summarizes every metric.
// Points without a sensor id or timestamp are skipped. Sensors are
// aggregated concurrently; output is ordered by bucket start, then sensor id.
func Aggregate(points []telemetry.TelemetryPoint, width time.Duration, opts ...Option) []BucketStat {
	if width <= 0 || width.Milliseconds() == 0 {
		width = DefaultBucketWidth
	}
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}

	bySensor := make(map[int][]telemetry.TelemetryPoint)
	sensors := make([]int, 0)
	for _, p := range points {
		if !p.HasIdentity() {
			continue
		}
		id := *p.SensorID
		if _, ok := bySensor[id]; !ok {
			sensors = append(sensors, id)
		}
		bySensor[id] = append(bySensor[id], p)
	}

	results := make([][]BucketStat, len(sensors))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range sensors {
		i, id := i, id
		g.Go(func() error {
			results[i] = aggregateSensor(id, bySensor[id], width, cfg)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]BucketStat, 0)
	for _, r := range results {
		out = append(out, r...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketStart.Equal(out[j].BucketStart) {
			return out[i].BucketStart.Before(out[j].BucketStart)
		}
		return out[i].SensorID < out[j].SensorID
	})
	return out
}

func aggregateSensor(sensorID int, points []telemetry.TelemetryPoint, width time.Duration, cfg options) []BucketStat {
	type bucket struct {
		start time.Time
		accs  map[telemetry.Metric]*Accumulator
	}
	buckets := make(map[int64]*bucket)
	for _, p := range points {
		start := BucketStartOf(p.At, width)
		key := start.UnixMilli()
		b := buckets[key]
		if b == nil {
			b = &bucket{start: start, accs: make(map[telemetry.Metric]*Accumulator, len(telemetry.Metrics))}
			for _, m := range telemetry.Metrics {
				b.accs[m] = NewAccumulator(cfg.percentiles)
			}
			buckets[key] = b
		}
		for _, m := range telemetry.Metrics {
			b.accs[m].Add(p.Value(m))
		}
	}

	out := make([]BucketStat, 0, len(buckets))
	for _, b := range buckets {
		stats := make(map[telemetry.Metric]MetricStat, len(b.accs))
		for m, acc := range b.accs {
			stats[m] = acc.Stat(cfg.stdDev)
		}
		out = append(out, BucketStat{
			SensorID:    sensorID,
			BucketStart: b.start,
			BucketWidth: width,
			Metrics:     stats,
		})
	}
	return out
}
