package reports

import (
	"time"

	"watertap/internal/analytics/domain/statistic"
	telemetry "watertap/internal/telemetry/domain"
)

// Report is the bucketed view of a telemetry range.
type Report struct {
	From        time.Time                  `json:"from"`
	To          time.Time                  `json:"to"`
	Width       time.Duration              `json:"width"`
	GeneratedAt time.Time                  `json:"generatedAt"`
	Raw         []telemetry.TelemetryPoint `json:"raw"`
	Sensors     []SensorReport             `json:"sensors"`
}

// SensorReport holds the buckets and summary of one sensor.
type SensorReport struct {
	SensorID int                                `json:"sensorId"`
	Buckets  []statistic.BucketStat             `json:"buckets"`
	Summary  map[telemetry.Metric]MetricSummary `json:"summary"`
	Coverage float64                            `json:"coverage"`
}

// MetricSummary folds the buckets of one metric. Nil when no bucket had data.
type MetricSummary struct {
	Mean *float64 `json:"mean"`
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
}

// ExpectedBuckets returns how many buckets of width fit in [from, to).
func ExpectedBuckets(from, to time.Time, width time.Duration) int {
	if width <= 0 || !to.After(from) {
		return 0
	}
	span := to.Sub(from)
	n := int(span / width)
	if span%width != 0 {
		n++
	}
	return n
}

// Summarize folds buckets into one summary per metric: the mean of bucket
// averages, the lowest minimum and the highest maximum.
func Summarize(buckets []statistic.BucketStat) map[telemetry.Metric]MetricSummary {
	out := make(map[telemetry.Metric]MetricSummary, len(telemetry.Metrics))
	for _, metric := range telemetry.Metrics {
		var (
			sum    float64
			n      int
			lo, hi *float64
		)
		for _, b := range buckets {
			stat := b.Stat(metric)
			if stat.Count == 0 || stat.Avg == nil {
				continue
			}
			sum += *stat.Avg
			n++
			if stat.Min != nil && (lo == nil || *stat.Min < *lo) {
				v := *stat.Min
				lo = &v
			}
			if stat.Max != nil && (hi == nil || *stat.Max > *hi) {
				v := *stat.Max
				hi = &v
			}
		}
		summary := MetricSummary{Min: lo, Max: hi}
		if n > 0 {
			mean := sum / float64(n)
			summary.Mean = &mean
		}
		out[metric] = summary
	}
	return out
}
