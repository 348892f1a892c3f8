package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "watertap_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	telemetryReadTotal   *prometheus.CounterVec
	telemetryReadLatency *prometheus.HistogramVec
	ingestPointsTotal    *prometheus.CounterVec
	exclusionRangesTotal prometheus.Counter

	alertEventsTotal      *prometheus.CounterVec
	alertSubscribers      prometheus.Gauge
	alertDroppedTotal     prometheus.Counter
	alertNotifyTotal      *prometheus.CounterVec
	autoResolvedTotal     prometheus.Counter
	anomalyCycleTotal     *prometheus.CounterVec
	anomalyCycleLatency   *prometheus.HistogramVec
	classificationFailure *prometheus.CounterVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		telemetryReadTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_reads_total",
				Help: "Total telemetry reads by tier and result",
			},
			[]string{"tier", "result"},
		)
		telemetryReadLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "telemetry_read_latency_seconds",
				Help:    "Telemetry read latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tier"},
		)
		ingestPointsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_points_total",
				Help: "Total ingested telemetry points by source and result",
			},
			[]string{"source", "result"},
		)
		exclusionRangesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "exclusion_ranges_total",
				Help: "Total exclusion ranges recorded",
			},
		)

		alertEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_events_total",
				Help: "Total alert events by type",
			},
			[]string{"type"},
		)
		alertSubscribers = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "alert_subscribers",
				Help: "Connected alert subscribers",
			},
		)
		alertDroppedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_subscriber_dropped_total",
				Help: "Alert events dropped for slow subscribers",
			},
		)
		alertNotifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_notify_total",
				Help: "Alert notifications by channel and result",
			},
			[]string{"channel", "result"},
		)
		autoResolvedTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_auto_resolved_total",
				Help: "Alerts deactivated by the auto-resolve sweep",
			},
		)
		anomalyCycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "anomaly_cycles_total",
				Help: "Anomaly check cycles by result",
			},
			[]string{"result"},
		)
		anomalyCycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "anomaly_cycle_latency_seconds",
				Help:    "Anomaly check cycle latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		classificationFailure = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "classification_failures_total",
				Help: "Classification failures by reason",
			},
			[]string{"reason"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)

		prometheus.MustRegister(
			telemetryReadTotal,
			telemetryReadLatency,
			ingestPointsTotal,
			exclusionRangesTotal,
			alertEventsTotal,
			alertSubscribers,
			alertDroppedTotal,
			alertNotifyTotal,
			autoResolvedTotal,
			anomalyCycleTotal,
			anomalyCycleLatency,
			classificationFailure,
			reportExportTotal,
			reportExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveTelemetryRead records one time-series read.
func ObserveTelemetryRead(tier, result string, duration time.Duration) {
	if telemetryReadTotal == nil {
		return
	}
	telemetryReadTotal.WithLabelValues(tier, result).Inc()
	telemetryReadLatency.WithLabelValues(tier).Observe(duration.Seconds())
}

// AddIngestedPoints counts points written from an ingest source.
func AddIngestedPoints(source, result string, n int) {
	if ingestPointsTotal == nil || n <= 0 {
		return
	}
	ingestPointsTotal.WithLabelValues(source, result).Add(float64(n))
}

// AddExclusionRanges counts recorded exclusion ranges.
func AddExclusionRanges(n int) {
	if exclusionRangesTotal == nil || n <= 0 {
		return
	}
	exclusionRangesTotal.Add(float64(n))
}

// IncAlertEvent increments alert event counters.
func IncAlertEvent(eventType string) {
	if alertEventsTotal == nil {
		return
	}
	alertEventsTotal.WithLabelValues(eventType).Inc()
}

// AddAlertSubscribers moves the connected subscriber gauge.
func AddAlertSubscribers(delta int) {
	if alertSubscribers == nil {
		return
	}
	alertSubscribers.Add(float64(delta))
}

// IncAlertDropped counts one event dropped for a slow subscriber.
func IncAlertDropped() {
	if alertDroppedTotal == nil {
		return
	}
	alertDroppedTotal.Inc()
}

// IncAlertNotify counts one notification attempt.
func IncAlertNotify(channel, result string) {
	if alertNotifyTotal == nil {
		return
	}
	alertNotifyTotal.WithLabelValues(channel, result).Inc()
}

// AddAutoResolved counts alerts closed by the sweep.
func AddAutoResolved(n int) {
	if autoResolvedTotal == nil || n <= 0 {
		return
	}
	autoResolvedTotal.Add(float64(n))
}

// ObserveAnomalyCycle records one anomaly check cycle.
func ObserveAnomalyCycle(result string, duration time.Duration) {
	if anomalyCycleTotal == nil {
		return
	}
	anomalyCycleTotal.WithLabelValues(result).Inc()
	anomalyCycleLatency.WithLabelValues(result).Observe(duration.Seconds())
}

// IncClassificationFailure counts an absorbed classification failure.
func IncClassificationFailure(reason string) {
	if classificationFailure == nil {
		return
	}
	classificationFailure.WithLabelValues(reason).Inc()
}

// ObserveReportExport records a report rendering.
func ObserveReportExport(format, result string, duration time.Duration) {
	if reportExportTotal == nil {
		return
	}
	reportExportTotal.WithLabelValues(format, result).Inc()
	reportExportLatency.WithLabelValues(format).Observe(duration.Seconds())
}
