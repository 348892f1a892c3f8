package telemetry

import (
	"context"
	"time"
)

// Metric names a water-quality measurement.
type Metric string

const (
	MetricFlowRate     Metric = "flowRate"
	MetricPH           Metric = "ph"
	MetricTurbidity    Metric = "turbidity"
	MetricConductivity Metric = "conductivity"
)

// Metrics lists every metric in reporting order.
var Metrics = []Metric{MetricFlowRate, MetricPH, MetricTurbidity, MetricConductivity}

// TelemetryPoint is one reading of one sensor. A nil metric is absent, not zero.
type TelemetryPoint struct {
	At           time.Time `json:"timestamp"`
	SensorID     *int      `json:"sensorId"`
	PH           *float64  `json:"ph"`
	Turbidity    *float64  `json:"turbidity"`
	Conductivity *float64  `json:"conductivity"`
	FlowRate     *float64  `json:"flowRate"`
}

// Value returns the metric value, nil when absent.
func (p TelemetryPoint) Value(metric Metric) *float64 {
	switch metric {
	case MetricFlowRate:
		return p.FlowRate
	case MetricPH:
		return p.PH
	case MetricTurbidity:
		return p.Turbidity
	case MetricConductivity:
		return p.Conductivity
	default:
		return nil
	}
}

// HasIdentity reports whether the point carries both a sensor id and a timestamp.
func (p TelemetryPoint) HasIdentity() bool {
	return p.SensorID != nil && !p.At.IsZero()
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Sensor returns a pointer to id.
func Sensor(id int) *int {
	return &id
}

// SeriesQuery selects points of one tier in the inclusive range [From, To].
type SeriesQuery struct {
	Tier Tier
	From time.Time
	To   time.Time
}

// SeriesReader reads telemetry from the time-series store.
type SeriesReader interface {
	Query(ctx context.Context, query SeriesQuery) ([]TelemetryPoint, error)
}

// SeriesWriter persists raw telemetry.
type SeriesWriter interface {
	Write(ctx context.Context, points []TelemetryPoint) error
}
