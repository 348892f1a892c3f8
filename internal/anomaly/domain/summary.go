package anomaly

import (
	"time"

	"watertap/internal/analytics/domain/statistic"
	telemetry "watertap/internal/telemetry/domain"
)

// Summary is the structured input handed to the classifier.
type Summary struct {
	WorkTime    bool            `json:"workTime"`
	WindowStart *time.Time      `json:"windowStart,omitempty"`
	WindowEnd   *time.Time      `json:"windowEnd,omitempty"`
	GeneratedAt time.Time       `json:"generatedAt"`
	Recent      []SensorSummary `json:"last10min"`
	Context     []ContextPoint  `json:"lastHours"`
}

// SensorSummary describes one sensor over the recent window.
type SensorSummary struct {
	SensorID        int        `json:"sensorId"`
	FirstTs         *time.Time `json:"firstTs"`
	LastTs          *time.Time `json:"lastTs"`
	Count           int        `json:"count"`
	ActiveMin       int        `json:"activeMin"`
	LastFlow        *float64   `json:"lastFlow"`
	AvgFlowRate     *float64   `json:"avgFlowRate"`
	StdFlowRate     *float64   `json:"stdFlowRate"`
	MinFlowRate     *float64   `json:"minFlowRate"`
	MaxFlowRate     *float64   `json:"maxFlowRate"`
	P95FlowRate     *float64   `json:"p95FlowRate,omitempty"`
	AvgPh           *float64   `json:"avgPh"`
	StdPh           *float64   `json:"stdPh"`
	MinPh           *float64   `json:"minPh"`
	MaxPh           *float64   `json:"maxPh"`
	AvgTurbidity    *float64   `json:"avgTurbidity"`
	StdTurbidity    *float64   `json:"stdTurbidity"`
	MinTurbidity    *float64   `json:"minTurbidity"`
	MaxTurbidity    *float64   `json:"maxTurbidity"`
	AvgConductivity *float64   `json:"avgConductivity"`
	StdConductivity *float64   `json:"stdConductivity"`
	MinConductivity *float64   `json:"minConductivity"`
	MaxConductivity *float64   `json:"maxConductivity"`
}

// ContextPoint is one context reading in the flat lastHours list.
type ContextPoint struct {
	At           time.Time `json:"t"`
	SensorID     *int      `json:"sensorId"`
	FlowRate     *float64  `json:"flowRate"`
	PH           *float64  `json:"ph"`
	Turbidity    *float64  `json:"turbidity"`
	Conductivity *float64  `json:"conductivity"`
}

// Builder assembles summaries.
type Builder struct {
	activeFlow float64
	now        func() time.Time
}

// NewBuilder constructs a builder. A reading counts as active when its flow
// exceeds activeFlow.
func NewBuilder(activeFlow float64, now func() time.Time) *Builder {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Builder{activeFlow: activeFlow, now: now}
}

// Build summarizes recent per sensor, in first-seen order, and flattens the
// context points. Points without a sensor id are left out of the per-sensor
// blocks.
func (b *Builder) Build(recent, context []telemetry.TelemetryPoint, workTime bool) Summary {
	summary := Summary{
		WorkTime:    workTime,
		GeneratedAt: b.now(),
		Recent:      make([]SensorSummary, 0),
		Context:     make([]ContextPoint, 0, len(context)),
	}

	type sensorAcc struct {
		summary SensorSummary
		metrics map[telemetry.Metric]*statistic.Accumulator
	}
	order := make([]int, 0)
	bySensor := make(map[int]*sensorAcc)

	for _, p := range recent {
		if !p.At.IsZero() {
			at := p.At
			if summary.WindowStart == nil || at.Before(*summary.WindowStart) {
				summary.WindowStart = &at
			}
			if summary.WindowEnd == nil || at.After(*summary.WindowEnd) {
				summary.WindowEnd = &at
			}
		}
		if p.SensorID == nil {
			continue
		}
		id := *p.SensorID
		acc := bySensor[id]
		if acc == nil {
			acc = &sensorAcc{
				summary: SensorSummary{SensorID: id},
				metrics: map[telemetry.Metric]*statistic.Accumulator{
					telemetry.MetricFlowRate:     statistic.NewAccumulator(true),
					telemetry.MetricPH:           statistic.NewAccumulator(false),
					telemetry.MetricTurbidity:    statistic.NewAccumulator(false),
					telemetry.MetricConductivity: statistic.NewAccumulator(false),
				},
			}
			bySensor[id] = acc
			order = append(order, id)
		}

		s := &acc.summary
		s.Count++
		if !p.At.IsZero() {
			at := p.At
			if s.FirstTs == nil || at.Before(*s.FirstTs) {
				s.FirstTs = &at
			}
			if s.LastTs == nil || !at.Before(*s.LastTs) {
				s.LastTs = &at
				if p.FlowRate != nil {
					s.LastFlow = telemetry.Float(*p.FlowRate)
				}
			}
		}
		if p.FlowRate != nil && *p.FlowRate > b.activeFlow {
			s.ActiveMin++
		}
		for metric, a := range acc.metrics {
			a.Add(p.Value(metric))
		}
	}

	for _, id := range order {
		acc := bySensor[id]
		s := acc.summary
		flow := acc.metrics[telemetry.MetricFlowRate].Stat(true)
		ph := acc.metrics[telemetry.MetricPH].Stat(true)
		turb := acc.metrics[telemetry.MetricTurbidity].Stat(true)
		cond := acc.metrics[telemetry.MetricConductivity].Stat(true)

		s.AvgFlowRate, s.StdFlowRate, s.MinFlowRate, s.MaxFlowRate, s.P95FlowRate = flow.Avg, flow.StdDev, flow.Min, flow.Max, flow.P95
		s.AvgPh, s.StdPh, s.MinPh, s.MaxPh = ph.Avg, ph.StdDev, ph.Min, ph.Max
		s.AvgTurbidity, s.StdTurbidity, s.MinTurbidity, s.MaxTurbidity = turb.Avg, turb.StdDev, turb.Min, turb.Max
		s.AvgConductivity, s.StdConductivity, s.MinConductivity, s.MaxConductivity = cond.Avg, cond.StdDev, cond.Min, cond.Max
		summary.Recent = append(summary.Recent, s)
	}

	for _, p := range context {
		summary.Context = append(summary.Context, ContextPoint{
			At:           p.At,
			SensorID:     p.SensorID,
			FlowRate:     p.FlowRate,
			PH:           p.PH,
			Turbidity:    p.Turbidity,
			Conductivity: p.Conductivity,
		})
	}
	return summary
}
