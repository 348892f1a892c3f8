package anomaly

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"text/template"

	alerts "watertap/internal/alerts/domain"
	telemetry "watertap/internal/telemetry/domain"
)

// RuleSet holds the water-quality thresholds handed to the classifier and
// used by the local screen.
type RuleSet struct {
	PHMin           float64 `yaml:"ph_min"`
	PHMax           float64 `yaml:"ph_max"`
	TurbidityMax    float64 `yaml:"turbidity_max"`
	TurbidityHigh   float64 `yaml:"turbidity_high"`
	ConductivityMax float64 `yaml:"conductivity_max"`
	FlowMax         float64 `yaml:"flow_max"`
	ActiveFlow      float64 `yaml:"active_flow"`
	MaxSensorID     int     `yaml:"max_sensor_id"`
	Language        string  `yaml:"language"`
}

// DefaultRuleSet returns the handwash-basin thresholds.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		PHMin:           6.5,
		PHMax:           8.5,
		TurbidityMax:    1.0,
		TurbidityHigh:   2.0,
		ConductivityMax: 500,
		FlowMax:         0.8,
		ActiveFlow:      0.1,
		MaxSensorID:     1_000_000_000,
		Language:        "Spanish",
	}
}

// ValidReading reports whether a reading is usable: it needs an identity, a
// plausible sensor id, positive pH and flow when present, and at least one
// non-zero metric.
func (r RuleSet) ValidReading(p telemetry.TelemetryPoint) bool {
	if !p.HasIdentity() {
		return false
	}
	if *p.SensorID <= 0 || *p.SensorID > r.MaxSensorID {
		return false
	}
	if p.PH != nil && *p.PH <= 0 {
		return false
	}
	if p.FlowRate != nil && *p.FlowRate <= 0 {
		return false
	}
	allZero := true
	for _, m := range telemetry.Metrics {
		if v := p.Value(m); v != nil && *v != 0 {
			allZero = false
			break
		}
	}
	return !allZero
}

// Eligible reports whether any recent reading is valid.
func (r RuleSet) Eligible(recent []telemetry.TelemetryPoint) bool {
	for _, p := range recent {
		if r.ValidReading(p) {
			return true
		}
	}
	return false
}

// Finding is a threshold breach found by the local screen.
type Finding struct {
	SensorID int              `json:"sensorId"`
	Metric   telemetry.Metric `json:"metric"`
	Value    float64          `json:"value"`
	Severity alerts.Severity  `json:"severity"`
}

// Findings screens valid recent readings against the thresholds and returns
// the worst breach per sensor and metric, ordered by sensor then metric.
// Flow is judged on the mean of the window and is rated lower during working
// hours.
func (r RuleSet) Findings(recent []telemetry.TelemetryPoint, workTime bool) []Finding {
	worst := make(map[int]map[telemetry.Metric]Finding)
	keep := func(f Finding) {
		bySensor := worst[f.SensorID]
		if bySensor == nil {
			bySensor = make(map[telemetry.Metric]Finding)
			worst[f.SensorID] = bySensor
		}
		if cur, ok := bySensor[f.Metric]; !ok || f.Severity.Rank() > cur.Severity.Rank() {
			bySensor[f.Metric] = f
		}
	}

	flowSum := make(map[int]float64)
	flowCount := make(map[int]int)
	for _, p := range recent {
		if !r.ValidReading(p) {
			continue
		}
		id := *p.SensorID
		if p.PH != nil && (*p.PH < r.PHMin || *p.PH > r.PHMax) {
			sev := alerts.SeverityMedium
			if *p.PH < r.PHMin-0.5 || *p.PH > r.PHMax+0.5 {
				sev = alerts.SeverityHigh
			}
			keep(Finding{SensorID: id, Metric: telemetry.MetricPH, Value: *p.PH, Severity: sev})
		}
		if p.Turbidity != nil && *p.Turbidity >= r.TurbidityMax {
			sev := alerts.SeverityMedium
			if *p.Turbidity >= r.TurbidityHigh {
				sev = alerts.SeverityHigh
			}
			keep(Finding{SensorID: id, Metric: telemetry.MetricTurbidity, Value: *p.Turbidity, Severity: sev})
		}
		if p.Conductivity != nil && *p.Conductivity >= r.ConductivityMax {
			sev := alerts.SeverityMedium
			if *p.Conductivity >= 1.5*r.ConductivityMax {
				sev = alerts.SeverityHigh
			}
			keep(Finding{SensorID: id, Metric: telemetry.MetricConductivity, Value: *p.Conductivity, Severity: sev})
		}
		if p.FlowRate != nil {
			flowSum[id] += *p.FlowRate
			flowCount[id]++
		}
	}
	for id, n := range flowCount {
		avg := flowSum[id] / float64(n)
		if avg <= r.FlowMax {
			continue
		}
		sev := alerts.SeverityMedium
		if workTime {
			sev = alerts.SeverityLow
		}
		keep(Finding{SensorID: id, Metric: telemetry.MetricFlowRate, Value: avg, Severity: sev})
	}

	out := make([]Finding, 0)
	for _, bySensor := range worst {
		for _, f := range bySensor {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SensorID != out[j].SensorID {
			return out[i].SensorID < out[j].SensorID
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

var promptTemplate = template.Must(template.New("anomaly").Parse(`You are a water consumption analyst. Always answer in {{.Rules.Language}}. Answer ONLY with exact JSON following this schema:
{"alerts": [{"sensorId": integer, "severity": one of ["LOW", "MEDIUM", "HIGH"], "description": "concise, specific text with magnitudes and ISO timestamps without fractional seconds", "solution": "optional, ONLY for flow problems"}]}
Rules:
1) Use ONLY the last10min array to decide alerts. If it is empty or holds no valid readings, answer exactly {"alerts": []}.
2) Ignore lastHours when generating alerts; it is analytical context only.
3) Within last10min, weigh the most recent points more.
4) workTime=true means working hours: moderate use is expected, alert on flow only when it is abnormally high or sustained. workTime=false means off hours: use should be very low and high or sustained flow is suspicious.
5) Do not prioritize flow. Quality parameters weigh at least as much: if pH, turbidity or conductivity is out of range, raise an alert even with low flow.
6) Thresholds: pH normal {{.Rules.PHMin}}-{{.Rules.PHMax}}; turbidity normal below {{.Rules.TurbidityMax}} NTU; conductivity normal below {{.Rules.ConductivityMax}} uS/cm; flow above {{.Rules.FlowMax}} L/min sustained is high.
7) Severity: HIGH for a clear quality breach (turbidity >= {{.Rules.TurbidityHigh}}, pH far out of range, conductivity well above {{.Rules.ConductivityMax}}) or high flow combined with a quality breach. MEDIUM for marginal quality breaches or sustained moderate-high flow. LOW for mild anomalies worth following up.
8) Ignore INVALID readings: pH <= 0, flowRate <= 0, all fields 0, sensorId above {{.Rules.MaxSensorID}}.
9) The description never includes the sensor number and describes only water behaviour, values rounded to 2 decimals.
10) Use only ISO intervals or timestamps for durations, never words.
11) Do not invent data. Put solutions only in solution and only for flow problems.
12) One alert per sensorId, using the highest severity.
13) Answer with valid JSON and NOTHING else.
{{- if .Findings}}
Threshold screen (informative): {{.Findings}}
{{- end}}
Data to analyze (workTime, generatedAt, last10min, lastHours):
{{.Summary}}`))

// Prompt renders the classifier prompt for a summary.
func (r RuleSet) Prompt(summary Summary, findings []Finding) (string, error) {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("anomaly: encode summary: %w", err)
	}
	var findingsJSON string
	if len(findings) > 0 {
		raw, err := json.Marshal(findings)
		if err != nil {
			return "", fmt.Errorf("anomaly: encode findings: %w", err)
		}
		findingsJSON = string(raw)
	}

	var buf bytes.Buffer
	err = promptTemplate.Execute(&buf, struct {
		Rules    RuleSet
		Findings string
		Summary  string
	}{Rules: r, Findings: findingsJSON, Summary: string(summaryJSON)})
	if err != nil {
		return "", fmt.Errorf("anomaly: render prompt: %w", err)
	}
	return buf.String(), nil
}
