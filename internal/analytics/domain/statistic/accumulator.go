package statistic

import (
	"math"

	"github.com/DataDog/sketches-go/ddsketch"
)

const sketchAccuracy = 0.01

// MetricStat summarizes one metric. Value fields are nil when Count is zero.
type MetricStat struct {
	Count  int      `json:"count"`
	Avg    *float64 `json:"avg"`
	Min    *float64 `json:"min"`
	Max    *float64 `json:"max"`
	StdDev *float64 `json:"stdDev,omitempty"`
	P95    *float64 `json:"p95,omitempty"`
}

// Accumulator keeps running count, sum, sum of squares, min and max of a
// metric, plus an optional DDSketch for percentiles.
type Accumulator struct {
	count  int
	sum    float64
	sumSq  float64
	min    float64
	max    float64
	sketch *ddsketch.DDSketch
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(percentiles bool) *Accumulator {
	acc := &Accumulator{min: math.Inf(1), max: math.Inf(-1)}
	if percentiles {
		if sketch, err := ddsketch.NewDefaultDDSketch(sketchAccuracy); err == nil {
			acc.sketch = sketch
		}
	}
	return acc
}

// Add folds a value in. Nil values are ignored.
func (a *Accumulator) Add(value *float64) {
	if value == nil {
		return
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	a.count++
	a.sum += v
	a.sumSq += v * v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	if a.sketch != nil {
		_ = a.sketch.Add(v)
	}
}

// Count returns the number of values folded in.
func (a *Accumulator) Count() int {
	return a.count
}

// Stat returns the summary. The standard deviation is the population one,
// with the variance clamped at zero against rounding.
func (a *Accumulator) Stat(withStdDev bool) MetricStat {
	stat := MetricStat{Count: a.count}
	if a.count == 0 {
		return stat
	}
	avg := a.sum / float64(a.count)
	minV, maxV := a.min, a.max
	stat.Avg = &avg
	stat.Min = &minV
	stat.Max = &maxV
	if withStdDev {
		variance := a.sumSq/float64(a.count) - avg*avg
		if variance < 0 {
			variance = 0
		}
		std := math.Sqrt(variance)
		stat.StdDev = &std
	}
	if a.sketch != nil && !a.sketch.IsEmpty() {
		if p95, err := a.sketch.GetValueAtQuantile(0.95); err == nil {
			stat.P95 = &p95
		}
	}
	return stat
}
