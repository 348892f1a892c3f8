package alerts

import (
	"sort"
	"strings"
)

// DefaultDescription is used when a candidate carries no description.
const DefaultDescription = "Anomaly detected"

// Candidate is a proposed alert produced by classification.
type Candidate struct {
	SensorID    int      `json:"sensorId"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Solution    string   `json:"solution,omitempty"`
}

// HasSolution reports whether the candidate carries a non-blank solution.
func (c Candidate) HasSolution() bool {
	return strings.TrimSpace(c.Solution) != ""
}

// Merge keeps one candidate per sensor, scanning left to right. A candidate
// replaces the current best on a strictly higher rank, or on an equal rank
// when only the newcomer carries a solution. Otherwise the first seen wins.
func Merge(candidates []Candidate) map[int]Candidate {
	best := make(map[int]Candidate, len(candidates))
	for _, c := range candidates {
		c.Severity = ParseSeverity(string(c.Severity))
		if strings.TrimSpace(c.Description) == "" {
			c.Description = DefaultDescription
		}

		current, ok := best[c.SensorID]
		if !ok {
			best[c.SensorID] = c
			continue
		}
		switch {
		case c.Severity.Rank() > current.Severity.Rank():
			best[c.SensorID] = c
		case c.Severity.Rank() == current.Severity.Rank() && !current.HasSolution() && c.HasSolution():
			best[c.SensorID] = c
		}
	}
	return best
}

// SensorIDs returns the merged sensor ids in ascending order.
func SensorIDs(merged map[int]Candidate) []int {
	ids := make([]int, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
