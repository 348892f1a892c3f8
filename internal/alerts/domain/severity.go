package alerts

import "strings"

// Severity is the alert severity.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// ParseSeverity maps a free-form label to a severity. Matching is
// case-insensitive, accepts the Spanish labels ALTA, MEDIA and BAJA, and
// defaults to MEDIUM.
func ParseSeverity(value string) Severity {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch {
	case v == "":
		return SeverityMedium
	case strings.Contains(v, "HIGH"), strings.Contains(v, "ALTA"):
		return SeverityHigh
	case strings.Contains(v, "MEDIUM"), strings.Contains(v, "MEDIA"):
		return SeverityMedium
	case strings.Contains(v, "LOW"), strings.Contains(v, "BAJA"):
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Rank orders severities: HIGH 3, MEDIUM 2, LOW 1.
func (s Severity) Rank() int {
	switch ParseSeverity(string(s)) {
	case SeverityHigh:
		return 3
	case SeverityLow:
		return 1
	default:
		return 2
	}
}
