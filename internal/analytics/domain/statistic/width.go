package statistic

import "time"

const (
	// RecentWindow is the default anomaly-detection window.
	RecentWindow = 10 * time.Minute
	// ContextWindow is how far back the anomaly context reaches.
	ContextWindow = 6 * time.Hour
	// ContextWidth is the bucket width of the anomaly context.
	ContextWidth = time.Hour

	shortReportSpan  = 12 * time.Hour
	shortReportWidth = 15 * time.Minute
	longReportWidth  = time.Hour
)

// ReportWidth picks the report bucket width: 15 minutes under 12 hours, one hour otherwise.
func ReportWidth(from, to time.Time) time.Duration {
	if to.Sub(from) < shortReportSpan {
		return shortReportWidth
	}
	return longReportWidth
}
