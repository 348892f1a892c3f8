package telemetry

import (
	"strings"
	"time"
)

// UnitDuration maps a unit label to its duration. Minutes, hours and days
// are accepted in short, English and Spanish forms; anything else is an hour.
func UnitDuration(unit string) time.Duration {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "m", "min", "mins", "minute", "minutes", "minuto", "minutos":
		return time.Minute
	case "d", "day", "days", "dia", "dias", "día", "días":
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Since returns the range that ends at now and spans amount units. A
// non-positive amount counts as one.
func Since(now time.Time, amount int, unit string) (from, to time.Time) {
	if amount <= 0 {
		amount = 1
	}
	return now.Add(-time.Duration(amount) * UnitDuration(unit)), now
}
