package telemetry

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a storage resolution.
type Tier string

const (
	TierRaw    Tier = "RAW"
	TierHourly Tier = "HOURLY"
	TierDaily  Tier = "DAILY"
)

const (
	rawMaxSpan    = 48 * time.Hour
	hourlyMaxSpan = 5 * 24 * time.Hour
)

// SelectTier picks the tier for a range: RAW up to two days, HOURLY up to
// five days, DAILY beyond.
func SelectTier(from, to time.Time) Tier {
	span := to.Sub(from)
	switch {
	case span <= rawMaxSpan:
		return TierRaw
	case span <= hourlyMaxSpan:
		return TierHourly
	default:
		return TierDaily
	}
}

// Agg returns the aggregate label stored for the tier ("1h", "1d").
func (t Tier) Agg() string {
	switch t {
	case TierHourly:
		return "1h"
	case TierDaily:
		return "1d"
	default:
		return ""
	}
}

// ParseAgg maps an aggregate label to a tier.
func ParseAgg(value string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1h", "hour", "hourly":
		return TierHourly, nil
	case "1d", "day", "daily":
		return TierDaily, nil
	case "", "raw":
		return TierRaw, nil
	default:
		return "", fmt.Errorf("telemetry: unknown agg %q", value)
	}
}
