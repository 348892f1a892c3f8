package telemetry

import (
	"testing"
	"time"
)

func TestUnitDuration(t *testing.T) {
	cases := map[string]time.Duration{
		"m":       time.Minute,
		"Minutos": time.Minute,
		"h":       time.Hour,
		"horas":   time.Hour,
		"d":       24 * time.Hour,
		"dias":    24 * time.Hour,
		"weeks":   time.Hour,
		"":        time.Hour,
	}
	for unit, want := range cases {
		if got := UnitDuration(unit); got != want {
			t.Fatalf("%q: expected %s, got %s", unit, want, got)
		}
	}
}

func TestSinceClampsAmount(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	from, to := Since(now, 0, "h")
	if !to.Equal(now) || !from.Equal(now.Add(-time.Hour)) {
		t.Fatalf("unexpected range %s..%s", from, to)
	}
	from, _ = Since(now, 3, "d")
	if !from.Equal(now.Add(-72 * time.Hour)) {
		t.Fatalf("unexpected from %s", from)
	}
}
