package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTimeOfDay is returned for malformed HH:MM values.
var ErrInvalidTimeOfDay = errors.New("settings: invalid time of day")

// TimeOfDay is a wall-clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (seconds, when present, are ignored).
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MustTimeOfDay parses value or panics.
func MustTimeOfDay(value string) *TimeOfDay {
	t, err := ParseTimeOfDay(value)
	if err != nil {
		panic(err)
	}
	return &t
}

func (t TimeOfDay) seconds() int {
	return t.Hour*3600 + t.Minute*60
}

// String formats as HH:MM.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// MarshalText implements encoding.TextMarshaler.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Schedule is the singleton AI settings record: the detection toggle plus
// the working-hours calendar.
type Schedule struct {
	ID        int64      `json:"id"`
	AIEnabled bool       `json:"aiEnabled"`
	WorkStart *TimeOfDay `json:"workStart"`
	WorkEnd   *TimeOfDay `json:"workEnd"`
	Monday    bool       `json:"monday"`
	Tuesday   bool       `json:"tuesday"`
	Wednesday bool       `json:"wednesday"`
	Thursday  bool       `json:"thursday"`
	Friday    bool       `json:"friday"`
	Saturday  bool       `json:"saturday"`
	Sunday    bool       `json:"sunday"`
}

// DefaultSchedule returns AI enabled, 08:00-18:00, Monday to Friday.
func DefaultSchedule() Schedule {
	return Schedule{
		AIEnabled: true,
		WorkStart: MustTimeOfDay("08:00"),
		WorkEnd:   MustTimeOfDay("18:00"),
		Monday:    true,
		Tuesday:   true,
		Wednesday: true,
		Thursday:  true,
		Friday:    true,
	}
}

// DayEnabled reports whether the weekday is a working day.
func (s Schedule) DayEnabled(day time.Weekday) bool {
	switch day {
	case time.Monday:
		return s.Monday
	case time.Tuesday:
		return s.Tuesday
	case time.Wednesday:
		return s.Wednesday
	case time.Thursday:
		return s.Thursday
	case time.Friday:
		return s.Friday
	case time.Saturday:
		return s.Saturday
	case time.Sunday:
		return s.Sunday
	default:
		return false
	}
}

// IsWorkTime reports whether t, in its own location, falls in working
// hours. Without configured hours every enabled day counts entirely. When
// the end is not after the start the window crosses midnight.
func (s Schedule) IsWorkTime(t time.Time) bool {
	if !s.DayEnabled(t.Weekday()) {
		return false
	}
	if s.WorkStart == nil || s.WorkEnd == nil {
		return true
	}
	now := t.Hour()*3600 + t.Minute()*60 + t.Second()
	start := s.WorkStart.seconds()
	end := s.WorkEnd.seconds()
	if end > start {
		return now >= start && now <= end
	}
	return now >= start || now <= end
}

// Repository persists the schedule.
type Repository interface {
	// Get returns nil, nil when no schedule is stored.
	Get(ctx context.Context) (*Schedule, error)
	Save(ctx context.Context, schedule *Schedule) error
}
