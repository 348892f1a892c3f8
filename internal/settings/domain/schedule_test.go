package settings

import (
	"encoding/json"
	"testing"
	"time"
)

func TestIsWorkTimeDefaultSchedule(t *testing.T) {
	loc := time.FixedZone("COT", -5*3600)
	s := DefaultSchedule()
	cases := []struct {
		at   time.Time
		want bool
	}{
		{at: time.Date(2025, 3, 3, 9, 0, 0, 0, loc), want: true},    // Monday
		{at: time.Date(2025, 3, 3, 8, 0, 0, 0, loc), want: true},    // start inclusive
		{at: time.Date(2025, 3, 3, 18, 0, 0, 0, loc), want: true},   // end inclusive
		{at: time.Date(2025, 3, 3, 18, 0, 30, 0, loc), want: false}, // past end
		{at: time.Date(2025, 3, 3, 7, 59, 0, 0, loc), want: false},
		{at: time.Date(2025, 3, 8, 10, 0, 0, 0, loc), want: false}, // Saturday
		{at: time.Date(2025, 3, 9, 10, 0, 0, 0, loc), want: false}, // Sunday
	}
	for _, tc := range cases {
		if got := s.IsWorkTime(tc.at); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.at, tc.want, got)
		}
	}
}

func TestIsWorkTimeOvernightWindow(t *testing.T) {
	s := DefaultSchedule()
	s.WorkStart = MustTimeOfDay("22:00")
	s.WorkEnd = MustTimeOfDay("06:00")

	if !s.IsWorkTime(time.Date(2025, 3, 4, 23, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected 23:30 inside overnight window")
	}
	if !s.IsWorkTime(time.Date(2025, 3, 4, 5, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected 05:00 inside overnight window")
	}
	if s.IsWorkTime(time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected noon outside overnight window")
	}
}

func TestIsWorkTimeWithoutHours(t *testing.T) {
	s := DefaultSchedule()
	s.WorkStart = nil
	if !s.IsWorkTime(time.Date(2025, 3, 4, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected any time on an enabled day")
	}
	if s.IsWorkTime(time.Date(2025, 3, 8, 3, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected disabled day to stay off")
	}
}

func TestScheduleJSONUsesClockStrings(t *testing.T) {
	raw, err := json.Marshal(DefaultSchedule())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["workStart"] != "08:00" || decoded["workEnd"] != "18:00" {
		t.Fatalf("unexpected hours: %v / %v", decoded["workStart"], decoded["workEnd"])
	}

	var back Schedule
	if err := json.Unmarshal([]byte(`{"workStart":"07:30:00","workEnd":null}`), &back); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.WorkStart == nil || back.WorkStart.String() != "07:30" || back.WorkEnd != nil {
		t.Fatalf("unexpected decode: %+v", back)
	}
}

func TestParseTimeOfDayRejectsGarbage(t *testing.T) {
	for _, v := range []string{"", "25:00", "10", "aa:bb", "10:61"} {
		if _, err := ParseTimeOfDay(v); err == nil {
			t.Fatalf("expected error for %q", v)
		}
	}
}
