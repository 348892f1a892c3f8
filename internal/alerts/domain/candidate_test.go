package alerts

import "testing"

func TestMergePrefersHigherSeverityThenSolution(t *testing.T) {
	merged := Merge([]Candidate{
		{SensorID: 3, Severity: "MEDIUM", Description: "turbidez elevada"},
		{SensorID: 3, Severity: "HIGH", Description: "turbidez alta"},
		{SensorID: 3, Severity: "HIGH", Description: "turbidez muy alta", Solution: "revisar filtro"},
	})
	if len(merged) != 1 {
		t.Fatalf("expected one sensor, got %d", len(merged))
	}
	got := merged[3]
	if got.Severity != SeverityHigh || got.Solution != "revisar filtro" {
		t.Fatalf("unexpected merge winner: %+v", got)
	}
}

func TestMergeTieKeepsFirstSeen(t *testing.T) {
	merged := Merge([]Candidate{
		{SensorID: 1, Severity: "HIGH", Description: "first", Solution: "a"},
		{SensorID: 1, Severity: "HIGH", Description: "second", Solution: "b"},
		{SensorID: 1, Severity: "LOW", Description: "third", Solution: "c"},
	})
	if merged[1].Description != "first" {
		t.Fatalf("expected first-seen candidate, got %+v", merged[1])
	}
}

func TestMergeBlankSolutionDoesNotCount(t *testing.T) {
	merged := Merge([]Candidate{
		{SensorID: 1, Severity: "MEDIUM", Description: "a"},
		{SensorID: 1, Severity: "MEDIUM", Description: "b", Solution: "   "},
	})
	if merged[1].Description != "a" {
		t.Fatalf("expected blank solution to be ignored, got %+v", merged[1])
	}
}

func TestMergeDefaultsDescriptionAndSeverity(t *testing.T) {
	merged := Merge([]Candidate{{SensorID: 9}})
	got := merged[9]
	if got.Severity != SeverityMedium || got.Description != DefaultDescription {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"high":    SeverityHigh,
		" ALTA ":  SeverityHigh,
		"Media":   SeverityMedium,
		"baja":    SeverityLow,
		"LOW":     SeverityLow,
		"":        SeverityMedium,
		"unknown": SeverityMedium,
	}
	for input, want := range cases {
		if got := ParseSeverity(input); got != want {
			t.Fatalf("%q: expected %s, got %s", input, want, got)
		}
	}
	if SeverityHigh.Rank() <= SeverityMedium.Rank() || SeverityMedium.Rank() <= SeverityLow.Rank() {
		t.Fatalf("severity ranks out of order")
	}
}

func TestSensorIDsSorted(t *testing.T) {
	ids := SensorIDs(Merge([]Candidate{{SensorID: 5}, {SensorID: 1}, {SensorID: 3}}))
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 5 {
		t.Fatalf("unexpected ids %v", ids)
	}
}
