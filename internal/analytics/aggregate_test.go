package analytics

import (
	"testing"
	"time"

	"permitport/api/internal/store"
)

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return parsed
}

func TestAggregateSingleCompletion(t *testing.T) {
	processes := []store.ProcessInstance{
		{ID: 1, CreatedAt: ts(t, "2024-02-25T10:00:00Z")},
	}
	events := []store.CaseEvent{
		{ProcessID: 1, Type: "complete", LastUpdated: ts(t, "2024-03-01T10:00:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("basic"))
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if p.Date != "2024-03-01" {
		t.Errorf("Date = %q", p.Date)
	}
	if p.Count == nil || *p.Count != 1 {
		t.Errorf("Count = %v", p.Count)
	}
	if p.Average == nil || *p.Average != 5 {
		t.Errorf("Average = %v", p.Average)
	}
	if p.SampleSize != 1 {
		t.Errorf("SampleSize = %d", p.SampleSize)
	}
}

func TestAggregateFillsGaps(t *testing.T) {
	processes := []store.ProcessInstance{{ID: 1}, {ID: 2}}
	events := []store.CaseEvent{
		{ProcessID: 1, Status: "done", LastUpdated: ts(t, "2024-03-01T08:00:00Z")},
		{ProcessID: 2, Status: "completed", LastUpdated: ts(t, "2024-03-04T16:30:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("basic"))
	if len(points) != 4 {
		t.Fatalf("expected 4 points, got %d", len(points))
	}

	// No date gap between consecutive points.
	for i := 1; i < len(points); i++ {
		prev, _ := time.Parse("2006-01-02", points[i-1].Date)
		curr, _ := time.Parse("2006-01-02", points[i].Date)
		if curr.Sub(prev) != 24*time.Hour {
			t.Errorf("gap between %s and %s", points[i-1].Date, points[i].Date)
		}
	}

	for _, i := range []int{1, 2} {
		if points[i].Count != nil || points[i].Average != nil || points[i].SampleSize != 0 {
			t.Errorf("day %s should carry no data: %+v", points[i].Date, points[i])
		}
	}
	if points[0].Count == nil || *points[0].Count != 1 {
		t.Errorf("first point = %+v", points[0])
	}
}

func TestAggregateFirstMarkerEventWins(t *testing.T) {
	processes := []store.ProcessInstance{{ID: 1, CreatedAt: ts(t, "2024-03-01T00:00:00Z")}}
	events := []store.CaseEvent{
		// Delivered out of order; the earlier completion must win.
		{ProcessID: 1, Type: "complete", LastUpdated: ts(t, "2024-03-10T00:00:00Z")},
		{ProcessID: 1, Type: "complete", LastUpdated: ts(t, "2024-03-03T00:00:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("basic"))
	if len(points) != 1 || points[0].Date != "2024-03-03" {
		t.Fatalf("points = %+v", points)
	}
	if points[0].Average == nil || *points[0].Average != 2 {
		t.Errorf("Average = %v", points[0].Average)
	}
}

func TestAggregateFractionalDaysRounded(t *testing.T) {
	processes := []store.ProcessInstance{{ID: 1, CreatedAt: ts(t, "2024-03-01T00:00:00Z")}}
	events := []store.CaseEvent{
		{ProcessID: 1, Type: "complete", LastUpdated: ts(t, "2024-03-02T08:00:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("basic"))
	if points[0].Average == nil || *points[0].Average != 1.33 {
		t.Errorf("Average = %v", points[0].Average)
	}
}

func TestAggregateCreationAfterCompletionIgnoredForCycleTime(t *testing.T) {
	processes := []store.ProcessInstance{{ID: 1, CreatedAt: ts(t, "2024-03-05T00:00:00Z")}}
	events := []store.CaseEvent{
		{ProcessID: 1, Type: "complete", LastUpdated: ts(t, "2024-03-02T00:00:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("basic"))
	if len(points) != 1 {
		t.Fatalf("points = %+v", points)
	}
	if points[0].Count == nil || *points[0].Count != 1 {
		t.Errorf("Count = %v", points[0].Count)
	}
	if points[0].Average != nil || points[0].SampleSize != 0 {
		t.Errorf("cycle time should be skipped: %+v", points[0])
	}
}

func TestAggregateComplexModelUsesOutcome(t *testing.T) {
	processes := []store.ProcessInstance{{ID: 1}, {ID: 2}}
	events := []store.CaseEvent{
		{ProcessID: 1, Type: "determination", Other: map[string]any{"outcome": "approved"}, LastUpdated: ts(t, "2024-05-01T00:00:00Z")},
		{ProcessID: 2, Type: "determination", Other: map[string]any{"outcome": "denied"}, LastUpdated: ts(t, "2024-05-02T00:00:00Z")},
	}

	points := Aggregate(processes, events, MarkerForModel("complex"))
	if len(points) != 1 || points[0].Date != "2024-05-01" {
		t.Fatalf("points = %+v", points)
	}
}

func TestAggregateNoCompletions(t *testing.T) {
	events := []store.CaseEvent{
		{ProcessID: 1, Type: "initiated", LastUpdated: ts(t, "2024-05-01T00:00:00Z")},
	}
	points := Aggregate(nil, events, MarkerForModel("basic"))
	if len(points) != 0 {
		t.Errorf("expected empty series, got %+v", points)
	}
}
