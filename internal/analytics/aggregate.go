// Package analytics turns irregular case-event logs into contiguous per-day
// reporting series: completion counts and average cycle time, with every
// calendar day in the observed range present so charts never fabricate or
// omit dates.
package analytics

import (
	"math"
	"sort"
	"time"

	"permitport/api/internal/store"
)

// Point is one calendar day of the derived series. Count and Average are nil
// on days with no completions: "no data" is distinct from "zero completions".
type Point struct {
	Date       string   `json:"date"` // YYYY-MM-DD, UTC
	Count      *int     `json:"completionCount"`
	Average    *float64 `json:"averageCompletionDays"`
	SampleSize int      `json:"sampleSize"`
}

// Marker decides whether an event records completion for its process family.
type Marker func(ev store.CaseEvent) bool

var completionStatuses = map[string]bool{
	"complete":  true,
	"completed": true,
	"done":      true,
}

// MarkerForModel returns the completion marker used by a process model's
// event family. The basic family records an explicit completion event or a
// terminal status; the complex family records an approved outcome.
func MarkerForModel(model string) Marker {
	switch model {
	case "complex":
		return func(ev store.CaseEvent) bool {
			outcome, _ := ev.Other["outcome"].(string)
			return outcome == "approved"
		}
	default:
		return func(ev store.CaseEvent) bool {
			return ev.Type == store.EventComplete || completionStatuses[ev.Status]
		}
	}
}

type bucket struct {
	count       int
	durationSum float64
	sampleSize  int
}

// Aggregate groups events by process instance, finds each instance's first
// completion-marking event, and buckets completions by UTC day. The returned
// series covers every day from the earliest to the latest completion date
// inclusive, in order.
func Aggregate(processes []store.ProcessInstance, events []store.CaseEvent, marker Marker) []Point {
	createdAt := make(map[int64]time.Time, len(processes))
	for _, p := range processes {
		createdAt[p.ID] = p.CreatedAt
	}

	byProcess := make(map[int64][]store.CaseEvent)
	for _, ev := range events {
		byProcess[ev.ProcessID] = append(byProcess[ev.ProcessID], ev)
	}

	buckets := make(map[string]*bucket)
	var first, last time.Time
	for processID, log := range byProcess {
		sort.Slice(log, func(i, j int) bool {
			return log[i].LastUpdated.Before(log[j].LastUpdated)
		})

		var completion *store.CaseEvent
		for i := range log {
			if marker(log[i]) {
				completion = &log[i]
				break
			}
		}
		if completion == nil || completion.LastUpdated.IsZero() {
			continue
		}

		day := completion.LastUpdated.UTC().Truncate(24 * time.Hour)
		key := day.Format("2006-01-02")
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.count++

		if created, ok := createdAt[processID]; ok && !created.IsZero() && !created.After(completion.LastUpdated) {
			b.durationSum += completion.LastUpdated.Sub(created).Hours() / 24
			b.sampleSize++
		}

		if first.IsZero() || day.Before(first) {
			first = day
		}
		if last.IsZero() || day.After(last) {
			last = day
		}
	}

	if len(buckets) == 0 {
		return []Point{}
	}

	var points []Point
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		point := Point{Date: key}
		if b, ok := buckets[key]; ok {
			count := b.count
			point.Count = &count
			point.SampleSize = b.sampleSize
			if b.sampleSize > 0 {
				avg := round2(b.durationSum / float64(b.sampleSize))
				point.Average = &avg
			}
		}
		points = append(points, point)
	}
	return points
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
