package match

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"permitport/api/internal/store"
)

type fakeDirectory struct {
	rows []store.ProjectRef
	err  error
	got  []string
}

func (f *fakeDirectory) FindProjectsByTitles(_ context.Context, titles []string) ([]store.ProjectRef, error) {
	f.got = titles
	return f.rows, f.err
}

// warnCounter counts warn-level records so tests can assert how often the
// matcher flagged something.
type warnCounter struct {
	mu    sync.Mutex
	warns []string
}

func (w *warnCounter) Enabled(context.Context, slog.Level) bool { return true }
func (w *warnCounter) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		w.mu.Lock()
		w.warns = append(w.warns, r.Message)
		w.mu.Unlock()
	}
	return nil
}
func (w *warnCounter) WithAttrs([]slog.Attr) slog.Handler { return w }
func (w *warnCounter) WithGroup(string) slog.Handler      { return w }

func TestResolveExactMatch(t *testing.T) {
	dir := &fakeDirectory{rows: []store.ProjectRef{{ID: 12, Title: "solar one"}}}
	mapping, links, err := NewMatcher(nil).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 12, Title: "Solar One"}}, dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mapping[12] != 12 {
		t.Errorf("mapping = %v", mapping)
	}
	if len(links) != 1 || links[0].Ambiguous || links[0].IDMismatch {
		t.Errorf("links = %+v", links)
	}
}

func TestResolveAmbiguousPicksLowestAndWarnsOnce(t *testing.T) {
	counter := &warnCounter{}
	dir := &fakeDirectory{rows: []store.ProjectRef{
		{ID: 31, Title: "Solar One"},
		{ID: 12, Title: "SOLAR ONE"},
	}}

	mapping, links, err := NewMatcher(slog.New(counter)).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 12, Title: "Solar One"}}, dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mapping[12] != 12 {
		t.Errorf("expected lowest candidate id 12, got %v", mapping)
	}
	if len(links) != 1 || !links[0].Ambiguous {
		t.Fatalf("links = %+v", links)
	}
	if got := links[0].CandidateIDs; len(got) != 2 || got[0] != 12 || got[1] != 31 {
		t.Errorf("CandidateIDs = %v", got)
	}

	ambiguous := 0
	for _, msg := range counter.warns {
		if strings.Contains(msg, "ambiguous") {
			ambiguous++
		}
	}
	if ambiguous != 1 {
		t.Errorf("expected exactly one ambiguity warning, got %d (%v)", ambiguous, counter.warns)
	}
}

func TestResolveIDMismatchWarns(t *testing.T) {
	counter := &warnCounter{}
	dir := &fakeDirectory{rows: []store.ProjectRef{{ID: 44, Title: "Wind Ridge"}}}

	mapping, links, err := NewMatcher(slog.New(counter)).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 7, Title: "Wind Ridge"}}, dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if mapping[7] != 44 {
		t.Errorf("mapping = %v", mapping)
	}
	if !links[0].IDMismatch {
		t.Error("expected id mismatch flag")
	}
	if len(counter.warns) != 1 {
		t.Errorf("warns = %v", counter.warns)
	}
}

func TestResolveNoMatchSkips(t *testing.T) {
	dir := &fakeDirectory{}
	mapping, links, err := NewMatcher(nil).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 5, Title: "Unlisted"}}, dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(mapping) != 0 || len(links) != 0 {
		t.Errorf("expected empty result, got %v %v", mapping, links)
	}
}

func TestResolveSkipsBlankTitles(t *testing.T) {
	dir := &fakeDirectory{}
	_, _, err := NewMatcher(nil).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 1, Title: "  "}}, dir)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if dir.got != nil {
		t.Errorf("blank titles should not reach the partner query: %v", dir.got)
	}
}

func TestResolveTransportErrorPropagates(t *testing.T) {
	dir := &fakeDirectory{err: errors.New("boom")}
	_, _, err := NewMatcher(nil).Resolve(context.Background(),
		[]store.ProjectRef{{ID: 1, Title: "Solar One"}}, dir)
	if err == nil {
		t.Fatal("expected error")
	}
}
