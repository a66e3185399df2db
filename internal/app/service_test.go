package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"permitport/api/internal/config"
	"permitport/api/internal/store"
)

// fakePortal implements portalStore in memory.
type fakePortal struct {
	projects  map[int64]store.Project
	instances []store.ProcessInstance
	payloads  []store.DecisionPayload
	elements  []store.DecisionElement
	events    []store.CaseEvent

	nextProjectID int64
	nextProcessID int64
}

func newFakePortal() *fakePortal {
	return &fakePortal{projects: map[int64]store.Project{}, nextProjectID: 1, nextProcessID: 100}
}

func (f *fakePortal) ListProjectRefs(_ context.Context) ([]store.ProjectRef, error) {
	var refs []store.ProjectRef
	for id, p := range f.projects {
		refs = append(refs, store.ProjectRef{ID: id, Title: p.Title})
	}
	return refs, nil
}

func (f *fakePortal) GetProject(_ context.Context, id int64) (*store.Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakePortal) UpsertProject(_ context.Context, p store.Project) (int64, error) {
	if p.ID == 0 {
		p.ID = f.nextProjectID
		f.nextProjectID++
	}
	f.projects[p.ID] = p
	return p.ID, nil
}

func (f *fakePortal) LatestProcessInstance(_ context.Context, projectID int64, model string) (*store.ProcessInstance, error) {
	var latest *store.ProcessInstance
	for i := range f.instances {
		inst := &f.instances[i]
		if inst.ProjectID != projectID || inst.Model != model {
			continue
		}
		if latest == nil || inst.UpdatedAt.After(latest.UpdatedAt) {
			latest = inst
		}
	}
	return latest, nil
}

func (f *fakePortal) CreateProcessInstance(_ context.Context, inst store.ProcessInstance) (store.ProcessInstance, error) {
	inst.ID = f.nextProcessID
	f.nextProcessID++
	f.instances = append(f.instances, inst)
	return inst, nil
}

func (f *fakePortal) PatchProcessInstance(_ context.Context, id int64, fields map[string]any) error {
	return nil
}

func (f *fakePortal) ListProcessInstancesByModel(_ context.Context, model string) ([]store.ProcessInstance, error) {
	var out []store.ProcessInstance
	for _, inst := range f.instances {
		if inst.Model == model {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (f *fakePortal) ListDecisionElements(_ context.Context, model string) ([]store.DecisionElement, error) {
	return f.elements, nil
}

func (f *fakePortal) DeletePayloads(_ context.Context, processID int64, dataSource string) error {
	kept := f.payloads[:0]
	for _, p := range f.payloads {
		if p.ProcessID == processID && p.DataSource == dataSource {
			continue
		}
		kept = append(kept, p)
	}
	f.payloads = kept
	return nil
}

func (f *fakePortal) InsertPayloads(_ context.Context, payloads []store.DecisionPayload) error {
	f.payloads = append(f.payloads, payloads...)
	return nil
}

func (f *fakePortal) ListPayloads(_ context.Context, processID int64) ([]store.DecisionPayload, error) {
	var out []store.DecisionPayload
	for _, p := range f.payloads {
		if p.ProcessID == processID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePortal) FindEvent(_ context.Context, processID int64, eventType string) (*store.CaseEvent, error) {
	for i := range f.events {
		if f.events[i].ProcessID == processID && f.events[i].Type == eventType {
			return &f.events[i], nil
		}
	}
	return nil, nil
}

func (f *fakePortal) InsertEvent(_ context.Context, ev store.CaseEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePortal) ListEventsByProcesses(_ context.Context, processIDs []int64) ([]store.CaseEvent, error) {
	wanted := map[int64]bool{}
	for _, id := range processIDs {
		wanted[id] = true
	}
	var out []store.CaseEvent
	for _, ev := range f.events {
		if wanted[ev.ProcessID] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakePortal) UpsertGis(_ context.Context, upload store.GisUpload) error { return nil }
func (f *fakePortal) DeleteGis(_ context.Context, projectID int64) error        { return nil }

// fakePartner implements partnerStore in memory.
type fakePartner struct {
	projects  map[int64]string // id -> title
	instances []store.ProcessInstance

	nextID   int64
	findErr  error
	upserted []string
}

func (f *fakePartner) FindProjectsByTitles(_ context.Context, titles []string) ([]store.ProjectRef, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	var refs []store.ProjectRef
	for _, title := range titles {
		for id, existing := range f.projects {
			if strings.EqualFold(existing, title) {
				refs = append(refs, store.ProjectRef{ID: id, Title: existing})
			}
		}
	}
	return refs, nil
}

func (f *fakePartner) UpsertProject(_ context.Context, p store.Project) (int64, error) {
	if f.projects == nil {
		f.projects = map[int64]string{}
	}
	id := f.nextID
	f.nextID++
	f.projects[id] = p.Title
	f.upserted = append(f.upserted, p.Title)
	return id, nil
}

func (f *fakePartner) ListProcessInstancesByProjects(_ context.Context, projectIDs []int64, model string) ([]store.ProcessInstance, error) {
	wanted := map[int64]bool{}
	for _, id := range projectIDs {
		wanted[id] = true
	}
	var out []store.ProcessInstance
	for _, inst := range f.instances {
		if wanted[inst.ProjectID] && (model == "" || inst.Model == model) {
			out = append(out, inst)
		}
	}
	return out, nil
}

func newTestService(portal *fakePortal, partners ...Partner) *Service {
	return New(config.Config{}, portal, partners, nil, nil, nil)
}

func TestReviewStatusUnknownProject(t *testing.T) {
	svc := newTestService(newFakePortal())

	_, err := svc.ReviewStatus(context.Background(), 42, "basic")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != 404 || domainErr.Code != "PROJECT_NOT_FOUND" {
		t.Errorf("domain error = %+v", domainErr)
	}
}

func TestSyncMirrorsUnmatchedProjects(t *testing.T) {
	portal := newFakePortal()
	portal.projects[1] = store.Project{ID: 1, Title: "Solar One"}
	portal.projects[2] = store.Project{ID: 2, Title: "Wind Two"}

	partner := &fakePartner{
		projects: map[int64]string{11: "Solar One"},
		nextID:   50,
		instances: []store.ProcessInstance{
			{ID: 900, ProjectID: 11, Model: "basic", Status: "in_review"},
		},
	}

	svc := newTestService(portal, Partner{Name: "partner_a", Store: partner})
	reports, err := svc.SyncPartners(context.Background(), "basic")
	if err != nil {
		t.Fatalf("SyncPartners failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports = %+v", reports)
	}
	report := reports[0]
	if report.Mirrored != 1 {
		t.Errorf("Mirrored = %d", report.Mirrored)
	}
	if report.Linked != 2 {
		t.Errorf("Linked = %d", report.Linked)
	}
	if len(partner.upserted) != 1 || partner.upserted[0] != "Wind Two" {
		t.Errorf("upserted = %v", partner.upserted)
	}
	if report.Statuses[1] != "in_review" {
		t.Errorf("statuses = %v", report.Statuses)
	}
}

func TestSyncPartnerAuthFailureAborts(t *testing.T) {
	portal := newFakePortal()
	portal.projects[1] = store.Project{ID: 1, Title: "Solar One"}

	svc := newTestService(portal, Partner{
		Name:  "partner_a",
		Store: &fakePartner{},
		Auth:  func(context.Context) error { return errors.New("bad credentials") },
	})

	_, err := svc.SyncPartners(context.Background(), "basic")
	if err == nil || !strings.Contains(err.Error(), "sign in") {
		t.Errorf("err = %v", err)
	}
}

func TestSyncPartnerTransportFailure(t *testing.T) {
	portal := newFakePortal()
	portal.projects[1] = store.Project{ID: 1, Title: "Solar One"}

	svc := newTestService(portal, Partner{
		Name:  "partner_a",
		Store: &fakePartner{findErr: errors.New("connection refused")},
	})

	if _, err := svc.SyncPartners(context.Background(), "basic"); err == nil {
		t.Error("expected transport failure to propagate")
	}
}

func TestAnalyticsAggregatesModelInstances(t *testing.T) {
	portal := newFakePortal()
	created := time.Date(2024, 2, 25, 10, 0, 0, 0, time.UTC)
	portal.instances = []store.ProcessInstance{
		{ID: 100, ProjectID: 1, Model: "basic", CreatedAt: created},
		{ID: 101, ProjectID: 2, Model: "complex", CreatedAt: created},
	}
	portal.events = []store.CaseEvent{
		{ProcessID: 100, Type: store.EventComplete, LastUpdated: created.AddDate(0, 0, 5)},
	}

	svc := newTestService(portal)
	points, err := svc.Analytics(context.Background(), "basic")
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if len(points) != 1 || points[0].Date != "2024-03-01" {
		t.Fatalf("points = %+v", points)
	}
	if points[0].Average == nil || *points[0].Average != 5 {
		t.Errorf("Average = %v", points[0].Average)
	}
}

func TestAnalyticsNoInstances(t *testing.T) {
	svc := newTestService(newFakePortal())
	points, err := svc.Analytics(context.Background(), "basic")
	if err != nil {
		t.Fatalf("Analytics failed: %v", err)
	}
	if points == nil || len(points) != 0 {
		t.Errorf("points = %+v", points)
	}
}
