// Package store defines the shared record shapes and a typed accessor layer
// over the REST query dialect. The portal and both partner stores mirror the
// same schema, so one accessor type serves all three, each wrapping its own
// client with that backend's header and key handling.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"permitport/api/internal/restdb"
)

// Client is the slice of restdb.Client the accessor layer needs.
type Client interface {
	Select(ctx context.Context, table string, build func(*restdb.Query)) ([]restdb.Row, error)
	Create(ctx context.Context, table string, payload any, upsert bool) (restdb.Row, error)
	CreateBatch(ctx context.Context, table string, payloads any) ([]restdb.Row, error)
	Patch(ctx context.Context, table string, build func(*restdb.Query), payload any) error
	Delete(ctx context.Context, table string, build func(*restdb.Query)) error
}

// RestStore is a typed view of one backend.
type RestStore struct {
	client Client
}

func NewRestStore(client Client) *RestStore {
	return &RestStore{client: client}
}

func decodeRow(row restdb.Row, dst any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("re-marshal row: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

func decodeRows[T any](rows []restdb.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		var item T
		if err := decodeRow(row, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// ListProjectRefs returns every project's id and title, the inputs to
// cross-system matching.
func (s *RestStore) ListProjectRefs(ctx context.Context) ([]ProjectRef, error) {
	rows, err := s.client.Select(ctx, TableProjects, func(q *restdb.Query) {
		q.Select("id", "title").Order("id", "asc", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list project refs: %w", err)
	}
	refs := make([]ProjectRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, ProjectRef{ID: row.Int64("id"), Title: row.String("title")})
	}
	return refs, nil
}

// GetProject loads one project by id, or nil when absent.
func (s *RestStore) GetProject(ctx context.Context, id int64) (*Project, error) {
	rows, err := s.client.Select(ctx, TableProjects, func(q *restdb.Query) {
		q.Eq("id", id).Limit(1)
	})
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var p Project
	if err := decodeRow(rows[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProjectsByTitles issues one batched case-insensitive title query and
// returns every row whose title matches any of the given titles.
func (s *RestStore) FindProjectsByTitles(ctx context.Context, titles []string) ([]ProjectRef, error) {
	if len(titles) == 0 {
		return nil, nil
	}
	exprs := make([]string, len(titles))
	for i, t := range titles {
		exprs[i] = restdb.ILikeExpr("title", t)
	}
	rows, err := s.client.Select(ctx, TableProjects, func(q *restdb.Query) {
		q.Select("id", "title").Or(exprs...).Order("id", "asc", false)
	})
	if err != nil {
		return nil, fmt.Errorf("find projects by titles: %w", err)
	}
	refs := make([]ProjectRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, ProjectRef{ID: row.Int64("id"), Title: row.String("title")})
	}
	return refs, nil
}

// UpsertProject writes the project, merging on primary key so a repeated save
// updates rather than duplicates, and returns the stored id.
func (s *RestStore) UpsertProject(ctx context.Context, p Project) (int64, error) {
	row, err := s.client.Create(ctx, TableProjects, p, true)
	if err != nil {
		return 0, fmt.Errorf("upsert project %q: %w", p.Title, err)
	}
	return row.Int64("id"), nil
}

// LatestProcessInstance returns the most recently updated instance for the
// (project, model) pair, or nil when none exists.
func (s *RestStore) LatestProcessInstance(ctx context.Context, projectID int64, model string) (*ProcessInstance, error) {
	rows, err := s.client.Select(ctx, TableProcessInstances, func(q *restdb.Query) {
		q.Eq("project", projectID).
			Eq("process_model", model).
			Order("last_updated", "desc", true).
			Limit(1)
	})
	if err != nil {
		return nil, fmt.Errorf("latest process instance for project %d: %w", projectID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var inst ProcessInstance
	if err := decodeRow(rows[0], &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

// CreateProcessInstance inserts a new instance and returns it with the
// generated id.
func (s *RestStore) CreateProcessInstance(ctx context.Context, inst ProcessInstance) (ProcessInstance, error) {
	row, err := s.client.Create(ctx, TableProcessInstances, inst, false)
	if err != nil {
		return ProcessInstance{}, fmt.Errorf("create process instance: %w", err)
	}
	var stored ProcessInstance
	if err := decodeRow(row, &stored); err != nil {
		return ProcessInstance{}, err
	}
	return stored, nil
}

// PatchProcessInstance applies a partial update to one instance.
func (s *RestStore) PatchProcessInstance(ctx context.Context, id int64, fields map[string]any) error {
	err := s.client.Patch(ctx, TableProcessInstances, func(q *restdb.Query) {
		q.Eq("id", id)
	}, fields)
	if err != nil {
		return fmt.Errorf("patch process instance %d: %w", id, err)
	}
	return nil
}

// ListProcessInstancesByProjects fans out over resolved project ids with one
// membership filter.
func (s *RestStore) ListProcessInstancesByProjects(ctx context.Context, projectIDs []int64, model string) ([]ProcessInstance, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	rows, err := s.client.Select(ctx, TableProcessInstances, func(q *restdb.Query) {
		ids := make([]any, len(projectIDs))
		for i, id := range projectIDs {
			ids[i] = id
		}
		q.In("project", ids...)
		if model != "" {
			q.Eq("process_model", model)
		}
		q.Order("last_updated", "desc", true)
	})
	if err != nil {
		return nil, fmt.Errorf("list process instances: %w", err)
	}
	return decodeRows[ProcessInstance](rows)
}

// ListProcessInstancesByModel loads every instance of one process model,
// newest first. Reporting views aggregate over this set.
func (s *RestStore) ListProcessInstancesByModel(ctx context.Context, model string) ([]ProcessInstance, error) {
	rows, err := s.client.Select(ctx, TableProcessInstances, func(q *restdb.Query) {
		q.Eq("process_model", model).Order("last_updated", "desc", true)
	})
	if err != nil {
		return nil, fmt.Errorf("list process instances for %s: %w", model, err)
	}
	return decodeRows[ProcessInstance](rows)
}

// ListDecisionElements loads the read-only criterion catalog for a model.
func (s *RestStore) ListDecisionElements(ctx context.Context, model string) ([]DecisionElement, error) {
	rows, err := s.client.Select(ctx, TableDecisionElements, func(q *restdb.Query) {
		q.Eq("process_model", model).Order("id", "asc", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list decision elements for %s: %w", model, err)
	}
	return decodeRows[DecisionElement](rows)
}

// DeletePayloads removes this system's payload rows for one instance. Rows
// with a different data-source marker are untouched.
func (s *RestStore) DeletePayloads(ctx context.Context, processID int64, dataSource string) error {
	err := s.client.Delete(ctx, TableDecisionPayloads, func(q *restdb.Query) {
		q.Eq("process", processID).Eq("data_source", dataSource)
	})
	if err != nil {
		return fmt.Errorf("delete payloads for process %d: %w", processID, err)
	}
	return nil
}

// InsertPayloads bulk-inserts a freshly built payload set.
func (s *RestStore) InsertPayloads(ctx context.Context, payloads []DecisionPayload) error {
	if len(payloads) == 0 {
		return nil
	}
	if _, err := s.client.CreateBatch(ctx, TableDecisionPayloads, payloads); err != nil {
		return fmt.Errorf("insert payloads: %w", err)
	}
	return nil
}

// ListPayloads loads the stored payload set for one instance.
func (s *RestStore) ListPayloads(ctx context.Context, processID int64) ([]DecisionPayload, error) {
	rows, err := s.client.Select(ctx, TableDecisionPayloads, func(q *restdb.Query) {
		q.Eq("process", processID).Order("id", "asc", false)
	})
	if err != nil {
		return nil, fmt.Errorf("list payloads for process %d: %w", processID, err)
	}
	return decodeRows[DecisionPayload](rows)
}

// FindEvent returns the first event of the given type on an instance, or nil.
func (s *RestStore) FindEvent(ctx context.Context, processID int64, eventType string) (*CaseEvent, error) {
	rows, err := s.client.Select(ctx, TableCaseEvents, func(q *restdb.Query) {
		q.Eq("process", processID).Eq("event_type", eventType).Limit(1)
	})
	if err != nil {
		return nil, fmt.Errorf("find %s event for process %d: %w", eventType, processID, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	var ev CaseEvent
	if err := decodeRow(rows[0], &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertEvent appends one case event.
func (s *RestStore) InsertEvent(ctx context.Context, ev CaseEvent) error {
	if _, err := s.client.Create(ctx, TableCaseEvents, ev, false); err != nil {
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// ListEventsByProcesses loads the event log for a set of instances.
func (s *RestStore) ListEventsByProcesses(ctx context.Context, processIDs []int64) ([]CaseEvent, error) {
	if len(processIDs) == 0 {
		return nil, nil
	}
	ids := make([]any, len(processIDs))
	for i, id := range processIDs {
		ids[i] = id
	}
	rows, err := s.client.Select(ctx, TableCaseEvents, func(q *restdb.Query) {
		q.In("process", ids...)
	})
	if err != nil {
		return nil, fmt.Errorf("list case events: %w", err)
	}
	return decodeRows[CaseEvent](rows)
}

// UpsertGis writes the geometry row for a project, keyed by project id.
func (s *RestStore) UpsertGis(ctx context.Context, upload GisUpload) error {
	if _, err := s.client.Create(ctx, TableGisUploads, upload, true); err != nil {
		return fmt.Errorf("upsert gis upload for project %d: %w", upload.ProjectID, err)
	}
	return nil
}

// DeleteGis removes a project's geometry row outright.
func (s *RestStore) DeleteGis(ctx context.Context, projectID int64) error {
	err := s.client.Delete(ctx, TableGisUploads, func(q *restdb.Query) {
		q.Eq("project", projectID)
	})
	if err != nil {
		return fmt.Errorf("delete gis upload for project %d: %w", projectID, err)
	}
	return nil
}
