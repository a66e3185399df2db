// Package flow drives the review-process lifecycle for one project: find or
// create the process instance, replace its decision payloads wholesale, and
// keep milestone events idempotent.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"permitport/api/internal/decision"
	"permitport/api/internal/gis"
	"permitport/api/internal/metrics"
	"permitport/api/internal/restdb"
	"permitport/api/internal/store"
)

// Store is the backend access the orchestrator needs.
type Store interface {
	UpsertProject(ctx context.Context, p store.Project) (int64, error)
	LatestProcessInstance(ctx context.Context, projectID int64, model string) (*store.ProcessInstance, error)
	CreateProcessInstance(ctx context.Context, inst store.ProcessInstance) (store.ProcessInstance, error)
	PatchProcessInstance(ctx context.Context, id int64, fields map[string]any) error
	ListDecisionElements(ctx context.Context, model string) ([]store.DecisionElement, error)
	DeletePayloads(ctx context.Context, processID int64, dataSource string) error
	InsertPayloads(ctx context.Context, payloads []store.DecisionPayload) error
	ListPayloads(ctx context.Context, processID int64) ([]store.DecisionPayload, error)
	FindEvent(ctx context.Context, processID int64, eventType string) (*store.CaseEvent, error)
	InsertEvent(ctx context.Context, ev store.CaseEvent) error
	UpsertGis(ctx context.Context, upload store.GisUpload) error
	DeleteGis(ctx context.Context, projectID int64) error
}

// Uploader pushes a raw file into object storage and returns its public URL.
type Uploader interface {
	UploadObject(ctx context.Context, bucket, objectPath string, data []byte, contentType string) (string, error)
}

// geometryBucket holds the original upload files behind gis rows.
const geometryBucket = "project-files"

type Orchestrator struct {
	store     Store
	uploads   Uploader // nil disables file uploads
	evaluator *decision.Evaluator
	logger    *slog.Logger
}

func New(st Store, uploads Uploader, evaluator *decision.Evaluator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if evaluator == nil {
		evaluator = decision.NewEvaluator(logger)
	}
	return &Orchestrator{store: st, uploads: uploads, evaluator: evaluator, logger: logger}
}

// SaveRequest is one full save of a project's review state.
type SaveRequest struct {
	Project store.Project
	Model   string
	Input   decision.BuildInput

	// Geometry container; when entirely empty the project's stored geometry
	// row is deleted instead of upserted.
	ArcGIS       any
	OriginalFile []byte
	FileName     string

	// AutoComplete opts in to recording the completion milestone when the
	// evaluation passes. Some callers suppress it so a human confirms first.
	AutoComplete bool
}

type SaveResult struct {
	ProjectID  int64
	ProcessID  int64
	Evaluation decision.Result
}

// Save runs the full pipeline in strict order: upsert project, resolve the
// process instance, replace payloads, ensure milestone events, then upsert or
// delete geometry. There is no spanning transaction; a failure partway leaves
// earlier steps applied, and the caller must not assume partial success.
func (o *Orchestrator) Save(ctx context.Context, req SaveRequest) (SaveResult, error) {
	if req.Model == "" {
		return SaveResult{}, fmt.Errorf("process model is required")
	}

	projectID, err := o.store.UpsertProject(ctx, req.Project)
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return SaveResult{}, err
	}

	inst, err := o.FindOrCreateInstance(ctx, projectID, req.Model, req.Project.Title)
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return SaveResult{}, err
	}

	elements, err := o.store.ListDecisionElements(ctx, req.Model)
	if err != nil {
		// A stale or missing catalog must not block the save; payloads fall
		// back to title identity.
		o.logger.Warn("decision element catalog unavailable", "model", req.Model, "error", err)
		elements = nil
	}

	input := req.Input
	input.Project = req.Project
	input.Project.ID = projectID
	payloads := decision.Build(inst.ID, decision.NewCatalog(elements), input)

	if err := o.ReplacePayloads(ctx, inst.ID, payloads); err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return SaveResult{}, err
	}

	if err := o.EnsureEvent(ctx, inst.ID, store.EventInitiated, "open"); err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return SaveResult{}, err
	}

	result := o.evaluator.Evaluate(payloads)
	if result.IsComplete && req.AutoComplete {
		if err := o.EnsureEvent(ctx, inst.ID, store.EventComplete, "complete"); err != nil {
			metrics.SavesTotal.WithLabelValues("error").Inc()
			return SaveResult{}, err
		}
	}

	if err := o.saveGeometry(ctx, projectID, req); err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return SaveResult{}, err
	}

	metrics.SavesTotal.WithLabelValues("ok").Inc()
	return SaveResult{ProjectID: projectID, ProcessID: inst.ID, Evaluation: result}, nil
}

// FindOrCreateInstance returns the live instance for the (project, model)
// pair: the latest-updated one when any exist (patched with fresh metadata),
// or a newly created one.
func (o *Orchestrator) FindOrCreateInstance(ctx context.Context, projectID int64, model, title string) (store.ProcessInstance, error) {
	description := fmt.Sprintf("%s review for %s", model, title)
	now := time.Now().UTC()

	existing, err := o.store.LatestProcessInstance(ctx, projectID, model)
	if err != nil {
		return store.ProcessInstance{}, err
	}
	if existing != nil {
		fields := map[string]any{
			"description":  description,
			"last_updated": now,
		}
		if err := o.store.PatchProcessInstance(ctx, existing.ID, fields); err != nil {
			return store.ProcessInstance{}, err
		}
		existing.Description = description
		existing.UpdatedAt = now
		return *existing, nil
	}

	created, err := o.store.CreateProcessInstance(ctx, store.ProcessInstance{
		ProjectID:   projectID,
		Model:       model,
		Description: description,
		Status:      "draft",
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return store.ProcessInstance{}, err
	}
	return created, nil
}

// ReplacePayloads deletes this system's payload rows for the instance and
// bulk-inserts the fresh set. Never a per-row diff: wholesale replacement
// avoids partial-update drift.
func (o *Orchestrator) ReplacePayloads(ctx context.Context, processID int64, payloads []store.DecisionPayload) error {
	if err := o.store.DeletePayloads(ctx, processID, store.DataSourcePortal); err != nil {
		return err
	}
	return o.store.InsertPayloads(ctx, payloads)
}

// EnsureEvent inserts a milestone event unless one of that type already
// exists on the instance. Event recording is best-effort: a 400 from the
// backend is logged and swallowed so audit logging never blocks the save.
func (o *Orchestrator) EnsureEvent(ctx context.Context, processID int64, eventType, status string) error {
	existing, err := o.store.FindEvent(ctx, processID, eventType)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	err = o.store.InsertEvent(ctx, store.CaseEvent{
		ProcessID:   processID,
		Type:        eventType,
		Status:      status,
		Other:       map[string]any{"source": store.DataSourcePortal},
		LastUpdated: time.Now().UTC(),
	})
	if err != nil {
		code := restdb.StatusOf(err)
		if code == http.StatusBadRequest {
			o.logger.Warn("case event rejected, continuing", "event_type", eventType, "process", processID, "error", err)
			metrics.SwallowedEventFailures.Inc()
			return nil
		}
		if code != 0 {
			metrics.BackendErrorsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
		}
		return err
	}
	return nil
}

// ReviewStatus loads the stored payload set for a project's live instance and
// evaluates it. Projects without an instance report a zero result.
func (o *Orchestrator) ReviewStatus(ctx context.Context, projectID int64, model string) (decision.Result, error) {
	inst, err := o.store.LatestProcessInstance(ctx, projectID, model)
	if err != nil {
		return decision.Result{}, err
	}
	if inst == nil {
		return decision.Result{Total: len(decision.SlotOrder)}, nil
	}
	payloads, err := o.store.ListPayloads(ctx, inst.ID)
	if err != nil {
		return decision.Result{}, err
	}
	return o.evaluator.Evaluate(payloads), nil
}

func (o *Orchestrator) saveGeometry(ctx context.Context, projectID int64, req SaveRequest) error {
	if !gis.HasGeometry(req.Project.Geometry, req.ArcGIS, req.OriginalFile) {
		return o.store.DeleteGis(ctx, projectID)
	}
	upload := gis.BuildUpload(projectID, req.Project.Geometry, req.ArcGIS, req.OriginalFile, req.FileName)
	if o.uploads != nil && len(req.OriginalFile) > 0 {
		name := req.FileName
		if name == "" {
			name = "geometry"
		}
		objectPath := fmt.Sprintf("%d/%s-%s", projectID, uuid.NewString(), name)
		fileURL, err := o.uploads.UploadObject(ctx, geometryBucket, objectPath, req.OriginalFile, "application/octet-stream")
		if err != nil {
			// The row keeps the encoded bytes either way, so a storage outage
			// only costs the public link.
			o.logger.Warn("geometry file upload failed", "project", projectID, "error", err)
		} else {
			upload.FileURL = fileURL
		}
	}
	return o.store.UpsertGis(ctx, upload)
}
