package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"permitport/api/internal/analytics"
	"permitport/api/internal/config"
	"permitport/api/internal/decision"
	"permitport/api/internal/export"
	"permitport/api/internal/flow"
	"permitport/api/internal/match"
	"permitport/api/internal/metrics"
	"permitport/api/internal/store"
)

// portalStore is the portal-side access the service needs beyond what the
// orchestrator already covers.
type portalStore interface {
	flow.Store
	ListProjectRefs(ctx context.Context) ([]store.ProjectRef, error)
	GetProject(ctx context.Context, id int64) (*store.Project, error)
	ListProcessInstancesByModel(ctx context.Context, model string) ([]store.ProcessInstance, error)
	ListEventsByProcesses(ctx context.Context, processIDs []int64) ([]store.CaseEvent, error)
}

// partnerStore is the slice of a partner backend used during sync.
type partnerStore interface {
	FindProjectsByTitles(ctx context.Context, titles []string) ([]store.ProjectRef, error)
	UpsertProject(ctx context.Context, p store.Project) (int64, error)
	ListProcessInstancesByProjects(ctx context.Context, projectIDs []int64, model string) ([]store.ProcessInstance, error)
}

// Partner bundles one partner backend's access.
type Partner struct {
	Name  string
	Store partnerStore
	Auth  func(ctx context.Context) error // nil when no credentials configured
}

type Service struct {
	cfg     config.Config
	portal  portalStore
	parts   []Partner
	links   *match.LinkCache
	matcher *match.Matcher
	orch    *flow.Orchestrator
	eval    *decision.Evaluator
	logger  *slog.Logger
}

func New(cfg config.Config, portal portalStore, partners []Partner, uploads flow.Uploader, links *match.LinkCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	evaluator := decision.NewEvaluator(logger)
	return &Service{
		cfg:     cfg,
		portal:  portal,
		parts:   partners,
		links:   links,
		matcher: match.NewMatcher(logger),
		orch:    flow.New(portal, uploads, evaluator, logger),
		eval:    evaluator,
		logger:  logger,
	}
}

// SaveProject runs the orchestrated save pipeline against the portal store.
func (s *Service) SaveProject(ctx context.Context, req flow.SaveRequest) (flow.SaveResult, error) {
	return s.orch.Save(ctx, req)
}

// ReviewStatus evaluates a project's stored review state.
func (s *Service) ReviewStatus(ctx context.Context, projectID int64, model string) (decision.Result, error) {
	project, err := s.portal.GetProject(ctx, projectID)
	if err != nil {
		return decision.Result{}, err
	}
	if project == nil {
		return decision.Result{}, domainError(http.StatusNotFound, "PROJECT_NOT_FOUND",
			fmt.Sprintf("project %d does not exist", projectID), nil)
	}
	return s.orch.ReviewStatus(ctx, projectID, model)
}

// ExportReport renders the review determination summary for a project.
func (s *Service) ExportReport(ctx context.Context, projectID int64, model string) (*export.Result, error) {
	project, err := s.portal.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, domainError(http.StatusNotFound, "PROJECT_NOT_FOUND",
			fmt.Sprintf("project %d does not exist", projectID), nil)
	}

	inst, err := s.portal.LatestProcessInstance(ctx, projectID, model)
	if err != nil {
		return nil, err
	}
	var payloads []store.DecisionPayload
	if inst != nil {
		payloads, err = s.portal.ListPayloads(ctx, inst.ID)
		if err != nil {
			return nil, err
		}
	}

	return export.Render(export.Input{
		Project:    *project,
		Model:      model,
		Evaluation: s.eval.Evaluate(payloads),
		Payloads:   payloads,
	})
}

// PartnerSyncReport summarizes one partner's sync run.
type PartnerSyncReport struct {
	Partner   string           `json:"partner"`
	Linked    int              `json:"linked"`
	Mirrored  int              `json:"mirrored"`
	Ambiguous int              `json:"ambiguous"`
	Statuses  map[int64]string `json:"statuses"` // portal project id -> partner status string
}

// SyncPartners reconciles every configured partner store against the portal:
// resolve title matches, mirror unmatched projects by value, cache the links,
// and read back partner process status over the resolved ids.
func (s *Service) SyncPartners(ctx context.Context, model string) ([]PartnerSyncReport, error) {
	refs, err := s.portal.ListProjectRefs(ctx)
	if err != nil {
		return nil, err
	}

	var reports []PartnerSyncReport
	for _, partner := range s.parts {
		report, err := s.syncPartner(ctx, partner, refs, model)
		if err != nil {
			metrics.SyncRunsTotal.WithLabelValues(partner.Name, "error").Inc()
			return reports, fmt.Errorf("sync %s: %w", partner.Name, err)
		}
		metrics.SyncRunsTotal.WithLabelValues(partner.Name, "ok").Inc()
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *Service) syncPartner(ctx context.Context, partner Partner, refs []store.ProjectRef, model string) (PartnerSyncReport, error) {
	report := PartnerSyncReport{Partner: partner.Name, Statuses: map[int64]string{}}

	if partner.Auth != nil {
		if err := partner.Auth(ctx); err != nil {
			return report, fmt.Errorf("sign in: %w", err)
		}
	}

	mapping, links, err := s.matcher.Resolve(ctx, refs, partner.Store)
	if err != nil {
		return report, err
	}

	// Mirror by value: portal projects with no partner row get created there.
	matched := make(map[int64]bool, len(mapping))
	for portalID := range mapping {
		matched[portalID] = true
	}
	for _, ref := range refs {
		if matched[ref.ID] || ref.Title == "" {
			continue
		}
		project, err := s.portal.GetProject(ctx, ref.ID)
		if err != nil {
			return report, err
		}
		if project == nil {
			continue
		}
		mirror := *project
		mirror.ID = 0 // partner assigns its own id
		partnerID, err := partner.Store.UpsertProject(ctx, mirror)
		if err != nil {
			return report, fmt.Errorf("mirror project %q: %w", ref.Title, err)
		}
		mapping[ref.ID] = partnerID
		links = append(links, match.Link{
			PortalID:   ref.ID,
			PartnerID:  partnerID,
			Title:      ref.Title,
			IDMismatch: partnerID != ref.ID,
		})
		report.Mirrored++
	}

	if s.links != nil {
		if err := s.links.Put(ctx, partner.Name, links); err != nil {
			// The cache is an optimization; a write failure must not abort sync.
			s.logger.Warn("link cache write failed", "partner", partner.Name, "error", err)
		}
	}

	for _, link := range links {
		if link.Ambiguous {
			report.Ambiguous++
		}
	}
	report.Linked = len(mapping)

	partnerIDs := make([]int64, 0, len(mapping))
	byPartnerID := make(map[int64]int64, len(mapping))
	for portalID, partnerID := range mapping {
		partnerIDs = append(partnerIDs, partnerID)
		byPartnerID[partnerID] = portalID
	}
	instances, err := partner.Store.ListProcessInstancesByProjects(ctx, partnerIDs, model)
	if err != nil {
		return report, err
	}
	for _, inst := range instances {
		portalID, ok := byPartnerID[inst.ProjectID]
		if !ok {
			continue
		}
		// Instances arrive newest first; keep the first status seen.
		if _, seen := report.Statuses[portalID]; !seen {
			report.Statuses[portalID] = inst.Status
		}
	}
	return report, nil
}

// Analytics derives the gap-filled completion series for one process model.
func (s *Service) Analytics(ctx context.Context, model string) ([]analytics.Point, error) {
	instances, err := s.portal.ListProcessInstancesByModel(ctx, model)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return []analytics.Point{}, nil
	}
	ids := make([]int64, len(instances))
	for i, inst := range instances {
		ids[i] = inst.ID
	}
	events, err := s.portal.ListEventsByProcesses(ctx, ids)
	if err != nil {
		return nil, err
	}
	return analytics.Aggregate(instances, events, analytics.MarkerForModel(model)), nil
}

// Ping verifies the portal store and link cache are reachable.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.portal.ListProjectRefs(ctx); err != nil {
		return fmt.Errorf("portal: %w", err)
	}
	if s.links != nil {
		if err := s.links.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}
