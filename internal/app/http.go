package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"permitport/api/internal/decision"
	"permitport/api/internal/flow"
	"permitport/api/internal/restdb"
	"permitport/api/internal/store"
	"permitport/api/internal/util"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/projects/save" {
		s.handleSaveProject(w, r)
		return
	}

	if r.Method == http.MethodGet {
		parts := splitPath(r.URL.Path)
		// /api/projects/{id}/status and /api/projects/{id}/report
		if len(parts) == 4 && parts[0] == "api" && parts[1] == "projects" {
			switch parts[3] {
			case "status":
				s.handleReviewStatus(w, r, parts[2])
				return
			case "report":
				s.handleReport(w, r, parts[2])
				return
			}
		}
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/sync" {
		s.handleSync(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/analytics" {
		s.handleAnalytics(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

type saveProjectRequest struct {
	Project             store.Project            `json:"project"`
	Model               string                   `json:"model"`
	IPaC                decision.ScreeningResult `json:"ipac"`
	NEPAssist           decision.ScreeningResult `json:"nepassist"`
	Checklist           []decision.PermitItem    `json:"checklist"`
	PermitNotes         string                   `json:"permitNotes"`
	ExclusionCandidates string                   `json:"exclusionCandidates"`
	ExclusionBasis      string                   `json:"exclusionBasis"`
	ExclusionNarrative  string                   `json:"exclusionNarrative"`
	Conditions          string                   `json:"conditions"`
	ResourceNotes       string                   `json:"resourceNotes"`
	ArcGIS              any                      `json:"arcgisJson"`
	OriginalFile        string                   `json:"originalFile"` // base64
	FileName            string                   `json:"fileName"`
	AutoComplete        bool                     `json:"autoComplete"`
}

func (s *HTTPServer) handleSaveProject(w http.ResponseWriter, r *http.Request) {
	var req saveProjectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if strings.TrimSpace(req.Project.Title) == "" {
		writeError(w, http.StatusBadRequest, "TITLE_REQUIRED", "project title is required", nil)
		return
	}
	if req.Model == "" {
		req.Model = "basic"
	}

	var original []byte
	if req.OriginalFile != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.OriginalFile)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FILE", "original file is not valid base64", nil)
			return
		}
		original = decoded
	}

	result, err := s.service.SaveProject(r.Context(), flow.SaveRequest{
		Project: req.Project,
		Model:   req.Model,
		Input: decision.BuildInput{
			IPaC:                req.IPaC,
			NEPAssist:           req.NEPAssist,
			Checklist:           req.Checklist,
			PermitNotes:         req.PermitNotes,
			ExclusionCandidates: req.ExclusionCandidates,
			ExclusionBasis:      req.ExclusionBasis,
			ExclusionNarrative:  req.ExclusionNarrative,
			Conditions:          req.Conditions,
			ResourceNotes:       req.ResourceNotes,
		},
		ArcGIS:       req.ArcGIS,
		OriginalFile: original,
		FileName:     req.FileName,
		AutoComplete: req.AutoComplete,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":   result.ProjectID,
		"processId":   result.ProcessID,
		"isComplete":  result.Evaluation.IsComplete,
		"completed":   result.Evaluation.CompletedTitles,
		"total":       result.Evaluation.Total,
		"failedCheck": nullableString(result.Evaluation.FailedCheck),
	})
}

func (s *HTTPServer) handleReviewStatus(w http.ResponseWriter, r *http.Request, rawID string) {
	projectID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "project id must be an integer", nil)
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" {
		model = "basic"
	}

	result, err := s.service.ReviewStatus(r.Context(), projectID, model)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"isComplete":  result.IsComplete,
		"completed":   result.CompletedTitles,
		"total":       result.Total,
		"failedCheck": nullableString(result.FailedCheck),
	})
}

func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request, rawID string) {
	projectID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "project id must be an integer", nil)
		return
	}
	model := r.URL.Query().Get("model")
	if model == "" {
		model = "basic"
	}

	result, err := s.service.ExportReport(r.Context(), projectID, model)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		model = "basic"
	}
	reports, err := s.service.SyncPartners(r.Context(), model)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"partners": reports})
}

func (s *HTTPServer) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	model := r.URL.Query().Get("model")
	if model == "" {
		model = "basic"
	}
	points, err := s.service.Analytics(r.Context(), model)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		requestID := util.NewID("req")
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-Id", requestID)
		setCORSHeaders(writer.Header(), s.corsOrigin)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var backendErr *restdb.BackendError
	if errors.As(err, &backendErr) {
		return http.StatusBadGateway, "BACKEND_ERROR", backendErr.Error(), map[string]any{
			"backendStatus": backendErr.Status,
		}
	}
	return http.StatusInternalServerError, "INTERNAL", err.Error(), nil
}
