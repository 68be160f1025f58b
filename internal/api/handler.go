package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/engine"
	"github.com/bbarnes4318/compliance/internal/extract"
	"github.com/bbarnes4318/compliance/internal/lifecycle"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *engine.Service
	lifecycle  *lifecycle.Service
	classifier *extract.CELClassifier
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, eng *engine.Service, lc *lifecycle.Service, classifier *extract.CELClassifier, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     eng,
		lifecycle:  lc,
		classifier: classifier,
		version:    version,
	}
}

// AnalyzeRequest is the request body for POST /analyze.
type AnalyzeRequest struct {
	domain.Evidence

	// Report opens an incident immediately when the result clears the
	// reporting floor.
	Report          bool   `json:"report,omitempty"`
	DetectionMethod string `json:"detectionMethod,omitempty"`
	ReporterID      string `json:"reporterId,omitempty"`
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	Analysis *domain.AnalysisResult `json:"analysis"`
	Incident *domain.Incident       `json:"incident,omitempty"`
}

// Analyze handles POST /analyze requests.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	result, err := h.engine.Analyze(ctx, tenantID, &req.Evidence)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := AnalyzeResponse{Analysis: result}

	if req.Report {
		inc, err := h.engine.ReportIncident(ctx, tenantID, result, req.DetectionMethod, req.ReporterID)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Incident = inc
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetAnalysis retrieves an analysis result by ID.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	analysisID := chi.URLParam(r, "id")

	result, err := h.engine.GetAnalysis(ctx, tenantID, analysisID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// CreateIncidentRequest is the request body for POST /incidents.
// Either AnalysisID (open from a stored analysis) or the manual
// fields are supplied.
type CreateIncidentRequest struct {
	AnalysisID string `json:"analysisId,omitempty"`

	Type                  domain.IncidentType     `json:"type,omitempty"`
	Severity              domain.Severity         `json:"severity,omitempty"`
	Description           string                  `json:"description,omitempty"`
	DetectionMethod       string                  `json:"detectionMethod,omitempty"`
	Reporter              *domain.Reporter        `json:"reporter,omitempty"`
	AffectedBeneficiaries []string                `json:"affectedBeneficiaries,omitempty"`
	FinancialImpact       float64                 `json:"financialImpact,omitempty"`
	EvidenceRefs          []string                `json:"evidenceRefs,omitempty"`
	ComplianceImpact      domain.ComplianceImpact `json:"complianceImpact,omitempty"`
}

// CreateIncident handles POST /incidents requests.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.AnalysisID != "" {
		result, err := h.engine.GetAnalysis(ctx, tenantID, req.AnalysisID)
		if err != nil {
			writeError(w, err)
			return
		}

		reporterID := ""
		if req.Reporter != nil {
			reporterID = req.Reporter.ID
		}
		inc, err := h.engine.ReportIncident(ctx, tenantID, result, req.DetectionMethod, reporterID)
		if err != nil {
			writeError(w, err)
			return
		}
		if inc == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "analysis is below the reporting floor",
			})
			return
		}

		writeJSON(w, http.StatusCreated, inc)
		return
	}

	actor := "api"
	if req.Reporter != nil && req.Reporter.ID != "" {
		actor = req.Reporter.ID
	}

	inc, err := h.lifecycle.Create(ctx, tenantID, &lifecycle.CreateRequest{
		Type:                  req.Type,
		Severity:              req.Severity,
		Description:           req.Description,
		DetectionMethod:       req.DetectionMethod,
		Reporter:              req.Reporter,
		AffectedBeneficiaries: req.AffectedBeneficiaries,
		FinancialImpact:       req.FinancialImpact,
		EvidenceRefs:          req.EvidenceRefs,
		ComplianceImpact:      req.ComplianceImpact,
		Actor:                 actor,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, inc)
}

// GetIncident retrieves an incident with its timeline.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	incidentID := chi.URLParam(r, "id")

	inc, err := h.lifecycle.Get(ctx, tenantID, incidentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

// GetIncidentByNumber retrieves an incident by its incident number.
func (h *Handler) GetIncidentByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	number := chi.URLParam(r, "number")

	inc, err := h.repo.GetIncidentByNumber(ctx, tenantID, number)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, inc)
}

// ListIncidents retrieves incidents filtered by status.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	status := domain.IncidentStatus(r.URL.Query().Get("status"))
	if status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status query parameter is required",
		})
		return
	}

	incidents, err := h.repo.ListIncidentsByStatus(ctx, tenantID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"incidents": incidents,
		"count":     len(incidents),
	})
}

// GetTimeline returns the append-only timeline of an incident.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	incidentID := chi.URLParam(r, "id")

	inc, err := h.lifecycle.Get(ctx, tenantID, incidentID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"incidentId": inc.ID,
		"timeline":   inc.Timeline,
	})
}

type transitionRequest struct {
	Actor          string `json:"actor"`
	InvestigatorID string `json:"investigatorId,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Notes          string `json:"notes,omitempty"`
	CaseNumber     string `json:"caseNumber,omitempty"`
	Substantiated  bool   `json:"substantiated,omitempty"`
}

func decodeTransition(w http.ResponseWriter, r *http.Request) (*transitionRequest, bool) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return nil, false
	}
	if req.Actor == "" {
		req.Actor = req.InvestigatorID
	}
	if req.Actor == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "actor is required",
		})
		return nil, false
	}
	return &req, true
}

// BeginInvestigation handles POST /incidents/{id}/investigate.
func (h *Handler) BeginInvestigation(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.BeginInvestigation(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Escalate handles POST /incidents/{id}/escalate.
func (h *Handler) Escalate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.Escalate(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Determine handles POST /incidents/{id}/determination.
func (h *Handler) Determine(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.Determine(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Substantiated, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ReferToOIG handles POST /incidents/{id}/refer/oig.
func (h *Handler) ReferToOIG(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.ReferToOIG(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.CaseNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// ReferToCMS handles POST /incidents/{id}/refer/cms.
func (h *Handler) ReferToCMS(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.ReferToCMS(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.CaseNumber)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Resolve handles POST /incidents/{id}/resolve.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.Resolve(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// CloseIncident handles POST /incidents/{id}/close.
func (h *Handler) CloseIncident(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeTransition(w, r)
	if !ok {
		return
	}

	inc, err := h.lifecycle.Close(r.Context(), GetTenantID(r.Context()), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListClassifierRules returns all loaded classifier rules.
// Rules are loaded from the database at startup and can be reloaded
// via POST /classifier/rules/reload.
func (h *Handler) ListClassifierRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.classifier.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// CreateClassifierRuleRequest is the request body for creating a
// classifier rule.
type CreateClassifierRuleRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Class       string  `json:"class"`
	Expression  string  `json:"expression"`
	Confidence  float64 `json:"confidence"`
	Enabled     bool    `json:"enabled"`
}

// GlobalTenantID is used for classifier rules that apply to all
// tenants.
const GlobalTenantID = "*"

// CreateClassifierRule creates a new classifier rule and saves it to
// the database. Rules are saved globally (tenant_id = "*") so they
// apply to all tenants. After saving, call POST
// /classifier/rules/reload to hot-reload into the classifier.
func (h *Handler) CreateClassifierRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateClassifierRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ClassifierRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Class:       req.Class,
		Expression:  req.Expression,
		Confidence:  req.Confidence,
		Enabled:     req.Enabled,
	}

	// Validate CEL expression by attempting to load
	if err := h.classifier.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid classifier rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveClassifierRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save classifier rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("classifier rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"rule":    rule,
		"message": "Rule created. Call POST /classifier/rules/reload to apply changes.",
	})
}

// ReloadClassifierRules reloads all classifier rules from the
// database. This enables hot-reloading without server restart.
func (h *Handler) ReloadClassifierRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListClassifierRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list classifier rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.classifier.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload classifier rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("classifier rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "concurrent update, retry"})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}
