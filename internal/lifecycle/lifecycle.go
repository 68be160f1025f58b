// Package lifecycle manages the incident record: creation, status
// transitions, the append-only timeline, and risk-score recomputation
// on every mutation. All writes are serialized per incident.
package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// Notifier is the out-of-band alert path to compliance officers.
// Fire-and-forget: delivery failures are logged by the implementation
// and never roll back the incident transition that triggered them.
type Notifier interface {
	CriticalIncident(ctx context.Context, tenantID string, inc *domain.Incident)
}

// Service is the authoritative incident lifecycle engine.
type Service struct {
	repo     domain.Repository
	notifier Notifier
	bus      domain.EventBus

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates the lifecycle service. The bus is optional;
// when present, created/updated events are published for downstream
// consumers.
func NewService(repo domain.Repository, notifier Notifier, bus domain.EventBus) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		bus:      bus,
		locks:    make(map[string]*sync.Mutex),
	}
}

// IncidentEvent is the payload published on incident created/updated
// topics.
type IncidentEvent struct {
	IncidentID     string                `json:"incidentId"`
	IncidentNumber string                `json:"incidentNumber"`
	Status         domain.IncidentStatus `json:"status"`
	Severity       domain.Severity       `json:"severity"`
	RiskScore      int                   `json:"riskScore"`
}

// CreateRequest carries everything needed to open an incident.
type CreateRequest struct {
	Type            domain.IncidentType
	Severity        domain.Severity
	Description     string
	DetectionMethod string
	Reporter        *domain.Reporter

	AffectedBeneficiaries []string
	FinancialImpact       float64
	EvidenceRefs          []string
	ComplianceImpact      domain.ComplianceImpact

	// AnalysisID links system-generated incidents to their source
	// analysis.
	AnalysisID string

	// Actor recorded on the initial timeline entry ("system" for
	// engine-generated reports).
	Actor string
}

// Create opens a new incident in REPORTED status with its risk score
// computed and one REPORTED timeline entry.
func (s *Service) Create(ctx context.Context, tenantID string, req *CreateRequest) (*domain.Incident, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	actor := req.Actor
	if actor == "" {
		actor = "system"
	}

	inc := &domain.Incident{
		ID:                    uuid.New().String(),
		TenantID:              tenantID,
		IncidentNumber:        NewIncidentNumber(req.Type, now),
		Type:                  req.Type,
		Severity:              req.Severity,
		Status:                domain.StatusReported,
		Description:           req.Description,
		DetectionMethod:       req.DetectionMethod,
		Reporter:              req.Reporter,
		AffectedBeneficiaries: req.AffectedBeneficiaries,
		FinancialImpact:       req.FinancialImpact,
		EvidenceRefs:          req.EvidenceRefs,
		ComplianceImpact:      req.ComplianceImpact,
		AnalysisID:            req.AnalysisID,
		Version:               1,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	inc.RiskScore = RiskScore(inc)

	inc.Timeline = []domain.TimelineEntry{{
		Seq:       1,
		Action:    domain.ActionReported,
		Actor:     actor,
		Detail:    fmt.Sprintf("incident reported via %s", inc.DetectionMethod),
		Timestamp: now,
	}}

	if inc.Severity == domain.SeverityCritical {
		s.alertCritical(ctx, tenantID, inc)
	}

	if err := s.repo.SaveIncident(ctx, tenantID, inc); err != nil {
		return nil, fmt.Errorf("failed to save incident: %w", err)
	}

	s.publish(ctx, tenantID, domain.TopicIncidentCreated, inc)

	slog.Info("incident created",
		"tenant_id", tenantID,
		"incident_id", inc.ID,
		"incident_number", inc.IncidentNumber,
		"type", inc.Type,
		"severity", inc.Severity,
		"risk_score", inc.RiskScore,
	)

	return inc, nil
}

// Get returns one incident with its timeline.
func (s *Service) Get(ctx context.Context, tenantID, incidentID string) (*domain.Incident, error) {
	return s.repo.GetIncident(ctx, tenantID, incidentID)
}

// BeginInvestigation moves a REPORTED incident to UNDER_INVESTIGATION
// and stamps investigationStarted once.
func (s *Service) BeginInvestigation(ctx context.Context, tenantID, incidentID, investigatorID string) (*domain.Incident, error) {
	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, domain.StatusUnderInvestigation) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: domain.StatusUnderInvestigation}
		}

		inc.Status = domain.StatusUnderInvestigation
		if inc.InvestigationStarted == nil {
			now := time.Now().UTC()
			inc.InvestigationStarted = &now
		}

		return []domain.TimelineEntry{{
			Action: domain.ActionInvestigationStarted,
			Actor:  investigatorID,
			Detail: "investigation opened",
		}}, nil
	})
}

// Escalate steps severity up exactly one level. CRITICAL is a
// ceiling: escalating from it is a no-op that still logs a timeline
// entry and never re-fires the critical alert.
func (s *Service) Escalate(ctx context.Context, tenantID, incidentID, actor, reason string) (*domain.Incident, error) {
	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if inc.Status.Terminal() {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: inc.Status}
		}

		old := inc.Severity
		inc.Severity = old.Next()

		detail := fmt.Sprintf("severity %s -> %s: %s", old, inc.Severity, reason)
		if old == inc.Severity {
			detail = fmt.Sprintf("severity already %s, escalation is a no-op: %s", old, reason)
		}

		return []domain.TimelineEntry{{
			Action: domain.ActionEscalated,
			Actor:  actor,
			Detail: detail,
		}}, nil
	})
}

// Determine records the investigation outcome, moving the incident to
// SUBSTANTIATED or UNSUBSTANTIATED.
func (s *Service) Determine(ctx context.Context, tenantID, incidentID, actor string, substantiated bool, notes string) (*domain.Incident, error) {
	target := domain.StatusUnsubstantiated
	if substantiated {
		target = domain.StatusSubstantiated
	}

	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, target) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: target}
		}

		inc.Status = target

		return []domain.TimelineEntry{{
			Action: domain.ActionStatusChanged,
			Actor:  actor,
			Detail: fmt.Sprintf("determination: %s. %s", target, notes),
		}}, nil
	})
}

// ReferToOIG refers the incident to the Office of Inspector General.
// The case number, once set, is never cleared.
func (s *Service) ReferToOIG(ctx context.Context, tenantID, incidentID, actor, caseNumber string) (*domain.Incident, error) {
	if caseNumber == "" {
		return nil, &domain.ValidationError{Field: "caseNumber", Reason: "OIG case number is required"}
	}

	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, domain.StatusReferredToOIG) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: domain.StatusReferredToOIG}
		}

		inc.Status = domain.StatusReferredToOIG
		inc.Referral.OIGCaseNumber = caseNumber
		s.markReported(inc)

		return []domain.TimelineEntry{{
			Action: domain.ActionReferredToOIG,
			Actor:  actor,
			Detail: "OIG case " + caseNumber,
		}}, nil
	})
}

// ReferToCMS refers the incident to the Centers for Medicare &
// Medicaid Services. The case number, once set, is never cleared.
func (s *Service) ReferToCMS(ctx context.Context, tenantID, incidentID, actor, caseNumber string) (*domain.Incident, error) {
	if caseNumber == "" {
		return nil, &domain.ValidationError{Field: "caseNumber", Reason: "CMS case number is required"}
	}

	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, domain.StatusReferredToCMS) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: domain.StatusReferredToCMS}
		}

		inc.Status = domain.StatusReferredToCMS
		inc.Referral.CMSCaseNumber = caseNumber
		s.markReported(inc)

		return []domain.TimelineEntry{{
			Action: domain.ActionReferredToCMS,
			Actor:  actor,
			Detail: "CMS case " + caseNumber,
		}}, nil
	})
}

// Resolve moves the incident to the RESOLVED terminal status.
func (s *Service) Resolve(ctx context.Context, tenantID, incidentID, actor, notes string) (*domain.Incident, error) {
	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, domain.StatusResolved) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: domain.StatusResolved}
		}

		inc.Status = domain.StatusResolved
		s.completeInvestigation(inc)

		return []domain.TimelineEntry{{
			Action: domain.ActionResolved,
			Actor:  actor,
			Detail: notes,
		}}, nil
	})
}

// Close is the administrative override: reachable from every status
// except CLOSED itself. Closure is terminal, never removal.
func (s *Service) Close(ctx context.Context, tenantID, incidentID, actor, reason string) (*domain.Incident, error) {
	return s.mutate(ctx, tenantID, incidentID, func(inc *domain.Incident) ([]domain.TimelineEntry, error) {
		if !CanTransition(inc.Status, domain.StatusClosed) {
			return nil, &domain.InvalidTransitionError{From: inc.Status, To: domain.StatusClosed}
		}

		inc.Status = domain.StatusClosed
		s.completeInvestigation(inc)

		return []domain.TimelineEntry{{
			Action: domain.ActionClosed,
			Actor:  actor,
			Detail: reason,
		}}, nil
	})
}

// mutate is the single write path for existing incidents: lock the
// incident, load fresh state, apply the transition, recompute the
// risk score from post-load state, stamp and append timeline entries,
// and commit everything atomically. A transition error leaves the
// stored incident untouched.
func (s *Service) mutate(ctx context.Context, tenantID, incidentID string, fn func(inc *domain.Incident) ([]domain.TimelineEntry, error)) (*domain.Incident, error) {
	lock := s.lockFor(tenantID + ":" + incidentID)
	lock.Lock()
	defer lock.Unlock()

	inc, err := s.repo.GetIncident(ctx, tenantID, incidentID)
	if err != nil {
		return nil, err
	}

	entries, err := fn(inc)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inc.RiskScore = RiskScore(inc)
	inc.UpdatedAt = now

	if inc.Severity == domain.SeverityCritical && !inc.CriticalAlerted {
		s.alertCritical(ctx, tenantID, inc)
	}

	for i := range entries {
		entries[i].Seq = len(inc.Timeline) + i + 1
		entries[i].Timestamp = now
	}

	if err := s.repo.UpdateIncident(ctx, tenantID, inc, entries); err != nil {
		return nil, fmt.Errorf("failed to update incident: %w", err)
	}
	inc.Timeline = append(inc.Timeline, entries...)

	s.publish(ctx, tenantID, domain.TopicIncidentUpdated, inc)

	slog.Info("incident updated",
		"tenant_id", tenantID,
		"incident_id", inc.ID,
		"status", inc.Status,
		"severity", inc.Severity,
		"risk_score", inc.RiskScore,
	)

	return inc, nil
}

// alertCritical fires the compliance-officer alert exactly once per
// transition into CRITICAL. The flag persists with the incident so a
// restart cannot re-fire it.
func (s *Service) alertCritical(ctx context.Context, tenantID string, inc *domain.Incident) {
	inc.CriticalAlerted = true
	if s.notifier != nil {
		s.notifier.CriticalIncident(ctx, tenantID, inc)
	}
}

func (s *Service) markReported(inc *domain.Incident) {
	if !inc.RegulatoryReported {
		now := time.Now().UTC()
		inc.RegulatoryReported = true
		inc.RegulatoryReportedAt = &now
	}
}

func (s *Service) completeInvestigation(inc *domain.Incident) {
	if inc.InvestigationCompleted == nil {
		now := time.Now().UTC()
		inc.InvestigationCompleted = &now
	}
}

func (s *Service) publish(ctx context.Context, tenantID, topic string, inc *domain.Incident) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(IncidentEvent{
		IncidentID:     inc.ID,
		IncidentNumber: inc.IncidentNumber,
		Status:         inc.Status,
		Severity:       inc.Severity,
		RiskScore:      inc.RiskScore,
	})
	if err != nil {
		slog.Error("failed to marshal incident event", "incident_id", inc.ID, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Warn("failed to publish incident event",
			"topic", topic,
			"incident_id", inc.ID,
			"error", err,
		)
	}
}

func (s *Service) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

// incidentTypeCodes abbreviate types inside incident numbers.
var incidentTypeCodes = map[domain.IncidentType]string{
	domain.TypeFraud:                    "FR",
	domain.TypeWaste:                    "WA",
	domain.TypeAbuse:                    "AB",
	domain.TypeComplianceViolation:      "CV",
	domain.TypeSuspiciousActivity:       "SA",
	domain.TypeIdentityTheft:            "IT",
	domain.TypeBillingIrregularity:      "BI",
	domain.TypeEnrollmentManipulation:   "EM",
	domain.TypeBenefitMisrepresentation: "BM",
	domain.TypeUnauthorizedDisclosure:   "UD",
}

// NewIncidentNumber derives a unique human-traceable number from the
// incident type and creation time.
func NewIncidentNumber(t domain.IncidentType, at time.Time) string {
	code, ok := incidentTypeCodes[t]
	if !ok {
		code = "XX"
	}
	suffix := strings.Split(uuid.New().String(), "-")[0]
	return fmt.Sprintf("FWA-%s-%s-%s", code, at.UTC().Format("20060102-150405"), suffix)
}

func validateCreate(req *CreateRequest) error {
	if req == nil {
		return &domain.ValidationError{Field: "request", Reason: "create request is required"}
	}
	if _, ok := incidentTypeCodes[req.Type]; !ok {
		return &domain.ValidationError{Field: "type", Reason: "unknown incident type: " + string(req.Type)}
	}
	switch req.Severity {
	case domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical:
	default:
		return &domain.ValidationError{Field: "severity", Reason: "unknown severity: " + string(req.Severity)}
	}
	if req.FinancialImpact < 0 {
		return &domain.ValidationError{Field: "financialImpact", Reason: "financial impact must be non-negative"}
	}
	if req.Description == "" {
		return &domain.ValidationError{Field: "description", Reason: "description is required"}
	}
	return nil
}
