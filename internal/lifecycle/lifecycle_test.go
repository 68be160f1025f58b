package lifecycle

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// memRepo is an in-memory Repository for lifecycle tests.
type memRepo struct {
	mu        sync.Mutex
	incidents map[string]*domain.Incident
}

func newMemRepo() *memRepo {
	return &memRepo{incidents: make(map[string]*domain.Incident)}
}

func (r *memRepo) key(tenantID, id string) string { return tenantID + "/" + id }

func (r *memRepo) SaveIncident(_ context.Context, tenantID string, inc *domain.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *inc
	cp.Timeline = append([]domain.TimelineEntry(nil), inc.Timeline...)
	r.incidents[r.key(tenantID, inc.ID)] = &cp
	return nil
}

func (r *memRepo) UpdateIncident(_ context.Context, tenantID string, inc *domain.Incident, appended []domain.TimelineEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.incidents[r.key(tenantID, inc.ID)]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != inc.Version {
		return domain.ErrConflict
	}
	cp := *inc
	cp.Version = inc.Version + 1
	cp.Timeline = append(append([]domain.TimelineEntry(nil), stored.Timeline...), appended...)
	r.incidents[r.key(tenantID, inc.ID)] = &cp
	inc.Version = cp.Version
	return nil
}

func (r *memRepo) GetIncident(_ context.Context, tenantID, id string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.incidents[r.key(tenantID, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *stored
	cp.Timeline = append([]domain.TimelineEntry(nil), stored.Timeline...)
	return &cp, nil
}

func (r *memRepo) GetIncidentByNumber(ctx context.Context, tenantID, number string) (*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inc := range r.incidents {
		if inc.TenantID == tenantID && inc.IncidentNumber == number {
			cp := *inc
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memRepo) ListIncidentsByStatus(_ context.Context, tenantID string, status domain.IncidentStatus) ([]*domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Incident
	for _, inc := range r.incidents {
		if inc.TenantID == tenantID && inc.Status == status {
			cp := *inc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRepo) SaveAnalysis(context.Context, string, *domain.AnalysisResult) error {
	return nil
}
func (r *memRepo) GetAnalysis(context.Context, string, string) (*domain.AnalysisResult, error) {
	return nil, domain.ErrNotFound
}
func (r *memRepo) SaveClassifierRule(context.Context, string, *domain.ClassifierRule) error {
	return nil
}
func (r *memRepo) GetClassifierRule(context.Context, string, string) (*domain.ClassifierRule, error) {
	return nil, domain.ErrNotFound
}
func (r *memRepo) ListClassifierRules(context.Context, string) ([]*domain.ClassifierRule, error) {
	return nil, nil
}
func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

// countingNotifier records critical alerts.
type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) CriticalIncident(context.Context, string, *domain.Incident) {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func newTestService() (*Service, *memRepo, *countingNotifier) {
	repo := newMemRepo()
	notifier := &countingNotifier{}
	return NewService(repo, notifier, nil), repo, notifier
}

const testTenant = "tenant-001"

func createTestIncident(t *testing.T, svc *Service, severity domain.Severity) *domain.Incident {
	t.Helper()
	inc, err := svc.Create(context.Background(), testTenant, &CreateRequest{
		Type:            domain.TypeBillingIrregularity,
		Severity:        severity,
		Description:     "suspicious billing pattern on provider 42",
		DetectionMethod: "automated_analysis",
		FinancialImpact: 15000,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return inc
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("NewIncident", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityHigh)

		if inc.Status != domain.StatusReported {
			t.Errorf("expected REPORTED, got %s", inc.Status)
		}
		if inc.Version != 1 {
			t.Errorf("expected version 1, got %d", inc.Version)
		}
		// 50 severity + 15 type + 15 financial band = 80
		if inc.RiskScore != 80 {
			t.Errorf("expected risk score 80, got %d", inc.RiskScore)
		}
		if len(inc.Timeline) != 1 || inc.Timeline[0].Action != domain.ActionReported || inc.Timeline[0].Seq != 1 {
			t.Errorf("expected timeline seeded with REPORTED at seq 1, got %v", inc.Timeline)
		}
		if inc.Timeline[0].Actor != "system" {
			t.Errorf("expected default actor 'system', got %s", inc.Timeline[0].Actor)
		}
	})

	t.Run("IncidentNumberFormat", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityLow)

		want := regexp.MustCompile(`^FWA-BI-\d{8}-\d{6}-[0-9a-f]{8}$`)
		if !want.MatchString(inc.IncidentNumber) {
			t.Errorf("unexpected incident number format: %s", inc.IncidentNumber)
		}
	})

	t.Run("CriticalAlertsOnCreate", func(t *testing.T) {
		svc, _, notifier := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityCritical)

		if notifier.count() != 1 {
			t.Errorf("expected one critical alert, got %d", notifier.count())
		}
		if !inc.CriticalAlerted {
			t.Error("expected CriticalAlerted flag set")
		}
	})

	t.Run("Validation", func(t *testing.T) {
		svc, _, _ := newTestService()

		cases := []struct {
			name string
			req  *CreateRequest
		}{
			{"UnknownType", &CreateRequest{Type: "NONSENSE", Severity: domain.SeverityLow, Description: "x"}},
			{"UnknownSeverity", &CreateRequest{Type: domain.TypeFraud, Severity: "EXTREME", Description: "x"}},
			{"NegativeImpact", &CreateRequest{Type: domain.TypeFraud, Severity: domain.SeverityLow, Description: "x", FinancialImpact: -1}},
			{"EmptyDescription", &CreateRequest{Type: domain.TypeFraud, Severity: domain.SeverityLow}},
		}

		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := svc.Create(ctx, testTenant, c.req)
				if !errors.Is(err, domain.ErrValidation) {
					t.Errorf("expected validation error, got %v", err)
				}
			})
		}
	})
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("FullPathToResolved", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityMedium)

		inc, err := svc.BeginInvestigation(ctx, testTenant, inc.ID, "inv-1")
		if err != nil {
			t.Fatalf("BeginInvestigation failed: %v", err)
		}
		if inc.Status != domain.StatusUnderInvestigation {
			t.Errorf("expected UNDER_INVESTIGATION, got %s", inc.Status)
		}
		if inc.InvestigationStarted == nil {
			t.Error("expected investigationStarted stamped")
		}

		inc, err = svc.Determine(ctx, testTenant, inc.ID, "inv-1", true, "records confirm")
		if err != nil {
			t.Fatalf("Determine failed: %v", err)
		}
		if inc.Status != domain.StatusSubstantiated {
			t.Errorf("expected SUBSTANTIATED, got %s", inc.Status)
		}

		inc, err = svc.Resolve(ctx, testTenant, inc.ID, "inv-1", "overpayment recovered")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if inc.Status != domain.StatusResolved {
			t.Errorf("expected RESOLVED, got %s", inc.Status)
		}
		if inc.InvestigationCompleted == nil {
			t.Error("expected investigationCompleted stamped")
		}

		// Seq is strictly monotonic across the walk.
		for i, e := range inc.Timeline {
			if e.Seq != i+1 {
				t.Errorf("timeline seq gap at index %d: got %d", i, e.Seq)
			}
		}
	})

	t.Run("Unsubstantiated", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityLow)

		_, err := svc.BeginInvestigation(ctx, testTenant, inc.ID, "inv-1")
		if err != nil {
			t.Fatalf("BeginInvestigation failed: %v", err)
		}

		got, err := svc.Determine(ctx, testTenant, inc.ID, "inv-1", false, "no supporting evidence")
		if err != nil {
			t.Fatalf("Determine failed: %v", err)
		}
		if got.Status != domain.StatusUnsubstantiated {
			t.Errorf("expected UNSUBSTANTIATED, got %s", got.Status)
		}

		// Terminal: resolving an unsubstantiated incident is rejected.
		_, err = svc.Resolve(ctx, testTenant, inc.ID, "inv-1", "")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition, got %v", err)
		}
	})

	t.Run("InvalidTransitionLeavesIncidentUntouched", func(t *testing.T) {
		svc, repo, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityMedium)

		// REPORTED -> RESOLVED is not in the table.
		_, err := svc.Resolve(ctx, testTenant, inc.ID, "inv-1", "skip ahead")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition, got %v", err)
		}

		stored, _ := repo.GetIncident(ctx, testTenant, inc.ID)
		if stored.Status != domain.StatusReported {
			t.Errorf("rejected transition must not mutate status, got %s", stored.Status)
		}
		if len(stored.Timeline) != 1 {
			t.Errorf("rejected transition must not append timeline entries, got %d", len(stored.Timeline))
		}
		if stored.Version != 1 {
			t.Errorf("rejected transition must not bump version, got %d", stored.Version)
		}
	})

	t.Run("ReferralSetsCaseNumberOnce", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityHigh)

		_, _ = svc.BeginInvestigation(ctx, testTenant, inc.ID, "inv-1")

		got, err := svc.ReferToOIG(ctx, testTenant, inc.ID, "inv-1", "OIG-2026-0042")
		if err != nil {
			t.Fatalf("ReferToOIG failed: %v", err)
		}
		if got.Status != domain.StatusReferredToOIG {
			t.Errorf("expected REFERRED_TO_OIG, got %s", got.Status)
		}
		if got.Referral.OIGCaseNumber != "OIG-2026-0042" {
			t.Errorf("expected case number recorded, got %q", got.Referral.OIGCaseNumber)
		}
		if !got.RegulatoryReported || got.RegulatoryReportedAt == nil {
			t.Error("expected regulatory reporting stamped")
		}
	})

	t.Run("ReferralRequiresCaseNumber", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityHigh)

		_, err := svc.ReferToCMS(ctx, testTenant, inc.ID, "inv-1", "")
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected validation error for empty case number, got %v", err)
		}
	})

	t.Run("CloseFromAnywhere", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityLow)

		got, err := svc.Close(ctx, testTenant, inc.ID, "admin", "opened in error")
		if err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if got.Status != domain.StatusClosed {
			t.Errorf("expected CLOSED, got %s", got.Status)
		}

		// CLOSED is final even for the override itself.
		_, err = svc.Close(ctx, testTenant, inc.ID, "admin", "again")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition for double close, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		svc, _, _ := newTestService()
		_, err := svc.BeginInvestigation(ctx, testTenant, "no-such-id", "inv-1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestEscalate(t *testing.T) {
	ctx := context.Background()

	t.Run("StepsOneLevel", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityLow)

		got, err := svc.Escalate(ctx, testTenant, inc.ID, "supervisor", "impact larger than reported")
		if err != nil {
			t.Fatalf("Escalate failed: %v", err)
		}
		if got.Severity != domain.SeverityMedium {
			t.Errorf("expected MEDIUM after escalation, got %s", got.Severity)
		}

		// Risk score follows the severity change: 25 + 15 + 15 = 55.
		if got.RiskScore != 55 {
			t.Errorf("expected recomputed risk score 55, got %d", got.RiskScore)
		}
	})

	t.Run("CriticalAlertFiresExactlyOnce", func(t *testing.T) {
		svc, _, notifier := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityHigh)

		got, err := svc.Escalate(ctx, testTenant, inc.ID, "supervisor", "regulator inquiry")
		if err != nil {
			t.Fatalf("Escalate failed: %v", err)
		}
		if got.Severity != domain.SeverityCritical {
			t.Fatalf("expected CRITICAL, got %s", got.Severity)
		}
		if notifier.count() != 1 {
			t.Errorf("expected one critical alert, got %d", notifier.count())
		}

		// At the ceiling: escalation is a no-op that still logs, and the
		// alert must not re-fire.
		got, err = svc.Escalate(ctx, testTenant, inc.ID, "supervisor", "again")
		if err != nil {
			t.Fatalf("ceiling escalate failed: %v", err)
		}
		if got.Severity != domain.SeverityCritical {
			t.Errorf("expected severity to stay CRITICAL, got %s", got.Severity)
		}
		if notifier.count() != 1 {
			t.Errorf("alert must fire exactly once, got %d", notifier.count())
		}

		last := got.Timeline[len(got.Timeline)-1]
		if last.Action != domain.ActionEscalated {
			t.Errorf("ceiling escalation must still log, got %s", last.Action)
		}
	})

	t.Run("RejectedOnTerminalIncident", func(t *testing.T) {
		svc, _, _ := newTestService()
		inc := createTestIncident(t, svc, domain.SeverityLow)

		_, _ = svc.Close(ctx, testTenant, inc.ID, "admin", "done")

		_, err := svc.Escalate(ctx, testTenant, inc.ID, "supervisor", "too late")
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition on terminal incident, got %v", err)
		}
	})
}

func TestConcurrentMutations(t *testing.T) {
	// Writes to the same incident are serialized by the per-incident
	// lock; every escalation lands and the timeline stays gap-free.
	svc, repo, _ := newTestService()
	inc := createTestIncident(t, svc, domain.SeverityLow)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Escalate(ctx, testTenant, inc.ID, "racer", "load test")
			if err != nil {
				t.Errorf("concurrent escalate failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, err := repo.GetIncident(ctx, testTenant, inc.ID)
	if err != nil {
		t.Fatalf("GetIncident failed: %v", err)
	}

	if len(stored.Timeline) != 9 { // REPORTED + 8 escalations
		t.Errorf("expected 9 timeline entries, got %d", len(stored.Timeline))
	}
	for i, e := range stored.Timeline {
		if e.Seq != i+1 {
			t.Errorf("timeline seq gap at index %d: got %d", i, e.Seq)
		}
	}
	if stored.Severity != domain.SeverityCritical {
		t.Errorf("expected CRITICAL after repeated escalation, got %s", stored.Severity)
	}
}

func TestNewIncidentNumber(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	n := NewIncidentNumber(domain.TypeFraud, at)
	if !regexp.MustCompile(`^FWA-FR-20260314-092653-[0-9a-f]{8}$`).MatchString(n) {
		t.Errorf("unexpected number format: %s", n)
	}

	if a, b := NewIncidentNumber(domain.TypeFraud, at), NewIncidentNumber(domain.TypeFraud, at); a == b {
		t.Error("numbers generated at the same instant must still differ")
	}
}
