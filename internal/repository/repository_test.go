package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/bbarnes4318/compliance/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func testIncident(id string) *domain.Incident {
	now := time.Now().UTC().Truncate(time.Second)
	return &domain.Incident{
		ID:              id,
		TenantID:        "tenant-001",
		IncidentNumber:  "FWA-BI-20260301-120000-" + id,
		Type:            domain.TypeBillingIrregularity,
		Severity:        domain.SeverityHigh,
		Status:          domain.StatusReported,
		Description:     "suspicious billing pattern",
		DetectionMethod: "automated_analysis",
		Reporter:        &domain.Reporter{ID: "agent-1", Protected: true},
		AffectedBeneficiaries: []string{"ben-1", "ben-2"},
		FinancialImpact: 25000,
		EvidenceRefs:    []string{"call-1"},
		ComplianceImpact: domain.ComplianceImpact{
			FalseClaimsAct: true,
		},
		RiskScore: 80,
		Timeline: []domain.TimelineEntry{
			{Seq: 1, Action: domain.ActionReported, Actor: "system", Detail: "reported", Timestamp: now},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestIncidentCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SaveAndGet", func(t *testing.T) {
		inc := testIncident("inc-1")
		if err := repo.SaveIncident(ctx, tenantID, inc); err != nil {
			t.Fatalf("SaveIncident failed: %v", err)
		}

		got, err := repo.GetIncident(ctx, tenantID, "inc-1")
		if err != nil {
			t.Fatalf("GetIncident failed: %v", err)
		}

		if got.IncidentNumber != inc.IncidentNumber {
			t.Errorf("expected number %s, got %s", inc.IncidentNumber, got.IncidentNumber)
		}
		if got.Status != domain.StatusReported || got.Severity != domain.SeverityHigh {
			t.Errorf("unexpected status/severity: %s/%s", got.Status, got.Severity)
		}
		if got.Reporter == nil || got.Reporter.ID != "agent-1" || !got.Reporter.Protected {
			t.Errorf("reporter not round-tripped: %+v", got.Reporter)
		}
		if len(got.AffectedBeneficiaries) != 2 {
			t.Errorf("beneficiaries not round-tripped: %v", got.AffectedBeneficiaries)
		}
		if !got.ComplianceImpact.FalseClaimsAct {
			t.Error("compliance flags not round-tripped")
		}
		if got.Version != 1 {
			t.Errorf("expected version 1, got %d", got.Version)
		}
		if len(got.Timeline) != 1 || got.Timeline[0].Action != domain.ActionReported {
			t.Errorf("timeline not assembled: %v", got.Timeline)
		}
	})

	t.Run("GetByNumber", func(t *testing.T) {
		inc := testIncident("inc-2")
		_ = repo.SaveIncident(ctx, tenantID, inc)

		got, err := repo.GetIncidentByNumber(ctx, tenantID, inc.IncidentNumber)
		if err != nil {
			t.Fatalf("GetIncidentByNumber failed: %v", err)
		}
		if got.ID != "inc-2" {
			t.Errorf("expected inc-2, got %s", got.ID)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := repo.GetIncident(ctx, tenantID, "nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}

		_, err = repo.GetIncidentByNumber(ctx, tenantID, "FWA-XX-nope")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found by number, got %v", err)
		}
	})

	t.Run("NilReporter", func(t *testing.T) {
		inc := testIncident("inc-3")
		inc.IncidentNumber = "FWA-BI-20260301-120000-inc3"
		inc.Reporter = nil
		if err := repo.SaveIncident(ctx, tenantID, inc); err != nil {
			t.Fatalf("SaveIncident failed: %v", err)
		}

		got, err := repo.GetIncident(ctx, tenantID, "inc-3")
		if err != nil {
			t.Fatalf("GetIncident failed: %v", err)
		}
		if got.Reporter != nil {
			t.Errorf("expected nil reporter, got %+v", got.Reporter)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		inc := testIncident("inc-4")
		inc.IncidentNumber = "FWA-BI-20260301-120000-inc4"
		_ = repo.SaveIncident(ctx, tenantID, inc)

		_, err := repo.GetIncident(ctx, "tenant-002", "inc-4")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected cross-tenant read to miss, got %v", err)
		}
	})

	t.Run("EmptyTenantRejected", func(t *testing.T) {
		if err := repo.SaveIncident(ctx, "", testIncident("inc-x")); err == nil {
			t.Error("expected error for empty tenant")
		}
		if _, err := repo.GetIncident(ctx, "", "inc-1"); err == nil {
			t.Error("expected error for empty tenant on read")
		}
	})
}

func TestUpdateIncident(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("UpdateAppendsTimeline", func(t *testing.T) {
		inc := testIncident("upd-1")
		_ = repo.SaveIncident(ctx, tenantID, inc)

		inc.Status = domain.StatusUnderInvestigation
		now := time.Now().UTC().Truncate(time.Second)
		inc.InvestigationStarted = &now
		entry := domain.TimelineEntry{
			Seq: 2, Action: domain.ActionInvestigationStarted, Actor: "inv-1", Timestamp: now,
		}

		if err := repo.UpdateIncident(ctx, tenantID, inc, []domain.TimelineEntry{entry}); err != nil {
			t.Fatalf("UpdateIncident failed: %v", err)
		}
		if inc.Version != 2 {
			t.Errorf("expected version bumped to 2, got %d", inc.Version)
		}

		got, err := repo.GetIncident(ctx, tenantID, "upd-1")
		if err != nil {
			t.Fatalf("GetIncident failed: %v", err)
		}
		if got.Status != domain.StatusUnderInvestigation {
			t.Errorf("expected UNDER_INVESTIGATION, got %s", got.Status)
		}
		if got.InvestigationStarted == nil {
			t.Error("expected investigationStarted persisted")
		}
		if len(got.Timeline) != 2 || got.Timeline[1].Seq != 2 {
			t.Errorf("timeline append failed: %v", got.Timeline)
		}
		if got.Version != 2 {
			t.Errorf("expected stored version 2, got %d", got.Version)
		}
	})

	t.Run("StaleVersionConflicts", func(t *testing.T) {
		inc := testIncident("upd-2")
		inc.IncidentNumber = "FWA-BI-20260301-120000-upd2"
		_ = repo.SaveIncident(ctx, tenantID, inc)

		// First writer wins.
		first, _ := repo.GetIncident(ctx, tenantID, "upd-2")
		second, _ := repo.GetIncident(ctx, tenantID, "upd-2")

		first.Status = domain.StatusUnderInvestigation
		if err := repo.UpdateIncident(ctx, tenantID, first, nil); err != nil {
			t.Fatalf("first update failed: %v", err)
		}

		// Second writer holds the old version and must conflict.
		second.Status = domain.StatusClosed
		err := repo.UpdateIncident(ctx, tenantID, second, nil)
		if !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected version conflict, got %v", err)
		}

		// The losing write must not have landed.
		got, _ := repo.GetIncident(ctx, tenantID, "upd-2")
		if got.Status != domain.StatusUnderInvestigation {
			t.Errorf("conflicting write must not land, got %s", got.Status)
		}
	})

	t.Run("UpdateMissingIncident", func(t *testing.T) {
		inc := testIncident("ghost")
		err := repo.UpdateIncident(ctx, tenantID, inc, nil)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestListIncidentsByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	for i, id := range []string{"l-1", "l-2", "l-3"} {
		inc := testIncident(id)
		inc.IncidentNumber = "FWA-BI-20260301-12000" + id
		inc.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if i == 2 {
			inc.Status = domain.StatusClosed
		}
		if err := repo.SaveIncident(ctx, tenantID, inc); err != nil {
			t.Fatalf("SaveIncident failed: %v", err)
		}
	}

	reported, err := repo.ListIncidentsByStatus(ctx, tenantID, domain.StatusReported)
	if err != nil {
		t.Fatalf("ListIncidentsByStatus failed: %v", err)
	}
	if len(reported) != 2 {
		t.Fatalf("expected 2 reported incidents, got %d", len(reported))
	}

	// Newest first.
	if reported[0].ID != "l-2" || reported[1].ID != "l-1" {
		t.Errorf("expected newest-first order, got %s, %s", reported[0].ID, reported[1].ID)
	}

	// Listings omit timelines.
	if len(reported[0].Timeline) != 0 {
		t.Errorf("expected no timeline in list view, got %d entries", len(reported[0].Timeline))
	}

	closed, _ := repo.ListIncidentsByStatus(ctx, tenantID, domain.StatusClosed)
	if len(closed) != 1 || closed[0].ID != "l-3" {
		t.Errorf("expected one closed incident l-3, got %v", closed)
	}
}

func TestAnalysisRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	result := &domain.AnalysisResult{
		ID:                "an-1",
		TenantID:          tenantID,
		EvidenceRef:       "call-1",
		EvidenceKind:      domain.KindTranscript,
		OverallConfidence: 0.785,
		RiskLevel:         domain.RiskMedium,
		IncidentType:      domain.TypeBillingIrregularity,
		Findings: []domain.Finding{
			{Category: domain.CategoryBilling, Detector: "pattern", Indicator: "phrase_match", Confidence: 0.85},
		},
		Recommendations: []domain.Recommendation{
			{Action: "open_investigation", Priority: 2},
		},
		Sentiment:  -0.4,
		AnalyzedAt: time.Now().UTC().Truncate(time.Second),
		Metadata: domain.AnalysisMetadata{
			TraceID:       "trace-1",
			ExtractorsRun: 2,
			EngineVersion: "1.0.0",
		},
	}

	if err := repo.SaveAnalysis(ctx, tenantID, result); err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}

	got, err := repo.GetAnalysis(ctx, tenantID, "an-1")
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}

	if got.OverallConfidence != 0.785 || got.RiskLevel != domain.RiskMedium {
		t.Errorf("confidence/risk not round-tripped: %.3f/%s", got.OverallConfidence, got.RiskLevel)
	}
	if len(got.Findings) != 1 || got.Findings[0].Indicator != "phrase_match" {
		t.Errorf("findings not round-tripped: %v", got.Findings)
	}
	if len(got.Recommendations) != 1 {
		t.Errorf("recommendations not round-tripped: %v", got.Recommendations)
	}
	if got.Metadata.TraceID != "trace-1" {
		t.Errorf("metadata not round-tripped: %+v", got.Metadata)
	}

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetAnalysis(ctx, "tenant-002", "an-1")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected cross-tenant read to miss, got %v", err)
		}
	})
}

func TestClassifierRules(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	rule := &domain.ClassifierRule{
		ID:         "fraud-phrase",
		TenantID:   tenantID,
		Name:       "Fraud phrase",
		Version:    "1.0.0",
		Class:      domain.ClassFraud,
		Expression: `text.contains("not rendered")`,
		Confidence: 0.9,
		Enabled:    true,
	}

	t.Run("SaveAndGet", func(t *testing.T) {
		if err := repo.SaveClassifierRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveClassifierRule failed: %v", err)
		}

		got, err := repo.GetClassifierRule(ctx, tenantID, "fraud-phrase")
		if err != nil {
			t.Fatalf("GetClassifierRule failed: %v", err)
		}
		if got.Expression != rule.Expression || got.Confidence != 0.9 {
			t.Errorf("rule not round-tripped: %+v", got)
		}
	})

	t.Run("UpsertSameVersion", func(t *testing.T) {
		updated := *rule
		updated.Confidence = 0.95
		if err := repo.SaveClassifierRule(ctx, tenantID, &updated); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		got, _ := repo.GetClassifierRule(ctx, tenantID, "fraud-phrase")
		if got.Confidence != 0.95 {
			t.Errorf("expected upserted confidence 0.95, got %.2f", got.Confidence)
		}
	})

	t.Run("LatestVersionWins", func(t *testing.T) {
		v2 := *rule
		v2.Version = "2.0.0"
		v2.Confidence = 0.8
		if err := repo.SaveClassifierRule(ctx, tenantID, &v2); err != nil {
			t.Fatalf("save v2 failed: %v", err)
		}

		got, _ := repo.GetClassifierRule(ctx, tenantID, "fraud-phrase")
		if got.Version != "2.0.0" {
			t.Errorf("expected latest version, got %s", got.Version)
		}
	})

	t.Run("ListSkipsDisabled", func(t *testing.T) {
		disabled := &domain.ClassifierRule{
			ID: "off", TenantID: tenantID, Name: "Off", Version: "1.0.0",
			Class: domain.ClassWaste, Expression: "true", Enabled: false,
		}
		_ = repo.SaveClassifierRule(ctx, tenantID, disabled)

		rules, err := repo.ListClassifierRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListClassifierRules failed: %v", err)
		}
		for _, r := range rules {
			if r.ID == "off" {
				t.Error("disabled rule must not be listed")
			}
		}
	})
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
