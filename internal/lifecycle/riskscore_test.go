package lifecycle

import (
	"testing"

	"github.com/bbarnes4318/compliance/internal/domain"
)

func TestRiskScore(t *testing.T) {
	t.Run("SeverityBase", func(t *testing.T) {
		cases := []struct {
			severity domain.Severity
			want     int
		}{
			{domain.SeverityLow, 10},
			{domain.SeverityMedium, 25},
			{domain.SeverityHigh, 50},
			{domain.SeverityCritical, 75},
		}

		for _, c := range cases {
			inc := &domain.Incident{
				Type:     domain.TypeSuspiciousActivity, // default type weight 10
				Severity: c.severity,
			}
			if got := RiskScore(inc); got != c.want+10 {
				t.Errorf("severity %s: expected %d, got %d", c.severity, c.want+10, got)
			}
		}
	})

	t.Run("FraudWeighsHeaviest", func(t *testing.T) {
		fraud := &domain.Incident{Type: domain.TypeFraud, Severity: domain.SeverityLow}
		waste := &domain.Incident{Type: domain.TypeWaste, Severity: domain.SeverityLow}

		if RiskScore(fraud) != 35 { // 10 + 25
			t.Errorf("expected fraud score 35, got %d", RiskScore(fraud))
		}
		if RiskScore(waste) != 15 { // 10 + 5
			t.Errorf("expected waste score 15, got %d", RiskScore(waste))
		}
	})

	t.Run("FinancialBands", func(t *testing.T) {
		cases := []struct {
			impact float64
			band   int
		}{
			{0, 0},
			{1_000, 0},       // boundary is exclusive
			{1_000.01, 5},
			{10_000, 5},
			{10_000.01, 15},
			{100_000, 15},
			{100_000.01, 25},
		}

		for _, c := range cases {
			inc := &domain.Incident{
				Type:            domain.TypeSuspiciousActivity,
				Severity:        domain.SeverityLow,
				FinancialImpact: c.impact,
			}
			if got := RiskScore(inc); got != 20+c.band {
				t.Errorf("impact %.2f: expected %d, got %d", c.impact, 20+c.band, got)
			}
		}
	})

	t.Run("AffectedBands", func(t *testing.T) {
		mk := func(n int) *domain.Incident {
			inc := &domain.Incident{
				Type:     domain.TypeSuspiciousActivity,
				Severity: domain.SeverityLow,
			}
			for i := 0; i < n; i++ {
				inc.AffectedBeneficiaries = append(inc.AffectedBeneficiaries, "b")
			}
			return inc
		}

		cases := []struct {
			count int
			band  int
		}{
			{0, 0},
			{1, 0},
			{2, 5},
			{10, 5},
			{11, 10},
			{101, 20},
		}

		for _, c := range cases {
			if got := RiskScore(mk(c.count)); got != 20+c.band {
				t.Errorf("count %d: expected %d, got %d", c.count, 20+c.band, got)
			}
		}
	})

	t.Run("ComplianceFlags", func(t *testing.T) {
		inc := &domain.Incident{
			Type:     domain.TypeSuspiciousActivity,
			Severity: domain.SeverityLow,
			ComplianceImpact: domain.ComplianceImpact{
				FalseClaimsAct: true, // 30
				HIPAAViolation: true, // 15
			},
		}
		if got := RiskScore(inc); got != 65 { // 10 + 10 + 30 + 15
			t.Errorf("expected 65, got %d", got)
		}
	})

	t.Run("ClampedTo100", func(t *testing.T) {
		// 75 + 25 + 25 + 20 + 30 + 25 + 20 + 15 well over 100.
		inc := &domain.Incident{
			Type:            domain.TypeFraud,
			Severity:        domain.SeverityCritical,
			FinancialImpact: 500_000,
			ComplianceImpact: domain.ComplianceImpact{
				CMSViolation:   true,
				HIPAAViolation: true,
				FalseClaimsAct: true,
				AntiKickback:   true,
			},
		}
		for i := 0; i < 200; i++ {
			inc.AffectedBeneficiaries = append(inc.AffectedBeneficiaries, "b")
		}

		if got := RiskScore(inc); got != 100 {
			t.Errorf("expected clamp to 100, got %d", got)
		}
	})
}
