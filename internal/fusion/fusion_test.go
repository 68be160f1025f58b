package fusion

import (
	"testing"

	"github.com/bbarnes4318/compliance/internal/domain"
)

func TestFuse(t *testing.T) {
	t.Run("NoFindings", func(t *testing.T) {
		out := Fuse(nil, 0)

		if out.OverallConfidence != 0 {
			t.Errorf("expected 0 confidence, got %.2f", out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskNone {
			t.Errorf("expected NONE, got %s", out.RiskLevel)
		}
	})

	t.Run("PatternOnly", func(t *testing.T) {
		// 0.5 * 0.85 = 0.425 -> LOW
		findings := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 0.85},
		}

		out := Fuse(findings, 0)

		if out.PatternConfidence != 0.85 {
			t.Errorf("expected pattern confidence 0.85, got %.2f", out.PatternConfidence)
		}
		if out.OverallConfidence != 0.425 {
			t.Errorf("expected overall 0.425, got %.4f", out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskLow {
			t.Errorf("expected LOW, got %s", out.RiskLevel)
		}
	})

	t.Run("PatternAndClassifier", func(t *testing.T) {
		// 0.5*0.85 + 0.4*0.9 = 0.785 -> MEDIUM
		findings := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 0.85},
			{Detector: domain.DetectorClassifier, Confidence: 0.9},
		}

		out := Fuse(findings, 0)

		if out.OverallConfidence != 0.785 {
			t.Errorf("expected overall 0.785, got %.4f", out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskMedium {
			t.Errorf("expected MEDIUM, got %s", out.RiskLevel)
		}
	})

	t.Run("MaxAggregationWithinChannels", func(t *testing.T) {
		// Multiple pattern findings: the strongest wins, they do not sum.
		findings := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 0.5},
			{Detector: domain.DetectorPattern, Confidence: 0.85},
			{Detector: domain.DetectorAnomaly, Confidence: 0.7},
		}

		out := Fuse(findings, 0)

		if out.PatternConfidence != 0.85 {
			t.Errorf("expected max pattern confidence 0.85, got %.2f", out.PatternConfidence)
		}
	})

	t.Run("SentimentBias", func(t *testing.T) {
		findings := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 0.85},
		}

		// At the floor exactly: no bias.
		out := Fuse(findings, -0.3)
		if out.SentimentBias != 0 {
			t.Errorf("expected no bias at -0.3 exactly, got %.2f", out.SentimentBias)
		}

		// Below the floor: +0.2 bias. 0.425 + 0.2 = 0.625 -> MEDIUM
		out = Fuse(findings, -0.5)
		if out.SentimentBias != SentimentBias {
			t.Errorf("expected bias %.2f, got %.2f", SentimentBias, out.SentimentBias)
		}
		if out.OverallConfidence != 0.625 {
			t.Errorf("expected overall 0.625, got %.4f", out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskMedium {
			t.Errorf("expected MEDIUM, got %s", out.RiskLevel)
		}
	})

	t.Run("SentimentAloneIsNotAFinding", func(t *testing.T) {
		out := Fuse(nil, -0.9)

		if out.OverallConfidence != SentimentBias {
			t.Errorf("expected bias-only confidence %.2f, got %.2f", SentimentBias, out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskNone {
			t.Errorf("bias alone must stay below the floor, got %s", out.RiskLevel)
		}
	})

	t.Run("ClampedToOne", func(t *testing.T) {
		findings := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 1.0},
			{Detector: domain.DetectorClassifier, Confidence: 1.0},
		}

		out := Fuse(findings, -0.9)

		if out.OverallConfidence != 1.0 {
			t.Errorf("expected confidence clamped to 1.0, got %.2f", out.OverallConfidence)
		}
		if out.RiskLevel != domain.RiskCritical {
			t.Errorf("expected CRITICAL, got %s", out.RiskLevel)
		}
	})

	t.Run("CommutativeOverFindingOrder", func(t *testing.T) {
		a := []domain.Finding{
			{Detector: domain.DetectorPattern, Confidence: 0.6},
			{Detector: domain.DetectorClassifier, Confidence: 0.8},
			{Detector: domain.DetectorAnomaly, Confidence: 0.7},
		}
		b := []domain.Finding{a[2], a[0], a[1]}

		outA := Fuse(a, 0)
		outB := Fuse(b, 0)

		if outA.OverallConfidence != outB.OverallConfidence {
			t.Errorf("fusion must be order independent: %.4f vs %.4f",
				outA.OverallConfidence, outB.OverallConfidence)
		}
	})
}

func TestRiskLevelFor(t *testing.T) {
	cases := []struct {
		confidence float64
		want       domain.RiskLevel
	}{
		{0.0, domain.RiskNone},
		{0.29, domain.RiskNone},
		{0.3, domain.RiskLow},
		{0.59, domain.RiskLow},
		{0.6, domain.RiskMedium},
		{0.79, domain.RiskMedium},
		{0.8, domain.RiskHigh},
		{0.89, domain.RiskHigh},
		{0.9, domain.RiskCritical},
		{1.0, domain.RiskCritical},
	}

	for _, c := range cases {
		if got := RiskLevelFor(c.confidence); got != c.want {
			t.Errorf("RiskLevelFor(%.2f) = %s, want %s", c.confidence, got, c.want)
		}
	}
}

func TestInferType(t *testing.T) {
	t.Run("BillingTakesPrecedence", func(t *testing.T) {
		findings := []domain.Finding{
			{Category: domain.CategoryEnrollment},
			{Category: domain.CategoryBilling},
			{Category: domain.CategoryBenefits},
		}
		if got := InferType(findings); got != domain.TypeBillingIrregularity {
			t.Errorf("expected BILLING_IRREGULARITY, got %s", got)
		}
	})

	t.Run("EnrollmentBeforeBenefits", func(t *testing.T) {
		findings := []domain.Finding{
			{Category: domain.CategoryBenefits},
			{Category: domain.CategoryEnrollment},
		}
		if got := InferType(findings); got != domain.TypeEnrollmentManipulation {
			t.Errorf("expected ENROLLMENT_MANIPULATION, got %s", got)
		}
	})

	t.Run("FallbackSuspiciousActivity", func(t *testing.T) {
		findings := []domain.Finding{
			{Category: domain.CategoryGeneral},
		}
		if got := InferType(findings); got != domain.TypeSuspiciousActivity {
			t.Errorf("expected SUSPICIOUS_ACTIVITY, got %s", got)
		}
	})
}
