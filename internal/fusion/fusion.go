// Package fusion combines findings from all extractors active for one
// analysis pass into a single confidence score and discrete risk
// level. Fusion is a pure function of the finding set: commutative
// with respect to extractor completion order.
package fusion

import "github.com/bbarnes4318/compliance/internal/domain"

// Fusion weights and thresholds.
const (
	PatternWeight    = 0.5
	ClassifierWeight = 0.4

	// SentimentBias is added when transcript sentiment is strongly
	// negative (below SentimentFloor), modeling hostility or deception
	// cues. It never stands alone as a finding.
	SentimentBias  = 0.2
	SentimentFloor = -0.3
)

// Risk level thresholds (inclusive lower bounds). Below the LOW floor
// no report is generated.
const (
	ThresholdCritical = 0.9
	ThresholdHigh     = 0.8
	ThresholdMedium   = 0.6
	ThresholdLow      = 0.3
)

// Outcome is the fused result of one pass.
type Outcome struct {
	PatternConfidence        float64
	ClassificationConfidence float64
	SentimentBias            float64

	OverallConfidence float64
	RiskLevel         domain.RiskLevel
	IncidentType      domain.IncidentType
}

// Fuse combines the finding set and the transcript sentiment score.
func Fuse(findings []domain.Finding, sentiment float64) *Outcome {
	out := &Outcome{}

	for _, f := range findings {
		if f.Detector == domain.DetectorClassifier {
			if f.Confidence > out.ClassificationConfidence {
				out.ClassificationConfidence = f.Confidence
			}
			continue
		}
		if f.Confidence > out.PatternConfidence {
			out.PatternConfidence = f.Confidence
		}
	}

	if sentiment < SentimentFloor {
		out.SentimentBias = SentimentBias
	}

	overall := PatternWeight*out.PatternConfidence +
		ClassifierWeight*out.ClassificationConfidence +
		out.SentimentBias
	if overall > 1.0 {
		overall = 1.0
	}
	out.OverallConfidence = overall

	out.RiskLevel = RiskLevelFor(overall)
	out.IncidentType = InferType(findings)

	return out
}

// RiskLevelFor maps fused confidence onto the discrete risk scale.
func RiskLevelFor(confidence float64) domain.RiskLevel {
	switch {
	case confidence >= ThresholdCritical:
		return domain.RiskCritical
	case confidence >= ThresholdHigh:
		return domain.RiskHigh
	case confidence >= ThresholdMedium:
		return domain.RiskMedium
	case confidence >= ThresholdLow:
		return domain.RiskLow
	default:
		return domain.RiskNone
	}
}

// InferType derives the incident type from finding categories by
// precedence: billing, then enrollment, then benefits, falling back
// to suspicious activity.
func InferType(findings []domain.Finding) domain.IncidentType {
	var hasBilling, hasEnrollment, hasBenefits bool
	for _, f := range findings {
		switch f.Category {
		case domain.CategoryBilling:
			hasBilling = true
		case domain.CategoryEnrollment:
			hasEnrollment = true
		case domain.CategoryBenefits:
			hasBenefits = true
		}
	}

	switch {
	case hasBilling:
		return domain.TypeBillingIrregularity
	case hasEnrollment:
		return domain.TypeEnrollmentManipulation
	case hasBenefits:
		return domain.TypeBenefitMisrepresentation
	default:
		return domain.TypeSuspiciousActivity
	}
}
