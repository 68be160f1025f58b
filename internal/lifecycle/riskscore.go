package lifecycle

import "github.com/bbarnes4318/compliance/internal/domain"

// Risk score weights. The score is a pure function of severity, type,
// financial impact, affected beneficiary count, and compliance flags;
// it is recomputed on every mutation and never hand-set.

var severityWeights = map[domain.Severity]int{
	domain.SeverityLow:      10,
	domain.SeverityMedium:   25,
	domain.SeverityHigh:     50,
	domain.SeverityCritical: 75,
}

var typeWeights = map[domain.IncidentType]int{
	domain.TypeFraud:                    25,
	domain.TypeIdentityTheft:            20,
	domain.TypeBillingIrregularity:      15,
	domain.TypeEnrollmentManipulation:   15,
	domain.TypeBenefitMisrepresentation: 15,
	domain.TypeUnauthorizedDisclosure:   15,
	domain.TypeWaste:                    5,
}

const defaultTypeWeight = 10

// Compliance flag weights.
const (
	falseClaimsActWeight = 30
	antiKickbackWeight   = 25
	cmsViolationWeight   = 20
	hipaaViolationWeight = 15
)

// RiskScore evaluates the canonical scoring formula, clamped to
// [0,100].
func RiskScore(inc *domain.Incident) int {
	score := severityWeights[inc.Severity]

	if w, ok := typeWeights[inc.Type]; ok {
		score += w
	} else {
		score += defaultTypeWeight
	}

	score += financialBand(inc.FinancialImpact)
	score += affectedBand(len(inc.AffectedBeneficiaries))

	if inc.ComplianceImpact.FalseClaimsAct {
		score += falseClaimsActWeight
	}
	if inc.ComplianceImpact.AntiKickback {
		score += antiKickbackWeight
	}
	if inc.ComplianceImpact.CMSViolation {
		score += cmsViolationWeight
	}
	if inc.ComplianceImpact.HIPAAViolation {
		score += hipaaViolationWeight
	}

	if score > 100 {
		score = 100
	}
	return score
}

func financialBand(impact float64) int {
	switch {
	case impact > 100_000:
		return 25
	case impact > 10_000:
		return 15
	case impact > 1_000:
		return 5
	default:
		return 0
	}
}

func affectedBand(count int) int {
	switch {
	case count > 100:
		return 20
	case count > 10:
		return 10
	case count > 1:
		return 5
	default:
		return 0
	}
}
