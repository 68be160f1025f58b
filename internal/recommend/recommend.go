// Package recommend derives a ranked list of suggested actions from
// an analysis result. Generation is a pure function of the result.
package recommend

import "github.com/bbarnes4318/compliance/internal/domain"

// Generate returns recommendations ordered by priority (1 = most
// urgent). Risk level drives the base actions; incident type appends
// type-specific follow-ups.
func Generate(level domain.RiskLevel, incidentType domain.IncidentType) []domain.Recommendation {
	var recs []domain.Recommendation

	switch level {
	case domain.RiskCritical:
		recs = append(recs,
			domain.Recommendation{Action: "refer_to_regulator", Priority: 1, Rationale: "fused confidence at critical threshold; OIG/CMS referral criteria met"},
			domain.Recommendation{Action: "suspend_related_billing", Priority: 1, Rationale: "hold payment on implicated claims pending review"},
			domain.Recommendation{Action: "notify_compliance_officer", Priority: 1, Rationale: "critical severity requires immediate compliance notification"},
		)
	case domain.RiskHigh:
		recs = append(recs,
			domain.Recommendation{Action: "open_investigation", Priority: 1, Rationale: "assign an investigator within 24 hours"},
			domain.Recommendation{Action: "preserve_evidence", Priority: 2, Rationale: "place litigation hold on call recordings and records"},
		)
	case domain.RiskMedium:
		recs = append(recs,
			domain.Recommendation{Action: "open_investigation", Priority: 2, Rationale: "assign for routine investigation"},
			domain.Recommendation{Action: "request_supporting_records", Priority: 3, Rationale: "pull claims and enrollment history for the period"},
		)
	case domain.RiskLow:
		recs = append(recs,
			domain.Recommendation{Action: "monitor", Priority: 3, Rationale: "flag the account for elevated monitoring"},
		)
	default:
		return nil
	}

	switch incidentType {
	case domain.TypeBillingIrregularity:
		recs = append(recs, domain.Recommendation{
			Action:    "audit_claims",
			Priority:  2,
			Rationale: "sample and audit claims from the implicated provider",
		})
	case domain.TypeEnrollmentManipulation:
		recs = append(recs, domain.Recommendation{
			Action:    "verify_consent_records",
			Priority:  2,
			Rationale: "confirm signed consent and identity verification for affected enrollments",
		})
	case domain.TypeBenefitMisrepresentation:
		recs = append(recs, domain.Recommendation{
			Action:    "review_marketing_materials",
			Priority:  2,
			Rationale: "compare represented benefits against the filed plan",
		})
	}

	return recs
}
