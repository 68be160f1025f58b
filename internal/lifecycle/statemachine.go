package lifecycle

import "github.com/bbarnes4318/compliance/internal/domain"

// transitions is the allowed status transition table. CLOSED is not
// listed per source state: it is reachable from every non-CLOSED
// status as an administrative override, handled in CanTransition.
var transitions = map[domain.IncidentStatus][]domain.IncidentStatus{
	domain.StatusReported: {
		domain.StatusUnderInvestigation,
	},
	domain.StatusUnderInvestigation: {
		domain.StatusSubstantiated,
		domain.StatusUnsubstantiated,
		domain.StatusReferredToOIG,
		domain.StatusReferredToCMS,
	},
	domain.StatusSubstantiated: {
		domain.StatusReferredToOIG,
		domain.StatusReferredToCMS,
		domain.StatusResolved,
	},
	domain.StatusReferredToOIG: {
		domain.StatusResolved,
	},
	domain.StatusReferredToCMS: {
		domain.StatusResolved,
	},
	// UNSUBSTANTIATED, RESOLVED, CLOSED are terminal apart from the
	// administrative CLOSED override.
}

// CanTransition reports whether moving from one status to another is
// permitted by the state table.
func CanTransition(from, to domain.IncidentStatus) bool {
	if to == domain.StatusClosed {
		return from != domain.StatusClosed
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
