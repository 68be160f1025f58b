// Package notify delivers compliance-officer alerts over the event
// bus. Delivery is best-effort: a failed publish is logged and never
// blocks the incident transition that raised it.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/bbarnes4318/compliance/internal/domain"
)

// EscalationAlert is the payload published on the escalation topic.
type EscalationAlert struct {
	IncidentID     string          `json:"incidentId"`
	IncidentNumber string          `json:"incidentNumber"`
	Severity       domain.Severity `json:"severity"`
	RiskScore      int             `json:"riskScore"`
	Summary        string          `json:"summary"`
}

// BusNotifier publishes critical-incident alerts to the event bus.
type BusNotifier struct {
	bus domain.EventBus
}

// NewBusNotifier wires alerts to the given bus. A nil bus yields a
// notifier that only logs.
func NewBusNotifier(bus domain.EventBus) *BusNotifier {
	return &BusNotifier{bus: bus}
}

// CriticalIncident announces a newly critical incident to compliance
// officers.
func (n *BusNotifier) CriticalIncident(ctx context.Context, tenantID string, inc *domain.Incident) {
	slog.Warn("critical incident alert",
		"tenant_id", tenantID,
		"incident_id", inc.ID,
		"incident_number", inc.IncidentNumber,
		"type", inc.Type,
		"risk_score", inc.RiskScore,
	)

	if n.bus == nil {
		return
	}

	alert := EscalationAlert{
		IncidentID:     inc.ID,
		IncidentNumber: inc.IncidentNumber,
		Severity:       inc.Severity,
		RiskScore:      inc.RiskScore,
		Summary:        inc.Description,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		slog.Error("failed to marshal escalation alert", "incident_id", inc.ID, "error", err)
		return
	}

	if err := n.bus.Publish(ctx, tenantID, domain.TopicEscalationAlert, payload); err != nil {
		slog.Error("failed to publish escalation alert",
			"tenant_id", tenantID,
			"incident_id", inc.ID,
			"error", err,
		)
	}
}
