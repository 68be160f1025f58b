package domain

import "time"

// IncidentType is the closed enumeration of incident classifications.
type IncidentType string

const (
	TypeFraud                     IncidentType = "FRAUD"
	TypeWaste                     IncidentType = "WASTE"
	TypeAbuse                     IncidentType = "ABUSE"
	TypeComplianceViolation       IncidentType = "COMPLIANCE_VIOLATION"
	TypeSuspiciousActivity        IncidentType = "SUSPICIOUS_ACTIVITY"
	TypeIdentityTheft             IncidentType = "IDENTITY_THEFT"
	TypeBillingIrregularity       IncidentType = "BILLING_IRREGULARITY"
	TypeEnrollmentManipulation    IncidentType = "ENROLLMENT_MANIPULATION"
	TypeBenefitMisrepresentation  IncidentType = "BENEFIT_MISREPRESENTATION"
	TypeUnauthorizedDisclosure    IncidentType = "UNAUTHORIZED_DISCLOSURE"
)

// Severity of an incident. Ordered: LOW < MEDIUM < HIGH < CRITICAL.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityOrder backs escalation stepping and comparisons.
var severityOrder = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Next returns the severity one level up. CRITICAL is a ceiling.
func (s Severity) Next() Severity {
	switch s {
	case SeverityLow:
		return SeverityMedium
	case SeverityMedium:
		return SeverityHigh
	case SeverityHigh:
		return SeverityCritical
	default:
		return SeverityCritical
	}
}

// Less reports whether s is strictly below other.
func (s Severity) Less(other Severity) bool {
	return severityOrder[s] < severityOrder[other]
}

// SeverityForRisk maps a fused risk level 1:1 onto incident severity.
// RiskNone has no severity; callers must not report below the floor.
func SeverityForRisk(level RiskLevel) Severity {
	switch level {
	case RiskCritical:
		return SeverityCritical
	case RiskHigh:
		return SeverityHigh
	case RiskMedium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	StatusReported           IncidentStatus = "REPORTED"
	StatusUnderInvestigation IncidentStatus = "UNDER_INVESTIGATION"
	StatusSubstantiated      IncidentStatus = "SUBSTANTIATED"
	StatusUnsubstantiated    IncidentStatus = "UNSUBSTANTIATED"
	StatusReferredToOIG      IncidentStatus = "REFERRED_TO_OIG"
	StatusReferredToCMS      IncidentStatus = "REFERRED_TO_CMS"
	StatusResolved           IncidentStatus = "RESOLVED"
	StatusClosed             IncidentStatus = "CLOSED"
)

// Terminal reports whether no further transitions are permitted,
// apart from the administrative CLOSED override.
func (s IncidentStatus) Terminal() bool {
	return s == StatusResolved || s == StatusClosed || s == StatusUnsubstantiated
}

// Reporter identifies who reported an incident. Nil reporter means a
// system-generated or anonymous report.
type Reporter struct {
	ID string `json:"id"`

	// Protected marks whistleblower reports; identity is withheld from
	// list views and exports.
	Protected bool `json:"protected"`
}

// ComplianceImpact flags the regulatory frameworks an incident touches.
// Each flag contributes a fixed amount to the risk score.
type ComplianceImpact struct {
	CMSViolation    bool `json:"cmsViolation"`
	HIPAAViolation  bool `json:"hipaaViolation"`
	FalseClaimsAct  bool `json:"falseClaimsAct"`
	AntiKickback    bool `json:"antiKickback"`
}

// RegulatoryReferral records case numbers assigned by government
// bodies. Once set, a case number is never cleared.
type RegulatoryReferral struct {
	OIGCaseNumber string `json:"oigCaseNumber,omitempty"`
	CMSCaseNumber string `json:"cmsCaseNumber,omitempty"`
}

// Empty reports whether the incident has been referred anywhere.
func (r RegulatoryReferral) Empty() bool {
	return r.OIGCaseNumber == "" && r.CMSCaseNumber == ""
}

// TimelineEntry is one append-only audit record. Entries are never
// edited or removed after insertion.
type TimelineEntry struct {
	Seq       int       `json:"seq"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Timeline action names.
const (
	ActionReported             = "REPORTED"
	ActionInvestigationStarted = "INVESTIGATION_STARTED"
	ActionEscalated            = "ESCALATED"
	ActionStatusChanged        = "STATUS_CHANGED"
	ActionReferredToOIG        = "REFERRED_TO_OIG"
	ActionReferredToCMS        = "REFERRED_TO_CMS"
	ActionResolved             = "RESOLVED"
	ActionClosed               = "CLOSED"
)

// Incident is the durable record of a suspected fraud, waste, or
// abuse event. It is never hard-deleted; closure is a terminal status,
// not removal. Mutation happens only through the lifecycle service so
// the timeline and risk score stay consistent.
type Incident struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	IncidentNumber string `json:"incidentNumber"`

	Type     IncidentType   `json:"type"`
	Severity Severity       `json:"severity"`
	Status   IncidentStatus `json:"status"`

	Description     string    `json:"description"`
	DetectionMethod string    `json:"detectionMethod"`
	Reporter        *Reporter `json:"reporter,omitempty"`

	AffectedBeneficiaries []string `json:"affectedBeneficiaries,omitempty"`
	FinancialImpact       float64  `json:"financialImpact"`
	EvidenceRefs          []string `json:"evidenceRefs,omitempty"`

	ComplianceImpact ComplianceImpact `json:"complianceImpact"`

	// RiskScore is derived from severity, type, financial impact,
	// affected count, and compliance flags. Recomputed on every
	// mutation, never hand-set.
	RiskScore int `json:"riskScore"`

	Timeline []TimelineEntry `json:"timeline,omitempty"`

	Referral             RegulatoryReferral `json:"referral"`
	RegulatoryReported   bool               `json:"regulatoryReported"`
	RegulatoryReportedAt *time.Time         `json:"regulatoryReportedAt,omitempty"`

	InvestigationStarted   *time.Time `json:"investigationStarted,omitempty"`
	InvestigationCompleted *time.Time `json:"investigationCompleted,omitempty"`

	// CriticalAlerted records that the compliance-officer alert for
	// entering CRITICAL severity has fired. Guards exactly-once
	// delivery across restarts.
	CriticalAlerted bool `json:"criticalAlerted"`

	// AnalysisID links system-generated incidents to the analysis that
	// produced them.
	AnalysisID string `json:"analysisId,omitempty"`

	// Version backs optimistic concurrency on the persisted row.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
