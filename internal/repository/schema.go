package repository

// Schema definitions for the FWA database.
// Compatible with both SQLite and PostgreSQL.

const schemaIncidents = `
CREATE TABLE IF NOT EXISTS incidents (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    incident_number TEXT NOT NULL,
    type TEXT NOT NULL,
    severity TEXT NOT NULL,
    status TEXT NOT NULL,
    description TEXT NOT NULL,
    detection_method TEXT,
    reporter TEXT,
    affected_beneficiaries TEXT,
    financial_impact REAL NOT NULL DEFAULT 0,
    evidence_refs TEXT,
    compliance_impact TEXT,
    risk_score INTEGER NOT NULL DEFAULT 0,
    referral TEXT,
    regulatory_reported INTEGER NOT NULL DEFAULT 0,
    regulatory_reported_at TIMESTAMP,
    investigation_started TIMESTAMP,
    investigation_completed TIMESTAMP,
    critical_alerted INTEGER NOT NULL DEFAULT 0,
    analysis_id TEXT,
    version INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_number ON incidents(tenant_id, incident_number);
CREATE INDEX IF NOT EXISTS idx_incidents_tenant ON incidents(tenant_id);
CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(tenant_id, status);
CREATE INDEX IF NOT EXISTS idx_incidents_severity ON incidents(tenant_id, severity);
CREATE INDEX IF NOT EXISTS idx_incidents_created ON incidents(tenant_id, created_at);
`

// schemaIncidentTimeline is the append-only audit trail: rows are
// inserted, never updated or deleted. Sequence numbers are contiguous
// per incident.
const schemaIncidentTimeline = `
CREATE TABLE IF NOT EXISTS incident_timeline (
    incident_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    action TEXT NOT NULL,
    actor TEXT NOT NULL,
    detail TEXT,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (incident_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_timeline_tenant ON incident_timeline(tenant_id, incident_id);
`

const schemaAnalyses = `
CREATE TABLE IF NOT EXISTS analyses (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    evidence_ref TEXT NOT NULL,
    evidence_kind TEXT NOT NULL,
    overall_confidence REAL NOT NULL,
    risk_level TEXT NOT NULL,
    incident_type TEXT NOT NULL,
    findings TEXT NOT NULL,
    recommendations TEXT,
    sentiment REAL NOT NULL DEFAULT 0,
    analyzed_at TIMESTAMP NOT NULL,
    source_metadata TEXT,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analyses_tenant ON analyses(tenant_id);
CREATE INDEX IF NOT EXISTS idx_analyses_evidence ON analyses(tenant_id, evidence_ref);
CREATE INDEX IF NOT EXISTS idx_analyses_risk ON analyses(tenant_id, risk_level);
`

const schemaClassifierRules = `
CREATE TABLE IF NOT EXISTS classifier_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    class TEXT NOT NULL,
    expression TEXT NOT NULL,
    confidence REAL NOT NULL DEFAULT 0.5,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_classifier_rules_tenant ON classifier_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_classifier_rules_enabled ON classifier_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaIncidents,
		schemaIncidentTimeline,
		schemaAnalyses,
		schemaClassifierRules,
	}
}
