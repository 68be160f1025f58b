// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bbarnes4318/compliance/internal/domain"
)

var ErrInvalidInput = errors.New("invalid input")

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveIncident inserts a new incident and its initial timeline
// entries in one transaction.
func (r *SQLRepository) SaveIncident(ctx context.Context, tenantID string, inc *domain.Incident) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	reporter := marshalReporter(inc.Reporter)
	beneficiaries, _ := json.Marshal(inc.AffectedBeneficiaries)
	evidenceRefs, _ := json.Marshal(inc.EvidenceRefs)
	compliance, _ := json.Marshal(inc.ComplianceImpact)
	referral, _ := json.Marshal(inc.Referral)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO incidents (
			id, tenant_id, incident_number, type, severity, status,
			description, detection_method, reporter, affected_beneficiaries,
			financial_impact, evidence_refs, compliance_impact, risk_score,
			referral, regulatory_reported, regulatory_reported_at,
			investigation_started, investigation_completed,
			critical_alerted, analysis_id, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, r.rebind(query),
		inc.ID, tenantID, inc.IncidentNumber, inc.Type, inc.Severity, inc.Status,
		inc.Description, inc.DetectionMethod, reporter, string(beneficiaries),
		inc.FinancialImpact, string(evidenceRefs), string(compliance), inc.RiskScore,
		string(referral), boolToInt(inc.RegulatoryReported), nullTime(inc.RegulatoryReportedAt),
		nullTime(inc.InvestigationStarted), nullTime(inc.InvestigationCompleted),
		boolToInt(inc.CriticalAlerted), inc.AnalysisID, inc.Version,
		inc.CreatedAt, inc.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err := r.insertTimeline(ctx, tx, tenantID, inc.ID, inc.Timeline); err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateIncident applies field updates plus timeline appends
// atomically. The row update is guarded by the incident's current
// version; a stale version returns domain.ErrConflict and nothing is
// written.
func (r *SQLRepository) UpdateIncident(ctx context.Context, tenantID string, inc *domain.Incident, appended []domain.TimelineEntry) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	reporter := marshalReporter(inc.Reporter)
	beneficiaries, _ := json.Marshal(inc.AffectedBeneficiaries)
	evidenceRefs, _ := json.Marshal(inc.EvidenceRefs)
	compliance, _ := json.Marshal(inc.ComplianceImpact)
	referral, _ := json.Marshal(inc.Referral)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		UPDATE incidents SET
			type = ?, severity = ?, status = ?, description = ?,
			detection_method = ?, reporter = ?, affected_beneficiaries = ?,
			financial_impact = ?, evidence_refs = ?, compliance_impact = ?,
			risk_score = ?, referral = ?, regulatory_reported = ?,
			regulatory_reported_at = ?, investigation_started = ?,
			investigation_completed = ?, critical_alerted = ?,
			version = version + 1, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND version = ?
	`

	result, err := tx.ExecContext(ctx, r.rebind(query),
		inc.Type, inc.Severity, inc.Status, inc.Description,
		inc.DetectionMethod, reporter, string(beneficiaries),
		inc.FinancialImpact, string(evidenceRefs), string(compliance),
		inc.RiskScore, string(referral), boolToInt(inc.RegulatoryReported),
		nullTime(inc.RegulatoryReportedAt), nullTime(inc.InvestigationStarted),
		nullTime(inc.InvestigationCompleted), boolToInt(inc.CriticalAlerted),
		inc.UpdatedAt,
		tenantID, inc.ID, inc.Version,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the incident does not exist or another writer got
		// there first.
		var exists int
		check := r.rebind(`SELECT COUNT(*) FROM incidents WHERE tenant_id = ? AND id = ?`)
		if err := tx.QueryRowContext(ctx, check, tenantID, inc.ID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: incident %s version %d is stale", domain.ErrConflict, inc.ID, inc.Version)
	}

	if err := r.insertTimeline(ctx, tx, tenantID, inc.ID, appended); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	inc.Version++
	return nil
}

func (r *SQLRepository) insertTimeline(ctx context.Context, tx *sql.Tx, tenantID, incidentID string, entries []domain.TimelineEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := r.rebind(`
		INSERT INTO incident_timeline (incident_id, tenant_id, seq, action, actor, detail, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			incidentID, tenantID, e.Seq, e.Action, e.Actor, e.Detail, e.Timestamp,
		); err != nil {
			return err
		}
	}
	return nil
}

const incidentColumns = `
	id, tenant_id, incident_number, type, severity, status,
	description, detection_method, reporter, affected_beneficiaries,
	financial_impact, evidence_refs, compliance_impact, risk_score,
	referral, regulatory_reported, regulatory_reported_at,
	investigation_started, investigation_completed,
	critical_alerted, analysis_id, version, created_at, updated_at
`

// GetIncident retrieves an incident with its timeline assembled in
// sequence order.
func (r *SQLRepository) GetIncident(ctx context.Context, tenantID string, incidentID string) (*domain.Incident, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE tenant_id = ? AND id = ?`
	inc, err := r.scanIncident(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, incidentID))
	if err != nil {
		return nil, err
	}

	inc.Timeline, err = r.loadTimeline(ctx, tenantID, inc.ID)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// GetIncidentByNumber retrieves an incident by its human-traceable
// number.
func (r *SQLRepository) GetIncidentByNumber(ctx context.Context, tenantID string, number string) (*domain.Incident, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE tenant_id = ? AND incident_number = ?`
	inc, err := r.scanIncident(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, number))
	if err != nil {
		return nil, err
	}

	inc.Timeline, err = r.loadTimeline(ctx, tenantID, inc.ID)
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// ListIncidentsByStatus retrieves incidents in a status, newest
// first, without timelines.
func (r *SQLRepository) ListIncidentsByStatus(ctx context.Context, tenantID string, status domain.IncidentStatus) ([]*domain.Incident, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE tenant_id = ? AND status = ? ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incidents []*domain.Incident
	for rows.Next() {
		inc, err := r.scanIncident(rows)
		if err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}

	return incidents, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanIncident(row rowScanner) (*domain.Incident, error) {
	var inc domain.Incident
	var reporter, beneficiaries, evidenceRefs, compliance, referral sql.NullString
	var regReported, criticalAlerted int
	var regReportedAt, invStarted, invCompleted sql.NullTime

	err := row.Scan(
		&inc.ID, &inc.TenantID, &inc.IncidentNumber, &inc.Type, &inc.Severity, &inc.Status,
		&inc.Description, &inc.DetectionMethod, &reporter, &beneficiaries,
		&inc.FinancialImpact, &evidenceRefs, &compliance, &inc.RiskScore,
		&referral, &regReported, &regReportedAt,
		&invStarted, &invCompleted,
		&criticalAlerted, &inc.AnalysisID, &inc.Version, &inc.CreatedAt, &inc.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if reporter.Valid && reporter.String != "" {
		var rep domain.Reporter
		if err := json.Unmarshal([]byte(reporter.String), &rep); err == nil {
			inc.Reporter = &rep
		}
	}
	if beneficiaries.Valid && beneficiaries.String != "" {
		json.Unmarshal([]byte(beneficiaries.String), &inc.AffectedBeneficiaries)
	}
	if evidenceRefs.Valid && evidenceRefs.String != "" {
		json.Unmarshal([]byte(evidenceRefs.String), &inc.EvidenceRefs)
	}
	if compliance.Valid && compliance.String != "" {
		json.Unmarshal([]byte(compliance.String), &inc.ComplianceImpact)
	}
	if referral.Valid && referral.String != "" {
		json.Unmarshal([]byte(referral.String), &inc.Referral)
	}

	inc.RegulatoryReported = regReported == 1
	inc.CriticalAlerted = criticalAlerted == 1
	inc.RegulatoryReportedAt = timePtr(regReportedAt)
	inc.InvestigationStarted = timePtr(invStarted)
	inc.InvestigationCompleted = timePtr(invCompleted)

	return &inc, nil
}

func (r *SQLRepository) loadTimeline(ctx context.Context, tenantID, incidentID string) ([]domain.TimelineEntry, error) {
	query := `
		SELECT seq, action, actor, detail, timestamp
		FROM incident_timeline
		WHERE tenant_id = ? AND incident_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, incidentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.TimelineEntry
	for rows.Next() {
		var e domain.TimelineEntry
		var detail sql.NullString
		if err := rows.Scan(&e.Seq, &e.Action, &e.Actor, &detail, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// SaveAnalysis stores an analysis result with tenant isolation.
func (r *SQLRepository) SaveAnalysis(ctx context.Context, tenantID string, result *domain.AnalysisResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	findings, _ := json.Marshal(result.Findings)
	recommendations, _ := json.Marshal(result.Recommendations)
	sourceMetadata, _ := json.Marshal(result.SourceMetadata)
	metadata, _ := json.Marshal(result.Metadata)

	query := `
		INSERT INTO analyses (
			id, tenant_id, evidence_ref, evidence_kind, overall_confidence,
			risk_level, incident_type, findings, recommendations, sentiment,
			analyzed_at, source_metadata, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.EvidenceRef, result.EvidenceKind, result.OverallConfidence,
		result.RiskLevel, result.IncidentType, string(findings), string(recommendations), result.Sentiment,
		result.AnalyzedAt, string(sourceMetadata), string(metadata),
	)
	return err
}

// GetAnalysis retrieves an analysis result by ID with tenant isolation.
func (r *SQLRepository) GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*domain.AnalysisResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, evidence_ref, evidence_kind, overall_confidence,
			   risk_level, incident_type, findings, recommendations, sentiment,
			   analyzed_at, source_metadata, metadata
		FROM analyses
		WHERE tenant_id = ? AND id = ?
	`

	var result domain.AnalysisResult
	var findings, recommendations, sourceMetadata, metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, analysisID).Scan(
		&result.ID, &result.TenantID, &result.EvidenceRef, &result.EvidenceKind, &result.OverallConfidence,
		&result.RiskLevel, &result.IncidentType, &findings, &recommendations, &result.Sentiment,
		&result.AnalyzedAt, &sourceMetadata, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(findings), &result.Findings)
	json.Unmarshal([]byte(recommendations), &result.Recommendations)
	json.Unmarshal([]byte(sourceMetadata), &result.SourceMetadata)
	json.Unmarshal([]byte(metadata), &result.Metadata)

	return &result, nil
}

// SaveClassifierRule stores a classifier rule with tenant isolation.
func (r *SQLRepository) SaveClassifierRule(ctx context.Context, tenantID string, rule *domain.ClassifierRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO classifier_rules (
			id, tenant_id, name, description, version, class, expression, confidence, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			class = excluded.class,
			expression = excluded.expression,
			confidence = excluded.confidence,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Class, rule.Expression, rule.Confidence, boolToInt(rule.Enabled),
		now, now,
	)
	return err
}

// GetClassifierRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetClassifierRule(ctx context.Context, tenantID string, ruleID string) (*domain.ClassifierRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, class, expression, confidence, enabled
		FROM classifier_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	var rule domain.ClassifierRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID).Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Class, &rule.Expression, &rule.Confidence, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListClassifierRules retrieves all enabled rules for a tenant.
func (r *SQLRepository) ListClassifierRules(ctx context.Context, tenantID string) ([]*domain.ClassifierRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, class, expression, confidence, enabled
		FROM classifier_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.ClassifierRule
	for rows.Next() {
		var rule domain.ClassifierRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Class, &rule.Expression, &rule.Confidence, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

func marshalReporter(rep *domain.Reporter) any {
	if rep == nil {
		return nil
	}
	data, _ := json.Marshal(rep)
	return string(data)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
