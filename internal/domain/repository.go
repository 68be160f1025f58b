// Package domain defines the core types and collaborator interfaces
// for the FWA detection and incident lifecycle engine.
package domain

import (
	"context"
	"time"
)

// Repository defines the persistence contract for incidents, analyses,
// and classifier rules. All methods require tenantID for strict
// multi-tenancy isolation.
type Repository interface {
	// Incident operations. SaveIncident inserts a new incident with
	// its initial timeline entries. UpdateIncident applies field
	// updates plus timeline appends atomically, guarded by the
	// incident's Version (ErrConflict on a stale version). Timeline
	// rows are insert-only; GetIncident read-assembles them into the
	// aggregate ordered by sequence.
	SaveIncident(ctx context.Context, tenantID string, inc *Incident) error
	UpdateIncident(ctx context.Context, tenantID string, inc *Incident, appended []TimelineEntry) error
	GetIncident(ctx context.Context, tenantID string, incidentID string) (*Incident, error)
	GetIncidentByNumber(ctx context.Context, tenantID string, number string) (*Incident, error)
	ListIncidentsByStatus(ctx context.Context, tenantID string, status IncidentStatus) ([]*Incident, error)

	// Analysis results (audit record of every fusion pass).
	SaveAnalysis(ctx context.Context, tenantID string, result *AnalysisResult) error
	GetAnalysis(ctx context.Context, tenantID string, analysisID string) (*AnalysisResult, error)

	// Classifier rule configuration.
	SaveClassifierRule(ctx context.Context, tenantID string, rule *ClassifierRule) error
	GetClassifierRule(ctx context.Context, tenantID string, ruleID string) (*ClassifierRule, error)
	ListClassifierRules(ctx context.Context, tenantID string) ([]*ClassifierRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
