// Package engine orchestrates one analysis pass: validate evidence,
// fan out to the extractors, fuse the signals, generate
// recommendations, and optionally open an incident from the result.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/extract"
	"github.com/bbarnes4318/compliance/internal/fusion"
	"github.com/bbarnes4318/compliance/internal/lifecycle"
	"github.com/bbarnes4318/compliance/internal/recommend"
)

const engineVersion = "1.0.0"

// Service runs the detection pipeline.
type Service struct {
	runner    *extract.Runner
	sentiment *extract.Sentiment
	lifecycle *lifecycle.Service
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	cacheTTL  time.Duration
}

// NewService assembles the pipeline. Cache and bus are optional; a
// nil cache disables memoization and a nil bus disables completion
// events.
func NewService(cfg domain.EngineConfig, runner *extract.Runner, lc *lifecycle.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus) *Service {
	ttl := cfg.AnalysisCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Service{
		runner:    runner,
		sentiment: extract.NewSentiment(),
		lifecycle: lc,
		repo:      repo,
		cache:     cache,
		bus:       bus,
		cacheTTL:  ttl,
	}
}

// analysisEvent is the payload published on analysis completion.
type analysisEvent struct {
	AnalysisID        string           `json:"analysisId"`
	EvidenceRef       string           `json:"evidenceRef"`
	RiskLevel         domain.RiskLevel `json:"riskLevel"`
	OverallConfidence float64          `json:"overallConfidence"`
}

// Analyze runs one full pass over the evidence. Results are memoized
// by evidence identity; cache failures fall back to direct
// computation and are never surfaced to the caller.
func (s *Service) Analyze(ctx context.Context, tenantID string, ev *domain.Evidence) (*domain.AnalysisResult, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	key := EvidenceKey(ev)

	if s.cache != nil {
		cached, err := s.cache.GetAnalysis(ctx, tenantID, key)
		if err != nil {
			slog.Warn("analysis cache read failed, computing directly", "evidence_key", key, "error", err)
		} else if cached != nil {
			cached.Metadata.CacheHit = true
			return cached, nil
		}
	}

	start := time.Now()

	findings, failed := s.runner.RunAll(ctx, ev)

	var sentiment float64
	if ev.Kind == domain.KindTranscript {
		sentiment = s.sentiment.Score(ev.Transcript)
	}

	outcome := fusion.Fuse(findings, sentiment)

	result := &domain.AnalysisResult{
		ID:                uuid.New().String(),
		TenantID:          tenantID,
		EvidenceRef:       key,
		EvidenceKind:      ev.Kind,
		OverallConfidence: outcome.OverallConfidence,
		RiskLevel:         outcome.RiskLevel,
		IncidentType:      outcome.IncidentType,
		Findings:          findings,
		Recommendations:   recommend.Generate(outcome.RiskLevel, outcome.IncidentType),
		Sentiment:         sentiment,
		AnalyzedAt:        time.Now().UTC(),
		SourceMetadata:    ev.Metadata,
		Metadata: domain.AnalysisMetadata{
			TraceID:          traceID(ctx),
			ExtractorsRun:    s.runner.MatchCount(ev.Kind),
			ExtractorsFailed: failed,
			ProcessMs:        time.Since(start).Milliseconds(),
			EngineVersion:    engineVersion,
		},
	}

	if s.repo != nil {
		if err := s.repo.SaveAnalysis(ctx, tenantID, result); err != nil {
			slog.Error("failed to persist analysis", "analysis_id", result.ID, "error", err)
		}
	}

	if s.cache != nil {
		if err := s.cache.SetAnalysis(ctx, tenantID, key, result, s.cacheTTL); err != nil {
			slog.Warn("analysis cache write failed", "evidence_key", key, "error", err)
		}
	}

	s.publishCompleted(ctx, tenantID, result)

	slog.Info("analysis completed",
		"tenant_id", tenantID,
		"analysis_id", result.ID,
		"evidence_kind", ev.Kind,
		"risk_level", result.RiskLevel,
		"confidence", result.OverallConfidence,
		"findings", len(findings),
		"process_ms", result.Metadata.ProcessMs,
	)

	return result, nil
}

// ReportIncident opens an incident from an analysis result. Results
// below the reporting floor return (nil, nil) and are only logged.
func (s *Service) ReportIncident(ctx context.Context, tenantID string, result *domain.AnalysisResult, detectionMethod, reporterID string) (*domain.Incident, error) {
	if !result.Reportable() {
		slog.Info("analysis below reporting floor, no incident opened",
			"tenant_id", tenantID,
			"analysis_id", result.ID,
			"confidence", result.OverallConfidence,
		)
		return nil, nil
	}

	if detectionMethod == "" {
		detectionMethod = "automated_analysis"
	}

	req := &lifecycle.CreateRequest{
		Type:     result.IncidentType,
		Severity: domain.SeverityForRisk(result.RiskLevel),
		Description: fmt.Sprintf("automated detection: %s at %s risk (confidence %.2f, %d findings)",
			result.IncidentType, result.RiskLevel, result.OverallConfidence, len(result.Findings)),
		DetectionMethod: detectionMethod,
		EvidenceRefs:    []string{result.EvidenceRef},
		AnalysisID:      result.ID,
		Actor:           "system",
	}
	if reporterID != "" {
		req.Reporter = &domain.Reporter{ID: reporterID}
	}

	return s.lifecycle.Create(ctx, tenantID, req)
}

// GetAnalysis returns a persisted analysis result.
func (s *Service) GetAnalysis(ctx context.Context, tenantID, analysisID string) (*domain.AnalysisResult, error) {
	return s.repo.GetAnalysis(ctx, tenantID, analysisID)
}

func (s *Service) publishCompleted(ctx context.Context, tenantID string, result *domain.AnalysisResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(analysisEvent{
		AnalysisID:        result.ID,
		EvidenceRef:       result.EvidenceRef,
		RiskLevel:         result.RiskLevel,
		OverallConfidence: result.OverallConfidence,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, tenantID, domain.TopicAnalysisCompleted, payload); err != nil {
		slog.Warn("failed to publish analysis event", "analysis_id", result.ID, "error", err)
	}
}

// EvidenceKey returns the memoization key for evidence: the caller
// ref when present, otherwise a content hash of the canonical JSON
// encoding.
func EvidenceKey(ev *domain.Evidence) string {
	if ev.Ref != "" {
		return ev.Ref
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return uuid.New().String()
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func traceID(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
