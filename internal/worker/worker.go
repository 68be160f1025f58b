// Package worker provides async evidence processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/engine"
)

// Worker processes evidence asynchronously from the EventBus.
type Worker struct {
	bus    domain.EventBus
	engine *engine.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, eng *engine.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: eng,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicEvidenceIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicEvidenceIngested, func(ctx context.Context, msg *domain.Message) error {
		return w.processEvidence(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicEvidenceIngested,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processEvidence(ctx, msg.TenantID, msg)
}

// EvidenceMessage is the message payload for evidence processing.
type EvidenceMessage struct {
	TenantID string          `json:"tenantId,omitempty"`
	Evidence domain.Evidence `json:"evidence"`

	// Report opens an incident when the analysis clears the reporting
	// floor.
	Report          bool   `json:"report,omitempty"`
	DetectionMethod string `json:"detectionMethod,omitempty"`
	ReporterID      string `json:"reporterId,omitempty"`
}

// processEvidence runs one evidence item through the pipeline.
func (w *Worker) processEvidence(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var evMsg EvidenceMessage
	if err := json.Unmarshal(msg.Payload, &evMsg); err != nil {
		slog.Error("failed to parse evidence message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if evMsg.TenantID != "" {
		tenantID = evMsg.TenantID
	}

	slog.Debug("processing evidence",
		"evidence_ref", evMsg.Evidence.Ref,
		"evidence_kind", evMsg.Evidence.Kind,
		"tenant_id", tenantID,
	)

	result, err := w.engine.Analyze(ctx, tenantID, &evMsg.Evidence)
	if err != nil {
		slog.Error("analysis failed",
			"evidence_ref", evMsg.Evidence.Ref,
			"error", err,
		)
		return err
	}

	if evMsg.Report {
		if _, err := w.engine.ReportIncident(ctx, tenantID, result, evMsg.DetectionMethod, evMsg.ReporterID); err != nil {
			slog.Error("failed to open incident from analysis",
				"analysis_id", result.ID,
				"error", err,
			)
			return err
		}
	}

	slog.Info("evidence processed",
		"evidence_ref", result.EvidenceRef,
		"tenant_id", tenantID,
		"risk_level", result.RiskLevel,
		"confidence", result.OverallConfidence,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
