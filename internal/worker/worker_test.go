package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/bbarnes4318/compliance/internal/bus"
	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/engine"
	"github.com/bbarnes4318/compliance/internal/extract"
	"github.com/bbarnes4318/compliance/internal/lifecycle"
	"github.com/bbarnes4318/compliance/internal/repository"
)

const testTenant = "tenant-worker-test"

type harness struct {
	bus    *bus.ChannelBus
	engine *engine.Service
	repo   domain.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "worker_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	runner := extract.NewRunner(4, 5*time.Second)
	runner.Register(extract.NewPatternExtractor())
	runner.Register(extract.NewBillingAnomalyExtractor())

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	lc := lifecycle.NewService(repo, nil, eventBus)
	eng := engine.NewService(domain.EngineConfig{}, runner, lc, repo, nil, eventBus)

	return &harness{bus: eventBus, engine: eng, repo: repo}
}

// publishEvidence marshals an evidence message onto the ingestion topic.
func publishEvidence(t *testing.T, h *harness, msg EvidenceMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("failed to marshal evidence message: %v", err)
	}
	if err := h.bus.Publish(context.Background(), testTenant, domain.TopicEvidenceIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

// awaitCompletion subscribes to the completion topic and returns a
// channel that receives analysis IDs as evidence finishes processing.
func awaitCompletion(t *testing.T, h *harness) <-chan string {
	t.Helper()
	done := make(chan string, 10)
	_, err := h.bus.Subscribe(context.Background(), testTenant, domain.TopicAnalysisCompleted, func(_ context.Context, msg *domain.Message) error {
		var evt struct {
			AnalysisID string `json:"analysisId"`
		}
		if err := json.Unmarshal(msg.Payload, &evt); err == nil {
			done <- evt.AnalysisID
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	return done
}

func TestWorker(t *testing.T) {
	t.Run("ProcessesEvidenceAsync", func(t *testing.T) {
		h := newHarness(t)
		done := awaitCompletion(t, h)

		w := NewWorker(h.bus, h.engine)
		if err := w.Start(Config{TenantIDs: []string{testTenant}}); err != nil {
			t.Fatalf("worker start failed: %v", err)
		}
		defer w.Stop()

		publishEvidence(t, h, EvidenceMessage{
			Evidence: domain.Evidence{
				Ref:        "async-call-1",
				Kind:       domain.KindTranscript,
				Transcript: "phantom billing and duplicate claims on every account",
			},
		})

		select {
		case analysisID := <-done:
			result, err := h.repo.GetAnalysis(context.Background(), testTenant, analysisID)
			if err != nil {
				t.Fatalf("analysis not persisted: %v", err)
			}
			if result.EvidenceRef != "async-call-1" {
				t.Errorf("expected evidence ref async-call-1, got %s", result.EvidenceRef)
			}
			if result.RiskLevel == domain.RiskNone {
				t.Errorf("expected the fraud transcript to score above NONE")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for evidence to be processed")
		}
	})

	t.Run("ReportOpensIncident", func(t *testing.T) {
		h := newHarness(t)
		done := awaitCompletion(t, h)

		w := NewWorker(h.bus, h.engine)
		if err := w.Start(Config{TenantIDs: []string{testTenant}}); err != nil {
			t.Fatalf("worker start failed: %v", err)
		}
		defer w.Stop()

		publishEvidence(t, h, EvidenceMessage{
			Evidence: domain.Evidence{
				Ref:        "async-call-2",
				Kind:       domain.KindTranscript,
				Transcript: "upcoding and unbundling, then a kickback for the referrals",
			},
			Report:          true,
			DetectionMethod: "stream_ingest",
			ReporterID:      "pipeline",
		})

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for evidence to be processed")
		}

		// ReportIncident runs after the completion event fires, so poll
		// briefly for the incident row.
		deadline := time.Now().Add(3 * time.Second)
		for {
			incidents, err := h.repo.ListIncidentsByStatus(context.Background(), testTenant, domain.StatusReported)
			if err != nil {
				t.Fatalf("list incidents failed: %v", err)
			}
			if len(incidents) == 1 {
				if incidents[0].DetectionMethod != "stream_ingest" {
					t.Errorf("expected detection method stream_ingest, got %s", incidents[0].DetectionMethod)
				}
				if incidents[0].Reporter == nil || incidents[0].Reporter.ID != "pipeline" {
					t.Errorf("expected reporter pipeline, got %+v", incidents[0].Reporter)
				}
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("expected one reported incident, got %d", len(incidents))
			}
			time.Sleep(25 * time.Millisecond)
		}
	})

	t.Run("MalformedPayloadIsDropped", func(t *testing.T) {
		h := newHarness(t)

		w := NewWorker(h.bus, h.engine)
		if err := w.Start(Config{TenantIDs: []string{testTenant}}); err != nil {
			t.Fatalf("worker start failed: %v", err)
		}
		defer w.Stop()

		if err := h.bus.Publish(context.Background(), testTenant, domain.TopicEvidenceIngested, []byte("{broken")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		// The handler logs and returns; no incidents appear and the
		// worker keeps its subscription.
		time.Sleep(100 * time.Millisecond)
		incidents, err := h.repo.ListIncidentsByStatus(context.Background(), testTenant, domain.StatusReported)
		if err != nil {
			t.Fatalf("list incidents failed: %v", err)
		}
		if len(incidents) != 0 {
			t.Errorf("expected no incidents from a malformed payload, got %d", len(incidents))
		}
		if got := w.GetStats().SubscriptionCount; got != 1 {
			t.Errorf("expected the subscription to survive, got %d", got)
		}
	})

	t.Run("StopUnsubscribes", func(t *testing.T) {
		h := newHarness(t)

		w := NewWorker(h.bus, h.engine)
		if err := w.Start(Config{TenantIDs: []string{testTenant, "tenant-other"}}); err != nil {
			t.Fatalf("worker start failed: %v", err)
		}

		stats := w.GetStats()
		if stats.SubscriptionCount != 2 {
			t.Fatalf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
		}
		for _, topic := range stats.Topics {
			if topic != domain.TopicEvidenceIngested {
				t.Errorf("unexpected topic %s", topic)
			}
		}

		if err := w.Stop(); err != nil {
			t.Fatalf("stop failed: %v", err)
		}
		if got := w.GetStats().SubscriptionCount; got != 0 {
			t.Errorf("expected no subscriptions after stop, got %d", got)
		}
	})
}
