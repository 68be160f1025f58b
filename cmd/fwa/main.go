// FWA - Fraud, waste, and abuse detection with a full incident trail.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bbarnes4318/compliance/internal/api"
	"github.com/bbarnes4318/compliance/internal/bus"
	"github.com/bbarnes4318/compliance/internal/cache"
	"github.com/bbarnes4318/compliance/internal/domain"
	"github.com/bbarnes4318/compliance/internal/engine"
	"github.com/bbarnes4318/compliance/internal/extract"
	"github.com/bbarnes4318/compliance/internal/lifecycle"
	"github.com/bbarnes4318/compliance/internal/notify"
	"github.com/bbarnes4318/compliance/internal/repository"
	"github.com/bbarnes4318/compliance/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("FWA_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting fwa engine",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("FWA_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize classifier and load rules from database
	classifier, err := extract.NewCELClassifier()
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}
	if err := loadClassifierRules(ctx, repo, classifier); err != nil {
		slog.Error("failed to load classifier rules", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier initialized", "rules_count", classifier.RulesCount())

	// Register the signal extractors
	runner := extract.NewRunner(cfg.Engine.MaxExtractorWorkers, cfg.Engine.ExtractorTimeout)
	runner.Register(extract.NewPatternExtractor())
	runner.Register(extract.NewBillingAnomalyExtractor())
	runner.Register(extract.NewEnrollmentExtractor())
	runner.Register(extract.NewClassifierExtractor(classifier))
	slog.Info("extractors registered", "count", runner.Count())

	// Incident lifecycle with bus-backed critical alerts
	notifier := notify.NewBusNotifier(busImpl)
	lifecycleSvc := lifecycle.NewService(repo, notifier, busImpl)
	slog.Info("lifecycle service initialized")

	// Analysis engine
	engineSvc := engine.NewService(cfg.Engine, runner, lifecycleSvc, repo, cacheImpl, busImpl)
	slog.Info("analysis engine initialized")

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("FWA_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, engineSvc)

		var tenantIDs []string
		if envTenants := os.Getenv("FWA_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		workerCfg := worker.Config{
			TenantIDs: tenantIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engineSvc, lifecycleSvc, classifier, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fwa engine is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("fwa engine shutdown complete")
}

// GlobalTenantID is used for classifier rules that apply to all tenants.
const GlobalTenantID = "*"

// loadClassifierRules loads rules from the database into the classifier.
// All rules must be configured via POST /classifier/rules - no hardcoded defaults.
func loadClassifierRules(ctx context.Context, repo domain.Repository, classifier *extract.CELClassifier) error {
	dbRules, err := repo.ListClassifierRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Warn("failed to list classifier rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading classifier rules from database", "count", len(dbRules))
		return classifier.LoadRules(dbRules)
	}

	slog.Info("no classifier rules in database - configure via POST /classifier/rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  FWA Detection & Incident Lifecycle Engine")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze                       - Analyze evidence")
	fmt.Println("    GET  /analyses/{id}                 - Get analysis by ID")
	fmt.Println("    POST /incidents                     - Open an incident")
	fmt.Println("    GET  /incidents?status=             - List incidents by status")
	fmt.Println("    GET  /incidents/{id}                - Get incident with timeline")
	fmt.Println("    POST /incidents/{id}/investigate    - Begin investigation")
	fmt.Println("    POST /incidents/{id}/escalate       - Escalate severity")
	fmt.Println("    POST /incidents/{id}/determination  - Record investigation outcome")
	fmt.Println("    POST /incidents/{id}/refer/oig      - Refer to OIG")
	fmt.Println("    POST /incidents/{id}/refer/cms      - Refer to CMS")
	fmt.Println("    POST /incidents/{id}/resolve        - Resolve incident")
	fmt.Println("    POST /incidents/{id}/close          - Close incident")
	fmt.Println("    GET  /classifier/rules              - List classifier rules")
	fmt.Println("    POST /classifier/rules              - Create a classifier rule")
	fmt.Println("    POST /classifier/rules/reload       - Hot-reload rules")
	fmt.Println("    GET  /health                        - Health check")
	fmt.Println()
}
