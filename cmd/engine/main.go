package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pulseengine/pulse/internal/adapters"
	"github.com/pulseengine/pulse/internal/api"
	"github.com/pulseengine/pulse/internal/cache"
	"github.com/pulseengine/pulse/internal/health"
	"github.com/pulseengine/pulse/internal/orchestrator"
	"github.com/pulseengine/pulse/internal/relations"
	"github.com/pulseengine/pulse/internal/store"
	"github.com/pulseengine/pulse/pkg/config"
	"github.com/pulseengine/pulse/pkg/logging"
	"github.com/pulseengine/pulse/pkg/metrics"
	"github.com/pulseengine/pulse/pkg/resilience"
	"github.com/pulseengine/pulse/pkg/source"
)

const version = "1.0.0"

func main() {
	// Load .env if present; environment variables win over file values
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "pulse-engine",
		Version:     version,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logging.SetGlobalLogger(logger)

	m := metrics.NewMetrics(metrics.DefaultConfig())

	sources := buildAdapters(cfg)
	if len(sources) == 0 {
		logger.Warn("No source adapters configured, cycles will score an empty ecosystem")
	}

	cacheStore := cache.NewStore(cache.Config{
		FastTTL: cfg.Cache.FastTTL,
		SlowTTL: cfg.Cache.SlowTTL,
	}, m)

	monitor := cache.NewMonitor(cache.MonitorConfig{
		QualityThreshold:    cfg.Cache.QualityThreshold,
		LatencyP95Threshold: cfg.Cache.LatencyP95Threshold,
		LatencyWindow:       cfg.Cache.LatencyWindow,
	})

	scorer, err := relations.NewScorer(relations.Config{
		Weights: relations.Weights{
			Tags:            cfg.Relations.TagWeight,
			ParticipantOrgs: cfg.Relations.OrgWeight,
			Places:          cfg.Relations.PlaceWeight,
			CrossRefs:       cfg.Relations.CrossRefWeight,
		},
		MinScore: cfg.Relations.MinScore,
		TopK:     cfg.Relations.TopK,
	})
	if err != nil {
		log.Fatalf("Failed to build relationship scorer: %v", err)
	}

	detector, err := health.NewDetector(health.Config{
		Weights: health.Weights{
			Funding:      cfg.Health.FundingWeight,
			People:       cfg.Health.PeopleWeight,
			Momentum:     cfg.Health.MomentumWeight,
			Ownership:    cfg.Health.OwnershipWeight,
			Completeness: cfg.Health.CompletenessWeight,
		},
		Neutral: cfg.Health.NeutralScore,
		Thresholds: health.Thresholds{
			CriticalFundingGap:   cfg.Health.CriticalFundingGap,
			EngagementWindowDays: cfg.Health.EngagementWindowDays,
			LowEngagementCount:   cfg.Health.LowEngagementCount,
			HealthyEngagement:    cfg.Health.HealthyEngagement,
			StaleActivityDays:    cfg.Health.StaleActivityDays,
			MomentumDecayDays:    cfg.Health.MomentumDecayDays,
			MinFieldCoverage:     cfg.Health.MinFieldCoverage,
		},
	})
	if err != nil {
		log.Fatalf("Failed to build health detector: %v", err)
	}

	policy := resilience.DefaultPolicy()
	policy.MaxRetries = cfg.Retry.MaxRetries
	policy.BaseDelay = cfg.Retry.BaseDelay
	policy.MaxDelay = cfg.Retry.MaxDelay
	policy.JitterSeed = cfg.Retry.JitterSeed
	policy.OnAttempt = func(operation string, attempt int, delay time.Duration, err error) {
		m.RecordRetry(operation)
	}
	executor := resilience.NewExecutor(policy)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Snapshot persistence is optional; without redis the engine runs cold
	// after every restart.
	var snapshots orchestrator.SnapshotStore
	if cfg.Redis.Addr != "" {
		redisStore, err := store.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisStore.Close()
		snapshots = redisStore
		logger.Info("Snapshot persistence enabled", "redis_addr", cfg.Redis.Addr)
	}

	engine := orchestrator.NewEngine(
		sources,
		cacheStore,
		monitor,
		scorer,
		detector,
		executor,
		m,
		snapshots,
		&orchestrator.Config{
			CycleInterval:    cfg.Engine.CycleInterval,
			CycleDeadline:    cfg.Engine.CycleDeadline,
			CallTimeout:      cfg.Engine.CallTimeout,
			MaxInFlight:      cfg.Engine.MaxInFlight,
			EngagementWindow: time.Duration(cfg.Health.EngagementWindowDays) * 24 * time.Hour,
		},
	)

	if err := engine.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(engine, m).Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Query API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shut down", "error", err.Error())
	}
	if err := engine.Stop(shutdownCtx); err != nil {
		logger.Error("Engine did not stop cleanly", "error", err.Error())
	}

	logger.Info("Shutdown complete")
}

// buildAdapters wires one adapter per configured provider URL, in merge
// priority order: tracker, ledger, comms, calendar.
func buildAdapters(cfg *config.Config) []source.Adapter {
	var out []source.Adapter
	if cfg.Sources.TrackerURL != "" {
		out = append(out, adapters.NewTrackerAdapter(cfg.Sources.TrackerURL))
	}
	if cfg.Sources.LedgerURL != "" {
		out = append(out, adapters.NewLedgerAdapter(cfg.Sources.LedgerURL))
	}
	if cfg.Sources.CommsURL != "" {
		out = append(out, adapters.NewCommsAdapter(cfg.Sources.CommsURL))
	}
	if cfg.Sources.CalendarURL != "" {
		out = append(out, adapters.NewCalendarAdapter(cfg.Sources.CalendarURL))
	}
	return out
}
