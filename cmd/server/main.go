package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/aigoflow/rideguard/internal/config"
	"github.com/aigoflow/rideguard/internal/logging"
	"github.com/aigoflow/rideguard/internal/metrics"
	"github.com/aigoflow/rideguard/internal/pipeline"
	"github.com/aigoflow/rideguard/internal/repository"
	"github.com/aigoflow/rideguard/internal/schema"
	"github.com/aigoflow/rideguard/internal/services"
	"github.com/aigoflow/rideguard/internal/store"
	"github.com/aigoflow/rideguard/pkg/server"
)

const memoryLogSize = 1000

func main() {
	var (
		envFile    = flag.String("env", "", "Optional .env file to load")
		configFile = flag.String("config", "", "Optional YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*envFile, *configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	logCloser := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Service:    "rideguard",
	})
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = os.MkdirAll(cfg.DataDir, 0755)

	// Audit store. SQLite is opt-in; without DB_PATH the recent rows live in memory.
	var repo repository.Repository
	if cfg.DBPath != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.DBPath), 0755)
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		repo = repository.NewSQLiteRepository(db)
	} else {
		slog.Info("DB_PATH is empty, audit log kept in memory", "rows", memoryLogSize)
		repo = repository.NewMemoryRepository(memoryLogSize)
	}

	logEvent := func(level, code, msg string, meta map[string]interface{}) {
		if err := repo.Event().LogEvent(ctx, level, code, msg, meta); err != nil {
			slog.Warn("Failed to write event", "code", code, "error", err)
		}
	}

	logEvent("info", "startup", "Server starting", map[string]interface{}{
		"model_name": cfg.ModelName,
		"backend":    cfg.ModelBackend,
		"http_addr":  cfg.HTTPAddr,
		"db_path":    cfg.DBPath,
	})

	m := metrics.New(prometheus.NewRegistry())

	var nc *nats.Conn
	if cfg.NATSEnabled() {
		nc, err = services.Connect(cfg)
		if err != nil {
			logEvent("error", "nats.failed", "NATS connection failed", map[string]interface{}{
				"nats_url": cfg.NatsURL,
				"error":    err.Error(),
			})
			slog.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()
	}

	// The pipeline is loaded exactly once. A failure degrades the service
	// instead of stopping it.
	var requester pipeline.Requester
	if nc != nil {
		requester = nc
	}
	p, loadErr := services.LoadPipeline(ctx, cfg, requester)

	var artifactThreshold *float64
	if loadErr == nil {
		artifactThreshold = p.Info().DecisionThreshold
	}
	threshold, source, err := cfg.ResolveThreshold(artifactThreshold)
	if err != nil {
		loadErr = err
	}
	if loadErr != nil {
		p = nil
		slog.Error("Pipeline unavailable, serving degraded", "error", loadErr)
	}
	slog.Info("Decision threshold resolved", "threshold", threshold, "source", source)

	inferenceService := services.NewAuditedService(services.NewInferenceService(p, loadErr, threshold, m), repo)
	if err := inferenceService.LoadError(); err != nil {
		logEvent("error", "model_unavailable", "pipeline failed to load", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		st := inferenceService.Status()
		logEvent("info", "model_loaded", "pipeline loaded", map[string]interface{}{
			"model":     st.ModelName,
			"version":   st.ModelVersion,
			"threshold": threshold,
		})
	}
	coercer := schema.NewCoercer(schema.Options{StrictRanges: cfg.StrictRanges})

	if nc != nil {
		healthService := services.NewHealthService(nc, cfg, inferenceService.InferenceService)
		if err := healthService.Start(ctx); err != nil {
			slog.Error("Health service failed", "error", err)
		}

		monitoring := services.NewMonitoringService(nc, cfg, m)
		natsService, err := services.NewNATSService(nc, cfg, inferenceService, coercer, monitoring)
		if err != nil {
			slog.Error("Failed to create NATS service", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := natsService.Start(ctx); err != nil {
				logEvent("error", "nats.failed", "NATS service failed", map[string]interface{}{
					"error": err.Error(),
				})
				slog.Error("NATS service failed", "error", err)
			}
		}()
	}

	httpServer := server.NewServer(cfg.HTTPAddr, inferenceService, coercer, m, cfg.FormEnabled)

	logEvent("info", "server.ready", "Server ready to accept requests", map[string]interface{}{
		"http_addr":  cfg.HTTPAddr,
		"model_name": cfg.ModelName,
		"available":  inferenceService.Available(),
		"threshold":  threshold,
	})

	if err := httpServer.Start(ctx); err != nil {
		logEvent("error", "http.failed", "HTTP server failed", map[string]interface{}{
			"error": err.Error(),
		})
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutting down server")
}
