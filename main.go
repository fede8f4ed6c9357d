package main

import (
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/promptforge-ai/promptforge-engine/pkg/config"
	"github.com/promptforge-ai/promptforge-engine/pkg/handlers"
	"github.com/promptforge-ai/promptforge-engine/pkg/logging"
	"github.com/promptforge-ai/promptforge-engine/pkg/middleware"
	"github.com/promptforge-ai/promptforge-engine/pkg/optimizer"
	"github.com/promptforge-ai/promptforge-engine/pkg/repositories"
	"github.com/promptforge-ai/promptforge-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("data_dir", cfg.DataDir),
		zap.String("optimizer_base_url", cfg.Optimizer.BaseURL))

	client, err := optimizer.NewClient(&optimizer.Config{
		BaseURL: cfg.Optimizer.BaseURL,
		Timeout: time.Duration(cfg.Optimizer.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to create optimizer client: %v", err)
	}

	sampleRepo := repositories.NewSampleRepository(cfg.SamplesPath(), logger)
	statusRepo := repositories.NewStatusRepository(cfg.StatusPath(), logger)
	promptRepo := repositories.NewPromptRepository(cfg.PromptPath())
	optimizationRepo := repositories.NewOptimizationRepository(
		cfg.LatestOptimizationPath(), cfg.VersionsDir(), logger)

	service := services.NewOptimizationService(
		sampleRepo, statusRepo, promptRepo, optimizationRepo, client, cfg.Optimizer, logger)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	optimizeHandler := handlers.NewOptimizeHandler(service, optimizationRepo, logger)
	optimizeHandler.RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)

	addr := cfg.BindAddr + ":" + cfg.Port
	logger.Info("Starting promptforge-engine",
		zap.String("addr", addr),
		zap.String("version", cfg.Version))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
