package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Mananshah237/PhishNet/internal/ai_engine"
	"github.com/Mananshah237/PhishNet/internal/config"
	"github.com/Mananshah237/PhishNet/internal/dedup"
	"github.com/Mananshah237/PhishNet/internal/detector"
	"github.com/Mananshah237/PhishNet/internal/handler"
	"github.com/Mananshah237/PhishNet/internal/render_client"
	"github.com/Mananshah237/PhishNet/internal/renderjob"
	"github.com/Mananshah237/PhishNet/internal/repository"
	"github.com/Mananshah237/PhishNet/internal/rewriter"
	"github.com/Mananshah237/PhishNet/internal/server"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	// Load configuration
	cfgPath := "configs/config.yml"
	if fromEnv := os.Getenv("PHISHNET_CONFIG"); fromEnv != "" {
		cfgPath = fromEnv
	}
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Database connection
	db, err := repository.NewPostgresDB(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Run migrations
	repository.MigrateDB(db, logger)

	// Initialize repositories
	emailRepo := repository.NewEmailRepository(db, logger)
	detectionRepo := repository.NewDetectionRepository(db, logger)
	rewriteRepo := repository.NewRewriteRepository(db, logger)
	jobRepo := repository.NewJobRepository(db, logger)
	artifactRepo := repository.NewArtifactRepository(db, logger)

	// Initialize dedup filter (optional)
	var dedupFilter *dedup.Filter
	if cfg.Redis.Enabled {
		dedupFilter, err = dedup.NewFilter(cfg.Redis.Addr, logger)
		if err != nil {
			logger.Warn("Failed to connect to redis, ingestion dedup disabled", zap.Error(err))
			dedupFilter = nil
		} else {
			defer dedupFilter.Close()
		}
	}

	// Initialize AI client (optional)
	var aiClient *ai_engine.Client
	if cfg.AI.Enabled {
		aiClient = ai_engine.NewClient(ai_engine.Config{
			BaseURL: cfg.AI.BaseURL,
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
		}, logger)
		logger.Info("AI engine enabled", zap.String("model", cfg.AI.Model))
	}

	// Services. The nil-interface dance keeps a disabled AI client from
	// masquerading as a configured classifier.
	var classifier detector.Classifier
	var assistant rewriter.Assistant
	if aiClient != nil {
		classifier = aiClient
		assistant = aiClient
	}
	detectorSvc := detector.NewService(emailRepo, detectionRepo, classifier, logger)
	rewriterSvc := rewriter.NewService(emailRepo, rewriteRepo, assistant, logger)

	// Render pipeline
	renderClient := render_client.NewClient(cfg.Renderer.URL, cfg.RendererTimeout(), logger)
	jobManager := renderjob.NewManager(emailRepo, jobRepo, artifactRepo, renderClient, cfg.Artifacts.Dir, logger)

	// Handlers and server
	emailHandler := handler.NewEmailHandler(emailRepo, detectionRepo, rewriteRepo,
		detectorSvc, rewriterSvc, dedupFilter, cfg.Ingest.MaxUploadBytes, logger)
	jobHandler := handler.NewJobHandler(jobManager, logger)

	srv := server.NewServer(server.Deps{
		Emails: emailHandler,
		Jobs:   jobHandler,
	}, logger)

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		if err := srv.Run(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
	}
	logger.Info("Application stopped.")
}
