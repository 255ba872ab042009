package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/docassist/docassist/internal/api"
	"github.com/docassist/docassist/internal/api/middleware"
	"github.com/docassist/docassist/internal/app"
	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/logger"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer func() { _ = logger.Sync() }()

	// CONFIG_PATH selects the config file in deployments.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLogger.WithError(err).Warn("Failed to release resources")
		}
	}()

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	a.Worker.Start(workerCtx)

	deps := api.RouterDeps{
		VisitService:  a.VisitService,
		QueryService:  a.QueryService,
		IngestService: a.Ingest,
		Provider:      a.Provider,
		Worker:        a.Worker,
		Doctors:       a.Doctors,
		Jobs:          a.Jobs,
		Sources:       app.Sources(cfg.Ingest.JSONPath),
		ChatTopK:      cfg.Similarity.ChatTopK,
	}
	if a.Mirror != nil {
		deps.Mirror = a.Mirror
	}
	router := api.SetupRouter(deps, cfg.Server.Mode, middleware.AuthConfig{
		Mode:    cfg.Auth.Mode,
		Secret:  cfg.Auth.JWTSecret,
		Issuer:  cfg.Auth.Issuer,
		Doctors: a.Doctors,
	}, middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":            cfg.Server.Port,
			"mode":            cfg.Server.Mode,
			"embedding_model": a.Provider.Model(),
			"embedding_dim":   a.Provider.Dimension(),
			"write_mode":      cfg.Embedding.WriteMode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// Pending jobs that do not finish in time stay pending for backfill.
	if err := a.Worker.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Embedding worker did not drain")
	}

	appLogger.Info("Server exited")
}
