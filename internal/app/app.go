// Package app wires configuration, storage and services into one graph
// shared by the API server and the maintenance CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/repository"
	"github.com/docassist/docassist/internal/service"
	"github.com/docassist/docassist/internal/source"
	"github.com/docassist/docassist/internal/source/jsonfile"
	"github.com/docassist/docassist/internal/source/samples"
	"github.com/docassist/docassist/internal/storage"
	"gorm.io/gorm"
)

const corpusSourceQdrant = "qdrant"

// App holds the wired services.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB

	Visits   *repository.VisitRepository
	Patients *repository.PatientRepository
	Doctors  *repository.DoctorRepository
	Jobs     *repository.JobRepository
	Qdrant   *repository.QdrantRepository // nil unless qdrant.enabled
	Mirror   *service.QdrantMirror        // nil unless qdrant.enabled
	Storage  storage.ObjectStorage        // nil unless storage.bucket is set

	Provider     service.EmbeddingProvider
	Worker       *service.EmbeddingWorker
	VisitService *service.VisitService
	QueryService *service.CaseQueryService
	Ingest       *service.IngestService
	Export       *service.ExportService
}

// New builds the application. The embedding provider is initialized but a
// failure only leaves it unready; visits are still stored and backfilled later.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.GetDefault()
	}
	a := &App{Config: cfg, Logger: log}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.DB = db
	a.Visits = repository.NewVisitRepository(db)
	a.Patients = repository.NewPatientRepository(db)
	a.Doctors = repository.NewDoctorRepository(db)
	a.Jobs = repository.NewJobRepository(db)

	provider, err := service.NewEmbeddingProvider(&cfg.Embedding)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Provider = provider
	if err := provider.Initialize(ctx); err != nil {
		log.WithError(err).WithFields(logger.Fields{
			"provider": cfg.Embedding.Provider,
			"model":    provider.Model(),
		}).Warn("Embedding provider not ready; visits will stay pending until backfill")
	}

	var mirror service.VectorMirror
	var corpus service.CorpusReader = a.Visits
	if cfg.Qdrant.Enabled {
		qdrantMirror, err := a.connectQdrant(ctx, provider.Dimension())
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Mirror = qdrantMirror
		mirror = qdrantMirror
		if cfg.Similarity.CorpusSource == corpusSourceQdrant {
			corpus = qdrantMirror
		}
	}

	if cfg.Storage.Bucket != "" {
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.Storage = store
	}

	a.Worker = service.NewEmbeddingWorker(a.Visits, provider, mirror, log, &service.EmbeddingWorkerConfig{
		Workers:   cfg.Embedding.Workers,
		QueueSize: cfg.Embedding.QueueSize,
	})
	a.VisitService = service.NewVisitService(a.Visits, a.Patients, a.Doctors, a.Worker, mirror, cfg.Embedding.WriteMode, log)
	a.QueryService = service.NewCaseQueryService(provider, corpus, a.Visits, service.CaseQueryConfig{
		TopK:          cfg.Similarity.TopK,
		ChatTopK:      cfg.Similarity.ChatTopK,
		MinSimilarity: cfg.Similarity.MinSimilarity,
	}, log)
	a.Ingest = service.NewIngestService(a.VisitService, a.Visits, a.Doctors, a.Jobs, a.Worker, log, &service.IngestConfig{
		Workers:   cfg.Ingest.Workers,
		BatchSize: cfg.Ingest.BatchSize,
	})
	a.Export = service.NewExportService(corpus, a.Storage, cfg.Storage.Prefix)

	return a, nil
}

func (a *App) connectQdrant(ctx context.Context, dim int) (*service.QdrantMirror, error) {
	cfg := a.Config.Qdrant
	repo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		Collection:      cfg.Collection,
		APIKey:          cfg.APIKey,
		UseTLS:          cfg.UseTLS,
		VectorDimension: dim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize qdrant: %w", err)
	}
	if err := repo.EnsureCollection(ctx); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to ensure qdrant collection: %w", err)
	}
	a.Qdrant = repo
	return service.NewQdrantMirror(repo, repository.NewVisitVectorRepository(a.DB)), nil
}

// Sources returns the importable data sources keyed by source ID.
// jsonPath may be empty, in which case only the built-in samples are offered.
func Sources(jsonPath string) map[string]source.Source {
	srcs := map[string]source.Source{}
	sample := samples.NewAdapter()
	srcs[sample.GetSourceID()] = sample
	if jsonPath != "" {
		file := jsonfile.NewAdapter(jsonPath)
		srcs[file.GetSourceID()] = file
	}
	return srcs
}

// Close releases the provider, the Qdrant connection and the database.
func (a *App) Close() error {
	var errs []error
	if a.Provider != nil {
		errs = append(errs, a.Provider.Close())
	}
	if a.Qdrant != nil {
		errs = append(errs, a.Qdrant.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
