package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/source"
	"github.com/google/uuid"
)

// DoctorDirectory resolves the doctors named by imported visits.
type DoctorDirectory interface {
	Upsert(ctx context.Context, d *domain.Doctor) error
	GetByPhone(ctx context.Context, phone string) (*domain.Doctor, error)
}

// JobStore persists run bookkeeping.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	Update(ctx context.Context, job *domain.IngestJob) error
}

// IngestConfig holds configuration for the ingest service
type IngestConfig struct {
	Workers   int
	BatchSize int
}

// IngestService imports visits from data sources and backfills missing embeddings.
type IngestService struct {
	visitSvc  *VisitService
	visits    VisitStore
	doctors   DoctorDirectory
	jobs      JobStore
	worker    *EmbeddingWorker
	logger    *logger.Logger
	workers   int
	batchSize int
	now       func() time.Time

	doctorIDs sync.Map // phone -> doctor ID
}

// NewIngestService creates a new ingest service
func NewIngestService(
	visitSvc *VisitService,
	visits VisitStore,
	doctors DoctorDirectory,
	jobs JobStore,
	worker *EmbeddingWorker,
	log *logger.Logger,
	cfg *IngestConfig,
) *IngestService {
	workers, batchSize := 1, 10
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.BatchSize > 0 {
			batchSize = cfg.BatchSize
		}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &IngestService{
		visitSvc:  visitSvc,
		visits:    visits,
		doctors:   doctors,
		jobs:      jobs,
		worker:    worker,
		logger:    log,
		workers:   workers,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *IngestService) log(ctx context.Context) *logger.Logger {
	if ctx != nil {
		return logger.FromContext(ctx)
	}
	return s.logger
}

// IngestStats holds statistics for an ingestion or backfill run
type IngestStats struct {
	JobID          string
	TotalItems     int64
	ProcessedItems int64
	SkippedItems   int64
	FailedItems    int64
	StartTime      time.Time
	EndTime        time.Time
}

type processResult struct {
	sourceID string
	skipped  bool
	err      error
}

var errSkipExisting = errors.New("skipped: already imported")

// IngestFromSource imports up to limit visits from src through the normal
// visit write path, so every imported visit is embedded like a new one.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - src: data source.
//   - limit: maximum number of items; non-positive means all.
// Returns:
//   - *IngestStats: counters for the run.
//   - error: non-nil only if the run could not be recorded.
func (s *IngestService) IngestFromSource(ctx context.Context, src source.Source, limit int) (*IngestStats, error) {
	job, err := s.startJob(ctx, domain.JobKindImport, src.GetSourceID())
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, job.ID)
	stats := &IngestStats{JobID: job.ID, StartTime: s.now()}

	s.log(ctx).WithFields(logger.Fields{
		"source": src.GetSourceID(),
		"limit":  limit,
	}).Info("Starting ingestion")

	itemsChan := make(chan source.VisitItem, s.workers*2)
	resultsChan := make(chan *processResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range itemsChan {
				err := s.importItem(ctx, src.GetSourceID(), item)
				resultsChan <- &processResult{
					sourceID: item.SourceID,
					skipped:  errors.Is(err, errSkipExisting),
					err:      err,
				}
			}
		}()
	}

	var errLog []string
	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&stats.ProcessedItems, 1)
			switch {
			case result.skipped:
				atomic.AddInt64(&stats.SkippedItems, 1)
			case result.err != nil:
				atomic.AddInt64(&stats.FailedItems, 1)
				errLog = append(errLog, fmt.Sprintf("%s: %v", result.sourceID, result.err))
				s.log(ctx).WithField("source_id", result.sourceID).WithError(result.err).Error("Failed to import item")
			}
		}
		close(done)
	}()

	s.feed(ctx, src, limit, itemsChan, stats)

	close(itemsChan)
	wg.Wait()
	close(resultsChan)
	<-done

	stats.EndTime = s.now()
	s.finishJob(ctx, job, stats, errLog)

	s.log(ctx).WithFields(logger.Fields{
		"total":     stats.TotalItems,
		"processed": stats.ProcessedItems,
		"skipped":   stats.SkippedItems,
		"failed":    stats.FailedItems,
		"duration":  stats.EndTime.Sub(stats.StartTime).String(),
	}).Info("Ingestion completed")

	return stats, nil
}

func (s *IngestService) feed(ctx context.Context, src source.Source, limit int, out chan<- source.VisitItem, stats *IngestStats) {
	cursor := ""
	fetched := 0
	for ctx.Err() == nil {
		batchLimit := s.batchSize
		if limit > 0 {
			remaining := limit - fetched
			if remaining <= 0 {
				return
			}
			if batchLimit > remaining {
				batchLimit = remaining
			}
		}

		items, next, err := src.FetchBatch(ctx, cursor, batchLimit)
		if err != nil {
			s.log(ctx).WithError(err).Error("Failed to fetch batch")
			return
		}
		if len(items) == 0 {
			return
		}

		atomic.AddInt64(&stats.TotalItems, int64(len(items)))
		fetched += len(items)

		for _, item := range items {
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}

		if next == "" {
			return
		}
		cursor = next
	}
}

func (s *IngestService) importItem(ctx context.Context, sourceID string, item source.VisitItem) error {
	ref := sourceID + ":" + item.SourceID
	exists, err := s.visits.ExistsBySourceRef(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to check existence: %w", err)
	}
	if exists {
		return errSkipExisting
	}

	doctorID, err := s.resolveDoctor(ctx, item.Doctor)
	if err != nil {
		return err
	}

	date := s.now().UTC().AddDate(0, 0, -item.DaysAgo)
	age := item.Patient.Age
	_, err = s.visitSvc.CreateVisit(ctx, doctorID, &CreateVisitRequest{
		PatientName:    item.Patient.Name,
		PatientAge:     &age,
		PatientGender:  item.Patient.Gender,
		PatientPhone:   item.Patient.Phone,
		PatientAddress: item.Patient.Address,
		Vitals: VitalsInput{
			BloodPressure: item.Vitals.BloodPressure,
			Oxygen:        item.Vitals.Oxygen,
			Weight:        item.Vitals.Weight,
			DidRecover:    item.Vitals.DidRecover,
		},
		ClinicalTests:         item.ClinicalTests,
		DoctorNoticed:         item.DoctorNoticed,
		PrescribedMedications: item.PrescribedMedications,
		Date:                  &date,
		SourceRef:             ref,
	})
	return err
}

func (s *IngestService) resolveDoctor(ctx context.Context, d source.DoctorItem) (string, error) {
	if id, ok := s.doctorIDs.Load(d.Phone); ok {
		return id.(string), nil
	}

	if err := s.doctors.Upsert(ctx, &domain.Doctor{
		ID:                uuid.New().String(),
		Name:              d.Name,
		Phone:             d.Phone,
		Qualification:     d.Qualification,
		ClinicalDomain:    d.ClinicalDomain,
		YearsOfExperience: d.YearsOfExperience,
		Gender:            d.Gender,
	}); err != nil {
		return "", fmt.Errorf("failed to upsert doctor %s: %w", d.Phone, err)
	}

	stored, err := s.doctors.GetByPhone(ctx, d.Phone)
	if err != nil {
		return "", fmt.Errorf("failed to load doctor %s: %w", d.Phone, err)
	}
	s.doctorIDs.Store(d.Phone, stored.ID)
	return stored.ID, nil
}

// Backfill embeds visits that are absent, pending or failed, oldest first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of visits; non-positive means all.
// Returns:
//   - *IngestStats: counters for the run.
//   - error: non-nil if the candidates could not be listed.
func (s *IngestService) Backfill(ctx context.Context, limit int) (*IngestStats, error) {
	job, err := s.startJob(ctx, domain.JobKindBackfill, "")
	if err != nil {
		return nil, err
	}
	ctx = logger.SetJobID(ctx, job.ID)
	stats := &IngestStats{JobID: job.ID, StartTime: s.now()}

	visits, err := s.visits.ListByEmbeddingStatus(ctx, domain.RetryableEmbeddingStatuses(), limit)
	if err != nil {
		s.finishJob(ctx, job, stats, []string{err.Error()})
		return nil, fmt.Errorf("failed to list visits to backfill: %w", err)
	}
	stats.TotalItems = int64(len(visits))

	var errLog []string
	for _, v := range visits {
		if ctx.Err() != nil {
			break
		}
		stats.ProcessedItems++
		if err := s.worker.Process(ctx, v.ID); err != nil {
			stats.FailedItems++
			errLog = append(errLog, fmt.Sprintf("%s: %s", v.ID, domain.FailureKind(err)))
		}
	}

	stats.EndTime = s.now()
	s.finishJob(ctx, job, stats, errLog)

	logger.With(logger.Fields{
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
		logger.FieldCount:      stats.ProcessedItems,
		"failed":               stats.FailedItems,
	}).Info(ctx, "Backfill completed")
	return stats, nil
}

func (s *IngestService) startJob(ctx context.Context, kind domain.JobKind, sourceID string) (*domain.IngestJob, error) {
	started := s.now()
	job := &domain.IngestJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		SourceID:  sourceID,
		Status:    domain.JobStatusRunning,
		StartedAt: &started,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record job: %w", err)
	}
	return job, nil
}

func (s *IngestService) finishJob(ctx context.Context, job *domain.IngestJob, stats *IngestStats, errLog []string) {
	completed := s.now()
	job.CompletedAt = &completed
	job.TotalItems = int(stats.TotalItems)
	job.ProcessedItems = int(stats.ProcessedItems)
	job.SkippedItems = int(stats.SkippedItems)
	job.FailedItems = int(stats.FailedItems)
	job.ErrorLog = strings.Join(errLog, "\n")
	job.Status = domain.JobStatusCompleted
	if stats.ProcessedItems > 0 && stats.FailedItems == stats.ProcessedItems {
		job.Status = domain.JobStatusFailed
	}

	if err := s.jobs.Update(context.WithoutCancel(ctx), job); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to update job record")
	}
}
