package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
)

// EmbeddingJob asks the worker to embed one stored visit.
type EmbeddingJob struct {
	VisitID   string
	RequestID string
}

// EmbeddingWorkerConfig sizes the worker pool and its queue.
type EmbeddingWorkerConfig struct {
	Workers   int
	QueueSize int
}

// EmbeddingWorker embeds stored visits in the background. Jobs sit in an
// in-process queue; a visit whose job is lost stays pending until backfill.
type EmbeddingWorker struct {
	visits   VisitStore
	provider EmbeddingProvider
	mirror   VectorMirror
	logger   *logger.Logger

	workers int
	queue   chan EmbeddingJob
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewEmbeddingWorker creates a stopped worker. mirror may be nil.
func NewEmbeddingWorker(
	visits VisitStore,
	provider EmbeddingProvider,
	mirror VectorMirror,
	log *logger.Logger,
	cfg *EmbeddingWorkerConfig,
) *EmbeddingWorker {
	workers, size := 1, 64
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.QueueSize > 0 {
			size = cfg.QueueSize
		}
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &EmbeddingWorker{
		visits:   visits,
		provider: provider,
		mirror:   mirror,
		logger:   log,
		workers:  workers,
		queue:    make(chan EmbeddingJob, size),
	}
}

func (w *EmbeddingWorker) log(ctx context.Context) *logger.Logger {
	if ctx != nil {
		return logger.FromContext(ctx)
	}
	return w.logger
}

// Start launches the worker goroutines. They run until Stop drains the queue.
func (w *EmbeddingWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true

	ctx = logger.SetComponent(ctx, "embedding_worker")
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			for job := range w.queue {
				jobCtx := logger.SetRequestID(ctx, job.RequestID)
				_ = w.Process(jobCtx, job.VisitID)
			}
		}()
	}
	w.log(ctx).WithField("workers", w.workers).Info("Embedding worker started")
}

// Enqueue schedules a visit without blocking. It reports false when the
// queue is full or the worker has stopped.
func (w *EmbeddingWorker) Enqueue(ctx context.Context, job EmbeddingJob) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return false
	}

	select {
	case w.queue <- job:
		return true
	default:
		logger.CtxWarn(ctx, "Embedding queue full, visit left pending: visit_id=%s", job.VisitID)
		return false
	}
}

// QueueLength returns the number of jobs waiting.
func (w *EmbeddingWorker) QueueLength() int {
	return len(w.queue)
}

// Stop closes the queue and waits for in-flight jobs or ctx, whichever comes first.
func (w *EmbeddingWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	close(w.queue)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("embedding worker stop: %w", ctx.Err())
	}
}

// Process embeds one visit synchronously and stores the vector.
// A visit that already has an embedding is left untouched.
// Any failure is logged and recorded on the visit before being returned.
func (w *EmbeddingWorker) Process(ctx context.Context, visitID string) error {
	ctx = logger.SetVisitID(ctx, visitID)
	start := time.Now()

	visit, err := w.visits.GetByID(ctx, visitID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			w.log(ctx).Warn("Visit vanished before embedding")
			return err
		}
		return w.fail(ctx, visitID, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err))
	}
	if visit.HasEmbedding() {
		w.log(ctx).Debug("Visit already embedded, skipping")
		return nil
	}

	if err := w.provider.Initialize(ctx); err != nil {
		return w.fail(ctx, visitID, err)
	}

	vector, err := w.provider.Embed(ctx, EmbeddingInput(visit, visit.Patient))
	if err != nil {
		return w.fail(ctx, visitID, err)
	}

	model := w.provider.Model()
	if err := w.visits.PatchEmbedding(ctx, visitID, vector, model, w.provider.Dimension()); err != nil {
		return w.fail(ctx, visitID, err)
	}

	if w.mirror != nil {
		visit.Embedding = vector
		if err := w.mirror.Upsert(ctx, domain.CorpusFromVisit(visit), model); err != nil {
			w.log(ctx).WithError(err).Warn("Failed to mirror embedding to vector index")
		}
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
		"embedding_dim":        len(vector),
	}).Info(ctx, "Visit embedding stored")
	return nil
}

// fail is the single place embedding failures are classified, logged and recorded.
func (w *EmbeddingWorker) fail(ctx context.Context, visitID string, err error) error {
	kind := domain.FailureKind(err)
	if errors.Is(err, domain.ErrEmbeddingAlreadySet) {
		w.log(ctx).Debug("Embedding written concurrently, keeping existing vector")
		return nil
	}

	w.log(ctx).WithFields(logger.Fields{
		"failure_kind": kind,
	}).WithError(err).Error("Visit embedding failed")

	if markErr := w.visits.MarkEmbeddingStatus(ctx, visitID, domain.EmbeddingFailed, kind+": "+err.Error()); markErr != nil {
		w.log(ctx).WithError(markErr).Warn("Failed to record embedding failure")
	}
	return err
}
