package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/service"
	"github.com/docassist/docassist/internal/source"
	"github.com/gin-gonic/gin"
)

const recentJobsLimit = 20

// JobReader reads recorded import and backfill runs.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.IngestJob, error)
	ListRecent(ctx context.Context, limit int) ([]domain.IngestJob, error)
}

// AdminHandler runs maintenance jobs, one at a time.
type AdminHandler struct {
	ingestService *service.IngestService
	sources       map[string]source.Source
	jobs          JobReader

	mu            sync.RWMutex
	isRunning     bool
	currentJob    string
	lastStats     *service.IngestStats
	lastRunTime   time.Time
	lastRunStatus string
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - ingestService: ingest service instance.
//   - sources: importable sources keyed by source ID.
//   - jobs: job history; may be nil.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(ingestService *service.IngestService, sources map[string]source.Source, jobs JobReader) *AdminHandler {
	return &AdminHandler{ingestService: ingestService, sources: sources, jobs: jobs}
}

// IngestRequest represents the ingest API request.
type IngestRequest struct {
	Source string `json:"source" binding:"required"`
	Limit  int    `json:"limit" binding:"min=0,max=10000"`
}

// BackfillRequest represents the backfill API request.
type BackfillRequest struct {
	Limit int `json:"limit" binding:"min=0,max=10000"`
}

// JobResponse reports a finished maintenance job.
type JobResponse struct {
	Message string               `json:"message"`
	Stats   *service.IngestStats `json:"stats,omitempty"`
}

// JobStatusResponse reports whether a job is running and how the last one ended.
type JobStatusResponse struct {
	IsRunning     bool                 `json:"is_running"`
	CurrentJob    string               `json:"current_job,omitempty"`
	LastRunTime   string               `json:"last_run_time,omitempty"`
	LastRunStatus string               `json:"last_run_status,omitempty"`
	LastStats     *service.IngestStats `json:"last_stats,omitempty"`
}

// TriggerIngest handles POST /api/v1/admin/ingest.
func (h *AdminHandler) TriggerIngest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	src, ok := h.sources[req.Source]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown source: " + req.Source})
		return
	}

	h.run(c, "ingest:"+req.Source, func(ctx context.Context) (*service.IngestStats, error) {
		return h.ingestService.IngestFromSource(ctx, src, req.Limit)
	})
}

// TriggerBackfill handles POST /api/v1/admin/backfill.
func (h *AdminHandler) TriggerBackfill(c *gin.Context) {
	var req BackfillRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	h.run(c, "backfill", func(ctx context.Context) (*service.IngestStats, error) {
		return h.ingestService.Backfill(ctx, req.Limit)
	})
}

func (h *AdminHandler) run(c *gin.Context, name string, job func(ctx context.Context) (*service.IngestStats, error)) {
	ctx := c.Request.Context()

	h.mu.Lock()
	if h.isRunning {
		current := h.currentJob
		h.mu.Unlock()
		logger.CtxWarn(ctx, "Job rejected: job=%s, running=%s", name, current)
		c.JSON(http.StatusConflict, gin.H{"error": "A job is already running: " + current})
		return
	}
	h.isRunning = true
	h.currentJob = name
	h.mu.Unlock()

	// The job outlives a client disconnect but keeps the request's log fields.
	start := time.Now()
	stats, err := job(context.WithoutCancel(ctx))

	h.mu.Lock()
	h.isRunning = false
	h.currentJob = ""
	h.lastStats = stats
	h.lastRunTime = time.Now()
	if err != nil {
		h.lastRunStatus = name + " failed: " + err.Error()
	} else {
		h.lastRunStatus = name + " succeeded"
	}
	h.mu.Unlock()

	entry := logger.With(logger.Fields{logger.FieldDurationMs: time.Since(start).Milliseconds()})
	if err != nil {
		entry.Error(ctx, "Job failed: job=%s, error=%v", name, err)
		respondError(c, "Job failed", err)
		return
	}
	entry.Info(ctx, "Job completed: job=%s, total=%d, processed=%d, skipped=%d, failed=%d",
		name, stats.TotalItems, stats.ProcessedItems, stats.SkippedItems, stats.FailedItems)

	c.JSON(http.StatusOK, JobResponse{Message: "Job completed", Stats: stats})
}

// GetJobStatus handles GET /api/v1/admin/status.
func (h *AdminHandler) GetJobStatus(c *gin.Context) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := JobStatusResponse{
		IsRunning:     h.isRunning,
		CurrentJob:    h.currentJob,
		LastRunStatus: h.lastRunStatus,
		LastStats:     h.lastStats,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// ListJobs handles GET /api/v1/admin/jobs. With ?active=true only unfinished
// jobs are listed.
func (h *AdminHandler) ListJobs(c *gin.Context) {
	if h.jobs == nil {
		c.JSON(http.StatusOK, gin.H{"jobs": []domain.IngestJob{}})
		return
	}
	jobs, err := h.jobs.ListRecent(c.Request.Context(), recentJobsLimit)
	if err != nil {
		respondError(c, "Failed to list jobs", err)
		return
	}
	if c.Query("active") == "true" {
		active := make([]domain.IngestJob, 0, len(jobs))
		for i := range jobs {
			if !jobs[i].Finished() {
				active = append(active, jobs[i])
			}
		}
		jobs = active
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// GetJob handles GET /api/v1/admin/jobs/:id.
func (h *AdminHandler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		respondError(c, "Job not found", domain.ErrNotFound)
		return
	}
	job, err := h.jobs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Job not found", err)
		return
	}
	c.JSON(http.StatusOK, job)
}
