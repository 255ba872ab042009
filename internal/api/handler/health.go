package handler

import (
	"context"
	"net/http"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/service"
	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and embedding statistics.
type HealthHandler struct {
	visitService *service.VisitService
	provider     service.EmbeddingProvider
	worker       *service.EmbeddingWorker
	mirror       MirrorCounter
}

// MirrorCounter reports how many visits are mirrored into the vector index.
type MirrorCounter interface {
	MirroredCount(ctx context.Context) (int64, error)
}

// NewHealthHandler creates a new health handler. worker and mirror may be nil.
func NewHealthHandler(visitService *service.VisitService, provider service.EmbeddingProvider, worker *service.EmbeddingWorker, mirror MirrorCounter) *HealthHandler {
	return &HealthHandler{visitService: visitService, provider: provider, worker: worker, mirror: mirror}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"embedding_ready": h.provider.Ready(),
	})
}

// StatsResponse describes embedding coverage of the visit corpus.
type StatsResponse struct {
	Visits         map[domain.EmbeddingStatus]int64 `json:"visits"`
	EmbeddingModel string                           `json:"embedding_model"`
	EmbeddingDim   int                              `json:"embedding_dim"`
	ProviderReady  bool                             `json:"provider_ready"`
	QueueLength    int                              `json:"queue_length"`
	MirroredPoints *int64                           `json:"mirrored_points,omitempty"`
}

// GetStats handles GET /api/v1/stats.
func (h *HealthHandler) GetStats(c *gin.Context) {
	counts, err := h.visitService.EmbeddingStats(c.Request.Context())
	if err != nil {
		respondError(c, "Failed to get stats", err)
		return
	}

	resp := StatsResponse{
		Visits:         counts,
		EmbeddingModel: h.provider.Model(),
		EmbeddingDim:   h.provider.Dimension(),
		ProviderReady:  h.provider.Ready(),
	}
	if h.worker != nil {
		resp.QueueLength = h.worker.QueueLength()
	}
	if h.mirror != nil {
		if n, err := h.mirror.MirroredCount(c.Request.Context()); err == nil {
			resp.MirroredPoints = &n
		} else {
			logger.CtxWarn(c.Request.Context(), "Failed to count mirrored points: %v", err)
		}
	}
	c.JSON(http.StatusOK, resp)
}
