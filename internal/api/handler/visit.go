package handler

import (
	"net/http"
	"strconv"

	"github.com/docassist/docassist/internal/api/middleware"
	"github.com/docassist/docassist/internal/logger"
	"github.com/docassist/docassist/internal/service"
	"github.com/gin-gonic/gin"
)

// VisitHandler serves the doctor's own visits.
type VisitHandler struct {
	visitService *service.VisitService
	queryService *service.CaseQueryService
}

// NewVisitHandler creates a new visit handler.
// Parameters:
//   - visitService: visit write path and lookups.
//   - queryService: similarity queries.
// Returns:
//   - *VisitHandler: initialized handler.
func NewVisitHandler(visitService *service.VisitService, queryService *service.CaseQueryService) *VisitHandler {
	return &VisitHandler{visitService: visitService, queryService: queryService}
}

// CreateVisit handles POST /api/v1/visits.
// The response does not depend on whether the visit could be embedded.
func (h *VisitHandler) CreateVisit(c *gin.Context) {
	var req service.CreateVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	req.SourceRef = ""

	result, err := h.visitService.CreateVisit(c.Request.Context(), middleware.DoctorID(c), &req)
	if err != nil {
		respondError(c, "Error creating visit", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListVisits handles GET /api/v1/visits?skip=&limit=.
func (h *VisitHandler) ListVisits(c *gin.Context) {
	skip, err := queryInt(c, "skip", 0)
	if err != nil || skip < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'skip' must be a non-negative integer"})
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'limit' must be a non-negative integer"})
		return
	}

	list, err := h.visitService.ListVisits(c.Request.Context(), middleware.DoctorID(c), skip, limit)
	if err != nil {
		respondError(c, "Error fetching visits", err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetVisit handles GET /api/v1/visits/:id.
func (h *VisitHandler) GetVisit(c *gin.Context) {
	visit, err := h.visitService.GetVisit(c.Request.Context(), middleware.DoctorID(c), c.Param("id"))
	if err != nil {
		respondError(c, "Error fetching visit", err)
		return
	}
	c.JSON(http.StatusOK, visit)
}

// DeleteVisit handles DELETE /api/v1/visits/:id.
func (h *VisitHandler) DeleteVisit(c *gin.Context) {
	ctx := logger.SetVisitID(c.Request.Context(), c.Param("id"))
	if err := h.visitService.DeleteVisit(ctx, middleware.DoctorID(c), c.Param("id")); err != nil {
		respondError(c, "Error deleting visit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Visit deleted successfully"})
}

// SimilarVisits handles GET /api/v1/visits/:id/similar?top_k=.
func (h *VisitHandler) SimilarVisits(c *gin.Context) {
	topK, err := queryInt(c, "top_k", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'top_k' must be an integer"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.visitService.GetVisit(ctx, middleware.DoctorID(c), c.Param("id")); err != nil {
		respondError(c, "Error fetching visit", err)
		return
	}

	resp, err := h.queryService.SimilarToVisit(ctx, c.Param("id"), topK)
	if err != nil {
		respondError(c, "Error finding similar visits", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
