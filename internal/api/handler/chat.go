package handler

import (
	"net/http"

	"github.com/docassist/docassist/internal/service"
	"github.com/gin-gonic/gin"
)

// ChatHandler answers free-text case questions.
type ChatHandler struct {
	queryService *service.CaseQueryService
	topK         int
}

// NewChatHandler creates a chat handler returning at most topK cases;
// non-positive topK uses the service default.
func NewChatHandler(queryService *service.CaseQueryService, topK int) *ChatHandler {
	return &ChatHandler{queryService: queryService, topK: topK}
}

// Chat handles POST /api/v1/chat. Ranking failures are answered with the
// no-match message, never with an error status.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req service.ChatQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.queryService.AnswerQuery(c.Request.Context(), &req, h.topK))
}
