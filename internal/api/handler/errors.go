package handler

import (
	"errors"
	"net/http"

	"github.com/docassist/docassist/internal/domain"
	"github.com/gin-gonic/gin"
)

// respondError maps a service error to its HTTP status.
func respondError(c *gin.Context, prefix string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStoreUnavailable), errors.Is(err, domain.ErrProviderUnavailable):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": prefix + ": " + err.Error()})
}
