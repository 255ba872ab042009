package handler

import (
	"context"
	"net/http"

	"github.com/docassist/docassist/internal/api/middleware"
	"github.com/docassist/docassist/internal/domain"
	"github.com/gin-gonic/gin"
)

// DoctorReader loads doctor profiles.
type DoctorReader interface {
	GetByID(ctx context.Context, id string) (*domain.Doctor, error)
}

// DoctorHandler serves the calling doctor's profile.
type DoctorHandler struct {
	doctors DoctorReader
}

func NewDoctorHandler(doctors DoctorReader) *DoctorHandler {
	return &DoctorHandler{doctors: doctors}
}

// Profile handles GET /api/v1/doctors/me.
func (h *DoctorHandler) Profile(c *gin.Context) {
	doctor, err := h.doctors.GetByID(c.Request.Context(), middleware.DoctorID(c))
	if err != nil {
		respondError(c, "Error fetching profile", err)
		return
	}
	c.JSON(http.StatusOK, doctor)
}
