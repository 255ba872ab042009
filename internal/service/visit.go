package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docassist/docassist/internal/config"
	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/logger"
	"github.com/google/uuid"
)

const (
	defaultVisitPageSize = 50
	maxVisitPageSize     = 100
)

// VitalsInput is the vitals block of a new visit.
type VitalsInput struct {
	BloodPressure string `json:"blood_pressure"`
	Oxygen        string `json:"oxygen"`
	Weight        string `json:"weight"`
	DidRecover    bool   `json:"did_recover"`
}

// CreateVisitRequest carries a new visit together with the patient it belongs to.
type CreateVisitRequest struct {
	PatientName           string      `json:"patient_name" binding:"required"`
	PatientAge            *int        `json:"patient_age" binding:"required,gte=0,lte=150"`
	PatientGender         string      `json:"patient_gender" binding:"required"`
	PatientPhone          string      `json:"patient_phone" binding:"required"`
	PatientAddress        string      `json:"patient_address"`
	Vitals                VitalsInput `json:"vitals"`
	ClinicalTests         string      `json:"clinical_tests"`
	DoctorNoticed         string      `json:"doctor_noticed"`
	PrescribedMedications string      `json:"prescribed_medications"`
	// Date backdates the visit; nil means now.
	Date *time.Time `json:"date,omitempty"`
	// SourceRef identifies imported visits so re-imports can skip them.
	SourceRef string `json:"-"`
}

// CreateVisitResult reports the stored identifiers. Embedding state is not part of it.
type CreateVisitResult struct {
	Message   string `json:"message"`
	VisitID   string `json:"visit_id"`
	PatientID string `json:"patient_id"`
}

// VisitList is one page of a doctor's visits.
type VisitList struct {
	Visits []domain.Visit `json:"visits"`
	Total  int64          `json:"total"`
	Skip   int            `json:"skip"`
	Limit  int            `json:"limit"`
}

// VisitService records visits and schedules their embeddings.
type VisitService struct {
	visits    VisitStore
	patients  PatientStore
	doctors   DoctorStore
	worker    *EmbeddingWorker
	mirror    VectorMirror
	writeMode string
	logger    *logger.Logger
	now       func() time.Time
}

// NewVisitService wires the visit write path. mirror may be nil.
// writeMode is config.WriteModeAsync or config.WriteModeSync.
func NewVisitService(
	visits VisitStore,
	patients PatientStore,
	doctors DoctorStore,
	worker *EmbeddingWorker,
	mirror VectorMirror,
	writeMode string,
	log *logger.Logger,
) *VisitService {
	if writeMode == "" {
		writeMode = config.WriteModeAsync
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &VisitService{
		visits:    visits,
		patients:  patients,
		doctors:   doctors,
		worker:    worker,
		mirror:    mirror,
		writeMode: writeMode,
		logger:    log,
		now:       time.Now,
	}
}

func (s *VisitService) log(ctx context.Context) *logger.Logger {
	if ctx != nil {
		return logger.FromContext(ctx)
	}
	return s.logger
}

// CreateVisit stores a visit and then tries to embed it.
// Only the patient lookup and the visit insert can fail the call; the
// embedding runs afterwards and its failures are logged, never returned.
// Parameters:
//   - ctx: request context.
//   - doctorID: authenticated doctor recording the visit.
//   - req: visit and patient details.
// Returns:
//   - *CreateVisitResult: identifiers of the stored visit and patient.
//   - error: non-nil if the visit was not stored.
func (s *VisitService) CreateVisit(ctx context.Context, doctorID string, req *CreateVisitRequest) (*CreateVisitResult, error) {
	ctx = logger.SetDoctorID(ctx, doctorID)
	if req.PatientAge == nil {
		return nil, fmt.Errorf("patient age is required")
	}

	patient, created, err := s.patients.FindOrCreateByPhone(ctx, &domain.Patient{
		ID:      uuid.New().String(),
		Name:    strings.TrimSpace(req.PatientName),
		Age:     *req.PatientAge,
		Gender:  strings.TrimSpace(req.PatientGender),
		Phone:   strings.TrimSpace(req.PatientPhone),
		Address: strings.TrimSpace(req.PatientAddress),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}

	didRecover := req.Vitals.DidRecover
	visit := &domain.Visit{
		ID:        uuid.New().String(),
		PatientID: patient.ID,
		DoctorID:  doctorID,
		Vitals: domain.Vitals{
			BloodPressure: req.Vitals.BloodPressure,
			Oxygen:        req.Vitals.Oxygen,
			Weight:        req.Vitals.Weight,
			DidRecover:    &didRecover,
		},
		ClinicalTests:         req.ClinicalTests,
		DoctorNoticed:         req.DoctorNoticed,
		PrescribedMedications: req.PrescribedMedications,
		EmbeddingStatus:       domain.EmbeddingAbsent,
		Date:                  s.now().UTC(),
		SourceRef:             req.SourceRef,
	}
	if req.Date != nil {
		visit.Date = req.Date.UTC()
	}
	if s.writeMode == config.WriteModeAsync {
		visit.EmbeddingStatus = domain.EmbeddingPending
	}

	if err := s.visits.Create(ctx, visit); err != nil {
		return nil, fmt.Errorf("failed to store visit: %w", err)
	}
	ctx = logger.SetVisitID(ctx, visit.ID)

	if err := s.doctors.IncrementTotalPatients(ctx, doctorID); err != nil {
		s.log(ctx).WithError(err).Warn("Failed to update doctor patient count")
	}

	s.log(ctx).WithFields(logger.Fields{
		"patient_id":      patient.ID,
		"patient_created": created,
		"write_mode":      s.writeMode,
	}).Info("Visit stored")

	s.scheduleEmbedding(ctx, visit.ID)

	return &CreateVisitResult{
		Message:   "Visit created successfully",
		VisitID:   visit.ID,
		PatientID: patient.ID,
	}, nil
}

func (s *VisitService) scheduleEmbedding(ctx context.Context, visitID string) {
	if s.worker == nil {
		return
	}
	if s.writeMode == config.WriteModeSync {
		// Errors are already logged and recorded by the worker.
		_ = s.worker.Process(ctx, visitID)
		return
	}
	s.worker.Enqueue(ctx, EmbeddingJob{VisitID: visitID, RequestID: logger.GetRequestID(ctx)})
}

// GetVisit returns one of the doctor's visits.
func (s *VisitService) GetVisit(ctx context.Context, doctorID, visitID string) (*domain.Visit, error) {
	visit, err := s.visits.GetByID(ctx, visitID)
	if err != nil {
		return nil, err
	}
	if visit.DoctorID != doctorID {
		return nil, domain.ErrNotFound
	}
	return visit, nil
}

// ListVisits pages through the doctor's visits, newest first. limit is capped at 100.
func (s *VisitService) ListVisits(ctx context.Context, doctorID string, skip, limit int) (*VisitList, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = defaultVisitPageSize
	}
	if limit > maxVisitPageSize {
		limit = maxVisitPageSize
	}

	visits, total, err := s.visits.ListByDoctor(ctx, doctorID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list visits: %w", err)
	}
	return &VisitList{Visits: visits, Total: total, Skip: skip, Limit: limit}, nil
}

// DeleteVisit removes the visit, its embedding and any mirrored vector.
func (s *VisitService) DeleteVisit(ctx context.Context, doctorID, visitID string) error {
	if _, err := s.GetVisit(ctx, doctorID, visitID); err != nil {
		return err
	}
	if err := s.visits.Delete(ctx, visitID); err != nil {
		return fmt.Errorf("failed to delete visit: %w", err)
	}

	if s.mirror != nil {
		if err := s.mirror.Delete(ctx, visitID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.log(ctx).WithError(err).Warn("Failed to delete mirrored vector")
		}
	}
	return nil
}

// EmbeddingStats counts visits per embedding status.
func (s *VisitService) EmbeddingStats(ctx context.Context) (map[domain.EmbeddingStatus]int64, error) {
	return s.visits.CountByEmbeddingStatus(ctx)
}
