package repository

import (
	"context"
	"errors"

	"github.com/docassist/docassist/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PatientRepository handles patient data operations.
type PatientRepository struct {
	db *gorm.DB
}

// NewPatientRepository creates a new PatientRepository.
func NewPatientRepository(db *gorm.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

// FindOrCreateByPhone returns the patient registered under p.Phone, inserting p if there is none.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - p: patient to create; its Phone is the lookup key.
// Returns:
//   - *domain.Patient: the stored patient.
//   - bool: true if p was inserted.
//   - error: non-nil if the lookup or insert fails.
func (r *PatientRepository) FindOrCreateByPhone(ctx context.Context, p *domain.Patient) (*domain.Patient, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phone"}}, DoNothing: true}).
		Create(p)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return p, true, nil
	}

	existing, err := r.GetByPhone(ctx, p.Phone)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a patient by ID.
func (r *PatientRepository) GetByID(ctx context.Context, id string) (*domain.Patient, error) {
	var p domain.Patient
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// GetByPhone retrieves a patient by phone number.
func (r *PatientRepository) GetByPhone(ctx context.Context, phone string) (*domain.Patient, error) {
	var p domain.Patient
	if err := r.db.WithContext(ctx).First(&p, "phone = ?", phone).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

// notFound maps gorm's missing-row error onto domain.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}
