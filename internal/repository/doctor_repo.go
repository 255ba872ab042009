package repository

import (
	"context"

	"github.com/docassist/docassist/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DoctorRepository handles doctor data operations.
type DoctorRepository struct {
	db *gorm.DB
}

// NewDoctorRepository creates a new DoctorRepository.
func NewDoctorRepository(db *gorm.DB) *DoctorRepository {
	return &DoctorRepository{db: db}
}

// Upsert creates a doctor or refreshes the profile stored under the same phone.
// The visit counter and block flag are left as stored.
func (r *DoctorRepository) Upsert(ctx context.Context, d *domain.Doctor) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phone"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "qualification", "clinical_domain", "years_of_experience", "gender", "updated_at",
		}),
	}).Create(d).Error
}

// GetByID retrieves a doctor by ID.
func (r *DoctorRepository) GetByID(ctx context.Context, id string) (*domain.Doctor, error) {
	var d domain.Doctor
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// GetByPhone retrieves a doctor by phone number.
func (r *DoctorRepository) GetByPhone(ctx context.Context, phone string) (*domain.Doctor, error) {
	var d domain.Doctor
	if err := r.db.WithContext(ctx).First(&d, "phone = ?", phone).Error; err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

// List returns all doctors ordered by name.
func (r *DoctorRepository) List(ctx context.Context) ([]domain.Doctor, error) {
	var doctors []domain.Doctor
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&doctors).Error; err != nil {
		return nil, err
	}
	return doctors, nil
}

// IncrementTotalPatients adds one to the doctor's visit counter.
// Returns domain.ErrNotFound if the doctor is unknown.
func (r *DoctorRepository) IncrementTotalPatients(ctx context.Context, doctorID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Doctor{}).
		Where("id = ?", doctorID).
		UpdateColumn("total_patients", gorm.Expr("total_patients + ?", 1))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
