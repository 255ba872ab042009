package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/docassist/docassist/internal/domain"
	"gorm.io/gorm"
)

// VisitRepository stores visits and their write-once embeddings.
type VisitRepository struct {
	db *gorm.DB
}

// NewVisitRepository creates a new VisitRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *VisitRepository: repository instance bound to db.
func NewVisitRepository(db *gorm.DB) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create inserts a visit. Its embedding is expected to be nil.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - visit: visit record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *VisitRepository) Create(ctx context.Context, visit *domain.Visit) error {
	if visit.EmbeddingStatus == "" {
		visit.EmbeddingStatus = domain.EmbeddingAbsent
	}
	return r.db.WithContext(ctx).Omit("Patient").Create(visit).Error
}

// GetByID retrieves a visit with its patient.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: visit ID.
// Returns:
//   - *domain.Visit: visit record if found.
//   - error: domain.ErrNotFound if no visit has this ID.
func (r *VisitRepository) GetByID(ctx context.Context, id string) (*domain.Visit, error) {
	var visit domain.Visit
	if err := r.db.WithContext(ctx).Preload("Patient").First(&visit, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &visit, nil
}

// ExistsBySourceRef checks if a visit was already imported under ref.
func (r *VisitRepository) ExistsBySourceRef(ctx context.Context, ref string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Visit{}).Where("source_ref = ?", ref).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByDoctor returns a page of the doctor's visits, newest first, and the doctor's total.
func (r *VisitRepository) ListByDoctor(ctx context.Context, doctorID string, skip, limit int) ([]domain.Visit, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Visit{}).
		Where("doctor_id = ?", doctorID).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var visits []domain.Visit
	if err := r.db.WithContext(ctx).Preload("Patient").
		Where("doctor_id = ?", doctorID).
		Order("date DESC").Order("id DESC").
		Offset(skip).Limit(limit).
		Find(&visits).Error; err != nil {
		return nil, 0, err
	}
	return visits, total, nil
}

// ListByEmbeddingStatus returns the oldest visits in any of the given states.
func (r *VisitRepository) ListByEmbeddingStatus(ctx context.Context, statuses []domain.EmbeddingStatus, limit int) ([]domain.Visit, error) {
	var visits []domain.Visit
	q := r.db.WithContext(ctx).Preload("Patient").
		Where("embedding_status IN ?", statuses).
		Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&visits).Error; err != nil {
		return nil, err
	}
	return visits, nil
}

// CountByEmbeddingStatus counts visits per embedding state.
func (r *VisitRepository) CountByEmbeddingStatus(ctx context.Context) (map[domain.EmbeddingStatus]int64, error) {
	var rows []struct {
		EmbeddingStatus domain.EmbeddingStatus
		Count           int64
	}
	if err := r.db.WithContext(ctx).Model(&domain.Visit{}).
		Select("embedding_status, COUNT(*) AS count").
		Group("embedding_status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[domain.EmbeddingStatus]int64, len(domain.EmbeddingStatuses))
	for _, status := range domain.EmbeddingStatuses {
		counts[status] = 0
	}
	for _, row := range rows {
		counts[row.EmbeddingStatus] = row.Count
	}
	return counts, nil
}

// PatchEmbedding stores a vector on a visit that has none yet.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: visit ID.
//   - vector: embedding; must have exactly dim components.
//   - model: embedding model stamped alongside the vector.
//   - dim: dimension of the active provider.
// Returns:
//   - error: domain.ErrDimensionMismatch, domain.ErrEmbeddingAlreadySet,
//     domain.ErrNotFound, or a database error.
func (r *VisitRepository) PatchEmbedding(ctx context.Context, id string, vector []float32, model string, dim int) error {
	if len(vector) != dim {
		return fmt.Errorf("%w: got %d components, expected %d", domain.ErrDimensionMismatch, len(vector), dim)
	}

	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Visit{}).
		Where("id = ? AND embedding IS NULL", id).
		Updates(map[string]interface{}{
			"embedding":        domain.Vector(vector),
			"embedding_status": domain.EmbeddingPresent,
			"embedding_model":  model,
			"embedding_dim":    len(vector),
			"embedding_error":  "",
			"embedded_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Visit{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrEmbeddingAlreadySet
}

// MarkEmbeddingStatus records a pending or failed state with an optional reason.
// Visits that already carry an embedding are not modified.
func (r *VisitRepository) MarkEmbeddingStatus(ctx context.Context, id string, status domain.EmbeddingStatus, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Visit{}).
		Where("id = ? AND embedding_status <> ?", id, domain.EmbeddingPresent).
		Updates(map[string]interface{}{
			"embedding_status": status,
			"embedding_error":  reason,
		}).Error
}

// ListWithEmbedding returns embedded visits stamped with filter.Model and
// filter.Dim, joined with patient demographics, in insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: model and dimension of the active provider plus optional scoping.
// Returns:
//   - []domain.CorpusItem: corpus in stable order; empty when nothing is embedded.
//   - error: non-nil if the query fails.
func (r *VisitRepository) ListWithEmbedding(ctx context.Context, filter domain.CorpusFilter) ([]domain.CorpusItem, error) {
	q := r.db.WithContext(ctx).Preload("Patient").
		Where("embedding IS NOT NULL AND embedding_status = ?", domain.EmbeddingPresent).
		Where("embedding_model = ? AND embedding_dim = ?", filter.Model, filter.Dim)
	if filter.DoctorID != "" {
		q = q.Where("doctor_id = ?", filter.DoctorID)
	}
	if filter.PatientID != "" {
		q = q.Where("patient_id = ?", filter.PatientID)
	}
	if filter.ExcludeVisitID != "" {
		q = q.Where("id <> ?", filter.ExcludeVisitID)
	}

	var visits []domain.Visit
	if err := q.Order("created_at ASC").Order("id ASC").Find(&visits).Error; err != nil {
		return nil, err
	}

	items := make([]domain.CorpusItem, 0, len(visits))
	for i := range visits {
		if len(visits[i].Embedding) != filter.Dim {
			continue
		}
		items = append(items, domain.CorpusFromVisit(&visits[i]))
	}
	return items, nil
}

// Delete removes a visit and with it the stored embedding.
func (r *VisitRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&domain.Visit{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
