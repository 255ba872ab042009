package repository

import (
	"context"

	"github.com/docassist/docassist/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VisitVectorRepository tracks which visits are mirrored into which Qdrant collection.
type VisitVectorRepository struct {
	db *gorm.DB
}

// NewVisitVectorRepository creates a new VisitVectorRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *VisitVectorRepository: repository instance bound to db.
func NewVisitVectorRepository(db *gorm.DB) *VisitVectorRepository {
	return &VisitVectorRepository{db: db}
}

// Upsert records a mirrored point, reactivating a previously deleted record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - record: mirror record keyed by visit and collection.
// Returns:
//   - error: non-nil if the write fails.
func (r *VisitVectorRepository) Upsert(ctx context.Context, record *domain.VisitVector) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visit_id"}, {Name: "collection"}},
		DoUpdates: clause.AssignmentColumns([]string{"embedding_model", "qdrant_point_id", "status"}),
	}).Create(record).Error
}

// CountActiveByCollection counts the active points mirrored into a collection.
func (r *VisitVectorRepository) CountActiveByCollection(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.VisitVector{}).
		Where("collection = ? AND status = ?", collection, domain.VisitVectorStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// MarkDeleted flags the visit's mirror record in a collection as deleted.
func (r *VisitVectorRepository) MarkDeleted(ctx context.Context, visitID, collection string) error {
	return r.db.WithContext(ctx).Model(&domain.VisitVector{}).
		Where("visit_id = ? AND collection = ?", visitID, collection).
		Update("status", domain.VisitVectorStatusDeleted).Error
}
