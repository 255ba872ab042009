package service

import (
	"context"
	"fmt"

	"github.com/docassist/docassist/internal/domain"
	"github.com/docassist/docassist/internal/repository"
)

// QdrantMirror keeps a Qdrant collection in step with embedded visits and
// records each mirrored point in visit_vectors.
type QdrantMirror struct {
	qdrant  *repository.QdrantRepository
	records *repository.VisitVectorRepository
}

// NewQdrantMirror creates a mirror over an already ensured collection.
func NewQdrantMirror(qdrant *repository.QdrantRepository, records *repository.VisitVectorRepository) *QdrantMirror {
	return &QdrantMirror{qdrant: qdrant, records: records}
}

// Upsert writes the point and then its bookkeeping record.
func (m *QdrantMirror) Upsert(ctx context.Context, item domain.CorpusItem, model string) error {
	if err := m.qdrant.Upsert(ctx, item, model); err != nil {
		return err
	}
	record := &domain.VisitVector{
		ID:             item.VisitID + ":" + m.qdrant.Collection(),
		VisitID:        item.VisitID,
		Collection:     m.qdrant.Collection(),
		EmbeddingModel: model,
		QdrantPointID:  item.VisitID,
		Status:         domain.VisitVectorStatusActive,
	}
	if err := m.records.Upsert(ctx, record); err != nil {
		return fmt.Errorf("point mirrored but not recorded: %w", err)
	}
	return nil
}

// Delete removes the point and flags its record as deleted.
func (m *QdrantMirror) Delete(ctx context.Context, visitID string) error {
	if err := m.qdrant.Delete(ctx, visitID); err != nil {
		return err
	}
	return m.records.MarkDeleted(ctx, visitID, m.qdrant.Collection())
}

// ListWithEmbedding reads the corpus from the collection.
func (m *QdrantMirror) ListWithEmbedding(ctx context.Context, filter domain.CorpusFilter) ([]domain.CorpusItem, error) {
	return m.qdrant.ListWithEmbedding(ctx, filter)
}

// MirroredCount counts the points currently recorded as mirrored.
func (m *QdrantMirror) MirroredCount(ctx context.Context) (int64, error) {
	return m.records.CountActiveByCollection(ctx, m.qdrant.Collection())
}
