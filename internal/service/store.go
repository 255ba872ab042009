package service

import (
	"context"

	"github.com/docassist/docassist/internal/domain"
)

// VisitStore persists visits and their write-once embeddings.
type VisitStore interface {
	Create(ctx context.Context, visit *domain.Visit) error
	// GetByID returns the visit with its patient loaded, or domain.ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Visit, error)
	ExistsBySourceRef(ctx context.Context, ref string) (bool, error)
	ListByDoctor(ctx context.Context, doctorID string, skip, limit int) ([]domain.Visit, int64, error)
	ListByEmbeddingStatus(ctx context.Context, statuses []domain.EmbeddingStatus, limit int) ([]domain.Visit, error)
	CountByEmbeddingStatus(ctx context.Context) (map[domain.EmbeddingStatus]int64, error)
	// PatchEmbedding stores vector only if the visit has none yet and len(vector) == dim.
	PatchEmbedding(ctx context.Context, id string, vector []float32, model string, dim int) error
	// MarkEmbeddingStatus records pending or failed state; it never touches a present embedding.
	MarkEmbeddingStatus(ctx context.Context, id string, status domain.EmbeddingStatus, reason string) error
	Delete(ctx context.Context, id string) error
	CorpusReader
}

// CorpusReader loads the embedded visits that take part in ranking, in a stable order.
type CorpusReader interface {
	ListWithEmbedding(ctx context.Context, filter domain.CorpusFilter) ([]domain.CorpusItem, error)
}

// PatientStore resolves the patient a visit belongs to.
type PatientStore interface {
	// FindOrCreateByPhone returns the patient with p.Phone, creating p when none exists.
	FindOrCreateByPhone(ctx context.Context, p *domain.Patient) (*domain.Patient, bool, error)
}

// DoctorStore keeps the per-doctor visit counter.
type DoctorStore interface {
	IncrementTotalPatients(ctx context.Context, doctorID string) error
}

// VectorMirror copies embedded visits into an external vector index.
type VectorMirror interface {
	Upsert(ctx context.Context, item domain.CorpusItem, model string) error
	Delete(ctx context.Context, visitID string) error
}
