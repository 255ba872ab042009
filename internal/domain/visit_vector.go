package domain

import "time"

// VisitVector records that a visit's embedding was mirrored into a Qdrant collection.
type VisitVector struct {
	ID             string    `gorm:"type:text;primaryKey" json:"id"`
	VisitID        string    `gorm:"type:text;not null;uniqueIndex:idx_visit_vectors_visit_collection" json:"visit_id"`
	Collection     string    `gorm:"type:text;not null;uniqueIndex:idx_visit_vectors_visit_collection" json:"collection"`
	EmbeddingModel string    `gorm:"type:text;not null" json:"embedding_model"`
	QdrantPointID  string    `gorm:"type:text;not null" json:"qdrant_point_id"`
	Status         string    `gorm:"type:text;default:active" json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

func (VisitVector) TableName() string {
	return "visit_vectors"
}

const (
	VisitVectorStatusActive  = "active"
	VisitVectorStatusDeleted = "deleted"
)
