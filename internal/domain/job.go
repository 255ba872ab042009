package domain

import "time"

// JobStatus is the lifecycle state of an import or backfill run.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobKind distinguishes visit imports from embedding backfills.
type JobKind string

const (
	JobKindImport   JobKind = "import"
	JobKindBackfill JobKind = "backfill"
)

// IngestJob records one seed, import or backfill run and its counters.
// ErrorLog holds one line per failed visit.
type IngestJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Kind           JobKind    `gorm:"type:text;not null;index" json:"kind"`
	SourceID       string     `gorm:"type:text;index" json:"source_id,omitempty"`
	Status         JobStatus  `gorm:"type:text;not null;default:running" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	SkippedItems   int        `gorm:"default:0" json:"skipped_items"`
	FailedItems    int        `gorm:"default:0" json:"failed_items"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `json:"error_log,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (IngestJob) TableName() string {
	return "ingest_jobs"
}

// Finished reports whether the run has ended, successfully or not.
func (j *IngestJob) Finished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
