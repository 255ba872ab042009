package domain

import (
	"time"
)

// EmbeddingStatus tracks the lifecycle of a visit's embedding.
// Values include EmbeddingAbsent, EmbeddingPending, EmbeddingPresent, and EmbeddingFailed.
type EmbeddingStatus string

const (
	EmbeddingAbsent  EmbeddingStatus = "absent"
	EmbeddingPending EmbeddingStatus = "pending"
	EmbeddingPresent EmbeddingStatus = "present"
	EmbeddingFailed  EmbeddingStatus = "failed"
)

// EmbeddingStatuses lists every status in lifecycle order.
var EmbeddingStatuses = []EmbeddingStatus{EmbeddingAbsent, EmbeddingPending, EmbeddingPresent, EmbeddingFailed}

// Retryable reports whether a visit in this state may still receive an embedding.
func (s EmbeddingStatus) Retryable() bool {
	return s != EmbeddingPresent
}

// RetryableEmbeddingStatuses returns the statuses a backfill picks up.
func RetryableEmbeddingStatuses() []EmbeddingStatus {
	out := make([]EmbeddingStatus, 0, len(EmbeddingStatuses))
	for _, s := range EmbeddingStatuses {
		if s.Retryable() {
			out = append(out, s)
		}
	}
	return out
}

// Vitals are recorded at the visit. DidRecover is nil when not recorded.
type Vitals struct {
	BloodPressure string `gorm:"type:text" json:"blood_pressure,omitempty"`
	Oxygen        string `gorm:"type:text" json:"oxygen,omitempty"`
	Weight        string `gorm:"type:text" json:"weight,omitempty"`
	DidRecover    *bool  `json:"did_recover,omitempty"`
}

// Recovered reports DidRecover, treating "not recorded" as false.
func (v Vitals) Recovered() bool {
	return v.DidRecover != nil && *v.DidRecover
}

// Visit is one clinical encounter. Embedding stays nil until the
// background write succeeds, and is never overwritten afterwards.
type Visit struct {
	ID                    string          `gorm:"type:text;primaryKey" json:"id"`
	PatientID             string          `gorm:"type:text;not null;index:idx_visits_patient" json:"patient_id"`
	Patient               *Patient        `gorm:"foreignKey:PatientID;constraint:OnDelete:CASCADE" json:"patient,omitempty"`
	DoctorID              string          `gorm:"type:text;not null;index:idx_visits_doctor" json:"doctor_id"`
	Vitals                Vitals          `gorm:"embedded;embeddedPrefix:vitals_" json:"vitals"`
	ClinicalTests         string          `gorm:"type:text" json:"clinical_tests,omitempty"`
	DoctorNoticed         string          `gorm:"type:text" json:"doctor_noticed,omitempty"`
	PrescribedMedications string          `gorm:"type:text" json:"prescribed_medications,omitempty"`
	Embedding             Vector          `json:"-"`
	EmbeddingStatus       EmbeddingStatus `gorm:"type:text;index:idx_visits_embedding_status;default:absent" json:"embedding_status"`
	EmbeddingModel        string          `gorm:"type:text" json:"embedding_model,omitempty"`
	EmbeddingDim          int             `gorm:"default:0" json:"embedding_dim,omitempty"`
	EmbeddingError        string          `gorm:"type:text" json:"-"`
	EmbeddedAt            *time.Time      `json:"embedded_at,omitempty"`
	Date                  time.Time       `gorm:"index:idx_visits_date" json:"date"`
	SourceRef             string          `gorm:"type:text;index:idx_visits_source_ref" json:"source_ref,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Visit) TableName() string {
	return "visits"
}

// HasEmbedding reports whether the visit carries a stored vector.
func (v *Visit) HasEmbedding() bool {
	return v.EmbeddingStatus == EmbeddingPresent && len(v.Embedding) > 0
}

// CorpusItem is a visit's vector plus the display metadata needed to
// present it as a similar case, denormalized at read time.
type CorpusItem struct {
	VisitID               string    `json:"visit_id"`
	Vector                Vector    `json:"-"`
	PatientAge            int       `json:"patient_age"`
	PatientGender         string    `json:"patient_gender"`
	ClinicalTests         string    `json:"clinical_tests"`
	DoctorNoticed         string    `json:"doctor_noticed"`
	PrescribedMedications string    `json:"prescribed_medications"`
	Vitals                Vitals    `json:"vitals"`
	Date                  time.Time `json:"date"`
}

// CorpusFromVisit builds the corpus view of a visit loaded with its patient.
func CorpusFromVisit(v *Visit) CorpusItem {
	item := CorpusItem{
		VisitID:               v.ID,
		Vector:                v.Embedding,
		ClinicalTests:         v.ClinicalTests,
		DoctorNoticed:         v.DoctorNoticed,
		PrescribedMedications: v.PrescribedMedications,
		Vitals:                v.Vitals,
		Date:                  v.Date,
	}
	if v.Patient != nil {
		item.PatientAge = v.Patient.Age
		item.PatientGender = v.Patient.Gender
	}
	return item
}

// CorpusFilter narrows the set of embedded visits read for ranking.
// Model and Dim are required: only vectors stamped with both are comparable.
type CorpusFilter struct {
	Model          string
	Dim            int
	DoctorID       string
	PatientID      string
	ExcludeVisitID string
}
