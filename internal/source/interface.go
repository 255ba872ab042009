package source

import (
	"context"
	"fmt"
	"strconv"
)

// DoctorItem describes the doctor who recorded an imported visit.
type DoctorItem struct {
	Name              string `json:"name"`
	Phone             string `json:"phone"`
	Qualification     string `json:"qualification"`
	ClinicalDomain    string `json:"clinical_domain"`
	YearsOfExperience int    `json:"years_of_experience"`
	Gender            string `json:"gender"`
}

// PatientItem describes the patient of an imported visit.
type PatientItem struct {
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// VitalsItem mirrors the vitals block of a visit.
type VitalsItem struct {
	BloodPressure string `json:"blood_pressure"`
	Oxygen        string `json:"oxygen"`
	Weight        string `json:"weight"`
	DidRecover    bool   `json:"did_recover"`
}

// VisitItem is one visit from a data source.
type VisitItem struct {
	SourceID              string      `json:"id"` // unique within the source
	Doctor                DoctorItem  `json:"doctor"`
	Patient               PatientItem `json:"patient"`
	Vitals                VitalsItem  `json:"vitals"`
	ClinicalTests         string      `json:"clinical_tests"`
	DoctorNoticed         string      `json:"doctor_noticed"`
	PrescribedMedications string      `json:"prescribed_medications"`
	DaysAgo               int         `json:"days_ago"`
}

// Source defines the interface for visit data sources.
type Source interface {
	// GetSourceID returns the unique identifier for this source.
	GetSourceID() string

	// GetDisplayName returns a human-readable name for this source.
	GetDisplayName() string

	// FetchBatch fetches a batch of visit items starting from the given cursor.
	// Parameters:
	//   - ctx: context for cancellation and deadlines.
	//   - cursor: pagination cursor or empty for first page.
	//   - limit: maximum number of items to fetch.
	// Returns:
	//   - items: batch of visit items.
	//   - nextCursor: cursor for the next batch or empty if done.
	//   - err: non-nil if fetching fails.
	FetchBatch(ctx context.Context, cursor string, limit int) (items []VisitItem, nextCursor string, err error)
}

// Page slices an in-memory item list with an index cursor.
func Page(items []VisitItem, cursor string, limit int) ([]VisitItem, string, error) {
	start := 0
	if cursor != "" {
		var err error
		start, err = strconv.Atoi(cursor)
		if err != nil || start < 0 {
			return nil, "", fmt.Errorf("invalid cursor %q", cursor)
		}
	}
	if start >= len(items) {
		return []VisitItem{}, "", nil
	}

	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	next := ""
	if end < len(items) {
		next = strconv.Itoa(end)
	}
	return items[start:end], next, nil
}
