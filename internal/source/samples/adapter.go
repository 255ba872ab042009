// Package samples is the built-in demo data set: three doctors, five patients and five visits.
package samples

import (
	"context"

	"github.com/docassist/docassist/internal/source"
)

var (
	alice = source.DoctorItem{Name: "Dr. Alice Johnson", Phone: "doc123", Qualification: "MD Cardiology", ClinicalDomain: "Cardiology", YearsOfExperience: 10, Gender: "Female"}
	bob   = source.DoctorItem{Name: "Dr. Bob Smith", Phone: "doc456", Qualification: "MD Neurology", ClinicalDomain: "Neurology", YearsOfExperience: 8, Gender: "Male"}
	carol = source.DoctorItem{Name: "Dr. Carol Davis", Phone: "doc789", Qualification: "MD Pediatrics", ClinicalDomain: "Pediatrics", YearsOfExperience: 12, Gender: "Female"}
)

var sampleVisits = []source.VisitItem{
	{
		SourceID: "visit-1",
		Doctor:   alice,
		Patient:  source.PatientItem{Name: "John Doe", Age: 45, Gender: "Male", Phone: "555-5678", Address: "123 Main St, City"},
		Vitals:   source.VitalsItem{BloodPressure: "120/80", Oxygen: "98%", Weight: "75kg"},

		ClinicalTests:         "CBC normal, ECG shows minor anomaly",
		DoctorNoticed:         "Patient reports fatigue and mild chest discomfort",
		PrescribedMedications: "Iron supplement 1x daily, follow-up in 2 weeks",
		DaysAgo:               5,
	},
	{
		SourceID: "visit-2",
		Doctor:   alice,
		Patient:  source.PatientItem{Name: "Jane Smith", Age: 32, Gender: "Female", Phone: "555-9876", Address: "456 Oak Ave, Town"},
		Vitals:   source.VitalsItem{BloodPressure: "110/70", Oxygen: "99%", Weight: "62kg", DidRecover: true},

		ClinicalTests:         "Blood work normal, X-ray clear",
		DoctorNoticed:         "Patient recovered well from respiratory infection",
		PrescribedMedications: "Completed antibiotic course",
		DaysAgo:               10,
	},
	{
		SourceID: "visit-3",
		Doctor:   bob,
		Patient:  source.PatientItem{Name: "Mike Johnson", Age: 28, Gender: "Male", Phone: "555-4321", Address: "789 Pine St, Village"},
		Vitals:   source.VitalsItem{BloodPressure: "125/85", Oxygen: "97%", Weight: "80kg"},

		ClinicalTests:         "Stress test scheduled, lipid panel elevated",
		DoctorNoticed:         "High stress levels, needs lifestyle changes",
		PrescribedMedications: "Statin therapy, exercise program",
		DaysAgo:               3,
	},
	{
		SourceID: "visit-4",
		Doctor:   carol,
		Patient:  source.PatientItem{Name: "Sarah Wilson", Age: 55, Gender: "Female", Phone: "555-1111", Address: "321 Elm St, City"},
		Vitals:   source.VitalsItem{BloodPressure: "115/75", Oxygen: "98%", Weight: "58kg", DidRecover: true},

		ClinicalTests:         "Mammogram normal, blood sugar stable",
		DoctorNoticed:         "Regular checkup, patient maintaining good health",
		PrescribedMedications: "Continue current vitamins, annual follow-up",
		DaysAgo:               1,
	},
	{
		SourceID: "visit-5",
		Doctor:   bob,
		Patient:  source.PatientItem{Name: "Robert Brown", Age: 38, Gender: "Male", Phone: "555-2222", Address: "654 Maple Ave, Town"},
		Vitals:   source.VitalsItem{BloodPressure: "140/90", Oxygen: "96%", Weight: "85kg"},

		ClinicalTests:         "MRI shows mild disc herniation, muscle tension",
		DoctorNoticed:         "Chronic back pain, limited mobility",
		PrescribedMedications: "Physical therapy, anti-inflammatory medication",
		DaysAgo:               7,
	},
}

// Adapter serves the built-in sample visits.
type Adapter struct{}

// NewAdapter creates a new samples adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

func (a *Adapter) GetSourceID() string {
	return "samples"
}

func (a *Adapter) GetDisplayName() string {
	return "Built-in sample visits"
}

// FetchBatch pages through the sample visits.
func (a *Adapter) FetchBatch(ctx context.Context, cursor string, limit int) ([]source.VisitItem, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	return source.Page(sampleVisits, cursor, limit)
}
