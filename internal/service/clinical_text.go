package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/docassist/docassist/internal/domain"
)

const segmentSeparator = ". "

// Age group buckets.
const (
	AgeGroupPediatric = "pediatric"
	AgeGroupAdult     = "adult"
	AgeGroupElderly   = "elderly"
)

func normalizeWhitespace(text string) string {
	if text == "" {
		return ""
	}
	return strings.Join(strings.Fields(text), " ")
}

// truncateRunes cuts text to at most limit runes. A non-positive limit disables the cut.
func truncateRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// AgeGroup buckets an age: under 18 pediatric, 65 and over elderly, adult otherwise.
func AgeGroup(age int) string {
	switch {
	case age < 18:
		return AgeGroupPediatric
	case age >= 65:
		return AgeGroupElderly
	default:
		return AgeGroupAdult
	}
}

func appendSegment(segments []string, label, value string) []string {
	value = normalizeWhitespace(value)
	if value == "" {
		return segments
	}
	return append(segments, label+": "+value)
}

// ClinicalText renders the clinically relevant fields of a visit in a fixed
// order. Missing fields are skipped. Prescribed medications never appear.
func ClinicalText(visit *domain.Visit) string {
	if visit == nil {
		return ""
	}

	segments := make([]string, 0, 8)
	if p := visit.Patient; p != nil {
		segments = appendSegment(segments, "Gender", p.Gender)
		if p.Age >= 0 {
			segments = appendSegment(segments, "Age", strconv.Itoa(p.Age))
		}
	}

	segments = appendSegment(segments, "Blood pressure", visit.Vitals.BloodPressure)
	segments = appendSegment(segments, "Oxygen level", visit.Vitals.Oxygen)
	segments = appendSegment(segments, "Weight", visit.Vitals.Weight)
	segments = appendSegment(segments, "Clinical tests", visit.ClinicalTests)
	segments = appendSegment(segments, "Doctor observations", visit.DoctorNoticed)

	if visit.Vitals.DidRecover != nil {
		status := "in treatment"
		if *visit.Vitals.DidRecover {
			status = "recovered"
		}
		segments = append(segments, "Patient status: "+status)
	}

	return strings.Join(segments, segmentSeparator)
}

// DemographicsText renders the patient's age group and gender.
func DemographicsText(patient *domain.Patient) string {
	if patient == nil {
		return ""
	}

	segments := make([]string, 0, 2)
	if patient.Age >= 0 {
		segments = append(segments, "Age group: "+AgeGroup(patient.Age))
	}
	segments = appendSegment(segments, "Gender", patient.Gender)
	return strings.Join(segments, segmentSeparator)
}

// EmbeddingInput is the exact text embedded for a visit. Demographics appear
// twice. Stored vectors depend on this template staying byte-for-byte stable.
func EmbeddingInput(visit *domain.Visit, patient *domain.Patient) string {
	if patient == nil && visit != nil {
		patient = visit.Patient
	}
	if visit != nil && visit.Patient == nil && patient != nil {
		withPatient := *visit
		withPatient.Patient = patient
		visit = &withPatient
	}

	demographics := DemographicsText(patient)
	clinical := ClinicalText(visit)
	if demographics == "" && clinical == "" {
		return ""
	}
	return fmt.Sprintf("Age and other patient information: %s. Patient characteristics include: %s. %s",
		demographics, demographics, clinical)
}
