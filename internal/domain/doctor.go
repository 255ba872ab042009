package domain

import "time"

// Doctor authors visits. TotalPatients counts visits recorded by the doctor.
type Doctor struct {
	ID                string    `gorm:"type:text;primaryKey" json:"id"`
	Name              string    `gorm:"type:text;not null" json:"name"`
	Phone             string    `gorm:"type:text;not null;uniqueIndex:idx_doctors_phone" json:"phone"`
	Qualification     string    `gorm:"type:text" json:"qualification"`
	ClinicalDomain    string    `gorm:"type:text" json:"clinical_domain"`
	YearsOfExperience int       `json:"years_of_experience"`
	Gender            string    `gorm:"type:text" json:"gender"`
	IsBlocked         bool      `gorm:"default:false" json:"is_blocked"`
	TotalPatients     int       `gorm:"default:0" json:"total_patients"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (Doctor) TableName() string {
	return "doctors"
}
