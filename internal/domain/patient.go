package domain

import "time"

// Patient is identified by phone number; visits find or create it.
type Patient struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Name      string    `gorm:"type:text;not null" json:"name"`
	Age       int       `gorm:"not null" json:"age"`
	Gender    string    `gorm:"type:text" json:"gender"`
	Phone     string    `gorm:"type:text;not null;uniqueIndex:idx_patients_phone" json:"phone"`
	Address   string    `gorm:"type:text" json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Patient) TableName() string {
	return "patients"
}
