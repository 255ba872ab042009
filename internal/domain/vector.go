package domain

import (
	"database/sql/driver"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector is an embedding stored in pgvector text form ("[0.1,0.2]").
// It maps to a vector column on PostgreSQL and to text elsewhere. Nil is NULL.
type Vector []float32

// Value implements driver.Valuer.
// Parameters: none.
// Returns:
//   - driver.Value: nil for an absent vector, otherwise its pgvector text form.
//   - error: always nil.
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return pgvector.NewVector(v).Value()
}

// Scan implements sql.Scanner.
// Parameters:
//   - src: raw column value, NULL, string or []byte.
// Returns:
//   - error: non-nil if the value is not a pgvector literal.
func (v *Vector) Scan(src interface{}) error {
	if src == nil {
		*v = nil
		return nil
	}
	var pv pgvector.Vector
	if err := pv.Scan(src); err != nil {
		return err
	}
	*v = pv.Slice()
	return nil
}

// GormDBDataType picks the column type per dialect.
func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}
