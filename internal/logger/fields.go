package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, propagated through context.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldQueryID   = "query_id"
	FieldVisitID   = "visit_id"
	FieldDoctorID  = "doctor_id"
	FieldComponent = "component"
)

// Metric fields, attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldStatus     = "status"
	FieldScore      = "score"
)
