package domain

import "errors"

// Failure kinds shared by the store, the embedding providers and the services.
var (
	ErrNotFound            = errors.New("not found")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrStoreUnavailable    = errors.New("visit store unavailable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrEmbeddingAlreadySet = errors.New("embedding already set")
)

// FailureKind names an error for logs and the visit's embedding_error column.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDimensionMismatch):
		return "dimension_mismatch"
	case errors.Is(err, ErrEmbeddingAlreadySet):
		return "already_embedded"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "unknown"
	}
}
