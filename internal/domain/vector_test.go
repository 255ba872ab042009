package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorValueAndScan(t *testing.T) {
	v := Vector{0.5, -1, 2.25}

	raw, err := v.Value()
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-1,2.25]", raw)

	var back Vector
	require.NoError(t, back.Scan(raw))
	assert.Equal(t, v, back)

	require.NoError(t, back.Scan([]byte("[1,2]")))
	assert.Equal(t, Vector{1, 2}, back)
}

func TestVectorNilIsNull(t *testing.T) {
	var v Vector
	raw, err := v.Value()
	require.NoError(t, err)
	assert.Nil(t, raw)

	back := Vector{1}
	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrapped: %w", ErrProviderUnavailable), "provider_unavailable"},
		{fmt.Errorf("%w: %w", ErrProviderUnavailable, ErrDimensionMismatch), "dimension_mismatch"},
		{ErrEmbeddingAlreadySet, "already_embedded"},
		{ErrStoreUnavailable, "store_unavailable"},
		{ErrNotFound, "not_found"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FailureKind(tt.err))
	}
}

func TestVisitHelpers(t *testing.T) {
	recovered := true
	visit := &Visit{
		ID:              "v1",
		Patient:         &Patient{Age: 40, Gender: "Female"},
		Vitals:          Vitals{DidRecover: &recovered},
		Embedding:       Vector{1, 0},
		EmbeddingStatus: EmbeddingPresent,
	}
	assert.True(t, visit.HasEmbedding())
	assert.True(t, visit.Vitals.Recovered())
	assert.False(t, Vitals{}.Recovered())
	assert.False(t, EmbeddingPresent.Retryable())
	assert.True(t, EmbeddingFailed.Retryable())
	assert.Equal(t, []EmbeddingStatus{EmbeddingAbsent, EmbeddingPending, EmbeddingFailed}, RetryableEmbeddingStatuses())

	item := CorpusFromVisit(visit)
	assert.Equal(t, "v1", item.VisitID)
	assert.Equal(t, 40, item.PatientAge)
	assert.Equal(t, "Female", item.PatientGender)
}
