package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero norm query", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero norm stored", []float32{1, 1}, []float32{0, 0}, 0},
		{"length mismatch", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestCosineSimilaritySelf(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	assert.InDelta(t, 1.0, CosineSimilarity(v, v), 1e-6)
}

func TestRankOrdersAndTruncates(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Candidate[string]{
		{Item: "far", Vector: []float32{0.2, 1}},
		{Item: "exact", Vector: []float32{2, 0}},
		{Item: "close", Vector: []float32{1, 0.3}},
		{Item: "mid", Vector: []float32{1, 1}},
	}

	got := Rank(query, corpus, 2, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "exact", got[0].Item)
	assert.Equal(t, "close", got[1].Item)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
}

func TestRankThresholdIsInclusive(t *testing.T) {
	query := []float32{1, 0}
	corpus := []Candidate[int]{
		{Item: 1, Vector: []float32{1, 0}},
		{Item: 2, Vector: []float32{0, 1}},
	}

	got := Rank(query, corpus, 10, 1.0)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Item)

	got = Rank(query, corpus, 10, 0.0)
	assert.Len(t, got, 2)
}

func TestRankTiesKeepCorpusOrder(t *testing.T) {
	query := []float32{1, 1}
	corpus := []Candidate[string]{
		{Item: "first", Vector: []float32{2, 2}},
		{Item: "second", Vector: []float32{3, 3}},
		{Item: "third", Vector: []float32{1, 1}},
	}

	got := Rank(query, corpus, 3, DefaultMinSimilarity)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{got[0].Item, got[1].Item, got[2].Item})
}

func TestRankEmptyAndDegenerate(t *testing.T) {
	assert.Empty(t, Rank[string]([]float32{1}, nil, 5, 0.1))

	corpus := []Candidate[string]{{Item: "a", Vector: []float32{1, 0}}}
	assert.Empty(t, Rank([]float32{1, 0}, corpus, 0, 0.1))

	// A zero query scores 0 against everything and falls below the default threshold.
	assert.Empty(t, Rank([]float32{0, 0}, corpus, 5, DefaultMinSimilarity))
}

func TestRankScoresWithinBounds(t *testing.T) {
	query := []float32{0.5, -0.2, 0.9}
	corpus := []Candidate[int]{
		{Item: 0, Vector: []float32{-0.5, 0.2, -0.9}},
		{Item: 1, Vector: []float32{0.1, 0.1, 0.1}},
		{Item: 2, Vector: []float32{0.5, -0.2, 0.9}},
	}

	for _, m := range Rank(query, corpus, 10, -1) {
		assert.GreaterOrEqual(t, m.Score, -1.0-1e-9)
		assert.LessOrEqual(t, m.Score, 1.0+1e-9)
	}
}

func TestRoundScore(t *testing.T) {
	assert.Equal(t, 0.857, RoundScore(0.85714, 3))
	assert.Equal(t, 0.1, RoundScore(0.09996, 3))
}
