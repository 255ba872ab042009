// Package similarity ranks stored case vectors against a query vector.
package similarity

import (
	"math"
	"sort"
)

const (
	// DefaultMinSimilarity admits almost every candidate.
	DefaultMinSimilarity = 0.1

	// DefaultTopK bounds the result size when the caller does not choose one.
	DefaultTopK = 5
)

// Candidate is one corpus entry: an item and its stored vector.
type Candidate[T any] struct {
	Item   T
	Vector []float32
}

// Match is a candidate that survived the threshold, with its score.
type Match[T any] struct {
	Item  T
	Score float64
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Empty, mismatched or zero-norm inputs score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Rank scores every candidate against query, keeps those scoring at least
// minSimilarity, and returns at most topK of them, best first.
// Equal scores keep corpus order. An empty corpus yields an empty result.
func Rank[T any](query []float32, corpus []Candidate[T], topK int, minSimilarity float64) []Match[T] {
	if topK <= 0 || len(corpus) == 0 {
		return []Match[T]{}
	}

	matches := make([]Match[T], 0, len(corpus))
	for _, c := range corpus {
		score := CosineSimilarity(query, c.Vector)
		if score >= minSimilarity {
			matches = append(matches, Match[T]{Item: c.Item, Score: score})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}

// RoundScore rounds a score to the given number of decimals for display.
func RoundScore(score float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(score*p) / p
}
