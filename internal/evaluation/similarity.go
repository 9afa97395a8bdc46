package evaluation

import (
	"math"
	"sort"

	"github.com/ronith256/rag-agent/internal/storage/models"
)

// Cosine returns the cosine similarity of two vectors. Mismatched lengths or
// a zero-norm vector score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

// Aggregate computes summary statistics over per-item scores. Returns nil
// when no item succeeded, so the absence of data is distinguishable from a
// zero score.
func Aggregate(scores []float64) *models.AggregateMetrics {
	if len(scores) == 0 {
		return nil
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(len(sorted))

	var median float64
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	} else {
		median = sorted[mid]
	}

	var variance float64
	for _, s := range sorted {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(sorted))

	return &models.AggregateMetrics{
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Std:    math.Sqrt(variance),
	}
}
