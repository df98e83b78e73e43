package vector

import "github.com/hyperjump/primr/pkg/utils"

// cosine scores a against b given their precomputed norms, clamped to [-1, 1].
// A zero norm scores 0.
func cosine(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	s := utils.Dot(a, b) / (normA * normB)
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
