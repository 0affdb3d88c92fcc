package memory

import (
	"math"
)

// MMR selects up to k candidates by maximal marginal relevance. Each step
// picks the candidate maximizing
//
//	lambda*sim(query, d) - (1-lambda)*max(sim(d, s) for s already selected)
//
// so lambda=1 is a pure similarity ranking and lambda=0 pure diversity. The
// first pick is always the candidate closest to the query. Ties keep the
// candidate order.
func MMR(query []float32, candidates []ScoredDocument, k int, lambda float64) []ScoredDocument {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	k = min(k, len(candidates))

	relevance := make([]float64, len(candidates))
	for i, c := range candidates {
		if len(c.Embedding) == len(query) && len(query) > 0 {
			relevance[i] = float64(cosineSimilarity(query, c.Embedding))
		} else {
			relevance[i] = float64(c.Similarity)
		}
	}

	// redundancy[i] is the highest similarity of candidate i to any selected one.
	redundancy := make([]float64, len(candidates))
	for i := range redundancy {
		redundancy[i] = math.Inf(-1)
	}
	used := make([]bool, len(candidates))
	selected := make([]ScoredDocument, 0, k)

	for len(selected) < k {
		best := -1
		bestScore := math.Inf(-1)
		for i := range candidates {
			if used[i] {
				continue
			}
			score := relevance[i]
			if len(selected) > 0 {
				score = lambda*relevance[i] - (1-lambda)*redundancy[i]
			}
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		if best < 0 {
			break
		}

		used[best] = true
		selected = append(selected, candidates[best])

		for i := range candidates {
			if used[i] {
				continue
			}
			sim := float64(cosineSimilarity(candidates[i].Embedding, candidates[best].Embedding))
			if sim > redundancy[i] {
				redundancy[i] = sim
			}
		}
	}

	return selected
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// The result is in range [-1, 1]; mismatched or zero vectors yield 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
}
