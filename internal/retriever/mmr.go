package retriever

import (
	"math"

	"agentic-rag/internal/models"
)

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is empty, zero or the lengths differ.
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

// MaxMarginalRelevance selects up to k candidates, each maximising
//
//	lambda*sim(query, c) - (1-lambda)*max(sim(c, selected))
//
// The first pick is always the candidate most similar to the query.
func MaxMarginalRelevance(query []float32, cands []models.Candidate, k int, lambda float64) []models.Candidate {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	k = min(k, len(cands))

	relevance := make([]float64, len(cands))
	for i, c := range cands {
		if len(c.Embedding) == 0 {
			relevance[i] = float64(c.Similarity)
			continue
		}
		relevance[i] = CosineSimilarity(query, c.Embedding)
	}

	selected := make([]int, 0, k)
	used := make([]bool, len(cands))
	for len(selected) < k {
		best, bestScore := -1, math.Inf(-1)
		for i, c := range cands {
			if used[i] {
				continue
			}
			redundancy := 0.0
			if len(selected) > 0 {
				redundancy = math.Inf(-1)
				for _, j := range selected {
					redundancy = max(redundancy, CosineSimilarity(c.Embedding, cands[j].Embedding))
				}
			}
			score := lambda*relevance[i] - (1-lambda)*redundancy
			if math.IsNaN(score) {
				score = math.Inf(-1)
			}
			if best < 0 || score > bestScore {
				best, bestScore = i, score
			}
		}
		used[best] = true
		selected = append(selected, best)
	}

	out := make([]models.Candidate, len(selected))
	for i, j := range selected {
		out[i] = cands[j]
	}
	return out
}
