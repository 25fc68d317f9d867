package rag

import (
	"math"
	"sort"
)

// Similarity returns the cosine similarity of a and b. Vectors of different
// length, empty vectors and zero-magnitude vectors score 0.
func Similarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankBySimilarity scores every chunk whose embedding has the query's
// dimensionality and returns the best k, highest score first. Equal scores
// keep the lower sequence number first.
func RankBySimilarity(query []float32, chunks []Chunk, k int) []ScoredChunk {
	if len(query) == 0 {
		return nil
	}
	scored := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != len(query) {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: Similarity(query, c.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Seq < scored[j].Seq
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
