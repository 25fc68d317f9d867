package rag

import (
	"sort"
	"strings"
)

const (
	DefaultTopK          = 5
	DefaultFallbackCount = 6
)

// Selection modes reported with each retrieval.
const (
	ModeSimilarity = "similarity"
	ModeFallback   = "fallback"
)

// Retriever picks the chunks that go into the prompt.
type Retriever struct {
	topK          int
	fallbackCount int
}

func NewRetriever(topK, fallbackCount int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if fallbackCount <= 0 {
		fallbackCount = DefaultFallbackCount
	}
	return &Retriever{topK: topK, fallbackCount: fallbackCount}
}

// Selection is the outcome of one retrieval.
type Selection struct {
	Chunks []ScoredChunk
	Mode   string
}

// Select ranks chunks against query. When the query is absent or no chunk
// shares its dimensionality, the first chunks in sequence order are returned
// instead. Chunks with blank text are never selected. k <= 0 uses the
// configured default.
func (r *Retriever) Select(query []float32, chunks []Chunk, k int) (*Selection, error) {
	if k <= 0 {
		k = r.topK
	}

	usable := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		usable = append(usable, c)
	}
	if len(usable) == 0 {
		return nil, NewError(KindNoContent, "retrieve", errNoChunks)
	}
	sort.SliceStable(usable, func(i, j int) bool { return usable[i].Seq < usable[j].Seq })

	if ranked := RankBySimilarity(query, usable, k); len(ranked) > 0 {
		return &Selection{Chunks: ranked, Mode: ModeSimilarity}, nil
	}

	n := r.fallbackCount
	if n > len(usable) {
		n = len(usable)
	}
	fallback := make([]ScoredChunk, n)
	for i := 0; i < n; i++ {
		fallback[i] = ScoredChunk{Chunk: usable[i]}
	}
	return &Selection{Chunks: fallback, Mode: ModeFallback}, nil
}

// Texts returns the chunk texts in selection order.
func (s *Selection) Texts() []string {
	out := make([]string, len(s.Chunks))
	for i, c := range s.Chunks {
		out[i] = c.Text
	}
	return out
}
