// Package memory holds in-process stores used when no database is
// configured and by tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"paperchat/internal/rag"
)

// ChunkStore keeps chunks per document behind a RWMutex.
type ChunkStore struct {
	mu   sync.RWMutex
	docs map[string]map[int]rag.Chunk

	// PutHook runs before every put; tests use it to inject failures.
	PutHook func(rag.Chunk) error
}

func NewChunkStore() *ChunkStore {
	return &ChunkStore{docs: make(map[string]map[int]rag.Chunk)}
}

func (s *ChunkStore) Put(ctx context.Context, chunk rag.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.PutHook != nil {
		if err := s.PutHook(chunk); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byseq, ok := s.docs[chunk.DocumentID]
	if !ok {
		byseq = make(map[int]rag.Chunk)
		s.docs[chunk.DocumentID] = byseq
	}
	if _, exists := byseq[chunk.Seq]; exists {
		return nil
	}
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	chunk.Embedding = append([]float32(nil), chunk.Embedding...)
	byseq[chunk.Seq] = chunk
	return nil
}

func (s *ChunkStore) ListByDocument(_ context.Context, documentID string) ([]rag.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byseq := s.docs[documentID]
	out := make([]rag.Chunk, 0, len(byseq))
	for _, c := range byseq {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *ChunkStore) CountByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs[documentID]), nil
}

func (s *ChunkStore) ListSeqs(ctx context.Context, documentID string) ([]int, error) {
	chunks, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	seqs := make([]int, len(chunks))
	for i, c := range chunks {
		seqs[i] = c.Seq
	}
	return seqs, nil
}

func (s *ChunkStore) NearestNeighbors(ctx context.Context, documentID string, query []float32, k int) ([]rag.ScoredChunk, error) {
	chunks, err := s.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return rag.RankBySimilarity(query, chunks, k), nil
}

func (s *ChunkStore) DeleteByDocument(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, documentID)
	return nil
}
