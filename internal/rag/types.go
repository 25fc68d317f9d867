package rag

import "context"

// Chunk is a retrievable text segment of one document. Seq is 1-based and
// follows the original document order.
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Seq        int       `json:"sequence"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
}

// ScoredChunk is a chunk with its cosine similarity to a query vector.
type ScoredChunk struct {
	Chunk
	Score float64 `json:"score"`
}

// ChunkStore persists chunks per document. Every read is scoped to a single
// document.
type ChunkStore interface {
	// Put is idempotent on (DocumentID, Seq).
	Put(ctx context.Context, chunk Chunk) error
	ListByDocument(ctx context.Context, documentID string) ([]Chunk, error)
	CountByDocument(ctx context.Context, documentID string) (int, error)
	NearestNeighbors(ctx context.Context, documentID string, query []float32, k int) ([]ScoredChunk, error)
	DeleteByDocument(ctx context.Context, documentID string) error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Role of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one in-memory conversation entry. Turns are never persisted.
type Turn struct {
	Role Role
	Text string
}
