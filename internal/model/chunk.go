package model

import (
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"

	"paperchat/internal/rag"
)

// Chunk stores a text chunk and its embedding for retrieval.
// Embedding is stored as JSON array of float32 for portability.
type Chunk struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	DocumentID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_chunks_document_seq,priority:1" json:"document_id"`
	Seq        int       `gorm:"not null;uniqueIndex:idx_chunks_document_seq,priority:2" json:"sequence"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:mediumtext" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Chunk) TableName() string {
	return "chunks"
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *Chunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *Chunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

func (c *Chunk) ToRAG() rag.Chunk {
	return rag.Chunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Seq:        c.Seq,
		Text:       c.Content,
		Embedding:  c.EmbeddingVector(),
	}
}

func ChunkFromRAG(c rag.Chunk) *Chunk {
	m := &Chunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Seq:        c.Seq,
		Content:    c.Text,
	}
	m.SetEmbedding(c.Embedding)
	return m
}

// VectorChunk is the Postgres form of Chunk with a native pgvector column.
type VectorChunk struct {
	ID         string          `gorm:"type:varchar(36);primaryKey"`
	DocumentID string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_vector_chunks_document_seq,priority:1"`
	Seq        int             `gorm:"not null;uniqueIndex:idx_vector_chunks_document_seq,priority:2"`
	Content    string          `gorm:"type:text;not null"`
	Embedding  pgvector.Vector `gorm:"type:vector"`
	CreatedAt  time.Time
}

func (VectorChunk) TableName() string {
	return "vector_chunks"
}

func (c *VectorChunk) ToRAG() rag.Chunk {
	return rag.Chunk{
		ID:         c.ID,
		DocumentID: c.DocumentID,
		Seq:        c.Seq,
		Text:       c.Content,
		Embedding:  c.Embedding.Slice(),
	}
}
