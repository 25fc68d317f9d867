package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paperchat/internal/model"
	"paperchat/internal/rag"
)

// ChunkRepository is the relational chunk store. Vectors live in a JSON
// column and are ranked in process.
type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Put inserts the chunk unless (document_id, seq) already exists.
func (r *ChunkRepository) Put(ctx context.Context, chunk rag.Chunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	m := model.ChunkFromRAG(chunk)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "seq"}},
			DoNothing: true,
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("put chunk failed: %w", err)
	}
	return nil
}

func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]rag.Chunk, error) {
	var rows []model.Chunk
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chunks by document failed: %w", err)
	}
	out := make([]rag.Chunk, len(rows))
	for i := range rows {
		out[i] = rows[i].ToRAG()
	}
	return out, nil
}

func (r *ChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chunks by document failed: %w", err)
	}
	return int(count), nil
}

// ListSeqs returns the sequence numbers already stored for a document.
func (r *ChunkRepository) ListSeqs(ctx context.Context, documentID string) ([]int, error) {
	var seqs []int
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Order("seq ASC").Pluck("seq", &seqs).Error; err != nil {
		return nil, fmt.Errorf("list chunk seqs failed: %w", err)
	}
	return seqs, nil
}

func (r *ChunkRepository) NearestNeighbors(ctx context.Context, documentID string, query []float32, k int) ([]rag.ScoredChunk, error) {
	chunks, err := r.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return rag.RankBySimilarity(query, chunks, k), nil
}

func (r *ChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.Chunk{}).Error; err != nil {
		return fmt.Errorf("delete chunks by document failed: %w", err)
	}
	return nil
}
