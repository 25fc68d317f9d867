package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paperchat/internal/model"
	"paperchat/internal/rag"
)

// VectorChunkRepository stores chunks in Postgres and searches them with the
// pgvector cosine distance operator.
type VectorChunkRepository struct {
	db *gorm.DB
}

func NewVectorChunkRepository(db *gorm.DB) *VectorChunkRepository {
	return &VectorChunkRepository{db: db}
}

// Migrate enables the vector extension and creates the table.
func (r *VectorChunkRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	if err := r.db.WithContext(ctx).AutoMigrate(&model.VectorChunk{}); err != nil {
		return fmt.Errorf("migrate vector chunks failed: %w", err)
	}
	return nil
}

func (r *VectorChunkRepository) Put(ctx context.Context, chunk rag.Chunk) error {
	if chunk.ID == "" {
		chunk.ID = uuid.NewString()
	}
	m := &model.VectorChunk{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Seq:        chunk.Seq,
		Content:    chunk.Text,
		Embedding:  pgvector.NewVector(chunk.Embedding),
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}, {Name: "seq"}},
			DoNothing: true,
		}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("put vector chunk failed: %w", err)
	}
	return nil
}

func (r *VectorChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]rag.Chunk, error) {
	var rows []model.VectorChunk
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list vector chunks failed: %w", err)
	}
	out := make([]rag.Chunk, len(rows))
	for i := range rows {
		out[i] = rows[i].ToRAG()
	}
	return out, nil
}

func (r *VectorChunkRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.VectorChunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count vector chunks failed: %w", err)
	}
	return int(count), nil
}

func (r *VectorChunkRepository) ListSeqs(ctx context.Context, documentID string) ([]int, error) {
	var seqs []int
	if err := r.db.WithContext(ctx).Model(&model.VectorChunk{}).Where("document_id = ?", documentID).Order("seq ASC").Pluck("seq", &seqs).Error; err != nil {
		return nil, fmt.Errorf("list vector chunk seqs failed: %w", err)
	}
	return seqs, nil
}

// NearestNeighbors ranks by 1 - cosine distance inside Postgres. Rows whose
// dimension differs from the query are skipped so the operator never sees
// mismatched vectors.
func (r *VectorChunkRepository) NearestNeighbors(ctx context.Context, documentID string, query []float32, k int) ([]rag.ScoredChunk, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = rag.DefaultTopK
	}
	if isZero(query) {
		chunks, err := r.ListByDocument(ctx, documentID)
		if err != nil {
			return nil, err
		}
		return rag.RankBySimilarity(query, chunks, k), nil
	}

	type result struct {
		model.VectorChunk
		Similarity float64
	}
	var results []result

	queryVector := pgvector.NewVector(query)
	err := r.db.WithContext(ctx).
		Table("vector_chunks").
		Select("vector_chunks.*, CASE WHEN vector_norm(embedding) = 0 THEN 0 ELSE 1 - (embedding <=> ?) END AS similarity", queryVector).
		Where("document_id = ?", documentID).
		Where("vector_dims(embedding) = ?", len(query)).
		Order("similarity DESC").
		Order("seq ASC").
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("search vector chunks failed: %w", err)
	}

	out := make([]rag.ScoredChunk, len(results))
	for i := range results {
		out[i] = rag.ScoredChunk{Chunk: results[i].VectorChunk.ToRAG(), Score: results[i].Similarity}
	}
	return out, nil
}

func (r *VectorChunkRepository) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.VectorChunk{}).Error; err != nil {
		return fmt.Errorf("delete vector chunks failed: %w", err)
	}
	return nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
