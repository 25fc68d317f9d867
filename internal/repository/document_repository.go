package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"paperchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByUserID(ctx context.Context, userID string) ([]model.Document, error) {
	var list []model.Document
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

func (r *DocumentRepository) CountByUserID(ctx context.Context, userID string) (int, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count documents failed: %w", err)
	}
	return int(count), nil
}

// UpdateProgress records the ingestion state on the document row. The
// completed counter only moves forward unless the state is reset.
func (r *DocumentRepository) UpdateProgress(ctx context.Context, id string, p model.Progress) error {
	q := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id)
	if p.State != model.StateNotStarted && p.State != model.StateExtracting {
		q = q.Where("chunks_completed <= ?", p.Completed)
	}
	res := q.Updates(map[string]any{
		"state":            p.State,
		"chunks_completed": p.Completed,
		"chunks_expected":  p.Expected,
		"failure_reason":   p.FailureReason,
	})
	if res.Error != nil {
		return fmt.Errorf("update document progress failed: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// zero rows is either the monotonic guard, an unchanged row or a deleted document
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Document{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check document failed: %w", err)
	}
	if n == 0 {
		return model.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) DeleteByIDAndUserID(ctx context.Context, id, userID string) error {
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Document{}).Error; err != nil {
		return fmt.Errorf("delete document failed: %w", err)
	}
	return nil
}
