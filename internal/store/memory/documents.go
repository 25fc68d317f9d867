package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"paperchat/internal/model"
)

// DocumentStore is the in-process counterpart of the gorm document
// repository. Get methods return nil, nil when the document is unknown.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]model.Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]model.Document)}
}

func (s *DocumentStore) Create(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.State == "" {
		doc.State = model.StateNotStarted
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, id string) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (s *DocumentStore) GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error) {
	doc, err := s.GetByID(ctx, id)
	if err != nil || doc == nil || doc.UserID != userID {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentStore) ListByUserID(_ context.Context, userID string) ([]model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Document
	for _, d := range s.docs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *DocumentStore) CountByUserID(ctx context.Context, userID string) (int, error) {
	list, err := s.ListByUserID(ctx, userID)
	return len(list), err
}

func (s *DocumentStore) UpdateProgress(_ context.Context, id string, p model.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return model.ErrDocumentNotFound
	}
	if p.State != model.StateNotStarted && p.State != model.StateExtracting && p.Completed < doc.ChunksCompleted {
		return nil
	}
	doc.State = p.State
	doc.ChunksCompleted = p.Completed
	doc.ChunksExpected = p.Expected
	doc.FailureReason = p.FailureReason
	doc.UpdatedAt = time.Now()
	s.docs[id] = doc
	return nil
}

func (s *DocumentStore) DeleteByIDAndUserID(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok && doc.UserID == userID {
		delete(s.docs, id)
	}
	return nil
}
