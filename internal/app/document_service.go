package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"paperchat/internal/ingest"
	"paperchat/internal/lock"
	"paperchat/internal/model"
	"paperchat/internal/rag"
)

const lockTTLForDelete = time.Minute

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error)
	ListByUserID(ctx context.Context, userID string) ([]model.Document, error)
	CountByUserID(ctx context.Context, userID string) (int, error)
	DeleteByIDAndUserID(ctx context.Context, id, userID string) error
}

// ObjectStore keeps uploaded bytes and hands back a fetchable URL.
type ObjectStore interface {
	Put(ctx context.Context, filename string, data []byte) (key, publicURL string, err error)
	Delete(ctx context.Context, key string) error
}

// ChunkCache is an optional read-through cache of a document's chunk set.
type ChunkCache interface {
	Get(ctx context.Context, documentID string) ([]rag.Chunk, bool, error)
	Set(ctx context.Context, documentID string, chunks []rag.Chunk) error
	Invalidate(ctx context.Context, documentID string) error
}

type ProgressSubscriber interface {
	Subscribe(ctx context.Context, documentID string) (<-chan model.Progress, error)
}

type DocumentLimits struct {
	MaxDocumentsPerUser int
	MaxFileBytes        int64
}

type DocumentService struct {
	docs       DocumentRepository
	chunks     rag.ChunkStore
	cache      ChunkCache
	objects    ObjectStore
	dispatcher ingest.Dispatcher
	locker     lock.Locker
	progress   ProgressSubscriber
	limits     DocumentLimits
	logger     *zap.Logger
}

type DocumentServiceDeps struct {
	Docs       DocumentRepository
	Chunks     rag.ChunkStore
	Cache      ChunkCache
	Objects    ObjectStore
	Dispatcher ingest.Dispatcher
	Locker     lock.Locker
	Progress   ProgressSubscriber
}

func NewDocumentService(deps DocumentServiceDeps, limits DocumentLimits, logger *zap.Logger) *DocumentService {
	if limits.MaxDocumentsPerUser <= 0 {
		limits.MaxDocumentsPerUser = 6
	}
	if limits.MaxFileBytes <= 0 {
		limits.MaxFileBytes = 4 << 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{
		docs:       deps.Docs,
		chunks:     deps.Chunks,
		cache:      deps.Cache,
		objects:    deps.Objects,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		progress:   deps.Progress,
		limits:     limits,
		logger:     logger.Named("documents"),
	}
}

type UploadInput struct {
	UserID   string
	Filename string
	Name     string
	Data     []byte
}

// Upload stores a PDF, records the document and starts its ingestion.
func (s *DocumentService) Upload(ctx context.Context, input UploadInput) (*model.Document, error) {
	if input.UserID == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if strings.ToLower(filepath.Ext(input.Filename)) != ".pdf" {
		return nil, ErrUnsupportedFile
	}
	if int64(len(input.Data)) > s.limits.MaxFileBytes {
		return nil, fmt.Errorf("%w (max %d bytes)", ErrFileTooLarge, s.limits.MaxFileBytes)
	}
	if err := s.checkLimit(ctx, input.UserID); err != nil {
		return nil, err
	}

	key, publicURL, err := s.objects.Put(ctx, input.Filename, input.Data)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(input.Filename), filepath.Ext(input.Filename))
	}
	doc, err := s.create(ctx, input.UserID, name, publicURL, key)
	if err != nil {
		if delErr := s.objects.Delete(ctx, key); delErr != nil {
			s.logger.Warn("remove orphaned object failed", zap.String("key", key), zap.Error(delErr))
		}
		return nil, err
	}
	return doc, nil
}

// Register records a document whose bytes already live at an external URL.
func (s *DocumentService) Register(ctx context.Context, userID, name, rawURL string) (*model.Document, error) {
	name = strings.TrimSpace(name)
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if userID == "" || name == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidInput
	}
	if err := s.checkLimit(ctx, userID); err != nil {
		return nil, err
	}
	return s.create(ctx, userID, name, u.String(), "")
}

func (s *DocumentService) checkLimit(ctx context.Context, userID string) error {
	n, err := s.docs.CountByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if n >= s.limits.MaxDocumentsPerUser {
		return fmt.Errorf("%w (max %d)", ErrUploadLimitReached, s.limits.MaxDocumentsPerUser)
	}
	return nil
}

func (s *DocumentService) create(ctx context.Context, userID, name, sourceURL, storageKey string) (*model.Document, error) {
	doc := &model.Document{
		ID:         uuid.NewString(),
		UserID:     userID,
		Name:       name,
		SourceURL:  sourceURL,
		StorageKey: storageKey,
		State:      model.StateNotStarted,
	}
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, err
	}
	s.logger.Info("document created", zap.String("document_id", doc.ID), zap.String("user_id", userID))

	// A failed dispatch leaves the document in not_started; the client can
	// trigger ingestion again.
	if err := s.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		s.logger.Warn("dispatch ingestion failed", zap.String("document_id", doc.ID), zap.Error(err))
	}
	return doc, nil
}

func (s *DocumentService) List(ctx context.Context, userID string) ([]model.Document, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	docs, err := s.docs.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []model.Document{}
	}
	return docs, nil
}

func (s *DocumentService) Get(ctx context.Context, userID, id string) (*model.Document, error) {
	if userID == "" || id == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndUserID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete removes the document with its chunks, cached chunk set and stored
// object. It refuses while an ingestion run holds the document.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	lease, err := s.locker.Acquire(ctx, "ingest:"+doc.ID, lockTTLForDelete)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			return ErrDocumentBusy
		}
		return err
	}
	defer lease.Release()

	if err := s.chunks.DeleteByDocument(ctx, doc.ID); err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, doc.ID); err != nil {
			s.logger.Warn("invalidate chunk cache failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if doc.StorageKey != "" {
		if err := s.objects.Delete(ctx, doc.StorageKey); err != nil {
			s.logger.Warn("delete stored object failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if err := s.docs.DeleteByIDAndUserID(ctx, doc.ID, userID); err != nil {
		return err
	}
	s.logger.Info("document deleted", zap.String("document_id", doc.ID))
	return nil
}

// Ingest (re)dispatches ingestion. Runs on a complete document are no-ops
// in the orchestrator.
func (s *DocumentService) Ingest(ctx context.Context, userID, id string) (*model.Progress, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("dispatch ingestion failed: %w", err)
	}
	p := doc.Progress()
	return &p, nil
}

func (s *DocumentService) Progress(ctx context.Context, userID, id string) (*model.Progress, error) {
	doc, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	p := doc.Progress()
	return &p, nil
}

// WatchProgress streams the document's progress, starting with its current
// state. The stream never goes backwards and ends after a complete or failed
// update, or when ctx is done.
func (s *DocumentService) WatchProgress(ctx context.Context, userID, id string) (<-chan model.Progress, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	// Subscribe before reading the current state so no update falls in between.
	updates, err := s.progress.Subscribe(ctx, id)
	if err != nil {
		return nil, err
	}
	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	out := make(chan model.Progress, 1)
	go func() {
		defer close(out)
		last := current.Progress()
		out <- last
		if finished(last.State) {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-updates:
				if !ok {
					return
				}
				if p.Completed < last.Completed && !finished(p.State) {
					continue
				}
				last = p
				select {
				case out <- p:
				case <-ctx.Done():
					return
				}
				if finished(p.State) {
					return
				}
			}
		}
	}()
	return out, nil
}

func finished(s model.IngestState) bool {
	return s == model.StateComplete || s == model.StateFailed
}
