package app

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"paperchat/internal/model"
	"paperchat/internal/rag"
)

type DocumentReader interface {
	GetByIDAndUserID(ctx context.Context, id, userID string) (*model.Document, error)
}

// ChatService answers questions about one stored document.
type ChatService struct {
	docs      DocumentReader
	chunks    rag.ChunkStore
	cache     ChunkCache
	embedder  rag.Embedder
	retriever *rag.Retriever
	generator *rag.Generator
	logger    *zap.Logger
}

func NewChatService(
	docs DocumentReader,
	chunks rag.ChunkStore,
	cache ChunkCache,
	embedder rag.Embedder,
	retriever *rag.Retriever,
	generator *rag.Generator,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		docs:      docs,
		chunks:    chunks,
		cache:     cache,
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		logger:    logger.Named("chat"),
	}
}

type AskInput struct {
	UserID     string
	DocumentID string
	Question   string
	TopK       int
}

// Ask embeds the question, picks the closest chunks of the document and
// generates an answer from them. If the question cannot be embedded the
// first chunks of the document are used instead.
func (s *ChatService) Ask(ctx context.Context, input AskInput) (*rag.Answer, error) {
	ctx, span := otel.Tracer("paperchat/app").Start(ctx, "chat.Ask")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", input.DocumentID))

	doc, err := s.document(ctx, input.UserID, input.DocumentID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.loadChunks(ctx, doc)
	if err != nil {
		return nil, err
	}

	question := strings.TrimSpace(input.Question)
	if question == "" {
		question = rag.DefaultQuestion
	}
	var query []float32
	if len(chunks) > 0 {
		query, err = s.embedder.Embed(ctx, question)
		if err != nil {
			s.logger.Warn("embed question failed, using leading chunks",
				zap.String("document_id", doc.ID),
				zap.Error(err),
			)
			query = nil
		}
	}

	selection, err := s.retriever.Select(query, chunks, input.TopK)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("rag.mode", selection.Mode))

	answer, err := s.generator.Generate(ctx, selection.Texts(), question)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	answer.Debug.Mode = selection.Mode
	return answer, nil
}

type SearchInput struct {
	UserID     string
	DocumentID string
	Query      string
	K          int
}

// Search returns the document's chunks nearest to the query text.
func (s *ChatService) Search(ctx context.Context, input SearchInput) ([]rag.ScoredChunk, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, ErrInvalidInput
	}
	doc, err := s.document(ctx, input.UserID, input.DocumentID)
	if err != nil {
		return nil, err
	}
	k := input.K
	if k <= 0 {
		k = rag.DefaultTopK
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := s.chunks.NearestNeighbors(ctx, doc.ID, vec, k)
	if err != nil {
		return nil, err
	}
	for i := range results {
		results[i].Embedding = nil
	}
	return results, nil
}

func (s *ChatService) document(ctx context.Context, userID, id string) (*model.Document, error) {
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

// loadChunks reads the chunk set, going through the cache for documents
// whose ingestion is complete.
func (s *ChatService) loadChunks(ctx context.Context, doc *model.Document) ([]rag.Chunk, error) {
	cacheable := s.cache != nil && doc.State == model.StateComplete
	if cacheable {
		if cached, hit, err := s.cache.Get(ctx, doc.ID); err == nil && hit {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("read chunk cache failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}

	chunks, err := s.chunks.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if cacheable && len(chunks) > 0 {
		if err := s.cache.Set(ctx, doc.ID, chunks); err != nil {
			s.logger.Warn("write chunk cache failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	return chunks, nil
}
