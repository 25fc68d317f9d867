package app

import (
	"context"
	"fmt"
	"strings"

	"paperchat/internal/rag"
	"paperchat/internal/splitter"
)

type TextExtractor interface {
	Extract(ctx context.Context, rawURL string) (string, error)
}

// PipelineService exposes the individual pipeline steps statelessly: the
// caller hands in everything and nothing is persisted.
type PipelineService struct {
	extractor TextExtractor
	splitter  *splitter.Splitter
	embedder  rag.Embedder
	retriever *rag.Retriever
	generator *rag.Generator
}

func NewPipelineService(
	extractor TextExtractor,
	split *splitter.Splitter,
	embedder rag.Embedder,
	retriever *rag.Retriever,
	generator *rag.Generator,
) *PipelineService {
	return &PipelineService{
		extractor: extractor,
		splitter:  split,
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
	}
}

type ExtractResult struct {
	DocumentName string   `json:"document_name,omitempty"`
	RawText      string   `json:"raw_text"`
	Chunks       []string `json:"chunks"`
}

// Extract fetches and reads the document, then splits its text.
func (s *PipelineService) Extract(ctx context.Context, documentURL, documentName string) (*ExtractResult, error) {
	if strings.TrimSpace(documentURL) == "" {
		return nil, ErrInvalidInput
	}
	text, err := s.extractor.Extract(ctx, strings.TrimSpace(documentURL))
	if err != nil {
		return nil, err
	}
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, rag.NewError(rag.KindSplit, "split", fmt.Errorf("document %q has no text", documentName))
	}
	return &ExtractResult{DocumentName: documentName, RawText: text, Chunks: chunks}, nil
}

type EmbedResult struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

func (s *PipelineService) Embed(ctx context.Context, text string) (*EmbedResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return &EmbedResult{Embedding: vec, Dimensions: len(vec)}, nil
}

// AnswerInput carries the context for one answer. Chunks with embeddings
// are ranked against QueryEmbedding; otherwise SelectedChunks, then
// RawContext, are used as given.
type AnswerInput struct {
	Question       string
	SelectedChunks []string
	RawContext     string
	Chunks         []rag.Chunk
	QueryEmbedding []float32
	TopK           int
}

func (s *PipelineService) Answer(ctx context.Context, input AnswerInput) (*rag.Answer, error) {
	var (
		texts []string
		mode  string
	)
	switch {
	case len(input.Chunks) > 0:
		selection, err := s.retriever.Select(input.QueryEmbedding, input.Chunks, input.TopK)
		if err != nil {
			return nil, err
		}
		texts, mode = selection.Texts(), selection.Mode
	case len(input.SelectedChunks) > 0:
		texts = input.SelectedChunks
	case strings.TrimSpace(input.RawContext) != "":
		texts = []string{input.RawContext}
	}

	answer, err := s.generator.Generate(ctx, texts, input.Question)
	if err != nil {
		return nil, err
	}
	answer.Debug.Mode = mode
	return answer, nil
}
