package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"paperchat/internal/rag"
)

var errEmptyInput = errors.New("embedding input is empty")

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one request and returns one vector per input, in
// input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, rag.NewError(rag.KindEmbedding, "embed", errEmptyInput)
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, rag.NewError(rag.KindEmbedding, "embed", errEmptyInput)
		}
	}
	if err := c.wait(ctx, rag.KindEmbedding, "embed"); err != nil {
		return nil, err
	}

	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
		Input: texts,
	}
	if c.cfg.Dimensions > 0 && strings.HasPrefix(c.cfg.EmbeddingModel, "text-embedding-3") {
		req.Dimensions = c.cfg.Dimensions
	}

	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classify(rag.KindEmbedding, "embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, rag.NewError(rag.KindEmbedding, "embed",
			fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		// some compatible servers leave index at zero
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		if out[idx] != nil {
			return nil, rag.NewError(rag.KindEmbedding, "embed", fmt.Errorf("duplicate embedding index %d", d.Index))
		}
		if len(d.Embedding) == 0 {
			return nil, rag.NewError(rag.KindEmbedding, "embed", fmt.Errorf("empty embedding at index %d", i))
		}
		if c.cfg.Dimensions > 0 && len(d.Embedding) != c.cfg.Dimensions {
			return nil, rag.NewError(rag.KindEmbedding, "embed",
				fmt.Errorf("embedding dimension %d, want %d", len(d.Embedding), c.cfg.Dimensions))
		}
		out[idx] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, rag.NewError(rag.KindEmbedding, "embed", fmt.Errorf("missing embedding for input %d", i))
		}
	}
	return out, nil
}

// Dimensions is the configured embedding length, 0 when unconstrained.
func (c *Client) Dimensions() int {
	return c.cfg.Dimensions
}
