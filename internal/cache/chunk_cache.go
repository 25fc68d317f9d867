package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"paperchat/internal/rag"
)

// ChunkCache keeps a completed document's chunk set in Redis so repeated
// questions skip the store read.
type ChunkCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewChunkCache(client *redisv9.Client, ttl time.Duration) *ChunkCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ChunkCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ChunkCache) Get(ctx context.Context, documentID string) ([]rag.Chunk, bool, error) {
	raw, err := c.client.Get(ctx, c.key(documentID)).Bytes()
	if errors.Is(err, redisv9.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get chunks failed: %w", err)
	}

	var chunks []rag.Chunk
	if err := json.Unmarshal(raw, &chunks); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached chunks failed: %w", err)
	}
	return chunks, true, nil
}

func (c *ChunkCache) Set(ctx context.Context, documentID string, chunks []rag.Chunk) error {
	payload, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunk cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(documentID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set chunks failed: %w", err)
	}
	return nil
}

func (c *ChunkCache) Invalidate(ctx context.Context, documentID string) error {
	if err := c.client.Del(ctx, c.key(documentID)).Err(); err != nil {
		return fmt.Errorf("redis delete chunks failed: %w", err)
	}
	return nil
}

func (c *ChunkCache) key(documentID string) string {
	return "paperchat:chunks:" + documentID
}
