package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"paperchat/internal/rag"
)

const (
	DefaultChatModel           = "gpt-3.5-turbo"
	DefaultEmbeddingModel      = "text-embedding-3-small"
	DefaultEmbeddingDimensions = 1536
)

// Config holds settings for an OpenAI-compatible endpoint.
type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	// Dimensions is the expected embedding length; 0 accepts whatever the
	// model returns.
	Dimensions        int
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to an OpenAI-compatible API. It implements rag.Embedder and
// rag.Completer; every failure leaving it is a *rag.Error.
type Client struct {
	api     *openai.Client
	limiter *rate.Limiter
	cfg     Config
}

func NewClient(cfg Config) *Client {
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = DefaultEmbeddingModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		limiter: rate.NewLimiter(limit, 1),
		cfg:     cfg,
	}
}

func (c *Client) wait(ctx context.Context, kind rag.Kind, op string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return classify(kind, op, err)
	}
	return nil
}

// classify converts a remote failure into a pipeline error and marks the
// transient ones.
func classify(kind rag.Kind, op string, err error) *rag.Error {
	e := rag.NewError(kind, op, err)

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		e.Retryable = false
	case errors.Is(err, context.DeadlineExceeded):
		e.Retryable = true
	case errors.As(err, &apiErr):
		e.Retryable = retryableStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		e.Retryable = retryableStatus(reqErr.HTTPStatusCode)
	case errors.As(err, &netErr):
		e.Retryable = true
	}
	return e
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
