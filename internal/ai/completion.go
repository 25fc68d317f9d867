package ai

import (
	"context"
	"errors"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"paperchat/internal/rag"
)

// Complete sends messages to the chat model and returns the first choice's
// content. An empty choice list yields an empty string.
func (c *Client) Complete(ctx context.Context, messages []rag.Message, opts rag.CompletionOptions) (string, error) {
	if len(messages) == 0 {
		return "", rag.NewError(rag.KindGeneration, "complete", errors.New("no messages"))
	}
	if err := c.wait(ctx, rag.KindGeneration, "complete"); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       c.cfg.ChatModel,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   opts.MaxTokens,
		Temperature: float32(opts.Temperature),
	}
	// the client drops a zero temperature from the request, which servers
	// read as their default of 1
	if req.Temperature == 0 {
		req.Temperature = math.SmallestNonzeroFloat32
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(rag.KindGeneration, "complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
