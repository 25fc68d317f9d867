package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultQuestion  = "What's this document about?"
	FallbackAnswer   = "I couldn't generate an answer. Please try again."
	ContextSeparator = "\n---\n"

	DefaultMaxTokens   = 1000
	DefaultTemperature = 0.5

	previewLength = 50
)

var errNoChunks = errors.New("the document has no content to answer from, please re-ingest it")

// Message is one chat message sent to the language model.
type Message struct {
	Role    string
	Content string
}

// CompletionOptions bound a single model call.
type CompletionOptions struct {
	MaxTokens   int
	Temperature float64
}

// Completer is the language-model completion capability.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)
}

// Answer is the generated reply plus the context that produced it.
type Answer struct {
	Answer string      `json:"answer"`
	Debug  AnswerDebug `json:"debug"`
}

type AnswerDebug struct {
	ChunksUsed        int      `json:"chunks_used"`
	ContextLength     int      `json:"context_length"`
	UsedChunksPreview []string `json:"used_chunks_preview"`
	Mode              string   `json:"mode,omitempty"`
}

// Generator builds the grounded prompt and calls the model once.
type Generator struct {
	completer Completer
	opts      CompletionOptions
	now       func() time.Time
}

type GeneratorOption func(*Generator)

// WithMaxTokens bounds the reply length; n <= 0 keeps the default.
func WithMaxTokens(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.opts.MaxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature. Zero is a valid setting;
// negative values keep the default.
func WithTemperature(t float64) GeneratorOption {
	return func(g *Generator) {
		if t >= 0 {
			g.opts.Temperature = t
		}
	}
}

// WithClock replaces the timestamp source used in the system instruction.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGenerator(completer Completer, opts ...GeneratorOption) *Generator {
	g := &Generator{
		completer: completer,
		opts: CompletionOptions{
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate answers question from the given chunk texts. Model failures are
// returned as generation errors and are not retried.
func (g *Generator) Generate(ctx context.Context, chunks []string, question string) (*Answer, error) {
	ctx, span := otel.Tracer("paperchat/rag").Start(ctx, "rag.Generate")
	defer span.End()

	used := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c); t != "" {
			used = append(used, t)
		}
	}
	if len(used) == 0 {
		return nil, NewError(KindNoContent, "generate", errNoChunks)
	}

	contextBlock := strings.Join(used, ContextSeparator)
	span.SetAttributes(
		attribute.Int("rag.chunks_used", len(used)),
		attribute.Int("rag.context_length", len(contextBlock)),
	)

	text, err := g.completer.Complete(ctx, BuildPrompt(contextBlock, question, g.now()), g.opts)
	if err != nil {
		span.RecordError(err)
		var re *Error
		if errors.As(err, &re) && re.Kind == KindGeneration {
			return nil, err
		}
		return nil, NewError(KindGeneration, "generate", err)
	}

	answer := strings.TrimSpace(text)
	if answer == "" {
		answer = FallbackAnswer
	}

	previews := make([]string, len(used))
	for i, c := range used {
		previews[i] = preview(c)
	}
	return &Answer{
		Answer: answer,
		Debug: AnswerDebug{
			ChunksUsed:        len(used),
			ContextLength:     len(contextBlock),
			UsedChunksPreview: previews,
		},
	}, nil
}

// BuildPrompt returns the system instruction and the user message carrying the
// context block and the question. A blank question asks for a summary.
func BuildPrompt(contextBlock, question string, now time.Time) []Message {
	question = strings.TrimSpace(question)
	if question == "" {
		question = DefaultQuestion
	}
	system := fmt.Sprintf(
		"You are PaperChat, a helpful assistant. Answer questions based on the context below. If unsure, say so.\n\nCurrent time: %s",
		now.Format(time.RFC1123),
	)
	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", contextBlock, question)
	return []Message{
		{Role: string(RoleSystem), Content: system},
		{Role: string(RoleUser), Content: user},
	}
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLength {
		return s
	}
	return string(r[:previewLength])
}
