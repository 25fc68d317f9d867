package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply    string
	err      error
	calls    int
	messages []Message
	opts     CompletionOptions
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message, opts CompletionOptions) (string, error) {
	f.calls++
	f.messages = messages
	f.opts = opts
	return f.reply, f.err
}

var fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)

func TestGenerator_Generate(t *testing.T) {
	completer := &fakeCompleter{reply: "  The refund window is 30 days.  "}
	g := NewGenerator(completer, WithClock(func() time.Time { return fixedNow }))

	answer, err := g.Generate(context.Background(), []string{"Refunds within 30 days.", " ", "Contact support."}, "What is the refund policy?")

	require.NoError(t, err)
	assert.Equal(t, "The refund window is 30 days.", answer.Answer)
	assert.Equal(t, 2, answer.Debug.ChunksUsed)
	assert.Equal(t, len("Refunds within 30 days.\n---\nContact support."), answer.Debug.ContextLength)
	assert.Equal(t, []string{"Refunds within 30 days.", "Contact support."}, answer.Debug.UsedChunksPreview)

	require.Len(t, completer.messages, 2)
	assert.Equal(t, "system", completer.messages[0].Role)
	assert.Contains(t, completer.messages[0].Content, "You are PaperChat")
	assert.Contains(t, completer.messages[0].Content, fixedNow.Format(time.RFC1123))
	assert.Equal(t, "Context:\nRefunds within 30 days.\n---\nContact support.\n\nQuestion: What is the refund policy?", completer.messages[1].Content)
	assert.Equal(t, CompletionOptions{MaxTokens: 1000, Temperature: 0.5}, completer.opts)
}

func TestGenerator_CompletionOptions(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	g := NewGenerator(completer, WithMaxTokens(200), WithTemperature(0))

	_, err := g.Generate(context.Background(), []string{"text"}, "q")

	require.NoError(t, err)
	assert.Equal(t, CompletionOptions{MaxTokens: 200, Temperature: 0}, completer.opts)
}

func TestGenerator_InvalidOptionsKeepDefaults(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	g := NewGenerator(completer, WithMaxTokens(0), WithTemperature(-1))

	_, err := g.Generate(context.Background(), []string{"text"}, "q")

	require.NoError(t, err)
	assert.Equal(t, CompletionOptions{MaxTokens: DefaultMaxTokens, Temperature: DefaultTemperature}, completer.opts)
}

func TestGenerator_DefaultQuestion(t *testing.T) {
	completer := &fakeCompleter{reply: "A paper."}
	g := NewGenerator(completer)

	_, err := g.Generate(context.Background(), []string{"text"}, "   ")

	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(completer.messages[1].Content, "Question: "+DefaultQuestion))
}

func TestGenerator_EmptyReplyFallsBack(t *testing.T) {
	g := NewGenerator(&fakeCompleter{reply: "\n"})

	answer, err := g.Generate(context.Background(), []string{"text"}, "q")

	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer.Answer)
}

func TestGenerator_ModelFailure(t *testing.T) {
	completer := &fakeCompleter{err: context.DeadlineExceeded}
	g := NewGenerator(completer)

	_, err := g.Generate(context.Background(), []string{"text"}, "q")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, completer.calls)
}

func TestGenerator_NoChunks(t *testing.T) {
	completer := &fakeCompleter{reply: "x"}
	g := NewGenerator(completer)

	_, err := g.Generate(context.Background(), nil, "q")

	assert.ErrorIs(t, err, ErrNoContent)
	assert.Zero(t, completer.calls)
}

func TestGenerator_PreviewTruncated(t *testing.T) {
	long := strings.Repeat("é", 80)
	g := NewGenerator(&fakeCompleter{reply: "ok"})

	answer, err := g.Generate(context.Background(), []string{long}, "q")

	require.NoError(t, err)
	assert.Equal(t, 50, len([]rune(answer.Debug.UsedChunksPreview[0])))
}

func TestError_Is(t *testing.T) {
	splitErr := NewError(KindSplit, "split", nil)
	assert.ErrorIs(t, splitErr, ErrSplit)
	assert.ErrorIs(t, splitErr, ErrExtraction)
	assert.NotErrorIs(t, splitErr, ErrEmbedding)

	wrapped := errors.Join(errors.New("context"), &Error{Kind: KindEmbedding, Op: "embed", Retryable: true})
	assert.ErrorIs(t, wrapped, ErrEmbedding)
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(splitErr))
}
