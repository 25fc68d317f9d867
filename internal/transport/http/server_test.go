package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/app"
	"paperchat/internal/lock"
	"paperchat/internal/model"
	"paperchat/internal/pkg/jwtutil"
	"paperchat/internal/progress"
	"paperchat/internal/rag"
	"paperchat/internal/splitter"
	"paperchat/internal/storage"
	"paperchat/internal/store/memory"
	"paperchat/internal/transport/http/handler"
	"paperchat/internal/transport/http/response"
)

const testSecret = "test-secret"

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type stubCompleter struct {
	reply string
	err   error
}

func (s stubCompleter) Complete(context.Context, []rag.Message, rag.CompletionOptions) (string, error) {
	return s.reply, s.err
}

type stubExtractor struct {
	text string
	err  error
}

func (s stubExtractor) Extract(context.Context, string) (string, error) {
	return s.text, s.err
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, string) error { return nil }

// closeNotifyingRecorder lets gin's streaming writer run against a recorder.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

type testServer struct {
	router *gin.Engine
	docs   *memory.DocumentStore
	chunks *memory.ChunkStore
}

type serverOptions struct {
	embedErr    error
	completeErr error
	extractErr  error
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	docs := memory.NewDocumentStore()
	chunks := memory.NewChunkStore()
	bus := progress.NewBus(nil)
	t.Cleanup(func() { _ = bus.Close() })
	objects, err := storage.NewLocal(t.TempDir(), "http://files.test")
	require.NoError(t, err)

	embedder := stubEmbedder{err: opts.embedErr}
	generator := rag.NewGenerator(stubCompleter{reply: "Refunds take 30 days.", err: opts.completeErr})
	retriever := rag.NewRetriever(5, 6)
	extractor := stubExtractor{text: strings.Repeat("word ", 480), err: opts.extractErr}

	documents := app.NewDocumentService(app.DocumentServiceDeps{
		Docs:       docs,
		Chunks:     chunks,
		Objects:    objects,
		Dispatcher: nopDispatcher{},
		Locker:     lock.NewLocalLocker(),
		Progress:   bus,
	}, app.DocumentLimits{MaxDocumentsPerUser: 6, MaxFileBytes: 1 << 20}, nil)
	chat := app.NewChatService(docs, chunks, nil, embedder, retriever, generator, nil)
	pipeline := app.NewPipelineService(extractor, splitter.New(), embedder, retriever, generator)

	router := gin.New()
	Register(router.Group("/api/v1"), Handlers{
		Pipeline:  handler.NewPipelineHandler(pipeline),
		Documents: handler.NewDocumentHandler(documents, chat, 1<<20),
	}, testSecret)
	return &testServer{router: router, docs: docs, chunks: chunks}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwtutil.GenerateToken(testSecret, time.Hour, userID)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (*httptest.ResponseRecorder, response.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", token(t, userID))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp response.APIResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func (s *testServer) seed(t *testing.T, userID string, texts ...string) string {
	t.Helper()
	ctx := context.Background()
	doc := &model.Document{ID: "doc-" + userID, UserID: userID, Name: "policy", SourceURL: "http://files.test/files/p.pdf"}
	require.NoError(t, s.docs.Create(ctx, doc))
	for i, text := range texts {
		require.NoError(t, s.chunks.Put(ctx, rag.Chunk{DocumentID: doc.ID, Seq: i + 1, Text: text, Embedding: []float32{float32(len(text)), 1}}))
	}
	require.NoError(t, s.docs.UpdateProgress(ctx, doc.ID, model.Progress{State: model.StateComplete, Completed: len(texts), Expected: len(texts)}))
	return doc.ID
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/answer", "", map[string]string{"question": "hi"})

	assert.Equal(t, nethttp.StatusUnauthorized, rec.Code)
	assert.Equal(t, response.CodeUnauthorized, resp.Code)
}

func TestAnswer(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/answer", "u1", map[string]interface{}{
		"question":        "What is the refund policy?",
		"selected_chunks": []string{"Refunds are issued within 30 days."},
	})

	require.Equal(t, nethttp.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Refunds take 30 days.", data["answer"])
	debug := data["debug"].(map[string]interface{})
	assert.EqualValues(t, 1, debug["chunks_used"])
	assert.EqualValues(t, len("Refunds are issued within 30 days."), debug["context_length"])
}

func TestAnswer_NoContent(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/answer", "u1", map[string]interface{}{
		"question":        "What is the refund policy?",
		"selected_chunks": []string{},
	})

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeNoContent, resp.Code)
	assert.Contains(t, resp.Message, "no readable content")
}

func TestAnswer_ModelTimeout(t *testing.T) {
	s := newTestServer(t, serverOptions{completeErr: context.DeadlineExceeded})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/answer", "u1", map[string]interface{}{
		"question":    "What is the refund policy?",
		"raw_context": "Refunds are issued within 30 days.",
	})

	assert.Equal(t, nethttp.StatusInternalServerError, rec.Code)
	assert.Equal(t, response.CodeGenerationFailed, resp.Code)
	assert.Contains(t, resp.Message, "generation")
	assert.Contains(t, resp.Message, "deadline exceeded")
}

func TestEmbed(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/embed", "u1", map[string]string{"text": "refund"})
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]interface{})["dimensions"])

	rec, _ = s.do(t, nethttp.MethodPost, "/api/v1/embed", "u1", map[string]string{"text": "  "})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestEmbed_RemoteFailure(t *testing.T) {
	s := newTestServer(t, serverOptions{embedErr: &rag.Error{Kind: rag.KindEmbedding, Op: "embed", Err: errors.New("status 429"), Retryable: true}})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/embed", "u1", map[string]string{"text": "refund"})

	assert.Equal(t, nethttp.StatusBadGateway, rec.Code)
	assert.Equal(t, response.CodeEmbeddingFailed, resp.Code)
}

func TestExtract(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/extract", "u1", map[string]string{
		"document_url":  "https://example.com/paper.pdf",
		"document_name": "paper.pdf",
	})

	require.Equal(t, nethttp.StatusOK, rec.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "paper.pdf", data["document_name"])
	assert.Greater(t, len(data["chunks"].([]interface{})), 1)
}

func TestExtract_FetchFailure(t *testing.T) {
	s := newTestServer(t, serverOptions{extractErr: rag.NewError(rag.KindExtraction, "fetch", errors.New("fetch document status 404"))})

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/extract", "u1", map[string]string{"document_url": "https://example.com/missing.pdf"})

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeExtractionFailed, resp.Code)
}

func TestDocumentLifecycle(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "paper.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, mw.WriteField("name", "My paper"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(nethttp.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", token(t, "u1"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Data model.Document `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	id := created.Data.ID
	assert.Equal(t, "My paper", created.Data.Name)

	rec, resp := s.do(t, nethttp.MethodGet, "/api/v1/documents", "u1", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 1)

	rec, resp = s.do(t, nethttp.MethodGet, "/api/v1/documents/"+id+"/progress", "u1", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, string(model.StateNotStarted), resp.Data.(map[string]interface{})["state"])

	rec, _ = s.do(t, nethttp.MethodPost, "/api/v1/documents/"+id+"/ingest", "u1", nil)
	assert.Equal(t, nethttp.StatusAccepted, rec.Code)

	rec, _ = s.do(t, nethttp.MethodGet, "/api/v1/documents/"+id, "u2", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	rec, _ = s.do(t, nethttp.MethodDelete, "/api/v1/documents/"+id, "u1", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	rec, _ = s.do(t, nethttp.MethodGet, "/api/v1/documents/"+id, "u1", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestRegister_Validation(t *testing.T) {
	s := newTestServer(t, serverOptions{})

	rec, _ := s.do(t, nethttp.MethodPost, "/api/v1/documents/register", "u1", map[string]string{"name": "x", "url": "file:///etc/passwd"})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, nethttp.MethodPost, "/api/v1/documents/register", "u1", map[string]string{"name": "x", "url": "https://example.com/a.pdf"})
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestAsk(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.seed(t, "u1", "Refunds are issued within 30 days.", "Shipping takes a week.")

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/documents/"+id+"/ask", "u1", map[string]interface{}{"question": "refund?"})
	require.Equal(t, nethttp.StatusOK, rec.Code)
	debug := resp.Data.(map[string]interface{})["debug"].(map[string]interface{})
	assert.Equal(t, rag.ModeSimilarity, debug["mode"])

	rec, _ = s.do(t, nethttp.MethodPost, "/api/v1/documents/"+id+"/ask", "u2", map[string]interface{}{"question": "refund?"})
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)
}

func TestAsk_EmptyDocument(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.seed(t, "u1")

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/documents/"+id+"/ask", "u1", map[string]interface{}{"question": "refund?"})

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeNoContent, resp.Code)
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.seed(t, "u1", "a", "bb", "ccc")

	rec, resp := s.do(t, nethttp.MethodPost, "/api/v1/documents/"+id+"/search", "u1", map[string]interface{}{"query": "xyz", "k": 2})

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)
}

func TestStreamProgress_FinishedDocument(t *testing.T) {
	s := newTestServer(t, serverOptions{})
	id := s.seed(t, "u1", "text")

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/documents/"+id+"/progress/stream", nil)
	req.Header.Set("Authorization", token(t, "u1"))
	rec := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool, 1)}
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event:progress")
	assert.Contains(t, rec.Body.String(), `"state":"complete"`)
}
