package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/rag"
	"paperchat/internal/transport/http/response"
)

type PipelineHandler struct {
	pipeline *app.PipelineService
}

type ExtractRequest struct {
	DocumentURL  string `json:"document_url" binding:"required"`
	DocumentName string `json:"document_name"`
}

type EmbedRequest struct {
	Text string `json:"text"`
}

type AnswerChunk struct {
	Sequence  int       `json:"sequence"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

type AnswerRequest struct {
	Question       string        `json:"question"`
	SelectedChunks []string      `json:"selected_chunks"`
	RawContext     string        `json:"raw_context"`
	Chunks         []AnswerChunk `json:"chunks"`
	QueryEmbedding []float32     `json:"query_embedding"`
	TopK           int           `json:"top_k"`
}

func NewPipelineHandler(pipeline *app.PipelineService) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline}
}

func (h *PipelineHandler) Extract(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.pipeline.Extract(c.Request.Context(), req.DocumentURL, req.DocumentName)
	if err != nil {
		writeError(c, err, "extract failed")
		return
	}
	response.OK(c, result)
}

func (h *PipelineHandler) Embed(c *gin.Context) {
	var req EmbedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	result, err := h.pipeline.Embed(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, err, "embed failed")
		return
	}
	response.OK(c, result)
}

func (h *PipelineHandler) Answer(c *gin.Context) {
	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	chunks := make([]rag.Chunk, 0, len(req.Chunks))
	for i, ch := range req.Chunks {
		seq := ch.Sequence
		if seq <= 0 {
			seq = i + 1
		}
		chunks = append(chunks, rag.Chunk{Seq: seq, Text: ch.Text, Embedding: ch.Embedding})
	}
	answer, err := h.pipeline.Answer(c.Request.Context(), app.AnswerInput{
		Question:       req.Question,
		SelectedChunks: req.SelectedChunks,
		RawContext:     req.RawContext,
		Chunks:         chunks,
		QueryEmbedding: req.QueryEmbedding,
		TopK:           req.TopK,
	})
	if err != nil {
		writeError(c, err, "answer failed")
		return
	}
	response.OK(c, answer)
}
