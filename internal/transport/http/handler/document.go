package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/transport/http/response"
)

type DocumentHandler struct {
	documents    *app.DocumentService
	chat         *app.ChatService
	maxFileBytes int64
}

type RegisterDocumentRequest struct {
	Name string `json:"name" binding:"required,max=255"`
	URL  string `json:"url" binding:"required"`
}

type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k"`
}

type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func NewDocumentHandler(documents *app.DocumentService, chat *app.ChatService, maxFileBytes int64) *DocumentHandler {
	return &DocumentHandler{documents: documents, chat: chat, maxFileBytes: maxFileBytes}
}

// Upload accepts a multipart form with "file" (PDF) and an optional "name".
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	if h.maxFileBytes > 0 && file.Size > h.maxFileBytes {
		writeError(c, app.ErrFileTooLarge, "upload failed")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		UserID:   userID,
		Filename: file.Filename,
		Name:     c.PostForm("name"),
		Data:     data,
	})
	if err != nil {
		writeError(c, err, "upload failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Register(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req RegisterDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	doc, err := h.documents.Register(c.Request.Context(), userID, req.Name, req.URL)
	if err != nil {
		writeError(c, err, "register document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list documents failed")
		return
	}
	response.OK(c, docs)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	doc, err := h.documents.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "get document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), userID, id); err != nil {
		writeError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func (h *DocumentHandler) Ingest(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	p, err := h.documents.Ingest(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "dispatch ingestion failed")
		return
	}
	c.JSON(http.StatusAccepted, response.APIResponse{Code: response.CodeOK, Message: "accepted", Data: p})
}

func (h *DocumentHandler) Progress(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	p, err := h.documents.Progress(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "get progress failed")
		return
	}
	response.OK(c, p)
}

// StreamProgress pushes one "progress" event per update until ingestion
// finishes or the client goes away.
func (h *DocumentHandler) StreamProgress(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	updates, err := h.documents.WatchProgress(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err, "watch progress failed")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		p, ok := <-updates
		if !ok {
			return false
		}
		c.SSEvent("progress", p)
		return true
	})
}

func (h *DocumentHandler) Search(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	results, err := h.chat.Search(c.Request.Context(), app.SearchInput{
		UserID:     userID,
		DocumentID: c.Param("id"),
		Query:      req.Query,
		K:          req.K,
	})
	if err != nil {
		writeError(c, err, "search failed")
		return
	}
	response.OK(c, results)
}

func (h *DocumentHandler) Ask(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), app.AskInput{
		UserID:     userID,
		DocumentID: c.Param("id"),
		Question:   req.Question,
		TopK:       req.TopK,
	})
	if err != nil {
		writeError(c, err, "ask failed")
		return
	}
	response.OK(c, answer)
}
