package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"paperchat/internal/app"
	"paperchat/internal/rag"
	"paperchat/internal/transport/http/middleware"
	"paperchat/internal/transport/http/response"
)

// writeError maps service errors onto the response envelope. Unknown errors
// are reported with fallback only.
func writeError(c *gin.Context, err error, fallback string) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrUnsupportedFile):
		response.Error(c, http.StatusBadRequest, response.CodeUnsupportedFile, err.Error())
	case errors.Is(err, app.ErrFileTooLarge):
		response.Error(c, http.StatusBadRequest, response.CodeFileTooLarge, err.Error())
	case errors.Is(err, app.ErrUploadLimitReached):
		response.Error(c, http.StatusForbidden, response.CodeUploadLimit, err.Error())
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, err.Error())
	case errors.Is(err, app.ErrDocumentBusy):
		response.Error(c, http.StatusConflict, response.CodeDocumentBusy, err.Error())
	case errors.Is(err, rag.ErrNoContent):
		response.Error(c, http.StatusBadRequest, response.CodeNoContent, "this document has no readable content yet, please re-ingest it")
	case errors.Is(err, rag.ErrExtraction):
		response.Error(c, http.StatusBadRequest, response.CodeExtractionFailed, err.Error())
	case errors.Is(err, rag.ErrEmbedding):
		response.Error(c, http.StatusBadGateway, response.CodeEmbeddingFailed, err.Error())
	case errors.Is(err, rag.ErrGeneration):
		response.Error(c, http.StatusInternalServerError, response.CodeGenerationFailed, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

func getUserIDFromContext(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserIDKey)
	return userID, userID != ""
}
