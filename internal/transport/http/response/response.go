package response

import "github.com/gin-gonic/gin"

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeExtractionFailed   = 40001
	CodeNoContent          = 40002
	CodeUnsupportedFile    = 40003
	CodeFileTooLarge       = 40004
	CodeUnauthorized       = 40100
	CodeUploadLimit        = 40300
	CodeDocumentNotFound   = 40400
	CodeDocumentBusy       = 40900
	CodeInternalServer     = 50000
	CodeGenerationFailed   = 50001
	CodeEmbeddingFailed    = 50200
	CodeServiceUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}
