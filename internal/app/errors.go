// Package app holds the use cases behind the HTTP surface: document
// management, the stateless pipeline endpoints and per-document questions.
package app

import (
	"errors"

	"paperchat/internal/model"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrDocumentNotFound   = model.ErrDocumentNotFound
	ErrUploadLimitReached = errors.New("document upload limit reached")
	ErrFileTooLarge       = errors.New("file too large")
	ErrUnsupportedFile    = errors.New("only PDF files are supported")
	ErrDocumentBusy       = errors.New("document is being ingested")
)
