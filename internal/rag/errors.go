package rag

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Remote and parser failures are converted
// into one of these kinds at the component boundary.
type Kind int

const (
	KindExtraction Kind = iota + 1
	KindSplit
	KindEmbedding
	KindNoContent
	KindGeneration
)

var (
	ErrExtraction = errors.New("extraction error")
	ErrSplit      = errors.New("split error")
	ErrEmbedding  = errors.New("embedding error")
	ErrNoContent  = errors.New("no content")
	ErrGeneration = errors.New("generation error")
)

func (k Kind) String() string {
	switch k {
	case KindExtraction:
		return "extraction"
	case KindSplit:
		return "split"
	case KindEmbedding:
		return "embedding"
	case KindNoContent:
		return "no_content"
	case KindGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// Error is the error type crossing from the pipeline components into
// orchestration and transport code.
type Error struct {
	Kind Kind
	Op   string
	Err  error
	// Retryable marks transient remote failures (rate limit, timeout, 5xx).
	Retryable bool
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels. A split error is the terminal case of an
// extraction error and matches both.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrExtraction:
		return e.Kind == KindExtraction || e.Kind == KindSplit
	case ErrSplit:
		return e.Kind == KindSplit
	case ErrEmbedding:
		return e.Kind == KindEmbedding
	case ErrNoContent:
		return e.Kind == KindNoContent
	case ErrGeneration:
		return e.Kind == KindGeneration
	}
	return false
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsRetryable reports whether err is a transient embedding failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
