package pdfextract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"paperchat/internal/rag"
)

const defaultMaxBytes = 32 << 20

var errTooLarge = errors.New("document exceeds size limit")

// LocalOpener resolves URLs served by the service's own object storage
// without a network round trip. ok is false for foreign URLs.
type LocalOpener interface {
	Open(ctx context.Context, rawURL string) (rc io.ReadCloser, ok bool, err error)
}

// Extractor fetches a document by reference and extracts its text.
type Extractor struct {
	client   *http.Client
	local    LocalOpener
	maxBytes int64
}

type Option func(*Extractor)

func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		if client != nil {
			e.client = client
		}
	}
}

func WithLocalOpener(local LocalOpener) Option {
	return func(e *Extractor) {
		e.local = local
	}
}

func WithMaxBytes(n int64) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		client:   &http.Client{Timeout: 60 * time.Second},
		maxBytes: defaultMaxBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract fetches the document at rawURL and returns its text.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (string, error) {
	b, err := e.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	return ExtractText(b)
}

// Fetch returns the raw bytes behind rawURL. Every failure is an extraction
// error.
func (e *Extractor) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if e.local != nil {
		rc, ok, err := e.local.Open(ctx, rawURL)
		if err != nil {
			return nil, rag.NewError(rag.KindExtraction, "fetch", err)
		}
		if ok {
			defer rc.Close()
			return e.readLimited(rc)
		}
	}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, rag.NewError(rag.KindExtraction, "fetch", fmt.Errorf("unsupported document url %q", rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, rag.NewError(rag.KindExtraction, "fetch", fmt.Errorf("build fetch request failed: %w", err))
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, rag.NewError(rag.KindExtraction, "fetch", fmt.Errorf("fetch document failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, rag.NewError(rag.KindExtraction, "fetch", fmt.Errorf("fetch document status %d", resp.StatusCode))
	}
	return e.readLimited(resp.Body)
}

func (e *Extractor) readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, rag.NewError(rag.KindExtraction, "fetch", fmt.Errorf("read document failed: %w", err))
	}
	if int64(len(b)) > e.maxBytes {
		return nil, rag.NewError(rag.KindExtraction, "fetch", errTooLarge)
	}
	return b, nil
}
