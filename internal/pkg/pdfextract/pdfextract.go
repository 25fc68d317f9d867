package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	"paperchat/internal/rag"
)

// PageSeparator joins the text of consecutive pages.
const PageSeparator = "\n\n"

var (
	errEmptyDocument = errors.New("document is empty")
	errNoText        = errors.New("document has no extractable text layer")

	spaceRun   = regexp.MustCompile(`[ \t\f\v\r]+`)
	newlineRun = regexp.MustCompile(`\n{3,}`)
)

// ExtractText extracts plain text from PDF bytes page by page in reading
// order. Pages are joined by a blank line. A document without any text layer
// is an extraction error.
func ExtractText(b []byte) (text string, err error) {
	if len(b) == 0 {
		return "", rag.NewError(rag.KindExtraction, "extract", errEmptyDocument)
	}

	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = rag.NewError(rag.KindExtraction, "extract", fmt.Errorf("parse pdf failed: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", rag.NewError(rag.KindExtraction, "extract", fmt.Errorf("open pdf failed: %w", err))
	}

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", rag.NewError(rag.KindExtraction, "extract", fmt.Errorf("read page %d failed: %w", i, err))
		}
		if content = normalize(content); content != "" {
			pages = append(pages, content)
		}
	}

	text = strings.Join(pages, PageSeparator)
	if strings.TrimSpace(text) == "" {
		return "", rag.NewError(rag.KindExtraction, "extract", errNoText)
	}
	return text, nil
}

func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = spaceRun.ReplaceAllString(s, " ")
	s = newlineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
