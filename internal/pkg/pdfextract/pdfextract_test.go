package pdfextract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperchat/internal/rag"
)

func TestExtractText_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{name: "empty", input: nil},
		{name: "not a pdf", input: []byte("hello, this is plain text")},
		{name: "truncated header", input: []byte("%PDF-1.4\n%%EOF")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, err := ExtractText(tt.input)
			require.Error(t, err)
			assert.Empty(t, text)
			assert.ErrorIs(t, err, rag.ErrExtraction)
		})
	}
}

// buildPDF writes a minimal PDF with one line of Helvetica text per page.
func buildPDF(pages ...string) []byte {
	n := len(pages)
	fontObj := 3 + 2*n
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	objects = append(objects, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontObj, 4+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtractText_PagesInReadingOrder(t *testing.T) {
	text, err := ExtractText(buildPDF("Hello page one", "Second page text"))

	require.NoError(t, err)
	assert.Equal(t, "Hello page one\n\nSecond page text", text)
}

func TestExtract_ValidDocumentOverHTTP(t *testing.T) {
	doc := buildPDF("Refunds are issued within 30 days.")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(doc)
	}))
	defer srv.Close()

	text, err := NewExtractor().Extract(context.Background(), srv.URL+"/policy.pdf")

	require.NoError(t, err)
	assert.Equal(t, "Refunds are issued within 30 days.", text)
}

func TestNormalize(t *testing.T) {
	got := normalize("  Title\r\n\r\n\r\n\r\nBody   text\twith \f gaps  ")
	assert.Equal(t, "Title\n\nBody text with gaps", got)
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/doc.pdf":
			_, _ = w.Write([]byte("%PDF-bytes"))
		case "/big.pdf":
			_, _ = w.Write(bytes.Repeat([]byte("x"), 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := NewExtractor(WithMaxBytes(32))

	b, err := e.Fetch(context.Background(), srv.URL+"/doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-bytes", string(b))

	_, err = e.Fetch(context.Background(), srv.URL+"/missing.pdf")
	assert.ErrorIs(t, err, rag.ErrExtraction)

	_, err = e.Fetch(context.Background(), srv.URL+"/big.pdf")
	assert.ErrorIs(t, err, rag.ErrExtraction)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/doc.pdf"
	srv.Close()

	_, err := NewExtractor().Extract(context.Background(), url)
	assert.ErrorIs(t, err, rag.ErrExtraction)
}

func TestFetch_UnsupportedScheme(t *testing.T) {
	for _, u := range []string{"ftp://example.com/a.pdf", "not a url", "/relative/path.pdf"} {
		_, err := NewExtractor().Fetch(context.Background(), u)
		assert.ErrorIs(t, err, rag.ErrExtraction, u)
	}
}

type stubOpener struct {
	prefix string
	body   string
}

func (s stubOpener) Open(_ context.Context, rawURL string) (io.ReadCloser, bool, error) {
	if !strings.HasPrefix(rawURL, s.prefix) {
		return nil, false, nil
	}
	return io.NopCloser(strings.NewReader(s.body)), true, nil
}

func TestFetch_LocalOpener(t *testing.T) {
	e := NewExtractor(WithLocalOpener(stubOpener{prefix: "http://files.local/", body: "local bytes"}))

	b, err := e.Fetch(context.Background(), "http://files.local/files/abc.pdf")

	require.NoError(t, err)
	assert.Equal(t, "local bytes", string(b))
}

func TestExtract_GarbageFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer srv.Close()

	_, err := NewExtractor().Extract(context.Background(), srv.URL)
	assert.ErrorIs(t, err, rag.ErrExtraction)
}
