package extractor_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/extractor"
	"github.com/xhad/docsort/pkg/llm"
)

const english = "The quarterly invoice lists every delivery made to the warehouse during the spring season."

type stubDescriber struct {
	text  string
	err   error
	calls int
}

func (s *stubDescriber) Describe(ctx context.Context, mimeType string, data []byte) (string, error) {
	s.calls++
	return s.text, s.err
}

func newExtractor(config extractor.ExtractorConfig, d *stubDescriber) *extractor.Extractor {
	retrier := llm.NewRetrier(llm.RetryConfig{MaxAttempts: 3, Backoff: time.Millisecond, Timeout: time.Second})
	if d == nil {
		return extractor.NewWithConfig(config, nil, retrier)
	}
	return extractor.NewWithConfig(config, d, retrier)
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)
	_, err = w.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtractPlainText(t *testing.T) {
	e := newExtractor(extractor.ExtractorConfig{}, nil)

	out, err := e.Extract(context.Background(), "notes.txt", []byte(english+"\n\n   second   line  "))
	require.NoError(t, err)

	assert.Equal(t, models.KindText, out.Kind)
	assert.Equal(t, english+"\nsecond line", out.Text)
	assert.Equal(t, "en", out.Language)
}

func TestExtractTruncates(t *testing.T) {
	e := newExtractor(extractor.ExtractorConfig{MaxChars: 10}, nil)

	out, err := e.Extract(context.Background(), "long.txt", []byte(strings.Repeat("é", 50)))
	require.NoError(t, err)
	assert.Equal(t, 10, len([]rune(out.Text)))
	assert.Equal(t, extractor.UnknownLanguage, out.Language)
}

func TestExtractHTML(t *testing.T) {
	e := newExtractor(extractor.ExtractorConfig{}, nil)
	page := `<html><head><title>Recipes</title><script>var x = 1;</script></head>
<body><nav>Home</nav><main><h1>Pancakes</h1><p>Mix flour and eggs.</p></main></body></html>`

	out, err := e.Extract(context.Background(), "recipes.html", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, models.KindHTML, out.Kind)
	assert.Contains(t, out.Text, "Recipes")
	assert.Contains(t, out.Text, "Mix flour and eggs.")
	assert.NotContains(t, out.Text, "var x")
	assert.NotContains(t, out.Text, "Home")
}

func TestExtractDOCXReadsBoundedParagraphs(t *testing.T) {
	e := newExtractor(extractor.ExtractorConfig{MaxParagraphs: 2}, nil)
	content := buildDOCX(t, "First paragraph", "Second paragraph", "Third paragraph")

	out, err := e.Extract(context.Background(), "report.docx", content)
	require.NoError(t, err)

	assert.Equal(t, models.KindDOCX, out.Kind)
	assert.Equal(t, "First paragraph\nSecond paragraph", out.Text)
}

func TestExtractImageUsesDescriber(t *testing.T) {
	d := &stubDescriber{text: "A scanned receipt from a hardware store."}
	e := newExtractor(extractor.ExtractorConfig{}, d)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	out, err := e.Extract(context.Background(), "receipt.png", png)
	require.NoError(t, err)

	assert.Equal(t, models.KindImage, out.Kind)
	assert.Equal(t, "A scanned receipt from a hardware store.", out.Text)
	assert.Equal(t, 1, d.calls)
}

func TestExtractImageRetriesThenFails(t *testing.T) {
	d := &stubDescriber{err: llm.Transient(errors.New("503 service unavailable"))}
	e := newExtractor(extractor.ExtractorConfig{}, d)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	_, err := e.Extract(context.Background(), "receipt.png", png)

	var failure *models.ExtractionFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, 3, d.calls)
}

func TestExtractScrubsText(t *testing.T) {
	e := newExtractor(extractor.ExtractorConfig{
		Scrub: func(text string) string { return strings.ReplaceAll(text, "secret", "[redacted]") },
	}, nil)

	out, err := e.Extract(context.Background(), "memo.txt", []byte("the secret plan"))
	require.NoError(t, err)
	assert.Equal(t, "the [redacted] plan", out.Text)
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  []byte
	}{
		{name: "empty text", filename: "empty.txt", content: []byte("   ")},
		{name: "binary", filename: "blob.bin", content: []byte{0x00, 0x01, 0x02, 0xff, 0xfe}},
		{name: "broken pdf", filename: "broken.pdf", content: []byte("%PDF-1.4\nnot really a pdf")},
		{name: "broken docx", filename: "broken.docx", content: []byte("PK\x03\x04garbage")},
	}

	e := newExtractor(extractor.ExtractorConfig{}, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Extract(context.Background(), tt.filename, tt.content)
			var failure *models.ExtractionFailure
			assert.ErrorAs(t, err, &failure)
		})
	}
}

func TestExtractAllKeepsFailedDocuments(t *testing.T) {
	var (
		mu       sync.Mutex
		progress []int
	)
	e := newExtractor(extractor.ExtractorConfig{
		Concurrency: 2,
		OnProgress: func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, total)
		},
	}, nil)

	docs := []*models.Document{
		models.NewDocument(models.Upload{Filename: "a.txt", Content: []byte(english)}),
		models.NewDocument(models.Upload{Filename: "b.bin", Content: []byte{0x00, 0x01}}),
		models.NewDocument(models.Upload{Filename: "c.md", Content: []byte("# Heading\nbody")}),
	}

	require.NoError(t, e.ExtractAll(context.Background(), docs))

	assert.True(t, docs[0].Embeddable())
	assert.False(t, docs[1].Embeddable())
	require.NotNil(t, docs[1].Failure)
	assert.Equal(t, docs[1].ID, docs[1].Failure.DocumentID)
	assert.True(t, docs[2].Embeddable())
	assert.Len(t, progress, 3)
}

func TestExtractAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newExtractor(extractor.ExtractorConfig{}, nil)
	docs := []*models.Document{models.NewDocument(models.Upload{Filename: "a.txt", Content: []byte(english)})}

	assert.ErrorIs(t, e.ExtractAll(ctx, docs), context.Canceled)
}

func TestDetectLanguageNeverFails(t *testing.T) {
	assert.Equal(t, extractor.UnknownLanguage, extractor.DetectLanguage(""))
	assert.Equal(t, extractor.UnknownLanguage, extractor.DetectLanguage("12345"))
	assert.Equal(t, "en", extractor.DetectLanguage(english))
}
