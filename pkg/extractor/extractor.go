package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/internal/types"
	"github.com/xhad/docsort/pkg/llm"
	"github.com/xhad/docsort/pkg/privacy"
)

type ExtractorConfig struct {
	MaxPages      int // PDF pages read per document
	MaxChars      int // excerpt budget, in characters
	MaxParagraphs int // DOCX paragraphs read per document
	Concurrency   int
	Scrub         types.Scrubber
	OnProgress    func(done, total int)
}

// Extracted is the bounded text excerpt of one file.
type Extracted struct {
	Text      string
	Kind      models.MimeKind
	MimeType  string
	PageCount int
	Language  string
}

type Extractor struct {
	config    ExtractorConfig
	describer types.Describer
	retrier   *llm.Retrier
}

// NewWithConfig creates an Extractor. describer may be nil, in which case
// images are reported as unprocessable.
func NewWithConfig(config ExtractorConfig, describer types.Describer, retrier *llm.Retrier) *Extractor {
	if config.MaxPages == 0 {
		config.MaxPages = 3
	}
	if config.MaxChars == 0 {
		config.MaxChars = 2000
	}
	if config.MaxParagraphs == 0 {
		config.MaxParagraphs = 50
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	config.Scrub = privacy.OrIdentity(config.Scrub)
	if retrier == nil {
		retrier = llm.NewRetrier(llm.RetryConfig{})
	}

	return &Extractor{
		config:    config,
		describer: describer,
		retrier:   retrier,
	}
}

var errNoText = errors.New("no extractable text")

// Extract turns file content into a scrubbed, bounded excerpt. Any failure
// is returned as a *models.ExtractionFailure.
func (e *Extractor) Extract(ctx context.Context, filename string, content []byte) (Extracted, error) {
	mimeType, kind := DetectKind(filename, content)
	out := Extracted{Kind: kind, MimeType: mimeType, Language: UnknownLanguage}

	var (
		text string
		err  error
	)
	switch kind {
	case models.KindPDF:
		text, out.PageCount, err = extractPDF(content, e.config.MaxPages)
	case models.KindDOCX:
		text, err = extractDOCX(content, e.config.MaxParagraphs)
	case models.KindHTML:
		text, err = extractHTML(content)
	case models.KindText:
		text, err = extractPlainText(content)
	case models.KindImage:
		text, err = e.describe(ctx, mimeType, content)
	default:
		return out, &models.ExtractionFailure{Reason: fmt.Sprintf("unsupported file type %s", mimeType)}
	}
	if err != nil {
		return out, &models.ExtractionFailure{Reason: fmt.Sprintf("read %s", kind), Err: err}
	}

	text = truncate(cleanText(text), e.config.MaxChars)
	if text == "" {
		return out, &models.ExtractionFailure{Reason: string(kind), Err: errNoText}
	}

	out.Language = DetectLanguage(text)
	out.Text = e.config.Scrub(text)
	return out, nil
}

func (e *Extractor) describe(ctx context.Context, mimeType string, content []byte) (string, error) {
	if e.describer == nil {
		return "", errors.New("no image describer configured")
	}
	text, _, err := llm.Call(ctx, e.retrier, func(ctx context.Context) (string, error) {
		return e.describer.Describe(ctx, mimeType, content)
	})
	return text, err
}

// ExtractAll extracts every document concurrently, recording the outcome on
// the document itself. Individual failures never abort the batch; only
// cancellation of ctx does.
func (e *Extractor) ExtractAll(ctx context.Context, docs []*models.Document) error {
	var done atomic.Int32
	total := len(docs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.apply(gctx, doc)
			if e.config.OnProgress != nil {
				e.config.OnProgress(int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (e *Extractor) apply(ctx context.Context, doc *models.Document) {
	out, err := e.Extract(ctx, doc.Filename, doc.Content)
	doc.MimeKind = out.Kind
	doc.MimeType = out.MimeType
	doc.PageCount = out.PageCount
	doc.Language = out.Language
	if err != nil {
		var failure *models.ExtractionFailure
		if !errors.As(err, &failure) {
			failure = &models.ExtractionFailure{Reason: "extract", Err: err}
		}
		failure.DocumentID = doc.ID
		doc.Failure = failure
		doc.Text = ""
		return
	}
	doc.Text = out.Text
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}

// WithProgress returns a copy of e that reports progress to fn.
func (e *Extractor) WithProgress(fn func(done, total int)) *Extractor {
	c := *e
	c.config.OnProgress = fn
	return &c
}
