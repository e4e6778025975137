package models

import "github.com/google/uuid"

// Dims is the dimensionality of the clustering space.
const Dims = 10

// Upload is a single file as received from a client. Content is only held
// for the lifetime of one request.
type Upload struct {
	Filename     string
	RelativePath string
	Content      []byte
}

type Document struct {
	ID           string
	Filename     string
	RelativePath string
	Content      []byte
	Text         string
	MimeKind     MimeKind
	MimeType     string
	SizeBytes    int64
	PageCount    int
	Language     string
	Failure      *ExtractionFailure
}

// NewDocument wraps an upload with a fresh identifier.
func NewDocument(u Upload) *Document {
	return &Document{
		ID:           uuid.NewString(),
		Filename:     u.Filename,
		RelativePath: u.RelativePath,
		Content:      u.Content,
		SizeBytes:    int64(len(u.Content)),
	}
}

// Embeddable reports whether the document produced text worth embedding.
func (d *Document) Embeddable() bool {
	return d.Failure == nil && d.Text != ""
}

// Release drops the transient content so nothing outlives the request.
func (d *Document) Release() {
	d.Content = nil
	d.Text = ""
}

type MimeKind string

const (
	KindPDF     MimeKind = "pdf"
	KindDOCX    MimeKind = "docx"
	KindText    MimeKind = "text"
	KindHTML    MimeKind = "html"
	KindImage   MimeKind = "image"
	KindUnknown MimeKind = "unknown"
)

type EmbeddingVector struct {
	DocumentID string
	Vector     []float32
}

type ProjectedPoint struct {
	DocumentID string
	X          float64
	Y          float64
	Coords10D  [Dims]float64
}
