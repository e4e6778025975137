package extractor

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/xhad/docsort/internal/models"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

var extensionKinds = map[string]models.MimeKind{
	".pdf":      models.KindPDF,
	".docx":     models.KindDOCX,
	".txt":      models.KindText,
	".md":       models.KindText,
	".markdown": models.KindText,
	".csv":      models.KindText,
	".tsv":      models.KindText,
	".json":     models.KindText,
	".log":      models.KindText,
	".rtf":      models.KindText,
	".html":     models.KindHTML,
	".htm":      models.KindHTML,
	".png":      models.KindImage,
	".jpg":      models.KindImage,
	".jpeg":     models.KindImage,
	".gif":      models.KindImage,
	".webp":     models.KindImage,
}

// DetectKind sniffs the content type from the bytes, falling back to the
// file extension when the content is ambiguous.
func DetectKind(filename string, content []byte) (string, models.MimeKind) {
	m := mimetype.Detect(content)
	mimeType := m.String()

	switch {
	case m.Is("application/pdf"):
		return mimeType, models.KindPDF
	case m.Is(docxMIME):
		return mimeType, models.KindDOCX
	case m.Is("text/html"):
		return mimeType, models.KindHTML
	case strings.HasPrefix(mimeType, "image/"):
		return mimeType, models.KindImage
	}

	sniffedText := strings.HasPrefix(mimeType, "text/")

	if kind, ok := extensionKinds[strings.ToLower(filepath.Ext(filename))]; ok {
		// Binary formats that turn out to be plain text are read as text.
		// A .docx that sniffs as a plain zip is left to the reader.
		if sniffedText && (kind == models.KindPDF || kind == models.KindDOCX || kind == models.KindImage) {
			return mimeType, models.KindText
		}
		return mimeType, kind
	}

	if sniffedText || (len(content) > 0 && utf8.Valid(content) && !strings.ContainsRune(string(content), 0)) {
		return mimeType, models.KindText
	}

	return mimeType, models.KindUnknown
}

// FileType returns the short file type label stored with the metadata.
func FileType(filename string, kind models.MimeKind) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext != "" && len(ext) <= 10 {
		return ext
	}
	return string(kind)
}
