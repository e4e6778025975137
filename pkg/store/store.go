// Package store records the non-content metadata of analysed documents.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/internal/types"
)

type StoreConfig struct {
	// URL selects the backend: empty disables persistence, postgres:// and
	// postgresql:// use PostgreSQL, sqlite:// or a file path use SQLite.
	URL       string
	TableName string
}

var tableNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ErrNotPersisted is returned by reads when persistence is disabled.
var ErrNotPersisted = errors.New("metadata persistence is disabled")

// Reader lists the rows recorded for a batch.
type Reader interface {
	Batch(ctx context.Context, batchID string) ([]Row, error)
	Nearest(ctx context.Context, batchID string, x, y float64) ([]Row, error)
}

// Store records metadata and reads it back.
type Store interface {
	types.MetadataStore
	Reader
}

// Open returns the metadata store selected by config.URL.
func Open(config StoreConfig) (Store, error) {
	if config.TableName == "" {
		config.TableName = "document_metadata"
	}
	if !tableNameRegex.MatchString(config.TableName) {
		return nil, fmt.Errorf("invalid table name %q", config.TableName)
	}

	switch {
	case config.URL == "":
		return Noop{}, nil
	case strings.HasPrefix(config.URL, "postgres://"), strings.HasPrefix(config.URL, "postgresql://"):
		s, err := NewPostgres(config)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return s, nil
	default:
		s, err := NewSQLite(config)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, nil
	}
}

// Noop discards metadata.
type Noop struct{}

func (Noop) Insert(ctx context.Context, batchID string, results []models.AnalysisResult) error {
	return nil
}

func (Noop) Batch(ctx context.Context, batchID string) ([]Row, error) {
	return nil, ErrNotPersisted
}

func (Noop) Nearest(ctx context.Context, batchID string, x, y float64) ([]Row, error) {
	return nil, ErrNotPersisted
}

func (Noop) Close() {}

// Row is one stored metadata record. It never carries document content.
type Row struct {
	ID           string    `json:"id"`
	BatchID      string    `json:"batch_id"`
	Filename     string    `json:"filename"`
	FileSizeKB   float64   `json:"file_size_kb"`
	FileType     string    `json:"file_type"`
	PageCount    *int      `json:"page_count,omitempty"`
	Language     *string   `json:"language,omitempty"`
	ClusterLabel string    `json:"cluster_label"`
	X            float64   `json:"x"`
	Y            float64   `json:"y"`
	ProcessedAt  time.Time `json:"processed_at"`
}

func rowsFor(batchID string, results []models.AnalysisResult, now time.Time) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		row := Row{
			ID:           uuid.NewString(),
			BatchID:      batchID,
			Filename:     sanitizeUTF8(r.Filename),
			FileSizeKB:   r.Metadata.FileSizeKB,
			FileType:     clip(r.Metadata.FileType, 10),
			PageCount:    r.Metadata.PageCount,
			ClusterLabel: clip(sanitizeUTF8(r.Folder), 50),
			X:            r.X,
			Y:            r.Y,
			ProcessedAt:  now.UTC(),
		}
		if r.Metadata.Language != nil {
			lang := clip(*r.Metadata.Language, 5)
			row.Language = &lang
		}
		rows[i] = row
	}
	return rows
}

// clip shortens s to at most n runes to fit a bounded column.
func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
