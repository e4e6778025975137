package store_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/pkg/store"
)

func sampleResults() []models.AnalysisResult {
	pages := 3
	lang := "en"
	return []models.AnalysisResult{
		{
			Filename: "invoice1.pdf",
			Folder:   "Invoices",
			X:        0.5,
			Y:        -0.25,
			Metadata: models.FileMetadata{FileSizeKB: 12.5, FileType: "pdf", PageCount: &pages, Language: &lang},
		},
		{
			Filename: "notes.txt",
			Folder:   strings.Repeat("L", 80),
			Metadata: models.FileMetadata{FileSizeKB: 0.1, FileType: "averyverylongextension"},
		},
	}
}

func TestSQLiteInsertAndRead(t *testing.T) {
	s, err := store.NewSQLite(store.StoreConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "batch-1", sampleResults()))
	require.NoError(t, s.Insert(ctx, "batch-2", sampleResults()[:1]))

	rows, err := s.Batch(ctx, "batch-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "invoice1.pdf", rows[0].Filename)
	assert.Equal(t, "Invoices", rows[0].ClusterLabel)
	assert.Equal(t, 0.5, rows[0].X)
	require.NotNil(t, rows[0].PageCount)
	assert.Equal(t, 3, *rows[0].PageCount)
	require.NotNil(t, rows[0].Language)
	assert.Equal(t, "en", *rows[0].Language)
	assert.False(t, rows[0].ProcessedAt.IsZero())

	assert.Nil(t, rows[1].PageCount)
	assert.Nil(t, rows[1].Language)
	assert.Len(t, rows[1].ClusterLabel, 50)
	assert.Len(t, rows[1].FileType, 10)

	other, err := s.Batch(ctx, "batch-2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func TestSQLiteNearest(t *testing.T) {
	s, err := store.NewSQLite(store.StoreConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "meta.db")})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "batch-1", []models.AnalysisResult{
		{Filename: "far.txt", Folder: "A", X: 1, Y: 1},
		{Filename: "near.txt", Folder: "A", X: -0.9, Y: -0.8},
		{Filename: "middle.txt", Folder: "B", X: 0, Y: 0},
	}))

	rows, err := s.Nearest(ctx, "batch-1", -1, -1)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "near.txt", rows[0].Filename)
	assert.Equal(t, "middle.txt", rows[1].Filename)
	assert.Equal(t, "far.txt", rows[2].Filename)

	none, err := s.Nearest(ctx, "missing", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := store.Open(store.StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, store.Noop{}, s)
	assert.NoError(t, s.Insert(context.Background(), "b", sampleResults()))
	_, err = s.Batch(context.Background(), "b")
	assert.ErrorIs(t, err, store.ErrNotPersisted)
	s.Close()

	s, err = store.Open(store.StoreConfig{URL: filepath.Join(t.TempDir(), "nested", "meta.db")})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &store.SQLiteStore{}, s)
}

func TestOpenRejectsBadTableName(t *testing.T) {
	_, err := store.Open(store.StoreConfig{TableName: "meta; DROP TABLE x"})
	assert.Error(t, err)
}

func TestPostgresInsert(t *testing.T) {
	url := os.Getenv("DOCSORT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("DOCSORT_TEST_DATABASE_URL not set")
	}

	s, err := store.NewPostgres(store.StoreConfig{URL: url, TableName: "test_document_metadata"})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	batchID := "5f0c6a56-3a55-4a0f-9b7e-0d8c1f3b2a11"
	require.NoError(t, s.Insert(ctx, batchID, sampleResults()))

	rows, err := s.Nearest(ctx, batchID, 0.5, -0.25)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "invoice1.pdf", rows[0].Filename)

	rows, err = s.Batch(ctx, batchID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(rows), 2)
}
