package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xhad/docsort/internal/models"
)

// SQLiteStore keeps metadata in a local SQLite database.
type SQLiteStore struct {
	config StoreConfig
	db     *sql.DB
}

func NewSQLite(config StoreConfig) (*SQLiteStore, error) {
	if config.TableName == "" {
		config.TableName = "document_metadata"
	}
	dsn := strings.TrimPrefix(config.URL, "sqlite://")
	if dsn == "" {
		dsn = "data/docsort.db"
	}

	if !strings.HasPrefix(dsn, ":memory:") && !strings.HasPrefix(dsn, "file:") {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps in-memory databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{config: config, db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			batch_id TEXT NOT NULL,
			filename TEXT NOT NULL,
			file_size_kb REAL NOT NULL,
			file_type TEXT,
			page_count INTEGER,
			language TEXT,
			cluster_label TEXT NOT NULL,
			x_coord REAL NOT NULL,
			y_coord REAL NOT NULL,
			processed_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_batch_idx ON %[1]s (batch_id);`,
		s.config.TableName)

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Insert appends one row per result in a single transaction.
func (s *SQLiteStore) Insert(ctx context.Context, batchID string, results []models.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, batch_id, filename, file_size_kb, file_type, page_count,
			language, cluster_label, x_coord, y_coord, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.config.TableName))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rowsFor(batchID, results, time.Now()) {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.BatchID, row.Filename, row.FileSizeKB, row.FileType, row.PageCount,
			row.Language, row.ClusterLabel, row.X, row.Y, row.ProcessedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert metadata for %s: %w", row.Filename, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Batch returns the rows recorded for batchID in insertion order.
func (s *SQLiteStore) Batch(ctx context.Context, batchID string) ([]Row, error) {
	return s.query(ctx, "ORDER BY rowid", batchID)
}

// Nearest returns the rows recorded for batchID ordered by their distance
// from the point (x, y) on the document map.
func (s *SQLiteStore) Nearest(ctx context.Context, batchID string, x, y float64) ([]Row, error) {
	return s.query(ctx, "ORDER BY (x_coord - ?) * (x_coord - ?) + (y_coord - ?) * (y_coord - ?), rowid",
		batchID, x, x, y, y)
}

func (s *SQLiteStore) query(ctx context.Context, order string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, batch_id, filename, file_size_kb, file_type, page_count,
			language, cluster_label, x_coord, y_coord, processed_at
		FROM %s
		WHERE batch_id = ?
		%s`, s.config.TableName, order), args...)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r         Row
			pageCount sql.NullInt64
			language  sql.NullString
			processed string
		)
		if err := rows.Scan(
			&r.ID, &r.BatchID, &r.Filename, &r.FileSizeKB, &r.FileType, &pageCount,
			&language, &r.ClusterLabel, &r.X, &r.Y, &processed,
		); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if r.ProcessedAt, err = time.Parse(time.RFC3339Nano, processed); err != nil {
			return nil, fmt.Errorf("parse processed_at: %w", err)
		}
		if pageCount.Valid {
			n := int(pageCount.Int64)
			r.PageCount = &n
		}
		if language.Valid {
			r.Language = &language.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}
