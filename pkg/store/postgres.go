package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/xhad/docsort/internal/models"
)

// PostgresStore keeps metadata in PostgreSQL. The 2D map position is also
// stored as a pgvector column so neighbouring documents can be queried.
type PostgresStore struct {
	config StoreConfig
	pool   *pgxpool.Pool
}

func NewPostgres(config StoreConfig) (*PostgresStore, error) {
	if config.TableName == "" {
		config.TableName = "document_metadata"
	}

	pool, err := pgxpool.New(context.Background(), config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{
		config: config,
		pool:   pool,
	}

	if err := s.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

func (s *PostgresStore) initialize() error {
	ctx := context.Background()

	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			batch_id UUID NOT NULL,
			filename TEXT NOT NULL,
			file_size_kb DOUBLE PRECISION NOT NULL,
			file_type VARCHAR(10),
			page_count INTEGER,
			language VARCHAR(5),
			cluster_label VARCHAR(50) NOT NULL,
			x_coord DOUBLE PRECISION NOT NULL,
			y_coord DOUBLE PRECISION NOT NULL,
			coords vector(2),
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.config.TableName)
	if _, err := s.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_batch_idx ON %s (batch_id)`,
		s.config.TableName, s.config.TableName)
	if _, err := s.pool.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Insert appends one row per result in a single transaction.
func (s *PostgresStore) Insert(ctx context.Context, batchID string, results []models.AnalysisResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, batch_id, filename, file_size_kb, file_type, page_count,
			language, cluster_label, x_coord, y_coord, coords, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.config.TableName)

	for _, row := range rowsFor(batchID, results, time.Now()) {
		coords := pgvector.NewVector([]float32{float32(row.X), float32(row.Y)})
		_, err := tx.Exec(ctx, stmt,
			row.ID,
			row.BatchID,
			row.Filename,
			row.FileSizeKB,
			row.FileType,
			row.PageCount,
			row.Language,
			row.ClusterLabel,
			row.X,
			row.Y,
			coords,
			row.ProcessedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert metadata for %s: %w", row.Filename, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Batch returns the rows recorded for batchID ordered by filename.
func (s *PostgresStore) Batch(ctx context.Context, batchID string) ([]Row, error) {
	return s.query(ctx, "ORDER BY filename, id", batchID)
}

// Nearest returns the rows recorded for batchID ordered by their distance
// from the point (x, y) on the document map.
func (s *PostgresStore) Nearest(ctx context.Context, batchID string, x, y float64) ([]Row, error) {
	origin := pgvector.NewVector([]float32{float32(x), float32(y)})
	return s.query(ctx, "ORDER BY coords <-> $2, filename", batchID, origin)
}

func (s *PostgresStore) query(ctx context.Context, order string, args ...any) ([]Row, error) {
	query := fmt.Sprintf(`
		SELECT id::text, batch_id::text, filename, file_size_kb, file_type, page_count,
			language, cluster_label, x_coord, y_coord, processed_at
		FROM %s
		WHERE batch_id = $1
		%s`,
		s.config.TableName, order)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(
			&r.ID,
			&r.BatchID,
			&r.Filename,
			&r.FileSizeKB,
			&r.FileType,
			&r.PageCount,
			&r.Language,
			&r.ClusterLabel,
			&r.X,
			&r.Y,
			&r.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
