package types

import (
	"context"

	"github.com/xhad/docsort/internal/models"
)

// Core interfaces

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer sends a single prompt to a language model and returns its answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Describer produces a textual description of an image.
type Describer interface {
	Describe(ctx context.Context, mimeType string, data []byte) (string, error)
}

type Reducer interface {
	Reduce(ctx context.Context, vectors []models.EmbeddingVector) ([]models.ProjectedPoint, error)
}

type Clusterer interface {
	Cluster(ctx context.Context, points []models.ProjectedPoint) ([]models.Cluster, error)
}

// MetadataStore persists non-content fields of analysis results. Inserts
// are append-only.
type MetadataStore interface {
	Insert(ctx context.Context, batchID string, results []models.AnalysisResult) error
	Close()
}

// Scrubber removes sensitive data from text before it leaves the process.
type Scrubber func(text string) string
