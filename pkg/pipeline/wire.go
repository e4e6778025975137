package pipeline

import (
	"fmt"
	"time"

	"github.com/xhad/docsort/internal/types"
	"github.com/xhad/docsort/pkg/cluster"
	"github.com/xhad/docsort/pkg/config"
	"github.com/xhad/docsort/pkg/embedding"
	"github.com/xhad/docsort/pkg/extractor"
	"github.com/xhad/docsort/pkg/labeler"
	"github.com/xhad/docsort/pkg/llm"
	"github.com/xhad/docsort/pkg/reducer"
	"github.com/xhad/docsort/pkg/store"
)

// Services are the remote model endpoints a Pipeline talks to.
type Services struct {
	Embedder  types.Embedder
	Completer types.Completer
	Describer types.Describer
}

// NewFromConfig builds a Pipeline with every component configured from cfg.
// One retrier, and so one rate limit, is shared by every remote call.
func NewFromConfig(cfg *config.Config, services Services, metadata types.MetadataStore, scrub types.Scrubber) *Pipeline {
	retrier := llm.NewRetrier(llm.RetryConfig{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		Backoff:     time.Duration(cfg.Pipeline.BackoffMS) * time.Millisecond,
		Timeout:     time.Duration(cfg.LLM.TimeoutSecs) * time.Second,
		RateLimit:   cfg.Pipeline.RateLimit,
	})

	return New(Components{
		Extractor: extractor.NewWithConfig(extractor.ExtractorConfig{
			MaxPages:      cfg.Extractor.MaxPages,
			MaxChars:      cfg.Extractor.MaxChars,
			MaxParagraphs: cfg.Extractor.MaxParagraphs,
			Concurrency:   cfg.Pipeline.Concurrency,
			Scrub:         scrub,
		}, services.Describer, retrier),
		Embedding: embedding.NewWithConfig(embedding.ClientConfig{
			BatchSize:   cfg.Pipeline.BatchSize,
			Concurrency: cfg.Pipeline.Concurrency,
		}, services.Embedder, retrier),
		Reducer: reducer.NewWithConfig(reducer.ReducerConfig{
			MinPoints:       cfg.Reducer.MinPoints,
			Neighbours:      cfg.Reducer.Neighbours,
			ScaleNeighbour:  cfg.Reducer.ScaleNeighbour,
			PlaneNeighbours: cfg.Reducer.PlaneNeighbours,
		}),
		Clusterer: cluster.NewWithConfig(cluster.ClusterConfig{
			MinClusterSize: cfg.Clustering.MinClusterSize,
			MinSamples:     cfg.Clustering.MinSamples,
			Adaptive:       cfg.Clustering.Adaptive,
		}),
		Labeler: labeler.NewWithConfig(labeler.LabelerConfig{
			Concurrency: cfg.Pipeline.Concurrency,
		}, services.Completer, retrier),
		Store: metadata,
	})
}

func temperature(cfg *config.Config) float64 {
	if cfg.LLM.Temperature == nil {
		return 0.2
	}
	return *cfg.LLM.Temperature
}

// FromConfig connects to the configured model provider and metadata store
// and builds a Pipeline. The returned store must be closed by the caller.
func FromConfig(cfg *config.Config) (*Pipeline, store.Store, error) {
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Provider:       cfg.LLM.Provider,
		BaseURL:        cfg.LLM.BaseURL,
		APIKey:         cfg.LLM.APIKey,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		LabelModel:     cfg.LLM.LabelModel,
		VisionModel:    cfg.LLM.VisionModel,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    temperature(cfg),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model provider: %w", err)
	}

	metadata, err := store.Open(store.StoreConfig{
		URL:       cfg.Database.URL,
		TableName: cfg.Database.TableName,
	})
	if err != nil {
		return nil, nil, err
	}

	services := Services{Embedder: provider, Completer: provider, Describer: provider}
	return NewFromConfig(cfg, services, metadata, nil), metadata, nil
}
