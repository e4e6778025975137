// Package embedding batches document excerpts into embedding requests and
// tolerates partial failure of the remote service.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/internal/types"
	"github.com/xhad/docsort/pkg/llm"
)

var (
	ErrLengthMismatch    = errors.New("embedding response length does not match request")
	ErrDimensionMismatch = errors.New("embedding dimension differs from the rest of the batch")
	ErrEmptyVector       = errors.New("empty embedding vector")
)

type ClientConfig struct {
	BatchSize   int
	Concurrency int
	OnProgress  func(done, total int)
}

// Input is one excerpt to embed.
type Input struct {
	DocumentID string
	Text       string
}

// Result holds either a vector or the reason the document has none.
type Result struct {
	DocumentID string
	Vector     []float32
	Failure    *models.EmbeddingFailure
}

// OK reports whether the result carries a usable vector.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Err returns the failure cause, or nil for a usable result.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}
	return r.Failure.Err
}

type Client struct {
	config   ClientConfig
	embedder types.Embedder
	retrier  *llm.Retrier
}

func NewWithConfig(config ClientConfig, embedder types.Embedder, retrier *llm.Retrier) *Client {
	if config.BatchSize <= 0 {
		config.BatchSize = 16
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 8
	}
	if retrier == nil {
		retrier = llm.NewRetrier(llm.RetryConfig{})
	}
	return &Client{config: config, embedder: embedder, retrier: retrier}
}

// EmbedBatch returns one Result per input, in input order. Individual
// failures are reported on the result; the returned error is only set when
// ctx is cancelled.
func (c *Client) EmbedBatch(ctx context.Context, inputs []Input) ([]Result, error) {
	results := make([]Result, len(inputs))
	if len(inputs) == 0 {
		return results, nil
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for start := 0; start < len(inputs); start += c.config.BatchSize {
		end := min(start+c.config.BatchSize, len(inputs))
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			batch := c.embedChunk(gctx, inputs[start:end])
			copy(results[start:end], batch)

			if c.config.OnProgress != nil {
				mu.Lock()
				done += end - start
				c.config.OnProgress(done, len(inputs))
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	enforceDimension(results)
	return results, nil
}

func (c *Client) embedChunk(ctx context.Context, chunk []Input) []Result {
	texts := make([]string, len(chunk))
	for i, in := range chunk {
		texts[i] = in.Text
	}

	vectors, attempts, err := llm.Call(ctx, c.retrier, func(ctx context.Context) ([][]float32, error) {
		out, err := c.embedder.CreateEmbedding(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(out) != len(texts) {
			return nil, fmt.Errorf("%w: got %d, want %d", llm.Transient(ErrLengthMismatch), len(out), len(texts))
		}
		return out, nil
	})

	out := make([]Result, len(chunk))
	if err == nil {
		for i, in := range chunk {
			out[i] = newResult(in.DocumentID, vectors[i], attempts)
		}
		return out
	}
	// A throttled or unreachable service fails single items the same way.
	if ctx.Err() != nil || len(chunk) == 1 || llm.IsUnavailable(err) {
		failAll(out, chunk, attempts, err)
		return out
	}

	log.Printf("[embedding] batch of %d failed after %d attempts, retrying item by item: %v", len(chunk), attempts, err)
	for i, in := range chunk {
		out[i] = c.embedOne(ctx, in)
		if ferr := out[i].Err(); ferr != nil && (ctx.Err() != nil || llm.IsUnavailable(ferr)) {
			log.Printf("[embedding] giving up on the remaining %d items: %v", len(chunk)-i-1, ferr)
			failAll(out[i+1:], chunk[i+1:], 0, ferr)
			break
		}
	}
	return out
}

func failAll(out []Result, chunk []Input, attempts int, err error) {
	for i, in := range chunk {
		out[i] = failed(in.DocumentID, attempts, err)
	}
}

func (c *Client) embedOne(ctx context.Context, in Input) Result {
	vectors, attempts, err := llm.Call(ctx, c.retrier, func(ctx context.Context) ([][]float32, error) {
		out, err := c.embedder.CreateEmbedding(ctx, []string{in.Text})
		if err != nil {
			return nil, err
		}
		if len(out) != 1 {
			return nil, fmt.Errorf("%w: got %d, want 1", ErrLengthMismatch, len(out))
		}
		return out, nil
	})
	if err != nil {
		return failed(in.DocumentID, attempts, err)
	}
	return newResult(in.DocumentID, vectors[0], attempts)
}

func newResult(id string, vector []float32, attempts int) Result {
	if len(vector) == 0 {
		return failed(id, attempts, ErrEmptyVector)
	}
	return Result{DocumentID: id, Vector: vector}
}

func failed(id string, attempts int, err error) Result {
	return Result{
		DocumentID: id,
		Failure:    &models.EmbeddingFailure{DocumentID: id, Attempts: attempts, Err: err},
	}
}

// enforceDimension fixes the batch dimension to the first successful vector
// in input order and fails every vector of a different length.
func enforceDimension(results []Result) {
	dim := 0
	for i := range results {
		r := &results[i]
		if !r.OK() {
			continue
		}
		if dim == 0 {
			dim = len(r.Vector)
			continue
		}
		if len(r.Vector) != dim {
			*r = failed(r.DocumentID, 1, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(r.Vector), dim))
		}
	}
}

// Vectors returns the successful results as embedding vectors, in order.
func Vectors(results []Result) []models.EmbeddingVector {
	var out []models.EmbeddingVector
	for _, r := range results {
		if r.OK() {
			out = append(out, models.EmbeddingVector{DocumentID: r.DocumentID, Vector: r.Vector})
		}
	}
	return out
}

// WithProgress returns a copy of c that reports progress to fn.
func (c *Client) WithProgress(fn func(done, total int)) *Client {
	cp := *c
	cp.config.OnProgress = fn
	return &cp
}
