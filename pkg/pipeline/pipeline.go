// Package pipeline runs one batch of uploads through extraction, embedding,
// reduction, clustering and labeling, and assembles the organized result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xhad/docsort/internal/models"
	"github.com/xhad/docsort/internal/types"
	"github.com/xhad/docsort/pkg/embedding"
	"github.com/xhad/docsort/pkg/extractor"
	"github.com/xhad/docsort/pkg/labeler"
)

// Components are the collaborators of a Pipeline. Store may be nil.
type Components struct {
	Extractor *extractor.Extractor
	Embedding *embedding.Client
	Reducer   types.Reducer
	Clusterer types.Clusterer
	Labeler   *labeler.Labeler
	Store     types.MetadataStore
}

type Pipeline struct {
	extractor *extractor.Extractor
	embedding *embedding.Client
	reducer   types.Reducer
	clusterer types.Clusterer
	labeler   *labeler.Labeler
	store     types.MetadataStore
	now       func() time.Time
}

func New(c Components) *Pipeline {
	return &Pipeline{
		extractor: c.Extractor,
		embedding: c.Embedding,
		reducer:   c.Reducer,
		clusterer: c.Clusterer,
		labeler:   c.Labeler,
		store:     c.Store,
		now:       time.Now,
	}
}

// Job is one batch request.
type Job struct {
	Files   []models.Upload
	Consent bool
	// OnStage is called as the batch enters each stage.
	OnStage func(Stage)
	// OnProgress reports per-document progress within a stage.
	OnProgress func(stage Stage, done, total int)
}

// StageTiming is the wall time spent in one stage.
type StageTiming struct {
	Stage    Stage         `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Output is everything produced for a batch. Archive holds the only copy of
// the uploaded bytes.
type Output struct {
	BatchID  string                  `json:"batch_id"`
	Analysis []models.AnalysisResult `json:"analysis"`
	Summary  models.BatchSummary     `json:"summary"`
	Archive  []byte                  `json:"-"`
	Timings  []StageTiming           `json:"timings"`
}

// DeliverFunc hands the output to the client. Metadata is recorded only
// after it returns nil.
type DeliverFunc func(ctx context.Context, out *Output) error

type run struct {
	job     Job
	started time.Time
	current Stage
	entered time.Time
	timings []StageTiming
	mu      sync.Mutex
}

func (r *run) enter(stage Stage, now time.Time) {
	r.mu.Lock()
	if r.current != "" {
		r.timings = append(r.timings, StageTiming{Stage: r.current, Duration: now.Sub(r.entered)})
	}
	r.current, r.entered = stage, now
	r.mu.Unlock()

	if r.job.OnStage != nil {
		r.job.OnStage(stage)
	}
}

func (r *run) progress(stage Stage) func(done, total int) {
	if r.job.OnProgress == nil {
		return nil
	}
	return func(done, total int) {
		r.job.OnProgress(stage, done, total)
	}
}

// Organize runs the batch and returns its output.
func (p *Pipeline) Organize(ctx context.Context, job Job) (*Output, error) {
	var out *Output
	err := p.Run(ctx, job, func(ctx context.Context, o *Output) error {
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Run processes one batch and hands the result to deliver. Per-document
// failures are folded into the output; a *BatchError is returned only when
// the batch as a whole cannot produce a result.
func (p *Pipeline) Run(ctx context.Context, job Job, deliver DeliverFunc) error {
	if !job.Consent {
		return ErrConsentRequired
	}

	r := &run{job: job, started: p.now()}
	r.enter(StageReceived, r.started)

	fail := func(stage Stage, err error) error {
		r.enter(StageFailed, p.now())
		log.Printf("[pipeline] batch failed during %s: %v", stage, err)
		return &BatchError{Stage: stage, Err: err}
	}

	if len(job.Files) == 0 {
		return fail(StageReceived, ErrEmptyBatch)
	}

	docs := make([]*models.Document, len(job.Files))
	for i, f := range job.Files {
		docs[i] = models.NewDocument(f)
	}
	defer func() {
		for _, d := range docs {
			d.Release()
		}
	}()

	// Extraction
	r.enter(StageExtracting, p.now())
	if err := p.extractor.WithProgress(r.progress(StageExtracting)).ExtractAll(ctx, docs); err != nil {
		return fail(StageExtracting, err)
	}

	var inputs []embedding.Input
	for _, d := range docs {
		if d.Embeddable() {
			inputs = append(inputs, embedding.Input{DocumentID: d.ID, Text: d.Text})
		}
	}
	if len(inputs) == 0 {
		return fail(StageExtracting, ErrNoExtractableDocuments)
	}

	// Embedding
	r.enter(StageEmbedding, p.now())
	results, err := p.embedding.WithProgress(r.progress(StageEmbedding)).EmbedBatch(ctx, inputs)
	if err != nil {
		return fail(StageEmbedding, err)
	}
	vectors := embedding.Vectors(results)
	if len(vectors) == 0 {
		return fail(StageEmbedding, embeddingError(results))
	}
	embedFailures := map[string]*models.EmbeddingFailure{}
	for _, res := range results {
		if !res.OK() {
			embedFailures[res.DocumentID] = res.Failure
		}
	}

	// Reduction
	r.enter(StageReducing, p.now())
	points, err := p.reducer.Reduce(ctx, vectors)
	if err != nil {
		return fail(StageReducing, err)
	}

	// Clustering
	r.enter(StageClustering, p.now())
	clusters, err := p.clusterer.Cluster(ctx, points)
	if err != nil {
		return fail(StageClustering, err)
	}

	// Labeling
	r.enter(StageLabeling, p.now())
	docsByID := make(map[string]*models.Document, len(docs))
	for _, d := range docs {
		docsByID[d.ID] = d
	}
	pointsByID := make(map[string]models.ProjectedPoint, len(points))
	for _, pt := range points {
		pointsByID[pt.DocumentID] = pt
	}
	labels, err := p.labeler.Label(ctx, clusters, docsByID, pointsByID)
	if err != nil {
		return fail(StageLabeling, err)
	}

	// Assembly
	r.enter(StageAssembling, p.now())
	out, err := assemble(batch{
		docs:          docs,
		points:        pointsByID,
		clusters:      clusters,
		labels:        labels,
		embedFailures: embedFailures,
		modified:      r.started,
	})
	if err != nil {
		return fail(StageAssembling, err)
	}
	out.BatchID = uuid.NewString()

	// Delivery
	r.enter(StageStreaming, p.now())
	out.Summary.ProcessingTime = p.now().Sub(r.started).Seconds()
	r.mu.Lock()
	out.Timings = append([]StageTiming(nil), r.timings...)
	r.mu.Unlock()
	if err := deliver(ctx, out); err != nil {
		return fail(StageStreaming, fmt.Errorf("failed to deliver result: %w", err))
	}

	p.recordMetadata(ctx, out)
	r.enter(StageDone, p.now())
	log.Printf("[pipeline] organized %d files into %d folders in %.2fs",
		out.Summary.TotalFiles, out.Summary.ClusterCount, out.Summary.ProcessingTime)
	return nil
}

func (p *Pipeline) recordMetadata(ctx context.Context, out *Output) {
	if p.store == nil {
		return
	}
	if err := p.store.Insert(ctx, out.BatchID, out.Analysis); err != nil {
		log.Printf("[pipeline] failed to record metadata for batch %s: %v", out.BatchID, err)
	}
}

func embeddingError(results []embedding.Result) error {
	for _, r := range results {
		if r.Failure != nil {
			return fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, r.Failure)
		}
	}
	return ErrEmbeddingUnavailable
}

// IsBatchError reports whether err aborted a whole batch.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}
