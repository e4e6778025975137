package pipeline

import (
	"errors"
	"fmt"
)

// Stage is a step of one batch run. Stages are reported in this order; a
// run ends in StageDone or StageFailed.
type Stage string

const (
	StageReceived   Stage = "RECEIVED"
	StageExtracting Stage = "EXTRACTING"
	StageEmbedding  Stage = "EMBEDDING"
	StageReducing   Stage = "REDUCING"
	StageClustering Stage = "CLUSTERING"
	StageLabeling   Stage = "LABELING"
	StageAssembling Stage = "ASSEMBLING"
	StageStreaming  Stage = "STREAMING"
	StageDone       Stage = "DONE"
	StageFailed     Stage = "FAILED"
)

var (
	ErrConsentRequired        = errors.New("processing consent is required")
	ErrEmptyBatch             = errors.New("no files uploaded")
	ErrNoExtractableDocuments = errors.New("no document yielded extractable text")
	ErrEmbeddingUnavailable   = errors.New("no document could be embedded")
	ErrIncompleteAssignment   = errors.New("not every document was assigned a folder")
)

// BatchError aborts a whole batch. No partial output is produced.
type BatchError struct {
	Stage Stage
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch failed during %s: %v", e.Stage, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}
