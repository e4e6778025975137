package models

import "fmt"

// ExtractionFailure records why a document produced no text. The document
// still flows through the pipeline into the Unprocessed folder.
type ExtractionFailure struct {
	DocumentID string
	Reason     string
	Err        error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.DocumentID, e.Reason, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.DocumentID, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error {
	return e.Err
}

// EmbeddingFailure records a document whose vector could not be retrieved.
type EmbeddingFailure struct {
	DocumentID string
	Attempts   int
	Err        error
}

func (e *EmbeddingFailure) Error() string {
	return fmt.Sprintf("embed %s after %d attempts: %v", e.DocumentID, e.Attempts, e.Err)
}

func (e *EmbeddingFailure) Unwrap() error {
	return e.Err
}

// LabelingFailure records a cluster that received a synthetic name.
type LabelingFailure struct {
	LabelID int
	Err     error
}

func (e *LabelingFailure) Error() string {
	return fmt.Sprintf("label cluster %d: %v", e.LabelID, e.Err)
}

func (e *LabelingFailure) Unwrap() error {
	return e.Err
}
