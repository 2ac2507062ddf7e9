package services

import (
	"errors"
	"fmt"
)

// Sentinels shared across the pipeline. ErrConflict is how the status
// tracker reports a lost guard and how re-analysis reports an asset that
// is already processing.
var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects a malformed upload before any state is created.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// StorageError wraps blob or database I/O failures at the gateway boundary.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// QueueError wraps a publish failure after the asset row is persisted.
type QueueError struct {
	Err error
}

func (e *QueueError) Error() string { return fmt.Sprintf("queue publish: %v", e.Err) }
func (e *QueueError) Unwrap() error { return e.Err }

// AnalyzerError is a single analyzer run failing; it is isolated to one
// asset. Timeouts are reported through the same type.
type AnalyzerError struct {
	Analyzer string
	Err      error
}

func (e *AnalyzerError) Error() string { return fmt.Sprintf("analyzer %s: %v", e.Analyzer, e.Err) }
func (e *AnalyzerError) Unwrap() error { return e.Err }

// AggregationError is a persistence failure after a successful analyzer
// run; the asset transitions to failed and the run's output is dropped.
type AggregationError struct {
	Err error
}

func (e *AggregationError) Error() string { return fmt.Sprintf("aggregation: %v", e.Err) }
func (e *AggregationError) Unwrap() error { return e.Err }
