// Package pipeline implements the batched classification and aggregation
// core: batching, sequential classification with pacing, deduplication
// against prior runs, and aggregate statistics.
package pipeline

import "errors"

var (
	ErrInvalidBatchSize   = errors.New("batch size must be positive")
	ErrNoRecords          = errors.New("no records to classify")
	ErrMissingCredentials = errors.New("classification credentials are required")
)
