package pipeline

import "brandpulse/internal/domain"

// BatchItem is a record with its position in the run. The index is the only
// key that correlates a classification response entry with its record.
type BatchItem struct {
	Index  int
	Record domain.Record
}

type Batch struct {
	Number int // zero-based batch number within the run
	Items  []BatchItem
}

func (b Batch) Len() int {
	return len(b.Items)
}

// IndexMap maps positional index to record for response reconciliation.
func (b Batch) IndexMap() map[int]domain.Record {
	m := make(map[int]domain.Record, len(b.Items))
	for _, item := range b.Items {
		m[item.Index] = item.Record
	}
	return m
}

func (b Batch) RecordIDs() []string {
	ids := make([]string, len(b.Items))
	for i, item := range b.Items {
		ids[i] = item.Record.ID
	}
	return ids
}

// Split partitions records into contiguous batches of at most size items.
// Indices are global: batch start offset plus local position.
func Split(records []domain.Record, size int) ([]Batch, error) {
	if size <= 0 {
		return nil, ErrInvalidBatchSize
	}
	var batches []Batch
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		items := make([]BatchItem, 0, end-start)
		for i, rec := range records[start:end] {
			items = append(items, BatchItem{Index: start + i, Record: rec})
		}
		batches = append(batches, Batch{Number: len(batches), Items: items})
	}
	return batches, nil
}
