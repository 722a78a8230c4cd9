// Package storage defines the vector store holding the embedded corpus and the
// similarity ranking executed against it.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/ruiji/internal/models"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from the corpus dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrSlotMissing is returned when ranking against a slot that was never staged.
	ErrSlotMissing = errors.New("search slot not staged")
)

// VectorStore holds the corpus and ranks it by cosine similarity.
//
// Rank binds the query vector as a parameter. StageQuery, RankStaged and ReleaseSlot
// operate on a named transient slot row for callers that stage the query in the store.
type VectorStore interface {
	// ReplaceCorpus atomically swaps the corpus for records. Seq is assigned in slice order.
	ReplaceCorpus(ctx context.Context, records []*models.CorpusRecord, model string) error
	Rank(ctx context.Context, query []float32, limit int) ([]*models.RankedResult, error)

	StageQuery(ctx context.Context, slotID string, query []float32) error
	RankStaged(ctx context.Context, slotID string, limit int) ([]*models.RankedResult, error)
	ReleaseSlot(ctx context.Context, slotID string) error

	ListRecords(ctx context.Context, offset, limit int) ([]*models.CorpusRecord, error)
	Meta(ctx context.Context) (*models.CorpusMeta, error)

	Close() error
}

// corpusDimensions returns the shared vector length of records, or ErrDimensionMismatch.
func corpusDimensions(records []*models.CorpusRecord) (int, error) {
	dims := 0
	for i, r := range records {
		if i == 0 {
			dims = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dims {
			return 0, fmt.Errorf("%w: record %q has %d dimensions, want %d", ErrDimensionMismatch, r.Key, len(r.Vector), dims)
		}
	}
	return dims, nil
}

// checkQuery validates query against the corpus dimension. dims of 0 means no corpus.
func checkQuery(query []float32, dims int) error {
	if dims != 0 && len(query) != dims {
		return fmt.Errorf("%w: query has %d dimensions, corpus has %d", ErrDimensionMismatch, len(query), dims)
	}
	return nil
}
