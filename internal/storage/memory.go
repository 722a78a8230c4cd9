package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/vector"
)

// MemoryStore is an in-process VectorStore ranking by brute force with vector.Rank.
// Suitable for tests and small corpora.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*models.CorpusRecord
	meta    models.CorpusMeta
	slots   map[string][]float32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string][]float32)}
}

// ReplaceCorpus swaps the corpus for copies of records.
func (m *MemoryStore) ReplaceCorpus(ctx context.Context, records []*models.CorpusRecord, model string) error {
	dims, err := corpusDimensions(records)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(records))
	next := make([]*models.CorpusRecord, len(records))
	for i, r := range records {
		if seen[r.Key] {
			return fmt.Errorf("duplicate key %q", r.Key)
		}
		seen[r.Key] = true
		r.Seq = int64(i)
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		next[i] = &models.CorpusRecord{Seq: r.Seq, Key: r.Key, Text: r.Text, Label: r.Label, Vector: vec}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = next
	m.meta = models.CorpusMeta{
		Records:    int64(len(next)),
		Dimensions: dims,
		Model:      model,
		BuiltAt:    time.Now().UTC(),
	}
	return nil
}

// Rank returns the top limit records by cosine similarity to query.
func (m *MemoryStore) Rank(ctx context.Context, query []float32, limit int) ([]*models.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := checkQuery(query, m.meta.Dimensions); err != nil {
		return nil, err
	}
	return vector.Rank(query, m.records, limit), nil
}

// StageQuery stores a copy of query under slotID.
func (m *MemoryStore) StageQuery(ctx context.Context, slotID string, query []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkQuery(query, m.meta.Dimensions); err != nil {
		return err
	}
	vec := make([]float32, len(query))
	copy(vec, query)
	m.slots[slotID] = vec
	return nil
}

// RankStaged ranks against the vector staged under slotID.
func (m *MemoryStore) RankStaged(ctx context.Context, slotID string, limit int) ([]*models.RankedResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	query, ok := m.slots[slotID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotMissing, slotID)
	}
	if err := checkQuery(query, m.meta.Dimensions); err != nil {
		return nil, err
	}
	return vector.Rank(query, m.records, limit), nil
}

// ReleaseSlot removes slotID.
func (m *MemoryStore) ReleaseSlot(ctx context.Context, slotID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, slotID)
	return nil
}

// SlotCount returns the number of staged slots.
func (m *MemoryStore) SlotCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}

// ListRecords returns copies of records in seq order with offset and limit.
func (m *MemoryStore) ListRecords(ctx context.Context, offset, limit int) ([]*models.CorpusRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(m.records) || limit <= 0 {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.records) {
		end = len(m.records)
	}
	out := make([]*models.CorpusRecord, 0, end-offset)
	for _, r := range m.records[offset:end] {
		c := *r
		c.Vector = append([]float32(nil), r.Vector...)
		out = append(out, &c)
	}
	return out, nil
}

// Meta returns the current corpus description.
func (m *MemoryStore) Meta(ctx context.Context) (*models.CorpusMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta := m.meta
	return &meta, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
