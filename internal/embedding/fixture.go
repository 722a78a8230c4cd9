package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FixtureEmbedder serves precomputed embeddings from a JSON file mapping text to vector.
// Unknown text is rejected.
type FixtureEmbedder struct {
	vectors    map[string][]float32
	dimensions int
}

// NewFixtureEmbedder builds a fixture embedder from an in-memory map.
// All vectors must share one dimension.
func NewFixtureEmbedder(vectors map[string][]float32) (*FixtureEmbedder, error) {
	dims := 0
	for text, v := range vectors {
		if dims == 0 {
			dims = len(v)
		}
		if len(v) == 0 || len(v) != dims {
			return nil, fmt.Errorf("fixture vector for %q has %d dimensions, want %d", text, len(v), dims)
		}
	}
	return &FixtureEmbedder{vectors: vectors, dimensions: dims}, nil
}

// LoadFixtureEmbedder reads a fixture file from path.
func LoadFixtureEmbedder(path string) (*FixtureEmbedder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var vectors map[string][]float32
	if err := json.Unmarshal(data, &vectors); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return NewFixtureEmbedder(vectors)
}

// Embed returns a copy of the fixture vector for text.
func (e *FixtureEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := rejectEmpty(text); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, fmt.Errorf("%w: no fixture for %q", ErrProviderRejected, text)
	}
	return append([]float32(nil), v...), nil
}

// EmbedBatch calls Embed for each text.
func (e *FixtureEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(texts, func(text string) ([]float32, error) { return e.Embed(ctx, text) })
}

// Dimensions returns the fixture vector dimension.
func (e *FixtureEmbedder) Dimensions() int {
	return e.dimensions
}

// Model returns the fixture model identifier.
func (e *FixtureEmbedder) Model() string {
	return "fixture"
}

// Close is a no-op.
func (e *FixtureEmbedder) Close() error {
	return nil
}
