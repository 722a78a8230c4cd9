package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

const benchDimensions = 384

func benchRecords(n int) []*models.CorpusRecord {
	records := make([]*models.CorpusRecord, n)
	for i := range records {
		v := make([]float32, benchDimensions)
		v[i%benchDimensions] = 1
		v[(i+1)%benchDimensions] = float32(i) / float32(n)
		records[i] = &models.CorpusRecord{Seq: int64(i), Key: fmt.Sprint(i), Text: fmt.Sprint("record ", i), Vector: v}
	}
	return records
}

func benchQuery() []float32 {
	q := make([]float32, benchDimensions)
	q[0] = 1
	return q
}

func BenchmarkCosineSimilarity(b *testing.B) {
	a := benchRecords(2)
	for i := 0; i < b.N; i++ {
		_ = vector.CosineSimilarity(a[0].Vector, a[1].Vector)
	}
}

func BenchmarkRank(b *testing.B) {
	records := benchRecords(1000)
	query := benchQuery()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = vector.Rank(query, records, 10)
	}
}

func benchStore(b *testing.B, store storage.VectorStore, mode search.SlotMode) {
	ctx := context.Background()
	if err := store.ReplaceCorpus(ctx, benchRecords(1000), "bench"); err != nil {
		b.Fatal(err)
	}
	engine := search.NewEngine(store, embedding.NewMockEmbedder(benchDimensions), &config.SearchConfig{}, search.WithSlotMode(mode))
	query := benchQuery()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.SearchVector(ctx, query, 10); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStoreSearch(b *testing.B) {
	benchStore(b, storage.NewMemoryStore(), search.SlotBound)
}

func BenchmarkSQLiteStoreSearch(b *testing.B) {
	for _, mode := range []search.SlotMode{search.SlotBound, search.SlotSession} {
		b.Run(string(mode), func(b *testing.B) {
			store, err := storage.NewSQLiteStore(filepath.Join(b.TempDir(), "bench.db"))
			if err != nil {
				b.Fatal(err)
			}
			defer store.Close()
			benchStore(b, store, mode)
		})
	}
}
