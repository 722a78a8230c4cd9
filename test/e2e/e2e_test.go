package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/corpus"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/storage"
)

const (
	e2eCorpusSize = 100
	e2eDimensions = 32
	e2eLimit      = 5
)

var e2eFields = corpus.FieldMap{Key: "key", Text: "quote", Label: "movie"}

func setup(t *testing.T, ext string, mode search.SlotMode) (*search.Engine, *Corpus) {
	t.Helper()
	dir := t.TempDir()
	c := BuildCorpus(e2eCorpusSize)
	data, err := EncodeCorpus(ext, c.Records)
	if err != nil {
		t.Fatal(err)
	}
	source := filepath.Join(dir, "corpus"+ext)
	if err := os.WriteFile(source, data, 0644); err != nil {
		t.Fatal(err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "corpus.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	embedder := embedding.NewCachedEmbedder(embedding.NewMockEmbedder(e2eDimensions), 256)
	n, err := corpus.NewBuilder(store, embedder, corpus.WithWorkers(8)).BuildFile(context.Background(), source, e2eFields)
	if err != nil {
		t.Fatal(err)
	}
	if n != e2eCorpusSize {
		t.Fatalf("built %d records, want %d", n, e2eCorpusSize)
	}

	cfg := &config.SearchConfig{DefaultLimit: e2eLimit, MaxLimit: 100, MaxQueryLength: 250}
	return search.NewEngine(store, embedder, cfg, search.WithSlotMode(mode)), c
}

func TestE2E_SearchReturnsCorrectResults(t *testing.T) {
	for _, ext := range SupportedFileExtensions {
		for _, mode := range []search.SlotMode{search.SlotBound, search.SlotSession, search.SlotExclusive} {
			t.Run(ext+"/"+string(mode), func(t *testing.T) {
				engine, c := setup(t, ext, mode)
				ctx := context.Background()
				for _, tc := range c.TestCases {
					resp, err := engine.Search(ctx, &models.SearchQuery{Query: tc.Query})
					if err != nil {
						t.Fatalf("search %q: %v", tc.Query, err)
					}
					if len(resp.Results) != e2eLimit {
						t.Fatalf("search %q: %d results, want %d", tc.Query, len(resp.Results), e2eLimit)
					}
					if got := resp.Results[0].Key; got != tc.ExpectedKey {
						t.Errorf("search %q: top key = %s, want %s", tc.Query, got, tc.ExpectedKey)
					}
					for i := 1; i < len(resp.Results); i++ {
						if resp.Results[i].Score > resp.Results[i-1].Score {
							t.Errorf("search %q: results not ordered by score", tc.Query)
						}
					}
				}
				if f := engine.CleanupFailures(); f != 0 {
					t.Errorf("cleanup failures = %d", f)
				}
			})
		}
	}
}

func TestE2E_ConcurrentSearches(t *testing.T) {
	for _, mode := range []search.SlotMode{search.SlotBound, search.SlotSession, search.SlotExclusive} {
		t.Run(string(mode), func(t *testing.T) {
			engine, c := setup(t, ".json", mode)
			got := make([]string, len(c.TestCases))
			var g errgroup.Group
			g.SetLimit(16)
			for i, tc := range c.TestCases {
				i, tc := i, tc
				g.Go(func() error {
					resp, err := engine.Search(context.Background(), &models.SearchQuery{Query: tc.Query, Limit: 1})
					if err != nil {
						return err
					}
					got[i] = resp.Results[0].Key
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
			for i, tc := range c.TestCases {
				if got[i] != tc.ExpectedKey {
					t.Errorf("query %q got %s, want %s", tc.Query, got[i], tc.ExpectedKey)
				}
			}
		})
	}
}
