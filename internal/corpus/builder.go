// Package corpus builds the embedded corpus from raw records.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

// Input validation errors. Any of them fails the whole build before the store is touched.
var (
	ErrEmptyText    = errors.New("record text is empty")
	ErrTextTooLong  = errors.New("record text too long")
	ErrDuplicateKey = errors.New("duplicate record key")
)

// Builder embeds raw records and replaces the store's corpus with the result.
// Only one build runs at a time.
type Builder struct {
	store         storage.VectorStore
	embedder      embedding.Embedder
	workers       int
	maxTextLength int
	limiter       *rate.Limiter
	logger        *zap.Logger

	mu sync.Mutex
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger for build progress.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithWorkers bounds the number of concurrent provider calls.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithMaxTextLength rejects records longer than n characters. 0 disables the check.
func WithMaxTextLength(n int) BuilderOption {
	return func(b *Builder) { b.maxTextLength = n }
}

// WithRateLimit caps provider calls per second. 0 disables limiting.
func WithRateLimit(perSecond float64) BuilderOption {
	return func(b *Builder) {
		if perSecond > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			b.limiter = nil
		}
	}
}

// NewBuilder creates a builder writing to store with vectors from embedder.
func NewBuilder(store storage.VectorStore, embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{
		store:    store,
		embedder: embedder,
		workers:  4,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build embeds every record, one provider call per record, and atomically replaces the corpus.
// The first failure cancels outstanding calls and nothing is written. Returns the number
// of records stored.
func (b *Builder) Build(ctx context.Context, raws []models.RawRecord) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	records, err := b.prepare(raws)
	if err != nil {
		return 0, err
	}
	b.logger.Info("corpus build started",
		zap.Int("records", len(records)),
		zap.String("model", b.embedder.Model()),
		zap.Int("workers", b.workers),
	)

	if err := b.embedAll(ctx, records); err != nil {
		b.logger.Error("corpus build failed", zap.Error(err))
		return 0, err
	}

	if err := b.store.ReplaceCorpus(ctx, records, b.embedder.Model()); err != nil {
		b.logger.Error("corpus write failed", zap.Error(err))
		return 0, fmt.Errorf("failed to store corpus: %w", err)
	}

	b.logger.Info("corpus build finished",
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return len(records), nil
}

// BuildFile reads records from path and builds the corpus from them.
func (b *Builder) BuildFile(ctx context.Context, path string, fields FieldMap) (int, error) {
	raws, err := ReadFile(path, fields)
	if err != nil {
		return 0, err
	}
	return b.Build(ctx, raws)
}

// prepare normalizes text, assigns missing keys and validates the input.
func (b *Builder) prepare(raws []models.RawRecord) ([]*models.CorpusRecord, error) {
	records := make([]*models.CorpusRecord, len(raws))
	seen := make(map[string]int, len(raws))
	for i, raw := range raws {
		text := Normalize(raw.Text)
		if text == "" {
			return nil, fmt.Errorf("%w: record %d", ErrEmptyText, i+1)
		}
		if n := utf8.RuneCountInString(text); b.maxTextLength > 0 && n > b.maxTextLength {
			return nil, fmt.Errorf("%w: record %d has %d characters, limit is %d", ErrTextTooLong, i+1, n, b.maxTextLength)
		}
		key := raw.Key
		if key == "" {
			key = uuid.New().String()
		}
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %q at records %d and %d", ErrDuplicateKey, key, prev+1, i+1)
		}
		seen[key] = i
		records[i] = &models.CorpusRecord{Key: key, Text: text, Label: raw.Label}
	}
	return records, nil
}

func (b *Builder) embedAll(ctx context.Context, records []*models.CorpusRecord) error {
	want := b.embedder.Dimensions()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			if b.limiter != nil {
				if err := b.limiter.Wait(gctx); err != nil {
					return err
				}
			}
			v, err := b.embedder.Embed(gctx, rec.Text)
			if err != nil {
				return fmt.Errorf("failed to embed record %q: %w", rec.Key, err)
			}
			if want > 0 && len(v) != want {
				return fmt.Errorf("%w: record %q has %d dimensions, provider declares %d",
					storage.ErrDimensionMismatch, rec.Key, len(v), want)
			}
			rec.Vector = v
			b.logger.Debug("record embedded", zap.String("key", rec.Key))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Providers without a declared dimension must still agree with each other.
	for _, rec := range records[min(1, len(records)):] {
		if len(rec.Vector) != len(records[0].Vector) {
			return fmt.Errorf("%w: record %q has %d dimensions, want %d",
				storage.ErrDimensionMismatch, rec.Key, len(rec.Vector), len(records[0].Vector))
		}
	}
	return nil
}
