// Package search runs similarity queries against the vector store.
package search

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
)

const defaultStoreTimeout = 10 * time.Second

// Engine validates queries, embeds them and ranks the corpus through a Session.
type Engine struct {
	store        storage.VectorStore
	embedder     embedding.Embedder
	limits       models.QueryLimits
	mode         SlotMode
	storeTimeout time.Duration
	embedTimeout time.Duration
	logger       *zap.Logger

	exclusive       chan struct{}
	cleanupFailures atomic.Int64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger for search events.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithSlotMode overrides the configured slot mode.
func WithSlotMode(m SlotMode) EngineOption {
	return func(e *Engine) { e.mode = m }
}

// WithEmbedTimeout bounds the query embedding call.
func WithEmbedTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.embedTimeout = d }
}

// NewEngine creates a search engine. An unknown cfg.SlotMode falls back to SlotBound.
func NewEngine(store storage.VectorStore, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		embedder: embedder,
		limits: models.QueryLimits{
			DefaultLimit:   cfg.DefaultLimit,
			MaxLimit:       cfg.MaxLimit,
			MaxQueryLength: cfg.MaxQueryLength,
		},
		storeTimeout: cfg.StoreTimeout,
		logger:       zap.NewNop(),
		exclusive:    make(chan struct{}, 1),
	}
	mode, err := ParseSlotMode(cfg.SlotMode)
	if err != nil {
		mode = SlotBound
	}
	e.mode = mode
	for _, opt := range opts {
		opt(e)
	}
	if err != nil {
		e.logger.Warn("invalid slot mode, using bound", zap.Error(err))
	}
	if e.storeTimeout <= 0 {
		e.storeTimeout = defaultStoreTimeout
	}
	return e
}

// Search validates and embeds the query, then returns the most similar corpus records.
// Validation failures are returned as is and never reach the provider. Every other
// failure wraps ErrSearchFailed.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	startTime := time.Now()
	if err := query.Validate(e.limits); err != nil {
		return nil, err
	}

	ectx := ctx
	if e.embedTimeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, e.embedTimeout)
		defer cancel()
	}
	queryVector, err := e.embedder.Embed(ectx, query.Query)
	if err != nil {
		e.logger.Error("query embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: embed query: %w", ErrSearchFailed, err)
	}

	results, err := e.SearchVector(ctx, queryVector, query.Limit)
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(startTime).Milliseconds(),
		Query:     query.Query,
	}
	e.logger.Debug("search complete",
		zap.Int("results", response.Total),
		zap.Duration("elapsed", time.Since(startTime)),
	)
	return response, nil
}

// SearchVector ranks the corpus against an already embedded query.
func (e *Engine) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]*models.RankedResult, error) {
	if limit < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
	}
	sess := e.NewSession()
	results, err := sess.Run(ctx, queryVector, limit)
	if err != nil {
		e.logger.Error("search session failed", zap.String("session", sess.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	if results == nil {
		results = []*models.RankedResult{}
	}
	return results, nil
}

// NewSession returns an idle session using the engine's store and slot mode.
func (e *Engine) NewSession() *Session {
	return newSession(e.store, e.mode, e.storeTimeout, e.exclusive, e.logger, func(*CleanupError) {
		e.cleanupFailures.Add(1)
	})
}

// SlotMode returns the mode sessions run in.
func (e *Engine) SlotMode() SlotMode {
	return e.mode
}

// CleanupFailures returns how many sessions failed to release their slot.
func (e *Engine) CleanupFailures() int64 {
	return e.cleanupFailures.Load()
}
