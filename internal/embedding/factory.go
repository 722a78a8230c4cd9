package embedding

import (
	"fmt"

	"github.com/hyperjump/ruiji/internal/config"
)

// New creates the embedder selected by cfg.Provider, wrapped in a cache when
// cfg.CacheSize is positive.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "openai", "":
		inner = NewOpenAIEmbedder(cfg.Model, cfg.Dimensions,
			WithBaseURL(cfg.BaseURL), WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout))
	case "ollama":
		inner = NewOllamaEmbedder(cfg.Model, cfg.Dimensions,
			WithBaseURL(cfg.BaseURL), WithAPIKey(cfg.APIKey), WithTimeout(cfg.Timeout))
	case "mock":
		inner = NewMockEmbedder(cfg.Dimensions)
	case "fixture":
		if cfg.FixturePath == "" {
			return nil, fmt.Errorf("fixture provider requires embedding.fixture_path")
		}
		f, err := LoadFixtureEmbedder(cfg.FixturePath)
		if err != nil {
			return nil, err
		}
		inner = f
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
