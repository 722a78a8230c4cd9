// Package config provides configuration loading and structs for the ruiji server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Corpus    CorpusConfig    `yaml:"corpus"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the vector store backend.
// Driver is one of "sqlite" (default), "postgres" or "memory".
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	DatabaseURL  string `yaml:"database_url"`
}

// EmbeddingConfig holds embedding provider settings.
// Provider is one of "openai" (default), "ollama", "mock" or "fixture".
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`
	Timeout           time.Duration `yaml:"timeout"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	FixturePath       string        `yaml:"fixture_path"`
}

// SearchConfig holds query-time settings.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxLimit       int `yaml:"max_limit"`
	MaxQueryLength int `yaml:"max_query_length"`
	// SlotMode is one of "bound" (default), "session" or "exclusive".
	SlotMode     string        `yaml:"slot_mode"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// CorpusConfig holds corpus source and build settings.
type CorpusConfig struct {
	SourcePath string `yaml:"source_path"`
	KeyField   string `yaml:"key_field"`
	TextField  string `yaml:"text_field"`
	LabelField string `yaml:"label_field"`
	Workers    int    `yaml:"workers"`
	// MaxTextLength caps record text length in characters; 0 means unlimited.
	MaxTextLength int  `yaml:"max_text_length"`
	Watch         bool `yaml:"watch"`
}

// Load reads and parses the config file at path, expands paths, applies environment
// overrides and then defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	if cfg.Storage.DatabasePath != ":memory:" {
		cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	}
	if cfg.Embedding.FixturePath != "" {
		cfg.Embedding.FixturePath = expandPath(cfg.Embedding.FixturePath, configDir)
	}
	if cfg.Corpus.SourcePath != "" {
		cfg.Corpus.SourcePath = expandPath(cfg.Corpus.SourcePath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv fills credentials and deployment settings from the environment.
// Values already present in the file win over the environment.
func ApplyEnv(cfg *Config) {
	if cfg.Embedding.APIKey == "" {
		switch cfg.Embedding.Provider {
		case "ollama":
			cfg.Embedding.APIKey = os.Getenv("OLLAMA_API_KEY")
		default:
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("RUIJI_DATABASE_URL")
	}
	if cfg.Server.Port == 0 {
		if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
			cfg.Server.Port = p
		}
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
