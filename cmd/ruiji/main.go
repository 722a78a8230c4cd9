// Package main is the ruiji CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/cli"
	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/corpus"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/search"
	"github.com/hyperjump/ruiji/internal/server"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/watcher"
	"github.com/hyperjump/ruiji/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/ruiji/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the current directory, that file is used instead. Returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "build":
		runBuild()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("ruiji version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if err := buildIfEmpty(ctx, components, cfg, logger); err != nil {
		logger.Error("initial corpus build failed", zap.Error(err))
	}

	if cfg.Corpus.Watch && cfg.Corpus.SourcePath != "" {
		builder := components.Builder
		fields := fieldMap(cfg)
		watchSvc := watcher.NewWatcher(cfg.Corpus.SourcePath, func(path string) {
			n, err := builder.BuildFile(ctx, path, fields)
			if err != nil {
				logger.Warn("corpus rebuild after change failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("corpus rebuilt", zap.String("path", path), zap.Int("records", n))
		}, watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
	}

	srv := server.NewServer(components.Engine, components.Builder, components.Store, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// buildIfEmpty loads the configured corpus source when the store holds no records.
func buildIfEmpty(ctx context.Context, c *Components, cfg *config.Config, logger *zap.Logger) error {
	if cfg.Corpus.SourcePath == "" {
		return nil
	}
	meta, err := c.Store.Meta(ctx)
	if err != nil {
		return err
	}
	if meta.Records > 0 {
		logger.Info("corpus loaded", zap.Int64("records", meta.Records), zap.String("model", meta.Model))
		return nil
	}
	n, err := c.Builder.BuildFile(ctx, cfg.Corpus.SourcePath, fieldMap(cfg))
	if err != nil {
		return err
	}
	logger.Info("corpus built", zap.String("source", cfg.Corpus.SourcePath), zap.Int("records", n))
	return nil
}

func fieldMap(cfg *config.Config) corpus.FieldMap {
	return corpus.FieldMap{
		Key:   cfg.Corpus.KeyField,
		Text:  cfg.Corpus.TextField,
		Label: cfg.Corpus.LabelField,
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ruiji search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  ruiji search may the force be with you
  ruiji search --limit 5 "here's looking at you"
  ruiji search --output json --server "" "i'll be back"   # direct store access
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchConfigPathFromArgs returns the value of -config/--config from args if present, else defaultPath.
func searchConfigPathFromArgs(args []string, defaultPath string) string {
	for i, a := range args {
		if (a == "-config" || a == "--config") && i+1 < len(args) {
			return args[i+1]
		}
	}
	return defaultPath
}

// searchLimitDefaultFromConfig returns search.default_limit from the config at path, or 3
// when the config cannot be loaded.
func searchLimitDefaultFromConfig(path string) int {
	cfg, _, err := loadConfig(path)
	if err != nil || cfg == nil {
		return 3
	}
	return cfg.Search.DefaultLimit
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. The flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])
	configPath := searchConfigPathFromArgs(searchArgs, defaultConfigPath)

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPathFlag := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use the store directly)")
	limit := fs.Int("limit", searchLimitDefaultFromConfig(configPath), "number of results")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	searchQuery := &models.SearchQuery{Query: queryStr, Limit: *limit}

	var response *models.SearchResponse
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, searchQuery)
	} else {
		response, err = searchDirect(*configPathFlag, searchQuery)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, query *models.SearchQuery) (*models.SearchResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(ctx, query)
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	dumpPath := fs.String("dump", "", "after building, write the embedded corpus to this CSV file")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	source := cfg.Corpus.SourcePath
	if fs.NArg() > 0 {
		source = fs.Arg(0)
	}
	if source == "" {
		fmt.Println("Usage: ruiji build [flags] <corpus.json|corpus.csv|corpus.xlsx>")
		os.Exit(1)
	}

	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	start := time.Now()
	n, err := components.Builder.BuildFile(ctx, source, fieldMap(cfg))
	if err != nil {
		fmt.Printf("Build failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Built corpus of %d record(s) from %s in %s\n", n, source, time.Since(start).Round(time.Millisecond))

	if *dumpPath != "" {
		if err := dumpCorpus(ctx, components.Store, *dumpPath); err != nil {
			fmt.Printf("Dump failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote embeddings to %s\n", *dumpPath)
	}
}

func dumpCorpus(ctx context.Context, store storage.VectorStore, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := corpus.Dump(ctx, f, store); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	Corpus          models.CorpusMeta `json:"corpus"`
	SlotMode        string            `json:"slot_mode"`
	CleanupFailures int64             `json:"cleanup_failures"`
	DiskUsageBytes  *int64            `json:"disk_usage_bytes,omitempty"`
	Config          map[string]any    `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var (
		status *statusResponse
		err    error
	)
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		writeStatusText(os.Stdout, status)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func writeStatusText(w io.Writer, status *statusResponse) {
	fmt.Fprintf(w, "records:            %d\n", status.Corpus.Records)
	fmt.Fprintf(w, "dimensions:         %d\n", status.Corpus.Dimensions)
	if status.Corpus.Model != "" {
		fmt.Fprintf(w, "model:              %s\n", status.Corpus.Model)
	}
	if !status.Corpus.BuiltAt.IsZero() {
		fmt.Fprintf(w, "built_at:           %s\n", status.Corpus.BuiltAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "slot_mode:          %s\n", status.SlotMode)
	fmt.Fprintf(w, "cleanup_failures:   %d\n", status.CleanupFailures)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d\n", *status.DiskUsageBytes)
	}
}

func statusDirect(configPath string) (*statusResponse, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	meta, err := components.Store.Meta(ctx)
	if err != nil {
		return nil, fmt.Errorf("read corpus meta: %w", err)
	}
	status := &statusResponse{
		Corpus:   *meta,
		SlotMode: string(components.Engine.SlotMode()),
		Config: map[string]any{
			"storage_driver":     cfg.Storage.Driver,
			"embedding_provider": cfg.Embedding.Provider,
			"embedding_model":    cfg.Embedding.Model,
		},
	}
	if cfg.Storage.Driver == "sqlite" {
		if diskBytes, err := storage.SQLiteDiskUsage(cfg.Storage.DatabasePath); err == nil {
			status.DiskUsageBytes = &diskBytes
		}
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Store    storage.VectorStore
	Embedder embedding.Embedder
	Engine   *search.Engine
	Builder  *corpus.Builder
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := embedding.New(cfg.Embedding)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", embedder.Model()),
		zap.Int("dimensions", embedder.Dimensions()),
	)

	engine := search.NewEngine(store, embedder, &cfg.Search,
		search.WithLogger(logger),
		search.WithEmbedTimeout(cfg.Embedding.Timeout),
	)
	builder := corpus.NewBuilder(store, embedder,
		corpus.WithLogger(logger),
		corpus.WithWorkers(cfg.Corpus.Workers),
		corpus.WithMaxTextLength(cfg.Corpus.MaxTextLength),
		corpus.WithRateLimit(cfg.Embedding.RequestsPerSecond),
	)

	return &Components{
		Store:    store,
		Embedder: embedder,
		Engine:   engine,
		Builder:  builder,
	}, nil
}

func printUsage() {
	fmt.Println(`ruiji - embedding similarity search over a text corpus

Usage:
  ruiji server [flags]           Start the HTTP server
  ruiji search [flags] <query>   Find the corpus records most similar to a query
  ruiji build [flags] [file]     Embed a corpus file and replace the stored corpus
  ruiji status [flags]           Show corpus and store status
  ruiji version                  Show version
  ruiji help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/ruiji/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string    Config file path (for direct store mode; also used for the default limit)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to query the store directly.
  --limit int        Number of results (default from config, or 3)
  --output string    Output format: text, compact, or json (default: text)

Build Flags:
  --config string    Config file path
  --dump string      Write key, text, label and vector of every record to a CSV file

Status Flags:
  --config string    Config file path (for direct store mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct store access.
  --output string    Output format: text or json (default: text)

Examples:
  ruiji server
  ruiji build movie_quotes.json
  ruiji build --dump embeddings.csv
  ruiji search "i'll be back"
  ruiji search --output json --limit 5 "may the force be with you"
  ruiji status --output json`)
}
