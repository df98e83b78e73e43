// Package main is the primr CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
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

	tea "github.com/charmbracelet/bubbletea"
	"github.com/hyperjump/primr/internal/answer"
	"github.com/hyperjump/primr/internal/cli"
	"github.com/hyperjump/primr/internal/config"
	"github.com/hyperjump/primr/internal/embedding"
	"github.com/hyperjump/primr/internal/indexer"
	"github.com/hyperjump/primr/internal/models"
	"github.com/hyperjump/primr/internal/search"
	"github.com/hyperjump/primr/internal/server"
	"github.com/hyperjump/primr/internal/slackbot"
	"github.com/hyperjump/primr/internal/storage"
	"github.com/hyperjump/primr/internal/tui"
	"github.com/hyperjump/primr/internal/vector"
	"github.com/hyperjump/primr/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "config.yaml"

// loadConfig loads .env files (next to the config and in the working directory) and then the
// config at path. A missing config file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	envFiles := []string{filepath.Join(filepath.Dir(path), ".env")}
	if cwd, err := os.Getwd(); err == nil {
		if local := filepath.Join(cwd, ".env"); local != envFiles[0] {
			envFiles = append(envFiles, local)
		}
	}
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	return config.LoadOrDefault(path)
}

// setup loads config and creates the logger. It exits on failure.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", configPath), zap.Bool("debug", debugMode))
	return cfg, logger
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ingest":
		runIngest()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "serve", "server":
		runServe()
	case "slack":
		runSlack()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("primr version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// Components holds the wired application.
type Components struct {
	Knowledge *search.Knowledge
	Embedder  embedding.Embedder
	Engine    *search.Engine
	Answerer  *answer.Answerer
	Indexer   *indexer.Indexer
	Catalog   storage.Catalog
}

// Close releases the embedder and the catalog.
func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
}

type componentNeeds struct {
	answerer bool // chat completions client
	catalog  bool // SQLite catalog
	indexer  bool
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, needs componentNeeds) (*Components, error) {
	c := &Components{Knowledge: search.NewKnowledge()}

	apiKey, err := config.Secret(cfg.Embedding.APIKeyEnv)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	openaiEmbedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
		BaseURL:           cfg.Embedding.BaseURL,
		APIKey:            apiKey,
		Model:             cfg.Embedding.Model,
		BatchSize:         cfg.Embedding.BatchSize,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Timeout:           cfg.Embedding.Timeout(),
	}, embedding.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = openaiEmbedder
	c.Engine = search.NewEngine(
		embedding.NewCachedEmbedder(openaiEmbedder, cfg.Embedding.CacheSize),
		c.Knowledge,
		search.WithLogger(logger),
		search.WithDefaultK(cfg.Search.TopK),
	)

	if needs.answerer {
		llmKey, err := config.Secret(cfg.LLM.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("llm provider: %w", err)
		}
		synth, err := answer.NewOpenAISynthesizer(answer.OpenAIConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      llmKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize synthesizer: %w", err)
		}
		c.Answerer = answer.NewAnswerer(c.Engine, synth,
			answer.WithLogger(logger),
			answer.WithK(cfg.Search.TopK))
	}

	if needs.catalog || needs.indexer {
		catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize catalog: %w", err)
		}
		c.Catalog = catalog
	}

	if needs.indexer {
		c.Indexer = indexer.NewIndexer(
			openaiEmbedder,
			indexer.NewSplitter(cfg.Search.ChunkSize, cfg.Search.ChunkOverlap),
			cfg.Storage.VectorsPath,
			indexer.WithCatalog(c.Catalog),
			indexer.WithExtensions(cfg.Search.Extensions),
			indexer.WithLogger(logger),
		)
	}
	return c, nil
}

// loadKnowledge loads the vector file. A missing or invalid file is logged, not fatal:
// questions are then answered with the "no documents" message.
func loadKnowledge(k *search.Knowledge, path string, logger *zap.Logger) {
	if err := k.Load(path); err != nil {
		if errors.Is(err, vector.ErrNotFound) {
			logger.Warn("no vector store yet; run `primr ingest` first", zap.String("path", path))
			return
		}
		logger.Error("failed to load vector store", zap.String("path", path), zap.Error(err))
		return
	}
	store := k.Current()
	logger.Info("vector store loaded",
		zap.String("path", path),
		zap.Int("records", store.Len()),
		zap.Int("dimensions", store.Dimensions()),
		zap.String("embedding_model", store.Model()))
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	dataDir := fs.String("data", "", "directory with .md/.txt documents (default: storage.data_dir)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, componentNeeds{indexer: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	dir := cfg.Storage.DataDir
	if *dataDir != "" {
		dir = *dataDir
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, report, err := components.Indexer.Ingest(ctx, dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteIngestReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	k := fs.Int("k", 0, "number of chunks used as context (default: search.top_k)")
	outputFormat := fs.String("output", "text", "output format for one-shot questions: text, json or compact")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger, componentNeeds{answerer: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	loadKnowledge(components.Knowledge, cfg.Storage.VectorsPath, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if question := joinArgs(fs.Args()); question != "" {
		res := components.Answerer.AnswerDetailed(ctx, question, *k)
		if err := cli.WriteAnswer(os.Stdout, res, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	m := tui.New(ctx, components.Answerer, *k, knowledgeSummary(components.Knowledge))
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Interactive session failed: %v\n", err)
		os.Exit(1)
	}
}

func knowledgeSummary(k *search.Knowledge) string {
	store := k.Current()
	if store == nil {
		return "No knowledge base loaded. Run `primr ingest` first."
	}
	return fmt.Sprintf("%d chunks loaded (%s, %d dimensions)", store.Len(), store.Model(), store.Dimensions())
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	k := fs.Int("k", 0, "number of matches (default: search.top_k)")
	outputFormat := fs.String("output", "text", "output format: text, json or compact")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := models.SearchRequest{Query: joinArgs(fs.Args()), K: *k}
	if err := req.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Usage: primr search [flags] <query>: %v\n", err)
		os.Exit(1)
	}
	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *k <= 0 {
		req.K = cfg.Search.TopK
	}

	components, err := initializeComponents(cfg, logger, componentNeeds{})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	loadKnowledge(components.Knowledge, cfg.Storage.VectorsPath, logger)

	start := time.Now()
	matches, err := components.Engine.Retrieve(context.Background(), req.Query, req.K)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	resp := &models.SearchResponse{
		Query:     req.Query,
		Matches:   matches,
		Total:     len(matches),
		QueryTime: time.Since(start).Milliseconds(),
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "reload the vector file when it changes (overrides watch.enabled)")
	watchData := fs.Bool("watch-data", false, "re-ingest when documents in the data dir change (overrides watch.data_dir)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()
	if *watch {
		cfg.Watch.Enabled = true
	}
	if *watchData {
		cfg.Watch.DataDir = true
	}

	components, err := initializeComponents(cfg, logger, componentNeeds{answerer: true, catalog: true, indexer: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	loadKnowledge(components.Knowledge, cfg.Storage.VectorsPath, logger)

	srv := server.NewServer(
		components.Engine,
		components.Answerer,
		components.Indexer,
		components.Catalog,
		cfg,
		logger,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := srv.Watch(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runSlack() {
	fs := flag.NewFlagSet("slack", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := setup(*configPath, *debug)
	defer logger.Sync()

	if err := slackbot.CheckEnv(cfg.Slack.BotTokenEnv, cfg.Slack.AppTokenEnv, cfg.Embedding.APIKeyEnv, cfg.LLM.APIKeyEnv); err != nil {
		fmt.Fprintf(os.Stderr, "%v\nSet them in the environment or in a .env file.\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger, componentNeeds{answerer: true})
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()
	loadKnowledge(components.Knowledge, cfg.Storage.VectorsPath, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botToken, _ := config.Secret(cfg.Slack.BotTokenEnv)
	appToken, _ := config.Secret(cfg.Slack.AppTokenEnv)
	client, err := slackbot.Connect(ctx, botToken, appToken, components.Answerer, components.Knowledge.Ready,
		slackbot.WithCommands(cfg.Slack.AskCommand, cfg.Slack.StatusCommand),
		slackbot.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to connect to Slack", zap.Error(err))
	}
	logger.Info("slack bot running",
		zap.String("ask_command", cfg.Slack.AskCommand),
		zap.String("status_command", cfg.Slack.StatusCommand))
	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Slack connection failed", zap.Error(err))
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "ask a running server instead of reading local files (e.g. http://localhost:5001)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status models.StatusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, logger := setup(*configPath, false)
		defer logger.Sync()
		k := search.NewKnowledge()
		loadKnowledge(k, cfg.Storage.VectorsPath, logger)
		var catalog storage.Catalog
		if _, statErr := os.Stat(cfg.Storage.CatalogPath); statErr == nil {
			if c, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath); err == nil {
				catalog = c
				defer c.Close()
			} else {
				logger.Warn("catalog unavailable", zap.Error(err))
			}
		}
		status = server.CollectStatus(context.Background(), k, catalog, cfg, logger)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*models.StatusResponse, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(serverURL, "/") + "/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s models.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// joinArgs joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// words to the front so that flag.Parse sees them. Go's flag package stops at the
// first non-flag argument.
func argsReorder(args []string) []string {
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

func printUsage() {
	fmt.Println(`primr - answer questions from your company documents

Usage:
  primr ingest [flags]            Split, embed and store documents from the data dir
  primr ask [flags] [question]    Ask one question, or start the interactive loop
  primr search [flags] <query>    Show the stored chunks most similar to a query
  primr serve [flags]             Start the HTTP API
  primr slack [flags]             Run the Slack bot (Socket Mode)
  primr status [flags]            Show knowledge base status
  primr version                   Show version
  primr help                      Show this help

Common Flags:
  --config string    Config file path (default: ./config.yaml; missing file uses defaults)
  --debug            Enable debug logging

Ingest Flags:
  --data string      Document directory (default: storage.data_dir)
  --output string    Output format: text or json

Ask Flags:
  --k int            Chunks used as context (default: search.top_k)
  --output string    Output format for one-shot questions: text, json or compact

Search Flags:
  --k int            Number of matches (default: search.top_k)
  --output string    Output format: text, json or compact

Serve Flags:
  --watch            Reload the vector file when it is replaced
  --watch-data       Re-ingest when documents change

Status Flags:
  --server string    Query a running server (e.g. http://localhost:5001)
  --output string    Output format: text or json

Environment:
  OPENAI_API_KEY, SLACK_BOT_TOKEN, SLACK_APP_TOKEN (names configurable; .env files are loaded)

Examples:
  primr ingest
  primr ask "What is our vacation policy?"
  primr ask
  primr search --k 3 remote work
  primr serve --watch
  primr status --output json`)
}
