package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/xhad/newsqa/internal/app"
	cfgPkg "github.com/xhad/newsqa/pkg/config"
	"github.com/xhad/newsqa/pkg/chain"
	"github.com/xhad/newsqa/pkg/llm"
	"github.com/xhad/newsqa/pkg/processor"
	"github.com/xhad/newsqa/pkg/scraper"
	"github.com/xhad/newsqa/pkg/store"
	"github.com/xhad/newsqa/pkg/vectorstore"
)

const usage = `Usage: newsqa [flags] [command] [args]

Commands:
  tui               interactive form (default)
  process URL...    load, chunk and index the given URLs
  ask QUESTION...   answer a question from the index
  list              list persisted indices
  delete [KEY]      delete an index (default: the configured key)
  serve             run the websocket server

Flags:
`

func main() {
	_ = godotenv.Load()

	cfg, err := parseFlags()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Check(); err != nil {
		log.Fatal(err)
	}

	command := "tui"
	args := flag.Args()
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	logger, closeLog, err := newLogger(cfg, command == "tui")
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, command, args); err != nil {
		stop()
		closeLog()
		if errors.Is(err, errFailed) {
			os.Exit(1)
		}
		log.Fatal(err)
	}
}

// parseFlags loads the config file and overrides it with any flag given on
// the command line.
func parseFlags() (*cfgPkg.Config, error) {
	var (
		configPath  string
		key         string
		storeDir    string
		backend     string
		dbURL       string
		provider    string
		model       string
		ollamaURL   string
		temperature float64
		maxTokens   int
		topK        int
		chunkSize   int
		rateLimit   float64
		skipFailed  bool
		addr        string
		streaming   bool
		logLevel    string
		logFile     string
	)

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.StringVar(&key, "key", "", "Index key")
	flag.StringVar(&storeDir, "store-dir", "", "Directory holding SQLite indices")
	flag.StringVar(&backend, "backend", "", "Index backend: sqlite or pgvector")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&provider, "provider", "", "Model provider: googleai or ollama")
	flag.StringVar(&model, "model", "", "Generative model to use")
	flag.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.Float64Var(&temperature, "temperature", 0, "Set the LLM temperature")
	flag.IntVar(&maxTokens, "max-tokens", 0, "Maximum tokens for LLM response")
	flag.IntVar(&topK, "top-k", 0, "Number of chunks retrieved per question")
	flag.IntVar(&chunkSize, "chunk-size", 0, "Size of text chunks")
	flag.Float64Var(&rateLimit, "rate-limit", 0, "Fetch rate limit (requests per second)")
	flag.BoolVar(&skipFailed, "skip-failed", false, "Index the URLs that loaded even if some failed")
	flag.StringVar(&addr, "addr", "", "Listen address for serve")
	flag.BoolVar(&streaming, "stream", false, "Stream the model output in ask")
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&logFile, "log-file", "", "Write logs to this file")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	// Override config with command line flags if provided
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "key":
			cfg.Store.Key = key
		case "store-dir":
			cfg.Store.Dir = storeDir
		case "backend":
			cfg.Store.Backend = backend
		case "db-url":
			cfg.Store.URL = dbURL
		case "provider":
			cfg.LLM.Provider = provider
		case "model":
			cfg.LLM.Model = model
		case "ollama-url":
			cfg.LLM.BaseURL = ollamaURL
		case "temperature":
			cfg.LLM.Temperature = temperature
		case "max-tokens":
			cfg.LLM.MaxTokens = maxTokens
		case "top-k":
			cfg.Store.TopK = topK
		case "chunk-size":
			cfg.Processor.ChunkSize = chunkSize
		case "rate-limit":
			cfg.Scraper.RateLimit = rateLimit
		case "skip-failed":
			cfg.Scraper.SkipFailed = skipFailed
		case "addr":
			cfg.Server.Addr = addr
		case "stream":
			cfg.UI.Streaming = streaming
		case "log-level":
			cfg.Log.Level = logLevel
		case "log-file":
			cfg.Log.File = logFile
		}
	})

	return cfg, nil
}

// newLogger writes to the configured log file, or to stderr. The TUI owns the
// terminal, so without a log file it logs nowhere.
func newLogger(cfg *cfgPkg.Config, tui bool) (*slog.Logger, func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
	}

	var (
		out     io.Writer = os.Stderr
		closeFn           = func() {}
	)
	switch {
	case cfg.Log.File != "":
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	case tui:
		out = io.Discard
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})), closeFn, nil
}

// components is everything a command may need.
type components struct {
	app     *app.App
	builder *vectorstore.Builder
	backend store.Backend
}

func (c *components) Close() {
	if c.backend != nil {
		c.backend.Close()
	}
}

func openBackend(ctx context.Context, cfg *cfgPkg.Config) (store.Backend, error) {
	switch cfg.Store.Backend {
	case cfgPkg.BackendPGVector:
		return store.NewPGVectorBackend(ctx, store.PGVectorConfig{
			ConnString:  cfg.Store.URL,
			TablePrefix: cfg.Store.TablePrefix,
		})
	default:
		return store.NewSQLiteBackend(cfg.Store.Dir)
	}
}

// setup wires the pipeline. onToken, when set, receives streamed model output.
func setup(ctx context.Context, cfg *cfgPkg.Config, logger *slog.Logger, onProgress func(string), onToken func(string) error) (*components, error) {
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index store: %w", err)
	}
	c := &components{backend: backend}

	embedder, err := llm.NewEmbedderWithConfig(ctx, llm.EmbedderConfig{
		Provider:  cfg.LLM.Provider,
		Model:     cfg.LLM.EmbeddingModel,
		APIKey:    cfg.LLM.APIKey,
		BaseURL:   cfg.LLM.BaseURL,
		BatchSize: cfg.Store.BatchSize,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.builder = vectorstore.NewBuilder(embedder, backend, logger)

	chatEngine, err := llm.NewWithConfig(ctx, llm.ChatConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	loader := scraper.NewWithConfig(scraper.ScraperConfig{
		RateLimit:  cfg.Scraper.RateLimit,
		Timeout:    cfg.Timeout(),
		UserAgent:  cfg.Scraper.UserAgent,
		SkipFailed: cfg.Scraper.SkipFailed,
		OnProgress: onProgress,
		Logger:     logger,
	})

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
		Separators:   cfg.Processor.Separators,
	})

	answerer := chain.Factory(chatEngine, chain.QAConfig{
		TopK:    cfg.Store.TopK,
		OnToken: onToken,
	})

	c.app = app.NewWithConfig(loader, &proc, c.builder, answerer, app.Config{
		Key:    cfg.Store.Key,
		Logger: logger,
	})
	return c, nil
}
