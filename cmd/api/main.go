// Package main implements the AutoSense API server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/AutoSenseAI/autosense/engine/agent"
	"github.com/AutoSenseAI/autosense/engine/ingest"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/engine/semantic"
	"github.com/AutoSenseAI/autosense/pkg/llm"
	"github.com/AutoSenseAI/autosense/pkg/metrics"
	"github.com/AutoSenseAI/autosense/pkg/mid"
	"github.com/AutoSenseAI/autosense/pkg/natsutil"
	"github.com/AutoSenseAI/autosense/pkg/ollama"
	"github.com/AutoSenseAI/autosense/pkg/resilience"
	"github.com/AutoSenseAI/autosense/pkg/store"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	DBPath       string
	OpenAIKey    string
	OpenAIBase   string
	ChatModel    string
	EmbedModel   string
	OllamaURL    string
	OllamaModel  string
	QdrantURL    string
	Collection   string
	NATSURL      string
	CORSOrigin   string
	DiagnoseRate float64
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8080"),
		DBPath:       envOr("AUTOSENSE_DB", "autosense.db"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIBase:   os.Getenv("OPENAI_BASE_URL"),
		ChatModel:    envOr("CHAT_MODEL", "gpt-4o-mini"),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-3-small"),
		OllamaURL:    envOr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:  envOr("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		QdrantURL:    os.Getenv("QDRANT_URL"),
		Collection:   envOr("QDRANT_COLLECTION", "autosense"),
		NATSURL:      os.Getenv("NATS_URL"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
		DiagnoseRate: envFloat("DIAGNOSE_RATE", 5),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Corpus store (SQLite) ---
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// --- Embeddings and completions ---
	var (
		embedder  retrieval.Embedder
		completer agent.Completer
	)
	if cfg.OpenAIKey != "" {
		provider := llm.New(llm.Config{
			BaseURL:    cfg.OpenAIBase,
			APIKey:     cfg.OpenAIKey,
			ChatModel:  cfg.ChatModel,
			EmbedModel: cfg.EmbedModel,
		})
		embedder = provider
		completer = provider
		logger.Info("using OpenAI-compatible provider", "chat_model", cfg.ChatModel)
	} else {
		embedder = ollama.NewClient(cfg.OllamaURL, cfg.OllamaModel)
		logger.Info("no OPENAI_API_KEY set, embeddings via ollama, template answers only")
	}

	// --- Vector store (Qdrant, optional) ---
	var (
		vecSearch retrieval.VectorSearcher
		vecWrite  ingest.VectorWriter
	)
	if cfg.QdrantURL != "" {
		vs, err := semantic.New(cfg.QdrantURL, cfg.Collection)
		if err != nil {
			return fmt.Errorf("qdrant connect: %w", err)
		}
		defer vs.Close()
		vecSearch = semantic.NewSearcher(vs)
		vecWrite = vs
	}

	// --- Retrieval engine + indexer ---
	engine := retrieval.New(embedder, vecSearch, db, retrieval.DefaultOptions(), logger)

	indexer := ingest.NewIndexer(db, embedder, vecWrite, engine, logger)
	if n, err := indexer.Rebuild(ctx); err != nil {
		logger.Warn("initial index build failed, keyword fallback only", "err", err)
	} else {
		logger.Info("index built", "docs", n)
	}

	if cfg.NATSURL != "" {
		nc, err := natsutil.Connect(cfg.NATSURL, "autosense-api", logger)
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
		sub, err := indexer.Subscribe(nc)
		if err != nil {
			return fmt.Errorf("subscribe reindex: %w", err)
		}
		defer sub.Unsubscribe()
	}

	// --- Diagnostic agent ---
	diag := agent.New(engine, db, db, completer, agent.DefaultOptions(), logger)

	// --- HTTP server ---
	met := newAPIMetrics(metrics.New())
	limiter := resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.DiagnoseRate, Burst: int(cfg.DiagnoseRate)})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth(db, engine))
	mux.HandleFunc("POST /api/search", handleSearch(engine, met, logger))
	mux.HandleFunc("GET /api/dtc/{code}", handleDTC(db))
	mux.HandleFunc("GET /api/recalls/{vin}", handleRecalls(db))
	mux.Handle("POST /api/diagnose", limiter.Middleware(handleDiagnose(diag, met)))
	mux.Handle("GET /metrics", met.reg.Handler())

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.RequestID(),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("autosense-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
