// Command chat is an interactive terminal client for the diagnostic agent.
// It wires the corpus store and retrieval engine in-process, so it works
// against a local database without the API server running.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/AutoSenseAI/autosense/engine/agent"
	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/ingest"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/pkg/llm"
	"github.com/AutoSenseAI/autosense/pkg/ollama"
	"github.com/AutoSenseAI/autosense/pkg/store"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	dbPath := envOr("AUTOSENSE_DB", "autosense.db")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}

	var (
		embedder  retrieval.Embedder
		completer agent.Completer
	)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		provider := llm.New(llm.Config{
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			APIKey:     key,
			ChatModel:  envOr("CHAT_MODEL", "gpt-4o-mini"),
			EmbedModel: envOr("EMBED_MODEL", "text-embedding-3-small"),
		})
		embedder = provider
		completer = provider
	} else {
		embedder = ollama.NewClient(envOr("OLLAMA_URL", "http://localhost:11434"), envOr("OLLAMA_EMBED_MODEL", "nomic-embed-text"))
	}

	engine := retrieval.New(embedder, nil, db, retrieval.DefaultOptions(), logger)
	indexer := ingest.NewIndexer(db, embedder, nil, engine, logger)
	if n, err := indexer.Rebuild(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "index build failed, keyword search only: %v\n", err)
	} else {
		fmt.Printf("indexed %d documents\n", n)
	}

	diag := agent.New(engine, db, db, completer, agent.DefaultOptions(), logger)

	repl(ctx, diag)
}

func repl(ctx context.Context, diag *agent.Agent) {
	fmt.Println(`Describe a symptom or trouble code. Commands: "vin <VIN>" sets the vehicle, "trace" toggles reasoning output, "quit" exits.`)

	var (
		vin       string
		showTrace bool
	)
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() || ctx.Err() != nil {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "quit" || line == "exit":
			return
		case line == "trace":
			showTrace = !showTrace
			fmt.Printf("trace output %v\n", showTrace)
			continue
		case strings.HasPrefix(line, "vin "):
			v, err := domain.ValidateVIN(strings.TrimPrefix(line, "vin "))
			if err != nil {
				fmt.Printf("invalid VIN: %v\n", err)
				continue
			}
			vin = v
			fmt.Printf("vehicle set to %s\n", vin)
			continue
		}

		result := diag.Diagnose(ctx, line, vin)
		printDiagnosis(result, showTrace)
	}
}

func printDiagnosis(d *domain.Diagnosis, showTrace bool) {
	if !d.IsValid {
		fmt.Printf("cannot process query (%s): %s\n", d.ErrorType, d.Error)
		if d.Suggestion != "" {
			fmt.Println(d.Suggestion)
		}
		return
	}
	if showTrace {
		for _, obs := range d.Trace.Observations {
			fmt.Printf("  · %s\n", obs)
		}
	}
	fmt.Println(d.Answer)
	fmt.Printf("(%d results, %.2fs)\n", len(d.SearchResults), d.ProcessingTime)
}
