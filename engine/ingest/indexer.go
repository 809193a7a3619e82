// Package ingest rebuilds the retrieval snapshot from the document store and
// keeps the optional Qdrant collection in sync. Rebuilds are triggered
// directly after corpus writes or via NATS reindex events.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/engine/semantic"
	"github.com/AutoSenseAI/autosense/pkg/fn"
	"github.com/AutoSenseAI/autosense/pkg/natsutil"
)

const (
	// ReindexSubject is the NATS subject that triggers a snapshot rebuild.
	ReindexSubject = "autosense.reindex"
	// EmbedWorkers bounds concurrent embedding calls during a rebuild.
	EmbedWorkers = 4
	// UpsertBatchSize is the max records per Qdrant upsert.
	UpsertBatchSize = 100
)

// ReindexEvent announces that the corpus changed and snapshots should be
// rebuilt.
type ReindexEvent struct {
	Reason string    `json:"reason"`
	Time   time.Time `json:"time"`
}

// Embedder produces embedding vectors for document texts.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentLister is the corpus source for rebuilds.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]domain.DiagnosticDocument, error)
}

// VectorWriter is the optional external vector index kept in sync with the
// snapshot.
type VectorWriter interface {
	EnsureCollection(ctx context.Context, dims int) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

// Indexer rebuilds retrieval snapshots. The embedder and vector writer are
// both optional: without an embedder the snapshot is lexical-only, and
// without a vector writer similarity stays in-process.
type Indexer struct {
	store    DocumentLister
	embedder Embedder
	vectors  VectorWriter
	engine   *retrieval.Engine
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. embedder and vectors may be nil.
func NewIndexer(store DocumentLister, embedder Embedder, vectors VectorWriter, engine *retrieval.Engine, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		engine:   engine,
		logger:   logger,
	}
}

var tracer = otel.Tracer("engine/ingest")

// Rebuild lists the corpus, embeds it, and atomically swaps the engine's
// snapshot. Embedding failures degrade to a lexical-only snapshot; only a
// store failure aborts a rebuild, leaving the previous snapshot in place.
// Returns the number of indexed documents.
func (ix *Indexer) Rebuild(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "ingest.rebuild")
	defer span.End()
	start := time.Now()

	docs, err := ix.store.ListDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: list documents: %w", err)
	}

	var vectors [][]float32
	if ix.embedder != nil && len(docs) > 0 {
		texts := fn.Map(docs, func(d domain.DiagnosticDocument) string { return d.DisplayText() })
		vectors, err = fn.ParMapErr(ctx, texts, EmbedWorkers, ix.embedder.Embed)
		if err != nil {
			ix.logger.Warn("embedding failed, building lexical-only snapshot", "err", err)
			vectors = nil
		}
	}

	snap, err := retrieval.NewSnapshot(docs, vectors)
	if err != nil {
		return 0, fmt.Errorf("ingest: build snapshot: %w", err)
	}
	ix.engine.Swap(snap)

	ix.syncVectors(ctx, docs, vectors)

	ix.logger.Info("snapshot rebuilt",
		"documents", len(docs),
		"vectors", len(vectors),
		"duration", time.Since(start),
	)
	return len(docs), nil
}

// syncVectors mirrors the snapshot into Qdrant. Failures are logged, not
// returned: the in-process snapshot already serves searches.
func (ix *Indexer) syncVectors(ctx context.Context, docs []domain.DiagnosticDocument, vectors [][]float32) {
	if ix.vectors == nil || len(vectors) == 0 {
		return
	}
	if err := ix.vectors.EnsureCollection(ctx, len(vectors[0])); err != nil {
		ix.logger.Warn("qdrant collection setup failed, skipping vector sync", "err", err)
		return
	}

	records := make([]semantic.VectorRecord, len(docs))
	for i, d := range docs {
		records[i] = semantic.Record(d, vectors[i])
	}
	for _, batch := range fn.Chunk(records, UpsertBatchSize) {
		if err := ix.vectors.Upsert(ctx, batch); err != nil {
			ix.logger.Warn("qdrant upsert failed", "batch", len(batch), "err", err)
			return
		}
	}
}

// Subscribe rebuilds whenever a reindex event arrives on ReindexSubject.
func (ix *Indexer) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	return natsutil.Subscribe(nc, ReindexSubject, func(ctx context.Context, ev ReindexEvent) {
		ix.logger.Info("reindex event received", "reason", ev.Reason)
		if _, err := ix.Rebuild(ctx); err != nil {
			ix.logger.Error("reindex failed", "reason", ev.Reason, "err", err)
		}
	})
}

// PublishReindex announces a corpus change on ReindexSubject.
func PublishReindex(ctx context.Context, nc *nats.Conn, reason string) error {
	return natsutil.Publish(ctx, nc, ReindexSubject, ReindexEvent{Reason: reason, Time: time.Now().UTC()})
}
