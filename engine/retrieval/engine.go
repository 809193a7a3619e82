// Package retrieval implements the hybrid retrieval engine: dense-vector
// similarity blended with BM25 lexical scoring over a shared immutable corpus
// snapshot, with a keyword-overlap fallback when embeddings are unavailable.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// ErrUnavailable is returned when neither the indexed corpus nor the document
// store can serve a search. Any reachable fallback path suppresses it.
var ErrUnavailable = errors.New("retrieval: no search path available")

// Result-count bounds of the caller-facing contract.
const (
	MinK = 1
	MaxK = 20
)

// Embedder produces a normalized dense vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorHit is one similarity hit from an external vector searcher.
type VectorHit struct {
	DocID string
	Score float32
}

// VectorSearcher is an optional external k-NN backend (Qdrant). When set, the
// engine takes vector scores from it instead of computing cosine in-process.
type VectorSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int, vin string) ([]VectorHit, error)
}

// DocumentLister is the degraded-mode document source used when no snapshot
// has been built.
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]domain.DiagnosticDocument, error)
}

// Options holds the engine tunables. The score blend and the lexical
// normalization constant are design constants carried over from the original
// tuning, exposed here so deployments can override them.
type Options struct {
	// VectorWeight and LexicalWeight blend the two scores; they should sum to 1.
	VectorWeight  float64
	LexicalWeight float64
	// LexicalNorm rescales raw BM25 scores into [0,1]. Raw BM25 magnitude is
	// not comparable across corpora; treat this as a per-corpus tunable.
	LexicalNorm float64
	// ProviderTimeout bounds each outbound embedding/vector-search call.
	ProviderTimeout time.Duration
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		VectorWeight:    0.7,
		LexicalWeight:   0.3,
		LexicalNorm:     10.0,
		ProviderTimeout: 30 * time.Second,
	}
}

// Engine ranks diagnostic documents against free-text queries. The corpus
// snapshot is process-scoped and read-mostly: Swap replaces it atomically and
// in-flight searches keep the snapshot they started with.
type Engine struct {
	embedder Embedder       // nil means keyword-only mode
	vector   VectorSearcher // nil means in-process cosine
	store    DocumentLister // nil disables the no-snapshot fallback
	snap     atomic.Pointer[Snapshot]
	opts     Options
	logger   *slog.Logger
}

// New creates an Engine. Any of embedder, vector, and store may be nil; the
// engine degrades through the remaining paths.
func New(embedder Embedder, vector VectorSearcher, store DocumentLister, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LexicalNorm <= 0 {
		opts.LexicalNorm = DefaultOptions().LexicalNorm
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultOptions().ProviderTimeout
	}
	return &Engine{
		embedder: embedder,
		vector:   vector,
		store:    store,
		opts:     opts,
		logger:   logger,
	}
}

// Swap atomically replaces the corpus snapshot visible to new searches.
func (e *Engine) Swap(snap *Snapshot) { e.snap.Store(snap) }

// Snapshot returns the current snapshot, or nil before the first Swap.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// Search returns the top-k documents for the query, ranked by the blended
// score in strictly descending order (ties keep corpus order). A supplied VIN
// excludes documents carrying a different VIN; documents without a VIN are
// never excluded. "No results" is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, query, vin string, k int) ([]domain.ScoredResult, error) {
	k = clampK(k)

	snap := e.snap.Load()
	if snap == nil || snap.Len() == 0 {
		return e.searchWithoutIndex(ctx, query, vin, k)
	}

	qvec, err := e.embedQuery(ctx, query)
	if err != nil {
		e.logger.Warn("query embedding unavailable, using keyword fallback", "err", err)
		return keywordSearch(snap.docs, query, vin, k), nil
	}

	vecScores, err := e.vectorScores(ctx, snap, qvec, vin, k)
	if err != nil {
		e.logger.Warn("vector scoring unavailable, using keyword fallback", "err", err)
		return keywordSearch(snap.docs, query, vin, k), nil
	}

	lexScores := snap.lexical.Scores(query)

	results := make([]domain.ScoredResult, 0, snap.Len())
	for i, doc := range snap.docs {
		if excludedByVIN(doc, vin) {
			continue
		}
		vs := clamp01(vecScores[i])
		ls := clamp01(lexScores[i] / e.opts.LexicalNorm)
		results = append(results, domain.ScoredResult{
			DiagnosticDocument: doc,
			Score:              clamp01(e.opts.VectorWeight*vs + e.opts.LexicalWeight*ls),
			VectorScore:        vs,
			LexicalScore:       ls,
		})
	}

	sortAndTrim(&results, k)
	return results, nil
}

// searchWithoutIndex serves queries before any snapshot exists by listing
// documents straight from the store and applying the keyword heuristic.
func (e *Engine) searchWithoutIndex(ctx context.Context, query, vin string, k int) ([]domain.ScoredResult, error) {
	if e.store == nil {
		return nil, ErrUnavailable
	}
	docs, err := e.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return keywordSearch(docs, query, vin, k), nil
}

// embedQuery runs the embedding call under the provider timeout.
func (e *Engine) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if e.embedder == nil {
		return nil, errors.New("no embedder configured")
	}
	ctx, cancel := context.WithTimeout(ctx, e.opts.ProviderTimeout)
	defer cancel()
	return e.embedder.Embed(ctx, query)
}

// vectorScores returns a per-document vector score aligned with snap.docs,
// from the external searcher when configured, otherwise in-process cosine.
func (e *Engine) vectorScores(ctx context.Context, snap *Snapshot, qvec []float32, vin string, k int) ([]float64, error) {
	scores := make([]float64, snap.Len())

	if e.vector != nil {
		ctx, cancel := context.WithTimeout(ctx, e.opts.ProviderTimeout)
		defer cancel()
		hits, err := e.vector.Search(ctx, qvec, k*2, vin)
		if err != nil {
			return nil, fmt.Errorf("vector search: %w", err)
		}
		byID := make(map[string]float64, len(hits))
		for _, h := range hits {
			byID[h.DocID] = float64(h.Score)
		}
		for i, doc := range snap.docs {
			scores[i] = byID[doc.ID()]
		}
		return scores, nil
	}

	if snap.vectors == nil {
		return nil, errors.New("snapshot has no embeddings")
	}
	for i := range snap.docs {
		scores[i] = cosine(qvec, snap.vectors[i])
	}
	return scores, nil
}

// keywordSearch is the reproducible no-model floor: 0.8 for a substring match
// of the whole query, 0.1 per overlapping token, 0.5 for a VIN-filter match,
// clamped to [0,1].
func keywordSearch(docs []domain.DiagnosticDocument, query, vin string, k int) []domain.ScoredResult {
	queryLower := strings.ToLower(query)
	queryTokens := make(map[string]struct{})
	for _, tok := range Tokenize(query) {
		queryTokens[tok] = struct{}{}
	}

	results := make([]domain.ScoredResult, 0, len(docs))
	for _, doc := range docs {
		textLower := strings.ToLower(doc.DisplayText())

		docTokens := make(map[string]struct{})
		for _, tok := range Tokenize(textLower) {
			docTokens[tok] = struct{}{}
		}
		overlap := 0
		for tok := range queryTokens {
			if _, ok := docTokens[tok]; ok {
				overlap++
			}
		}

		score := 0.1 * float64(overlap)
		if strings.Contains(textLower, queryLower) {
			score += 0.8
		}
		if vin != "" && doc.VIN != "" &&
			strings.Contains(strings.ToUpper(doc.VIN), strings.ToUpper(vin)) {
			score += 0.5
		}

		results = append(results, domain.ScoredResult{
			DiagnosticDocument: doc,
			Score:              clamp01(score),
			LexicalScore:       clamp01(score),
		})
	}

	sortAndTrim(&results, k)
	return results
}

func excludedByVIN(doc domain.DiagnosticDocument, vin string) bool {
	return vin != "" && doc.VIN != "" && !strings.EqualFold(doc.VIN, vin)
}

// sortAndTrim orders by descending score (stable, so ties keep corpus order)
// and keeps the top k.
func sortAndTrim(results *[]domain.ScoredResult, k int) {
	sort.SliceStable(*results, func(i, j int) bool {
		return (*results)[i].Score > (*results)[j].Score
	})
	if len(*results) > k {
		*results = (*results)[:k]
	}
}

func clampK(k int) int {
	if k < MinK {
		return MinK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// cosine computes cosine similarity between two vectors. Mismatched or zero
// vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
