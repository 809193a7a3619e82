package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"testing"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// --- mocks ---

// bagEmbedder produces a deterministic normalized bag-of-words vector, so
// identical texts embed identically and share-a-token texts correlate.
type bagEmbedder struct {
	err error
}

func (e *bagEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	const dim = 16
	vec := make([]float32, dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%dim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}

type mockLister struct {
	docs []domain.DiagnosticDocument
	err  error
}

func (m *mockLister) ListDocuments(_ context.Context) ([]domain.DiagnosticDocument, error) {
	return m.docs, m.err
}

// --- fixtures ---

func testCorpus() []domain.DiagnosticDocument {
	return []domain.DiagnosticDocument{
		{Type: domain.DocTypeDTC, Code: "P0420", Category: "Engine", Description: "Catalyst System Efficiency Below Threshold (Bank 1)"},
		{Type: domain.DocTypeDTC, Code: "P0300", Category: "Engine", Description: "Random/Multiple Cylinder Misfire Detected"},
		{Type: domain.DocTypeDTC, Code: "P0700", Category: "Transmission", Description: "Transmission Control System Malfunction"},
		{Type: domain.DocTypeRecall, RecallID: "12345", VIN: "2HGFC2F59JH000001", Date: "2024-01-15", Summary: "Safety recall for airbag deployment issue"},
		{Type: domain.DocTypeRecall, RecallID: "12346", VIN: "2HGFC2F59JH000002", Date: "2024-02-20", Summary: "Recall for brake system software update"},
	}
}

func buildEngine(t *testing.T, embedder Embedder, store DocumentLister) *Engine {
	t.Helper()
	e := New(embedder, nil, store, DefaultOptions(), nil)

	docs := testCorpus()
	var vectors [][]float32
	if embedder != nil {
		vectors = make([][]float32, len(docs))
		for i, d := range docs {
			vec, err := embedder.Embed(context.Background(), d.DisplayText())
			if err != nil {
				t.Fatalf("embed corpus: %v", err)
			}
			vectors[i] = vec
		}
	}
	snap, err := NewSnapshot(docs, vectors)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	e.Swap(snap)
	return e
}

// --- tests ---

func TestSearch_DeterministicDescendingOrder(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)

	first, err := e.Search(context.Background(), "catalyst efficiency below threshold", "", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	second, _ := e.Search(context.Background(), "catalyst efficiency below threshold", "", 5)

	if len(first) == 0 {
		t.Fatal("expected results")
	}
	if len(first) != len(second) {
		t.Fatalf("non-deterministic result count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID() != second[i].ID() {
			t.Errorf("non-deterministic ordering at %d: %s vs %s", i, first[i].ID(), second[i].ID())
		}
		if first[i].Score < 0 || first[i].Score > 1 {
			t.Errorf("score out of [0,1]: %f", first[i].Score)
		}
		if i > 0 && first[i].Score > first[i-1].Score {
			t.Errorf("not descending at %d: %f > %f", i, first[i].Score, first[i-1].Score)
		}
	}
}

func TestSearch_RoundTripExactText(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)
	docs := testCorpus()
	target := docs[0]

	results, err := e.Search(context.Background(), target.DisplayText(), "", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	top := results[0]
	if top.ID() != target.ID() {
		t.Fatalf("expected %s on top, got %s", target.ID(), top.ID())
	}
	if top.VectorScore < 0.99 {
		t.Errorf("expected near-max vector score for identical text, got %f", top.VectorScore)
	}
	// The exact text must be the lexical maximum for this corpus.
	for _, r := range results[1:] {
		if r.LexicalScore > top.LexicalScore {
			t.Errorf("lexical score of %s (%f) exceeds exact match (%f)", r.ID(), r.LexicalScore, top.LexicalScore)
		}
	}
}

func TestSearch_VINFilterExcludes(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)

	results, err := e.Search(context.Background(), "recall", "2HGFC2F59JH000001", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		if r.VIN != "" && r.VIN != "2HGFC2F59JH000001" {
			t.Errorf("document with differing VIN %s not excluded", r.VIN)
		}
	}
	// Documents without a VIN attribute stay eligible.
	found := false
	for _, r := range results {
		if r.Type == domain.DocTypeDTC {
			found = true
		}
	}
	if !found {
		t.Error("VIN filter must not exclude documents without a VIN")
	}
}

func TestSearch_KBounds(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)

	results, err := e.Search(context.Background(), "engine", "", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("k=0 should clamp to 1, got %d results", len(results))
	}

	results, err = e.Search(context.Background(), "engine", "", 100)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) > MaxK {
		t.Errorf("k=100 should clamp to %d, got %d", MaxK, len(results))
	}
}

func TestSearch_EmbedderFailureFallsBack(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)
	e.embedder = &bagEmbedder{err: errors.New("provider down")}

	results, err := e.Search(context.Background(), "P0420 catalyst", "", 5)
	if err != nil {
		t.Fatalf("fallback should not error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("fallback should still return results")
	}
	if results[0].Code != "P0420" {
		t.Errorf("expected P0420 on top of keyword fallback, got %s", results[0].ID())
	}
}

func TestSearch_NoSnapshotUsesStore(t *testing.T) {
	store := &mockLister{docs: testCorpus()}
	e := New(nil, nil, store, DefaultOptions(), nil)

	results, err := e.Search(context.Background(), "misfire", "", 5)
	if err != nil {
		t.Fatalf("store fallback should not error: %v", err)
	}
	if len(results) == 0 || results[0].Code != "P0300" {
		t.Fatalf("expected misfire document on top, got %+v", results)
	}
}

func TestSearch_Unavailable(t *testing.T) {
	e := New(nil, nil, nil, DefaultOptions(), nil)
	if _, err := e.Search(context.Background(), "anything", "", 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	e = New(nil, nil, &mockLister{err: errors.New("db down")}, DefaultOptions(), nil)
	if _, err := e.Search(context.Background(), "anything", "", 5); !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable when store fails, got %v", err)
	}
}

func TestKeywordSearch_HeuristicScores(t *testing.T) {
	docs := []domain.DiagnosticDocument{
		{Type: domain.DocTypeDTC, Code: "P0420", Category: "Engine", Description: "catalyst"},
	}
	// Display text: "DTC P0420 (Engine): catalyst"

	// Substring match plus two token overlaps: 0.8 + 0.2.
	results := keywordSearch(docs, "dtc p0420", "", 5)
	if got := results[0].Score; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected clamped 1.0, got %f", got)
	}

	// Token overlaps without a substring match: 0.1 per token.
	results = keywordSearch(docs, "p0420 catalyst", "", 5)
	if got := results[0].Score; math.Abs(got-0.2) > 1e-9 {
		t.Errorf("expected 0.2, got %f", got)
	}

	// Single token overlap only.
	results = keywordSearch(docs, "catalyst converter rattle", "", 5)
	if got := results[0].Score; math.Abs(got-0.1) > 1e-9 {
		t.Errorf("expected 0.1, got %f", got)
	}

	// VIN bonus.
	recalls := []domain.DiagnosticDocument{
		{Type: domain.DocTypeRecall, RecallID: "1", VIN: "2HGFC2F59JH000001", Summary: "nothing in common"},
	}
	results = keywordSearch(recalls, "zzz", "2HGFC2F59JH000001", 5)
	if got := results[0].Score; math.Abs(got-0.5) > 1e-9 {
		t.Errorf("expected 0.5 VIN bonus, got %f", got)
	}
}

func TestSwap_AtomicSnapshotReplace(t *testing.T) {
	e := buildEngine(t, &bagEmbedder{}, nil)
	old := e.Snapshot()

	docs := []domain.DiagnosticDocument{
		{Type: domain.DocTypeDTC, Code: "P0171", Category: "Engine", Description: "System Too Lean (Bank 1)"},
	}
	snap, err := NewSnapshot(docs, nil)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	e.Swap(snap)

	if e.Snapshot() == old {
		t.Error("Swap should replace the snapshot")
	}
	if e.Snapshot().Len() != 1 {
		t.Errorf("new snapshot length = %d", e.Snapshot().Len())
	}
}

func TestNewSnapshot_VectorMismatch(t *testing.T) {
	docs := testCorpus()
	if _, err := NewSnapshot(docs, make([][]float32, 2)); err == nil {
		t.Error("expected error for misaligned vectors")
	}
}
