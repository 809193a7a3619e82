package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/engine/semantic"
)

type mockLister struct {
	docs []domain.DiagnosticDocument
	err  error
}

func (m *mockLister) ListDocuments(context.Context) ([]domain.DiagnosticDocument, error) {
	return m.docs, m.err
}

type mockEmbedder struct {
	err   error
	mu    sync.Mutex
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return []float32{float32(len(text)), 1, 0}, nil
}

type mockVectors struct {
	ensureErr error
	upsertErr error
	mu        sync.Mutex
	upserted  int
	batches   int
	dims      int
}

func (m *mockVectors) EnsureCollection(_ context.Context, dims int) error {
	m.dims = dims
	return m.ensureErr
}

func (m *mockVectors) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upserted += len(records)
	m.batches++
	return nil
}

func corpus(n int) []domain.DiagnosticDocument {
	codes := []string{"P0420", "P0300", "P0700", "B1342", "C1201"}
	docs := make([]domain.DiagnosticDocument, n)
	for i := range docs {
		docs[i] = domain.DiagnosticDocument{
			Type:        domain.DocTypeDTC,
			Code:        codes[i%len(codes)],
			Category:    "Engine",
			Description: "test code",
		}
	}
	return docs
}

func newIndexer(lister *mockLister, emb Embedder, vw VectorWriter) (*Indexer, *retrieval.Engine) {
	eng := retrieval.New(nil, nil, lister, retrieval.DefaultOptions(), nil)
	return NewIndexer(lister, emb, vw, eng, nil), eng
}

func TestRebuild_SwapsSnapshot(t *testing.T) {
	lister := &mockLister{docs: corpus(3)}
	emb := &mockEmbedder{}
	ix, eng := newIndexer(lister, emb, nil)

	n, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
	snap := eng.Snapshot()
	if snap == nil || snap.Len() != 3 {
		t.Fatalf("snapshot not swapped: %+v", snap)
	}
	if emb.calls != 3 {
		t.Fatalf("embed calls = %d", emb.calls)
	}
}

func TestRebuild_EmbedFailureDegradesToLexical(t *testing.T) {
	lister := &mockLister{docs: corpus(2)}
	emb := &mockEmbedder{err: errors.New("embedder down")}
	ix, eng := newIndexer(lister, emb, nil)

	n, err := ix.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild should tolerate embed failure: %v", err)
	}
	if n != 2 || eng.Snapshot() == nil {
		t.Fatalf("n=%d snapshot=%v", n, eng.Snapshot())
	}
}

func TestRebuild_StoreFailureKeepsOldSnapshot(t *testing.T) {
	lister := &mockLister{docs: corpus(2)}
	ix, eng := newIndexer(lister, &mockEmbedder{}, nil)
	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("initial rebuild: %v", err)
	}
	old := eng.Snapshot()

	lister.err = errors.New("db gone")
	if _, err := ix.Rebuild(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if eng.Snapshot() != old {
		t.Fatal("failed rebuild must not replace the snapshot")
	}
}

func TestRebuild_SyncsVectorsInBatches(t *testing.T) {
	n := UpsertBatchSize + 10
	lister := &mockLister{docs: corpus(n)}
	vw := &mockVectors{}
	ix, _ := newIndexer(lister, &mockEmbedder{}, vw)

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if vw.dims != 3 {
		t.Fatalf("dims = %d", vw.dims)
	}
	if vw.upserted != n || vw.batches != 2 {
		t.Fatalf("upserted=%d batches=%d", vw.upserted, vw.batches)
	}
}

func TestRebuild_QdrantFailureTolerated(t *testing.T) {
	lister := &mockLister{docs: corpus(2)}
	vw := &mockVectors{upsertErr: errors.New("qdrant down")}
	ix, eng := newIndexer(lister, &mockEmbedder{}, vw)

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild must tolerate vector sync failure: %v", err)
	}
	if eng.Snapshot() == nil || eng.Snapshot().Len() != 2 {
		t.Fatal("snapshot missing after tolerated sync failure")
	}
}

func TestRebuild_NoEmbedderSkipsVectorSync(t *testing.T) {
	lister := &mockLister{docs: corpus(2)}
	vw := &mockVectors{}
	ix, _ := newIndexer(lister, nil, vw)

	if _, err := ix.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if vw.upserted != 0 {
		t.Fatalf("unexpected upserts: %d", vw.upserted)
	}
}
