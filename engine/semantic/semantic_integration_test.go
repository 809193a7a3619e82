//go:build integration

package semantic

import (
	"context"
	"os"
	"testing"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testStore(t *testing.T, collection string) *VectorStore {
	t.Helper()
	vs, err := New(qdrantAddr(), collection)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		vs.DeleteCollection(context.Background())
		vs.Close()
	})
	return vs
}

func TestQdrant_RoundTrip(t *testing.T) {
	vs := testStore(t, "autosense_it")
	ctx := context.Background()

	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	// Idempotent on the second call.
	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection again: %v", err)
	}

	doc := domain.DiagnosticDocument{
		Type:        domain.DocTypeDTC,
		Code:        "P0420",
		Category:    "Engine",
		Description: "Catalyst System Efficiency Below Threshold",
	}
	if err := vs.Upsert(ctx, []VectorRecord{Record(doc, []float32{1, 0, 0, 0})}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := vs.Search(ctx, []float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].DocID != "dtc:P0420" {
		t.Fatalf("unexpected results: %+v", results)
	}

	if err := vs.DeleteByDocID(ctx, "dtc:P0420"); err != nil {
		t.Fatalf("DeleteByDocID: %v", err)
	}
	results, err = vs.Search(ctx, []float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search after delete: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}
}
