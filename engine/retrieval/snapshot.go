package retrieval

import (
	"fmt"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// Snapshot is an immutable view of the indexed corpus: the documents, their
// embeddings, and the lexical index built over their display text. Concurrent
// readers share one snapshot; reindexing swaps in a whole new one.
type Snapshot struct {
	docs    []domain.DiagnosticDocument
	vectors [][]float32
	lexical *BM25
}

// NewSnapshot builds a snapshot from documents and their embeddings. Vectors
// may be nil when no embedding provider is configured; the engine then runs
// in degraded (keyword) mode. When present, vectors must align with docs.
func NewSnapshot(docs []domain.DiagnosticDocument, vectors [][]float32) (*Snapshot, error) {
	if vectors != nil && len(vectors) != len(docs) {
		return nil, fmt.Errorf("retrieval: %d vectors for %d documents", len(vectors), len(docs))
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.DisplayText()
	}

	return &Snapshot{
		docs:    docs,
		vectors: vectors,
		lexical: NewBM25(texts),
	}, nil
}

// Len returns the number of documents in the snapshot.
func (s *Snapshot) Len() int { return len(s.docs) }

// Docs returns the snapshot's documents. Callers must not mutate the slice.
func (s *Snapshot) Docs() []domain.DiagnosticDocument { return s.docs }
