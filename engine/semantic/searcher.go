package semantic

import (
	"context"

	"github.com/AutoSenseAI/autosense/engine/retrieval"
)

// Searcher adapts the VectorStore to the retrieval engine's vector backend.
type Searcher struct {
	store *VectorStore
}

// NewSearcher wraps a VectorStore for use by engine/retrieval.
func NewSearcher(store *VectorStore) *Searcher {
	return &Searcher{store: store}
}

// Search returns raw hits keyed by document ID. VIN exclusion is applied by
// the retrieval engine over its snapshot, so vin is not pushed down as a
// Qdrant filter here; filtering server-side would also hide DTC documents
// that carry no VIN at all.
func (s *Searcher) Search(ctx context.Context, embedding []float32, topK int, vin string) ([]retrieval.VectorHit, error) {
	results, err := s.store.Search(ctx, embedding, topK)
	if err != nil {
		return nil, err
	}
	hits := make([]retrieval.VectorHit, 0, len(results))
	for _, r := range results {
		id := r.DocID
		if id == "" {
			id = r.ID
		}
		hits = append(hits, retrieval.VectorHit{DocID: id, Score: r.Score})
	}
	return hits, nil
}
