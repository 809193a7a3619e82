package semantic

import (
	"github.com/google/uuid"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// SearchResult represents a single vector search hit.
type SearchResult struct {
	ID      string            `json:"id"`
	Score   float32           `json:"score"`
	Content string            `json:"content"`
	DocID   string            `json:"doc_id"`
	VIN     string            `json:"vin,omitempty"`
	DocType string            `json:"type"`
	Meta    map[string]string `json:"meta"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // doc_id, type, vin, content
}

// Record builds the vector record for a diagnostic document. Point IDs are
// UUIDv5 of the document ID so re-ingestion overwrites rather than duplicates.
func Record(doc domain.DiagnosticDocument, embedding []float32) VectorRecord {
	return VectorRecord{
		ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(doc.ID())).String(),
		Embedding: embedding,
		Payload: map[string]any{
			"doc_id":  doc.ID(),
			"type":    doc.Type,
			"vin":     doc.VIN,
			"content": doc.DisplayText(),
		},
	}
}
