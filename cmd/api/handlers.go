package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/pkg/metrics"
	"github.com/AutoSenseAI/autosense/pkg/store"
)

type apiMetrics struct {
	reg       *metrics.Registry
	searches  *metrics.Counter
	diagnoses *metrics.Counter
	rejected  *metrics.Counter
	latency   *metrics.Histogram
}

func newAPIMetrics(reg *metrics.Registry) *apiMetrics {
	return &apiMetrics{
		reg:       reg,
		searches:  reg.Counter("autosense_search_total", "Search requests served"),
		diagnoses: reg.Counter("autosense_diagnose_total", "Diagnose requests served"),
		rejected:  reg.Counter("autosense_diagnose_rejected_total", "Diagnose requests that failed validation"),
		latency:   reg.Histogram("autosense_diagnose_seconds", "Diagnose latency", nil),
	}
}

// diagnoser is the slice of the agent the diagnose handler needs.
type diagnoser interface {
	Diagnose(ctx context.Context, query, vin string) *domain.Diagnosis
}

type searcher interface {
	Search(ctx context.Context, query, vin string, k int) ([]domain.ScoredResult, error)
}

type dtcGetter interface {
	GetDTC(ctx context.Context, code string) (*domain.DiagnosticDocument, error)
}

type recallGetter interface {
	GetRecalls(ctx context.Context, vin string) ([]domain.DiagnosticDocument, error)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func handleHealth(db *store.Store, engine *retrieval.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dtcs, recalls, err := db.Counts(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		indexed := 0
		if snap := engine.Snapshot(); snap != nil {
			indexed = snap.Len()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"dtcs":    dtcs,
			"recalls": recalls,
			"indexed": indexed,
		})
	}
}

// SearchRequest is the JSON body for POST /api/search.
type SearchRequest struct {
	Query string `json:"query"`
	VIN   string `json:"vin,omitempty"`
	K     int    `json:"k,omitempty"`
}

func handleSearch(s searcher, met *apiMetrics, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if req.K == 0 {
			req.K = 10
		}

		results, err := s.Search(r.Context(), req.Query, req.VIN, req.K)
		if err != nil {
			if errors.Is(err, retrieval.ErrUnavailable) {
				writeError(w, http.StatusServiceUnavailable, "search is temporarily unavailable")
				return
			}
			logger.Error("search failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		met.searches.Inc()
		if results == nil {
			results = []domain.ScoredResult{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"results": results})
	}
}

func handleDTC(db dtcGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := domain.ValidateDTC(r.PathValue("code"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		doc, err := db.GetDTC(r.Context(), code)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if doc == nil {
			writeError(w, http.StatusNotFound, "unknown DTC code")
			return
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func handleRecalls(db recallGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vin, err := domain.ValidateVIN(r.PathValue("vin"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		recalls, err := db.GetRecalls(r.Context(), vin)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if recalls == nil {
			recalls = []domain.DiagnosticDocument{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"vin": vin, "recalls": recalls})
	}
}

// DiagnoseRequest is the JSON body for POST /api/diagnose.
type DiagnoseRequest struct {
	Query string `json:"query"`
	VIN   string `json:"vin,omitempty"`
}

func handleDiagnose(d diagnoser, met *apiMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DiagnoseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		start := time.Now()
		diag := d.Diagnose(r.Context(), req.Query, req.VIN)
		met.latency.Since(start)
		met.diagnoses.Inc()

		// Validation failures still produce a full diagnosis envelope with
		// the error kind and suggestion; the client decides how to render it.
		if !diag.IsValid {
			met.rejected.Inc()
			writeJSON(w, http.StatusUnprocessableEntity, diag)
			return
		}
		writeJSON(w, http.StatusOK, diag)
	}
}
