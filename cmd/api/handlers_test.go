package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/AutoSenseAI/autosense/engine/domain"
	"github.com/AutoSenseAI/autosense/engine/retrieval"
	"github.com/AutoSenseAI/autosense/pkg/metrics"
)

type stubSearcher struct {
	results []domain.ScoredResult
	err     error
	gotK    int
}

func (s *stubSearcher) Search(_ context.Context, _, _ string, k int) ([]domain.ScoredResult, error) {
	s.gotK = k
	return s.results, s.err
}

type stubDTCs struct {
	doc *domain.DiagnosticDocument
	err error
}

func (s *stubDTCs) GetDTC(context.Context, string) (*domain.DiagnosticDocument, error) {
	return s.doc, s.err
}

type stubRecalls struct {
	docs []domain.DiagnosticDocument
	err  error
}

func (s *stubRecalls) GetRecalls(context.Context, string) ([]domain.DiagnosticDocument, error) {
	return s.docs, s.err
}

type stubDiagnoser struct {
	diag *domain.Diagnosis
}

func (s *stubDiagnoser) Diagnose(_ context.Context, query, vin string) *domain.Diagnosis {
	d := *s.diag
	d.Query = query
	d.VIN = vin
	return &d
}

func testMetrics() *apiMetrics { return newAPIMetrics(metrics.New()) }

func TestHandleSearch(t *testing.T) {
	s := &stubSearcher{results: []domain.ScoredResult{{
		DiagnosticDocument: domain.DiagnosticDocument{Type: domain.DocTypeDTC, Code: "P0420"},
		Score:              0.9,
	}}}
	h := handleSearch(s, testMetrics(), testLogger())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"catalyst below threshold","k":3}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if s.gotK != 3 {
		t.Errorf("k = %d, want 3", s.gotK)
	}
	var body struct {
		Results []domain.ScoredResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].Code != "P0420" {
		t.Errorf("unexpected results: %+v", body.Results)
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	h := handleSearch(&stubSearcher{}, testMetrics(), testLogger())

	for name, payload := range map[string]string{
		"invalid json": `{`,
		"empty query":  `{"query":""}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(payload)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleSearch_Unavailable(t *testing.T) {
	h := handleSearch(&stubSearcher{err: retrieval.ErrUnavailable}, testMetrics(), testLogger())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"misfire"}`)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleSearch_DefaultK(t *testing.T) {
	s := &stubSearcher{}
	h := handleSearch(s, testMetrics(), testLogger())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(`{"query":"misfire"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if s.gotK != 10 {
		t.Errorf("default k = %d, want 10", s.gotK)
	}
}

func TestHandleDTC(t *testing.T) {
	doc := &domain.DiagnosticDocument{Type: domain.DocTypeDTC, Code: "P0420", Category: "Engine"}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dtc/{code}", handleDTC(&stubDTCs{doc: doc}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/dtc/p0420", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got domain.DiagnosticDocument
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Code != "P0420" {
		t.Errorf("code = %q", got.Code)
	}
}

func TestHandleDTC_Errors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/dtc/{code}", handleDTC(&stubDTCs{}))

	cases := []struct {
		path string
		want int
	}{
		{"/api/dtc/X123", http.StatusBadRequest},
		{"/api/dtc/P9999", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if rec.Code != tc.want {
			t.Errorf("%s: status = %d, want %d", tc.path, rec.Code, tc.want)
		}
	}
}

func TestHandleRecalls(t *testing.T) {
	docs := []domain.DiagnosticDocument{{
		Type:     domain.DocTypeRecall,
		RecallID: "23V123456",
		VIN:      "1HGBH41JXMN109186",
		Summary:  "Fuel pump may fail.",
	}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/recalls/{vin}", handleRecalls(&stubRecalls{docs: docs}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recalls/1hgbh41jxmn109186", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var body struct {
		VIN     string                      `json:"vin"`
		Recalls []domain.DiagnosticDocument `json:"recalls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.VIN != "1HGBH41JXMN109186" {
		t.Errorf("vin not normalized: %q", body.VIN)
	}
	if len(body.Recalls) != 1 {
		t.Errorf("got %d recalls", len(body.Recalls))
	}
}

func TestHandleRecalls_InvalidVIN(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/recalls/{vin}", handleRecalls(&stubRecalls{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recalls/NOTAVIN", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDiagnose(t *testing.T) {
	d := &stubDiagnoser{diag: &domain.Diagnosis{IsValid: true, Answer: "Check the catalytic converter."}}
	met := testMetrics()
	h := handleDiagnose(d, met)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader(`{"query":"P0420 code","vin":"1HGBH41JXMN109186"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var got domain.Diagnosis
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Answer == "" || got.VIN != "1HGBH41JXMN109186" {
		t.Errorf("unexpected diagnosis: %+v", got)
	}
	if met.diagnoses.Value() != 1 {
		t.Errorf("diagnose counter = %d", met.diagnoses.Value())
	}
}

func TestHandleDiagnose_ValidationFailure(t *testing.T) {
	d := &stubDiagnoser{diag: &domain.Diagnosis{
		IsValid:    false,
		ErrorType:  "EmptyQuery",
		Suggestion: "Please provide a diagnostic query.",
	}}
	met := testMetrics()
	h := handleDiagnose(d, met)

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader(`{"query":""}`)))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if met.rejected.Value() != 1 {
		t.Errorf("rejected counter = %d", met.rejected.Value())
	}
}

func TestHandleDiagnose_BadBody(t *testing.T) {
	h := handleDiagnose(&stubDiagnoser{diag: &domain.Diagnosis{}}, testMetrics())

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/api/diagnose", strings.NewReader(`{`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
