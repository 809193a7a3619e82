// Package domain defines core domain types, validation, and entity extraction
// for the AutoSense diagnostic pipeline. It acts as the validation gate at
// pipeline entry points.
package domain

import (
	"fmt"
	"time"
)

// Document types for the tagged DiagnosticDocument union.
const (
	DocTypeDTC    = "dtc"
	DocTypeRecall = "recall"
)

// MaxQueryLength is the longest accepted raw query, in runes.
const MaxQueryLength = 500

// Query is a raw diagnostic question plus an optional caller-supplied VIN.
type Query struct {
	Text string `json:"query"`
	VIN  string `json:"vin,omitempty"`
}

// Entities holds the structured values extracted from a raw query.
type Entities struct {
	VIN       string `json:"vin,omitempty"`
	DTC       string `json:"dtc_code,omitempty"`
	Sanitized string `json:"sanitized_query"`
}

// DiagnosticDocument is a unit of retrievable content: either a trouble-code
// record or a recall record, tagged by Type.
type DiagnosticDocument struct {
	Type string `json:"type"`

	// Trouble-code fields.
	Code        string `json:"code,omitempty"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`

	// Recall fields.
	RecallID string `json:"rid,omitempty"`
	VIN      string `json:"vin,omitempty"`
	Date     string `json:"date,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// ID returns a stable identifier for the document within a corpus.
func (d DiagnosticDocument) ID() string {
	if d.Type == DocTypeRecall {
		return "recall:" + d.RecallID
	}
	return "dtc:" + d.Code
}

// DisplayText renders the document as the text that gets embedded and indexed.
func (d DiagnosticDocument) DisplayText() string {
	if d.Type == DocTypeRecall {
		return fmt.Sprintf("Recall %s (%s): %s", d.RecallID, d.Date, d.Summary)
	}
	return fmt.Sprintf("DTC %s (%s): %s", d.Code, d.Category, d.Description)
}

// ScoredResult is a DiagnosticDocument plus its retrieval scores. All scores
// are clamped to [0,1].
type ScoredResult struct {
	DiagnosticDocument
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score"`
	LexicalScore float64 `json:"lexical_score"`
}

// Trace records the reasoning steps of a single orchestrator run. It is
// append-only during the run and never mutated afterwards.
type Trace struct {
	Thoughts     []string `json:"thoughts"`
	Actions      []string `json:"actions"`
	Observations []string `json:"observations"`
}

// Think appends a thought entry.
func (t *Trace) Think(s string) { t.Thoughts = append(t.Thoughts, s) }

// Act appends an action entry.
func (t *Trace) Act(s string) { t.Actions = append(t.Actions, s) }

// Observe appends a formatted observation entry.
func (t *Trace) Observe(format string, args ...any) {
	t.Observations = append(t.Observations, fmt.Sprintf(format, args...))
}

// StageState describes how a pipeline stage finished.
type StageState string

const (
	StageOK       StageState = "ok"
	StageDegraded StageState = "degraded"
	StageFailed   StageState = "failed"
	StageSkipped  StageState = "skipped"
)

// StageStatus is the per-stage outcome threaded through the orchestrator so
// callers and tests can see exactly which stage degraded.
type StageStatus struct {
	Name  string     `json:"name"`
	State StageState `json:"state"`
	Err   string     `json:"error,omitempty"`
}

// Diagnosis is the result bundle returned by the orchestrator.
type Diagnosis struct {
	IsValid   bool   `json:"is_valid"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"error_type,omitempty"`
	// Suggestion is a fixed, human-readable hint keyed by the error kind.
	Suggestion string `json:"suggestion,omitempty"`

	Query          string               `json:"query"`
	VIN            string               `json:"vin,omitempty"`
	DTCCode        string               `json:"dtc_code,omitempty"`
	Answer         string               `json:"answer,omitempty"`
	Trace          Trace                `json:"trace"`
	Stages         []StageStatus        `json:"stages"`
	SearchResults  []ScoredResult       `json:"search_results"`
	Recalls        []DiagnosticDocument `json:"recalls"`
	ProcessingTime float64              `json:"processing_time"`
	Timestamp      time.Time            `json:"timestamp"`
}
