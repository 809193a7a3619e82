// Package agent implements the diagnostic reasoning orchestrator: a fixed
// five-stage pipeline (extract, retrieve, DTC lookup, recall lookup,
// synthesize) that records a reasoning trace and degrades stage by stage
// instead of aborting. It is deliberately a state machine with named stages,
// not an open-ended planner.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// Stage names, in execution order.
const (
	StageExtract       = "extract"
	StageRetrieve      = "retrieve"
	StageLookupDTC     = "lookup_dtc"
	StageLookupRecalls = "lookup_recalls"
	StageSynthesize    = "synthesize"
)

// Retriever is the hybrid retrieval engine surface the agent depends on.
type Retriever interface {
	Search(ctx context.Context, query, vin string, k int) ([]domain.ScoredResult, error)
}

// DTCStore performs point lookups of trouble-code records. A missing code is
// (nil, nil), not an error.
type DTCStore interface {
	GetDTC(ctx context.Context, code string) (*domain.DiagnosticDocument, error)
}

// RecallStore lists recall records for a VIN, most recent first.
type RecallStore interface {
	GetRecalls(ctx context.Context, vin string) ([]domain.DiagnosticDocument, error)
}

// Completer is the optional generative-model provider. When absent or
// failing, synthesis falls back to the deterministic template.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error)
}

// Options configures the orchestrator.
type Options struct {
	// TopK is how many retrieval results each run requests.
	TopK int
	// ContextResults bounds the retrieval results included in the answer context.
	ContextResults int
	// ContextRecalls bounds the recalls included in the model prompt.
	ContextRecalls int
	// TemplateRecalls bounds the recalls echoed in the templated answer.
	TemplateRecalls int
	// MaxTokens and Temperature shape the generative-model call.
	MaxTokens   int
	Temperature float32
	// StageTimeout bounds each outbound stage call; a timeout degrades that
	// stage, it never cancels the run.
	StageTimeout time.Duration
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		TopK:            5,
		ContextResults:  3,
		ContextRecalls:  3,
		TemplateRecalls: 2,
		MaxTokens:       500,
		Temperature:     0.3,
		StageTimeout:    30 * time.Second,
	}
}

// Agent orchestrates a single diagnostic run. It holds only shared immutable
// dependencies; per-request state lives on the stack, so concurrent runs are
// independent.
type Agent struct {
	retriever Retriever
	dtcs      DTCStore
	recalls   RecallStore
	llm       Completer // nil means template-only mode
	opts      Options
	logger    *slog.Logger
}

// New creates an Agent. llm may be nil.
func New(retriever Retriever, dtcs DTCStore, recalls RecallStore, llm Completer, opts Options, logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.TopK <= 0 {
		opts.TopK = def.TopK
	}
	if opts.ContextResults <= 0 {
		opts.ContextResults = def.ContextResults
	}
	if opts.ContextRecalls <= 0 {
		opts.ContextRecalls = def.ContextRecalls
	}
	if opts.TemplateRecalls <= 0 {
		opts.TemplateRecalls = def.TemplateRecalls
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = def.MaxTokens
	}
	if opts.Temperature <= 0 {
		opts.Temperature = def.Temperature
	}
	if opts.StageTimeout <= 0 {
		opts.StageTimeout = def.StageTimeout
	}
	return &Agent{
		retriever: retriever,
		dtcs:      dtcs,
		recalls:   recalls,
		llm:       llm,
		opts:      opts,
		logger:    logger,
	}
}

var tracer = otel.Tracer("engine/agent")

// Diagnose runs the full pipeline for one query. It never returns a Go error:
// validation failures and retrieval-stage aborts are reported inside the
// Diagnosis bundle, and every later failure degrades to a best-effort answer.
func (a *Agent) Diagnose(ctx context.Context, query, vin string) *domain.Diagnosis {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "agent.diagnose")
	defer span.End()

	diag := &domain.Diagnosis{
		IsValid:   true,
		Query:     query,
		Timestamp: start,
	}
	trace := &diag.Trace

	// Stage 1: extract. The only stage whose failure is a hard error.
	ents, err := domain.Process(query, vin)
	if err != nil {
		a.logger.Warn("query validation failed", "err", err)
		diag.IsValid = false
		diag.Error = err.Error()
		diag.ErrorType = domain.ErrorKind(err)
		diag.Suggestion = domain.Suggestion(err)
		diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageExtract, State: domain.StageFailed, Err: err.Error()})
		diag.ProcessingTime = time.Since(start).Seconds()
		return diag
	}
	diag.VIN = ents.VIN
	diag.DTCCode = ents.DTC
	diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageExtract, State: domain.StageOK})
	trace.Think("Analyzing the automotive diagnostic query to understand the problem and determine required information.")

	// Stage 2: retrieve. A failure here aborts: there is nothing to reason over.
	trace.Act(StageRetrieve)
	results, err := a.retrieve(ctx, ents)
	if err != nil {
		a.logger.Error("retrieval failed", "err", err)
		diag.IsValid = false
		diag.Error = err.Error()
		diag.ErrorType = "RetrievalUnavailable"
		diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageRetrieve, State: domain.StageFailed, Err: err.Error()})
		diag.ProcessingTime = time.Since(start).Seconds()
		return diag
	}
	diag.SearchResults = results
	diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageRetrieve, State: domain.StageOK})
	trace.Observe("Found %d relevant results", len(results))

	// Stage 3: DTC enrichment, only when a code was extracted.
	var dtcDetail *domain.DiagnosticDocument
	if ents.DTC == "" {
		diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageLookupDTC, State: domain.StageSkipped})
	} else {
		trace.Act(StageLookupDTC)
		detail, status := a.lookupDTC(ctx, ents.DTC)
		dtcDetail = detail
		diag.Stages = append(diag.Stages, status)
		if detail != nil {
			trace.Observe("Retrieved detailed DTC information for %s", ents.DTC)
		} else {
			trace.Observe("No detailed information found for DTC %s", ents.DTC)
		}
	}

	// Stage 4: recall enrichment, only when a VIN is present.
	if ents.VIN == "" {
		diag.Stages = append(diag.Stages, domain.StageStatus{Name: StageLookupRecalls, State: domain.StageSkipped})
	} else {
		trace.Act(StageLookupRecalls)
		recalls, status := a.lookupRecalls(ctx, ents.VIN)
		diag.Recalls = recalls
		diag.Stages = append(diag.Stages, status)
		trace.Observe("Found %d recalls for VIN %s", len(recalls), ents.VIN)
	}

	// Stage 5: synthesize.
	trace.Think("Synthesizing all gathered information to provide a comprehensive diagnosis.")
	answer, status := a.synthesize(ctx, ents, results, dtcDetail, diag.Recalls)
	diag.Answer = answer
	diag.Stages = append(diag.Stages, status)

	diag.ProcessingTime = time.Since(start).Seconds()
	return diag
}

func (a *Agent) retrieve(ctx context.Context, ents domain.Entities) ([]domain.ScoredResult, error) {
	ctx, span := tracer.Start(ctx, "agent.retrieve")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.opts.StageTimeout)
	defer cancel()
	return a.retriever.Search(ctx, ents.Sanitized, ents.VIN, a.opts.TopK)
}

func (a *Agent) lookupDTC(ctx context.Context, code string) (*domain.DiagnosticDocument, domain.StageStatus) {
	ctx, span := tracer.Start(ctx, "agent.lookup_dtc")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.opts.StageTimeout)
	defer cancel()

	detail, err := a.dtcs.GetDTC(ctx, code)
	if err != nil {
		a.logger.Warn("DTC lookup failed, continuing without", "code", code, "err", err)
		return nil, domain.StageStatus{Name: StageLookupDTC, State: domain.StageDegraded, Err: err.Error()}
	}
	return detail, domain.StageStatus{Name: StageLookupDTC, State: domain.StageOK}
}

func (a *Agent) lookupRecalls(ctx context.Context, vin string) ([]domain.DiagnosticDocument, domain.StageStatus) {
	ctx, span := tracer.Start(ctx, "agent.lookup_recalls")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.opts.StageTimeout)
	defer cancel()

	recalls, err := a.recalls.GetRecalls(ctx, vin)
	if err != nil {
		a.logger.Warn("recall lookup failed, continuing without", "vin", vin, "err", err)
		return nil, domain.StageStatus{Name: StageLookupRecalls, State: domain.StageDegraded, Err: err.Error()}
	}
	return recalls, domain.StageStatus{Name: StageLookupRecalls, State: domain.StageOK}
}

// synthesize produces the final answer. Model failures fall back to the
// deterministic template and never surface to the caller.
func (a *Agent) synthesize(ctx context.Context, ents domain.Entities, results []domain.ScoredResult, dtcDetail *domain.DiagnosticDocument, recalls []domain.DiagnosticDocument) (string, domain.StageStatus) {
	ctx, span := tracer.Start(ctx, "agent.synthesize")
	defer span.End()

	if a.llm == nil {
		return a.templateAnswer(ents, results, recalls), domain.StageStatus{Name: StageSynthesize, State: domain.StageOK}
	}

	ctx, cancel := context.WithTimeout(ctx, a.opts.StageTimeout)
	defer cancel()

	user := a.buildPrompt(ents, results, dtcDetail, recalls)
	answer, err := a.llm.Complete(ctx, systemPrompt, user, a.opts.MaxTokens, a.opts.Temperature)
	if err != nil || answer == "" {
		if err == nil {
			err = errors.New("empty completion")
		}
		a.logger.Warn("model synthesis failed, using template answer", "err", err)
		return a.templateAnswer(ents, results, recalls), domain.StageStatus{Name: StageSynthesize, State: domain.StageDegraded, Err: err.Error()}
	}
	return answer, domain.StageStatus{Name: StageSynthesize, State: domain.StageOK}
}
