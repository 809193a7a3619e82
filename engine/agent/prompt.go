package agent

import (
	"fmt"
	"strings"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

const systemPrompt = `You are an expert automotive diagnostic assistant. You analyze vehicle
problems using diagnostic trouble codes (DTCs), recall records, and repair
knowledge. Explain the likely causes, severity, and recommended next steps in
clear language a vehicle owner can follow. Base your answer only on the
provided context. Always remind the user to consult a qualified automotive
technician for proper diagnosis and repair.`

const closingRecommendation = "**Recommendation**: Please consult with a qualified automotive technician for proper diagnosis and repair."

// buildPrompt assembles the user message for the generative model from
// everything the earlier stages gathered.
func (a *Agent) buildPrompt(ents domain.Entities, results []domain.ScoredResult, dtcDetail *domain.DiagnosticDocument, recalls []domain.DiagnosticDocument) string {
	var b strings.Builder

	if len(results) > 0 {
		b.WriteString("Relevant diagnostic information:\n")
		for i, r := range results {
			if i >= a.opts.ContextResults {
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, r.DisplayText())
		}
	}
	if ents.DTC != "" {
		fmt.Fprintf(&b, "\nDTC Code %s detected in query.\n", ents.DTC)
		if dtcDetail != nil {
			fmt.Fprintf(&b, "%s\n", dtcDetail.DisplayText())
		}
	}
	if len(recalls) > 0 {
		fmt.Fprintf(&b, "\nRecalls found for VIN %s:\n", ents.VIN)
		for i, r := range recalls {
			if i >= a.opts.ContextRecalls {
				break
			}
			fmt.Fprintf(&b, "- %s\n", r.Summary)
		}
	}

	return fmt.Sprintf("Query: %s\n\nContext:\n%s\nProvide a comprehensive diagnostic response:", ents.Sanitized, b.String())
}

// templateAnswer is the deterministic fallback used when no model is
// configured or the model call fails. Its section order is fixed and it
// always ends with the safety recommendation.
func (a *Agent) templateAnswer(ents domain.Entities, results []domain.ScoredResult, recalls []domain.DiagnosticDocument) string {
	parts := []string{fmt.Sprintf("Diagnostic analysis for: %s", ents.Sanitized)}

	if ents.DTC != "" {
		parts = append(parts, fmt.Sprintf("\n**DTC Code Detected**: %s", ents.DTC))
	}
	if len(results) > 0 {
		parts = append(parts, "\n**Relevant Information Found**:")
		for i, r := range results {
			if i >= a.opts.ContextResults {
				break
			}
			if r.Type == domain.DocTypeRecall {
				parts = append(parts, fmt.Sprintf("- Recall %s: %s", r.RecallID, r.Summary))
			} else {
				parts = append(parts, fmt.Sprintf("- DTC %s: %s", r.Code, r.Description))
			}
		}
	}
	if len(recalls) > 0 {
		parts = append(parts, fmt.Sprintf("\n**Recalls for VIN %s**:", ents.VIN))
		for i, r := range recalls {
			if i >= a.opts.TemplateRecalls {
				break
			}
			parts = append(parts, fmt.Sprintf("- %s", r.Summary))
		}
	}
	parts = append(parts, "\n"+closingRecommendation)

	return strings.Join(parts, "\n")
}
