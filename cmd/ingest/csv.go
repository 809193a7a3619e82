package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/AutoSenseAI/autosense/engine/domain"
)

// loadDTCCSV reads a code,category,description file. A header row is
// detected by the literal "code" in the first column and skipped.
func loadDTCCSV(r io.Reader) ([]domain.DiagnosticDocument, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var docs []domain.DiagnosticDocument
	line := 0
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "code") {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(rec[0]))
		if code == "" {
			return nil, fmt.Errorf("ingest: csv line %d: empty code", line)
		}
		docs = append(docs, domain.DiagnosticDocument{
			Type:        domain.DocTypeDTC,
			Code:        code,
			Category:    strings.TrimSpace(rec[1]),
			Description: strings.TrimSpace(rec[2]),
		})
	}
	return docs, nil
}
