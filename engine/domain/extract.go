package domain

import (
	"log/slog"
	"regexp"
	"strings"
)

// Extraction patterns match candidate substrings inside free text; the strict
// Validate* functions re-check whatever they find.
var (
	vinExtractRegex = regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)
	dtcExtractRegex = regexp.MustCompile(`\b[PBCU][0-9]{4}\b`)
)

// ExtractVIN returns the first 17-character VIN candidate in text, uppercased,
// or "" when none is present. Checksum is not verified.
func ExtractVIN(text string) string {
	return vinExtractRegex.FindString(strings.ToUpper(text))
}

// ExtractDTC returns the first DTC code in text, uppercased, or "".
func ExtractDTC(text string) string {
	return dtcExtractRegex.FindString(strings.ToUpper(text))
}

// Process validates a raw query and extracts structured entities from it.
// A caller-supplied VIN takes precedence over an extracted one. Invalid
// extracted values are dropped with a warning; an invalid caller VIN and any
// query-level violation are returned as validation errors. Process never
// panics: every failure path yields a *ValidationError.
func Process(text, callerVIN string) (Entities, error) {
	ents := Entities{Sanitized: Sanitize(text)}

	if err := ValidateQuery(text); err != nil {
		return ents, err
	}

	if vin := ExtractVIN(text); vin != "" {
		v, err := ValidateVIN(vin)
		if err != nil {
			slog.Warn("dropping invalid extracted VIN", "vin", vin)
		} else {
			ents.VIN = v
		}
	}
	if code := ExtractDTC(text); code != "" {
		c, err := ValidateDTC(code)
		if err != nil {
			slog.Warn("dropping invalid extracted DTC", "code", code)
		} else {
			ents.DTC = c
		}
	}

	if callerVIN != "" {
		v, err := ValidateVIN(callerVIN)
		if err != nil {
			return ents, err
		}
		ents.VIN = v
	}

	return ents, nil
}
