package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// DTC format: P/B/C/U followed by 4 digits.
var dtcRegex = regexp.MustCompile(`^[PBCU][0-9]{4}$`)

// Injection signatures that should never appear in a user query.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)data:text/html`),
	regexp.MustCompile(`(?i)vbscript:`),
}

// ValidateQuery checks a raw query for emptiness, length, and injection
// signatures. It does not sanitize; see Sanitize.
func ValidateQuery(text string) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("query", text, ErrEmptyQuery)
	}
	// Length is counted in runes, so multibyte text is not penalized.
	if utf8.RuneCountInString(text) > MaxQueryLength {
		return NewValidationError("query", text[:32]+"...", ErrQueryTooLong)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("query", pat.String(), ErrMalformedInput)
		}
	}
	return nil
}

// ValidateVIN normalizes and validates a VIN, returning the uppercased value.
func ValidateVIN(vin string) (string, error) {
	vin = strings.ToUpper(strings.TrimSpace(vin))
	if !vinRegex.MatchString(vin) {
		return "", NewValidationError("vin", vin, ErrInvalidVIN)
	}
	return vin, nil
}

// ValidateDTC normalizes and validates a DTC code, returning the uppercased value.
func ValidateDTC(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !dtcRegex.MatchString(code) {
		return "", NewValidationError("dtc", code, ErrInvalidDTC)
	}
	return code, nil
}

// Sanitize strips a fixed set of markup-significant characters and collapses
// runs of whitespace to single spaces. It is a best-effort denylist for
// display and prompt assembly, not a security boundary.
func Sanitize(text string) string {
	r := strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")
	return strings.Join(strings.Fields(r.Replace(text)), " ")
}
