// Package vehiclenlp parses free-text vehicle descriptions such as
// "2018 Honda Civic" or "chevy silverado '19" into make, model, and year
// for recall lookups. Gazetteer-based, no external dependencies.
package vehiclenlp

import (
	"strconv"
	"strings"
)

// Mention is a vehicle reference recovered from text. Year is 0 and Model
// is empty when they were not present.
type Mention struct {
	Make  string
	Model string
	Year  int
}

// Complete reports whether the mention carries everything a recall-by-vehicle
// lookup needs.
func (m Mention) Complete() bool {
	return m.Make != "" && m.Model != "" && m.Year != 0
}

// makeAliases maps lowercase nicknames and abbreviations to canonical makes.
// Multi-word makes are stored space-joined and matched over token pairs.
var makeAliases = map[string]string{
	"chevy":         "Chevrolet",
	"chevrolet":     "Chevrolet",
	"mercedes":      "Mercedes-Benz",
	"mercedes-benz": "Mercedes-Benz",
	"benz":          "Mercedes-Benz",
	"vw":            "Volkswagen",
	"volkswagen":    "Volkswagen",
	"toyota":        "Toyota",
	"honda":         "Honda",
	"ford":          "Ford",
	"bmw":           "BMW",
	"audi":          "Audi",
	"nissan":        "Nissan",
	"hyundai":       "Hyundai",
	"kia":           "Kia",
	"subaru":        "Subaru",
	"mazda":         "Mazda",
	"jeep":          "Jeep",
	"ram":           "Ram",
	"gmc":           "GMC",
	"dodge":         "Dodge",
	"lexus":         "Lexus",
	"acura":         "Acura",
	"tesla":         "Tesla",
	"volvo":         "Volvo",
	"chrysler":      "Chrysler",
	"land rover":    "Land Rover",
	"alfa romeo":    "Alfa Romeo",
	"mitsubishi":    "Mitsubishi",
}

// makeModels lists known models per canonical make, used to stop model
// capture at the right token. Multi-word models are space-joined, lowercase.
var makeModels = map[string][]string{
	"Toyota":        {"camry", "corolla", "rav4", "highlander", "tacoma", "tundra", "prius", "4runner", "sienna", "land cruiser"},
	"Honda":         {"civic", "accord", "cr-v", "pilot", "odyssey", "hr-v", "ridgeline", "fit", "passport"},
	"Ford":          {"f-150", "f-250", "f-350", "mustang", "explorer", "escape", "ranger", "bronco", "edge", "expedition", "maverick", "fusion", "transit"},
	"Chevrolet":     {"silverado", "equinox", "malibu", "tahoe", "suburban", "camaro", "colorado", "traverse", "blazer", "bolt", "cruze"},
	"BMW":           {"3 series", "5 series", "7 series", "x1", "x3", "x5", "x7", "m3", "m5", "i4", "ix"},
	"Mercedes-Benz": {"c-class", "e-class", "s-class", "glc", "gle", "gla", "cla", "gls"},
	"Audi":          {"a3", "a4", "a5", "a6", "a8", "q3", "q5", "q7", "q8", "e-tron"},
	"Nissan":        {"altima", "sentra", "rogue", "pathfinder", "frontier", "maxima", "murano", "titan", "leaf", "versa"},
	"Hyundai":       {"elantra", "sonata", "tucson", "santa fe", "kona", "palisade", "venue", "accent", "santa cruz"},
	"Kia":           {"forte", "k5", "sportage", "telluride", "sorento", "seltos", "soul", "carnival", "rio", "niro"},
	"Volkswagen":    {"golf", "jetta", "tiguan", "atlas", "passat", "taos", "id.4", "gti", "beetle"},
	"Subaru":        {"outback", "forester", "crosstrek", "impreza", "wrx", "legacy", "ascent", "brz"},
	"Mazda":         {"mazda3", "mazda6", "cx-5", "cx-9", "cx-30", "cx-50", "mx-5"},
	"Jeep":          {"wrangler", "grand cherokee", "cherokee", "compass", "renegade", "gladiator", "wagoneer"},
	"Ram":           {"1500", "2500", "3500", "promaster"},
	"GMC":           {"sierra", "terrain", "acadia", "yukon", "canyon"},
	"Dodge":         {"charger", "challenger", "durango", "hornet"},
	"Lexus":         {"rx", "es", "nx", "is", "gx", "lx", "ux"},
	"Acura":         {"tlx", "mdx", "rdx", "integra", "ilx"},
	"Tesla":         {"model 3", "model y", "model s", "model x", "cybertruck"},
	"Volvo":         {"xc90", "xc60", "xc40", "s60", "s90", "v60", "v90"},
	"Chrysler":      {"pacifica", "300"},
	"Land Rover":    {"range rover sport", "range rover", "defender", "discovery", "evoque"},
	"Alfa Romeo":    {"giulia", "stelvio", "tonale"},
	"Mitsubishi":    {"outlander sport", "outlander", "eclipse cross", "mirage"},
}

// Parse returns the first vehicle mention in text. ok is false when no
// known make appears.
func Parse(text string) (Mention, bool) {
	toks := tokenize(text)
	if len(toks) == 0 {
		return Mention{}, false
	}

	var m Mention
	makeEnd := -1
	for i := 0; i < len(toks); i++ {
		// Two-token makes first ("land rover" before any one-token alias).
		if i+1 < len(toks) {
			if canon, ok := makeAliases[toks[i]+" "+toks[i+1]]; ok {
				m.Make = canon
				makeEnd = i + 2
				break
			}
		}
		if canon, ok := makeAliases[toks[i]]; ok {
			m.Make = canon
			makeEnd = i + 1
			break
		}
	}
	if m.Make == "" {
		return Mention{}, false
	}

	m.Model = matchModel(m.Make, toks[makeEnd:])

	for _, t := range toks {
		if y := parseYear(t); y != 0 {
			m.Year = y
			break
		}
	}
	return m, true
}

// matchModel matches the longest known model of the make at the head of the
// remaining tokens.
func matchModel(mk string, rest []string) string {
	if len(rest) == 0 {
		return ""
	}
	var best string
	for _, model := range makeModels[mk] {
		parts := strings.Split(model, " ")
		if len(parts) > len(rest) {
			continue
		}
		matched := true
		for i, p := range parts {
			if rest[i] != p {
				matched = false
				break
			}
		}
		if matched && len(model) > len(best) {
			best = model
		}
	}
	return best
}

func parseYear(tok string) int {
	if strings.HasPrefix(tok, "'") && len(tok) == 3 {
		yy, err := strconv.Atoi(tok[1:])
		if err != nil {
			return 0
		}
		if yy <= 30 {
			return 2000 + yy
		}
		if yy >= 80 {
			return 1900 + yy
		}
		return 0
	}
	if len(tok) != 4 {
		return 0
	}
	y, err := strconv.Atoi(tok)
	if err != nil || y < 1980 || y > 2030 {
		return 0
	}
	return y
}

// tokenize lowercases and splits on whitespace, trimming punctuation that
// is not part of model names (hyphens and dots stay, "cr-v", "id.4").
func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	toks := make([]string, 0, len(fields))
	for _, f := range fields {
		// A leading apostrophe marks an abbreviated year.
		trimmed := strings.TrimFunc(f, func(r rune) bool {
			switch r {
			case ',', ';', ':', '!', '?', '(', ')', '"':
				return true
			}
			return false
		})
		if trimmed != "" {
			toks = append(toks, trimmed)
		}
	}
	return toks
}
