package retrieval

import (
	"math"
	"strings"
)

// BM25 parameter defaults, matching the common Okapi tuning.
const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// BM25 is an in-process Okapi BM25 index over a fixed corpus. It is built
// once and never mutated; rebuilding happens by constructing a new index
// inside a fresh Snapshot.
type BM25 struct {
	k1, b    float64
	termFreq []map[string]int
	docFreq  map[string]int
	docLen   []int
	avgLen   float64
}

// NewBM25 builds an index over the given document texts. Tokenization is
// lowercased whitespace splitting, the same scheme queries are tokenized with.
func NewBM25(texts []string) *BM25 {
	idx := &BM25{
		k1:       defaultK1,
		b:        defaultB,
		termFreq: make([]map[string]int, len(texts)),
		docFreq:  make(map[string]int),
		docLen:   make([]int, len(texts)),
	}

	total := 0
	for i, text := range texts {
		tokens := Tokenize(text)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		for term := range tf {
			idx.docFreq[term]++
		}
		idx.termFreq[i] = tf
		idx.docLen[i] = len(tokens)
		total += len(tokens)
	}
	if len(texts) > 0 {
		idx.avgLen = float64(total) / float64(len(texts))
	}
	return idx
}

// Len returns the number of indexed documents.
func (idx *BM25) Len() int { return len(idx.termFreq) }

// Scores returns the raw BM25 score of every document against the query,
// aligned by document index. Raw magnitudes are corpus-dependent; callers
// rescale them before blending.
func (idx *BM25) Scores(query string) []float64 {
	scores := make([]float64, len(idx.termFreq))
	n := float64(len(idx.termFreq))
	if n == 0 {
		return scores
	}

	for _, term := range Tokenize(query) {
		df, ok := idx.docFreq[term]
		if !ok {
			continue
		}
		// Non-negative IDF variant: ln(1 + (N - df + 0.5)/(df + 0.5)).
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))

		for i, tf := range idx.termFreq {
			f := float64(tf[term])
			if f == 0 {
				continue
			}
			norm := 1 - idx.b + idx.b*float64(idx.docLen[i])/idx.avgLen
			scores[i] += idf * f * (idx.k1 + 1) / (f + idx.k1*norm)
		}
	}
	return scores
}

// Tokenize lowercases and splits on whitespace. Both documents and queries go
// through it, so the two sides always agree.
func Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}
