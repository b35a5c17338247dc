// Package ranker implements the term-at-a-time scoring schemes. Each scheme
// turns one (term, document) match into a query-side and a document-side
// weight; a document's score is the sum of their products over its matching
// query terms.
package ranker

import (
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

type Scheme int

const (
	TFIDF Scheme = iota
	Binary
	BM25
)

var schemeNames = map[Scheme]string{
	TFIDF:  "tfidf",
	Binary: "binary",
	BM25:   "bm25",
}

func (s Scheme) String() string {
	if name, ok := schemeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Scheme(%d)", int(s))
}

// Schemes lists every scheme in declaration order.
func Schemes() []Scheme {
	return []Scheme{TFIDF, Binary, BM25}
}

// ParseScheme accepts the names printed by String; "unary" is an alias for
// binary.
func ParseScheme(s string) (Scheme, error) {
	switch s {
	case "tfidf", "tf-idf":
		return TFIDF, nil
	case "binary", "unary":
		return Binary, nil
	case "bm25":
		return BM25, nil
	default:
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, "ranker", "unknown scoring scheme %q", s)
	}
}

// CollectionStats are derived from the loaded index on every session.
type CollectionStats struct {
	// N is the number of documents in the document map.
	N            int
	AvgDocLength float64
}

// Match is one term occurring in one document.
type Match struct {
	TermFreq  uint32
	DocLength uint32
	DocFreq   int
}

// Scorer computes the weight pair of a match. Score(m) = wq * wd.
type Scorer interface {
	Weights(m Match, c CollectionStats) (wq, wd float64)
}

// BM25Params are the BM25 free parameters.
type BM25Params struct {
	K1 float64
	B  float64
}

// DefaultBM25 is k1 = 1.5, b = 0.8.
var DefaultBM25 = BM25Params{K1: 1.5, B: 0.8}

// Scorer returns the scorer for s. params only affects BM25.
func (s Scheme) Scorer(params BM25Params) Scorer {
	switch s {
	case Binary:
		return binaryScorer{}
	case BM25:
		return bm25Scorer{params: params}
	default:
		return tfidfScorer{}
	}
}

func idf(c CollectionStats, df int) float64 {
	if df <= 0 || c.N <= 0 {
		return 0
	}
	return math.Log(float64(c.N) / float64(df))
}

type tfidfScorer struct{}

func (tfidfScorer) Weights(m Match, c CollectionStats) (float64, float64) {
	if m.TermFreq == 0 {
		return idf(c, m.DocFreq), 0
	}
	return idf(c, m.DocFreq), 1 + math.Log(float64(m.TermFreq))
}

type binaryScorer struct{}

func (binaryScorer) Weights(m Match, _ CollectionStats) (float64, float64) {
	if m.TermFreq == 0 {
		return 1, 0
	}
	return 1, 1
}

type bm25Scorer struct {
	params BM25Params
}

func (s bm25Scorer) Weights(m Match, c CollectionStats) (float64, float64) {
	k, b := s.params.K1, s.params.B
	tf := float64(m.TermFreq)
	ratio := 0.0
	if c.AvgDocLength > 0 {
		ratio = float64(m.DocLength) / c.AvgDocLength
	}
	wd := (k + 1) * tf / (k*((1-b)+b*ratio) + tf)
	return idf(c, m.DocFreq), wd
}
