// Package executor is the retrieval engine: it opens a finished index with
// its identifier maps and ranks documents for free-text queries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/idmap"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
)

// Result is one ranked document.
type Result struct {
	Score float64 `json:"score"`
	DocID uint32  `json:"doc_id"`
	Key   string  `json:"doc"`
}

// Options locate the index a Session reads.
type Options struct {
	IndexDir  string
	IndexName string
	// CollectionDir is where Rerank reads document text from.
	CollectionDir string
	CacheSize     int
	BM25          ranker.BM25Params
	Metrics       *metrics.Metrics
}

// Session holds the identifier maps, an open reader on the final index and
// the collection statistics derived from it. A Session is read-only and safe
// for concurrent queries.
type Session struct {
	opts     Options
	analyzer analysis.Analyzer
	terms    *idmap.Map
	docs     *idmap.Map
	reader   *segment.Reader
	stats    ranker.CollectionStats
	logger   *slog.Logger
}

// Open loads everything a query needs. Maps are reloaded on every Open
// since a rebuild may have renumbered them.
func Open(opts Options, analyzer analysis.Analyzer) (*Session, error) {
	if opts.BM25 == (ranker.BM25Params{}) {
		opts.BM25 = ranker.DefaultBM25
	}
	terms, err := idmap.Load(filepath.Join(opts.IndexDir, indexer.TermsFile))
	if err != nil {
		return nil, fmt.Errorf("loading term map: %w", err)
	}
	docs, err := idmap.Load(filepath.Join(opts.IndexDir, indexer.DocsFile))
	if err != nil {
		return nil, fmt.Errorf("loading document map: %w", err)
	}
	reader, err := segment.Open(opts.IndexDir, opts.IndexName, opts.CacheSize)
	if err != nil {
		return nil, err
	}
	s := &Session{
		opts:     opts,
		analyzer: analyzer,
		terms:    terms,
		docs:     docs,
		reader:   reader,
		stats: ranker.CollectionStats{
			N:            docs.Len(),
			AvgDocLength: reader.AvgDocLength(),
		},
		logger: slog.Default().With("component", "query-executor", "index", opts.IndexName),
	}
	opts.Metrics.SetIndexSize(reader.Terms(), docs.Len())
	s.logger.Debug("session opened",
		"terms", terms.Len(),
		"documents", docs.Len(),
		"avg_doc_length", s.stats.AvgDocLength,
		"generation", reader.Generation(),
	)
	return s, nil
}

// Query ranks documents for text under scheme and returns at most k results
// (all of them when k <= 0). Query terms missing from the term map are
// skipped; a query with no known terms yields an empty, non-nil slice.
func (s *Session) Query(ctx context.Context, text string, scheme ranker.Scheme, k int) ([]Result, error) {
	start := time.Now()
	results, unknown, err := s.query(ctx, text, scheme, k)
	count := len(results)
	if err != nil {
		count = -1
	}
	s.opts.Metrics.ObserveQuery(scheme.String(), time.Since(start).Seconds(), count, unknown)
	return results, err
}

func (s *Session) query(ctx context.Context, text string, scheme ranker.Scheme, k int) ([]Result, int, error) {
	scorer := scheme.Scorer(s.opts.BM25)
	acc := ranker.NewAccumulator()
	queryTerms := s.analyzer.Analyze(text)
	unknown := 0
	for _, term := range queryTerms {
		if err := ctx.Err(); err != nil {
			return nil, unknown, err
		}
		termID, err := s.terms.IDOf(term)
		if err != nil {
			unknown++
			continue
		}
		docIDs, freqs, err := s.reader.Postings(termID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				unknown++
				continue
			}
			return nil, unknown, fmt.Errorf("reading postings of %q: %w", term, err)
		}
		df := len(docIDs)
		for i, docID := range docIDs {
			dl, _ := s.reader.DocLength(docID)
			wq, wd := scorer.Weights(ranker.Match{
				TermFreq:  freqs[i],
				DocLength: dl,
				DocFreq:   df,
			}, s.stats)
			acc.Add(docID, wq*wd)
		}
	}

	ranked := acc.TopK(k)
	results := make([]Result, 0, len(ranked))
	for _, r := range ranked {
		key, err := s.docs.KeyOf(r.DocID)
		if err != nil {
			return nil, unknown, fmt.Errorf("%w: posting references doc %d outside the document map",
				apperrors.ErrMalformedIndex, r.DocID)
		}
		results = append(results, Result{Score: r.Score, DocID: r.DocID, Key: key})
	}
	s.logger.Debug("query executed",
		"scheme", scheme.String(),
		"terms", len(queryTerms),
		"unknown_terms", unknown,
		"matched", acc.Len(),
		"results", len(results),
	)
	return results, unknown, nil
}

// Reranker scores a document against a query from their surface tokens.
type Reranker interface {
	Score(queryTokens, docTokens []string) float64
}

// RerankerFunc adapts a function to Reranker.
type RerankerFunc func(queryTokens, docTokens []string) float64

func (f RerankerFunc) Score(queryTokens, docTokens []string) float64 { return f(queryTokens, docTokens) }

// TermOverlap scores a document by the fraction of distinct query tokens it
// contains.
var TermOverlap = RerankerFunc(func(queryTokens, docTokens []string) float64 {
	want := make(map[string]bool, len(queryTokens))
	for _, t := range queryTokens {
		want[t] = false
	}
	if len(want) == 0 {
		return 0
	}
	found := 0
	for _, t := range docTokens {
		if seen, ok := want[t]; ok && !seen {
			want[t] = true
			found++
		}
	}
	return float64(found) / float64(len(want))
})

// Rerank rescores results with rr, reading each document's text from the
// collection directory, and returns them by descending new score (ties by
// ascending document id). A document missing from disk fails the call.
func (s *Session) Rerank(ctx context.Context, text string, results []Result, rr Reranker) ([]Result, error) {
	queryTokens := analysis.Whitespace(text)
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(filepath.Join(s.opts.CollectionDir, filepath.FromSlash(r.Key)))
		if err != nil {
			return nil, apperrors.IOf(err, "reading document %s for reranking", r.Key)
		}
		r.Score = rr.Score(queryTokens, analysis.Whitespace(string(raw)))
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	return out, nil
}

// Stats returns the collection statistics of the open index.
func (s *Session) Stats() ranker.CollectionStats {
	return s.stats
}

// Generation identifies the build of the open index.
func (s *Session) Generation() uint32 {
	return s.reader.Generation()
}

// BM25 returns the parameters BM25 queries are scored with.
func (s *Session) BM25() ranker.BM25Params {
	return s.opts.BM25
}

// Terms returns the analyzed form of text, the shape used for cache keys.
func (s *Session) Terms(text string) []string {
	return s.analyzer.Analyze(text)
}

func (s *Session) Close() error {
	return s.reader.Close()
}
