package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/redis"
)

type queryOptions struct {
	index      string
	dir        string
	collection string
	scheme     string
	limit      int
	rerank     bool
	format     string
}

func newQueryCmd(a *app) *cobra.Command {
	var opts queryOptions
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Rank documents for a free-text query",
		Long: `Query analyzes the text like the indexed documents, skips terms the
index has never seen and prints the top documents by score.

Examples:
  bsbi query "insulin growth factor"
  bsbi query "cat dog" --scheme tfidf -n 5 --format json
  bsbi query "cat dog" --rerank --collection ./collection`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), cmd.OutOrStdout(), a, strings.Join(args, " "), opts)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "output", "", "Index directory (overrides indexer.outputDir)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Index name (overrides indexer.indexName)")
	cmd.Flags().StringVarP(&opts.scheme, "scheme", "s", "", "Scoring scheme: tfidf, binary, bm25 (default search.scheme)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", -1, "Maximum number of results, 0 for all (default search.defaultLimit)")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "Collection directory read by --rerank (overrides indexer.collectionDir)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rescore the top results by query term overlap with the document text")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runQuery(ctx context.Context, out io.Writer, a *app, text string, opts queryOptions) error {
	if opts.dir != "" {
		a.cfg.Indexer.OutputDir = opts.dir
	}
	if opts.index != "" {
		a.cfg.Indexer.IndexName = opts.index
	}
	if opts.collection != "" {
		a.cfg.Indexer.CollectionDir = opts.collection
	}
	schemeName := a.cfg.Search.Scheme
	if opts.scheme != "" {
		schemeName = opts.scheme
	}
	scheme, err := ranker.ParseScheme(strings.ToLower(schemeName))
	if err != nil {
		return err
	}
	limit := a.cfg.Search.DefaultLimit
	if opts.limit >= 0 {
		limit = opts.limit
	}

	session, err := executor.Open(executor.Options{
		IndexDir:      a.cfg.Indexer.OutputDir,
		IndexName:     a.cfg.Indexer.IndexName,
		CollectionDir: a.cfg.Indexer.CollectionDir,
		CacheSize:     a.cfg.Indexer.PostingsCacheSize,
		BM25:          ranker.BM25Params{K1: a.cfg.Search.BM25.K1, B: a.cfg.Search.BM25.B},
		Metrics:       a.metrics,
	}, analysis.NewEnglish())
	if err != nil {
		return err
	}
	defer session.Close()

	var qc *cache.QueryCache
	if a.cfg.Redis.Enabled {
		client, err := redis.NewClient(a.cfg.Redis)
		if err != nil {
			slog.Warn("result cache disabled", "error", err)
		} else {
			defer client.Close()
			qc = cache.New(client, a.cfg.Redis.CacheTTL, a.metrics)
		}
	}
	searcher := cache.NewSearcher(session, qc, a.cfg.Indexer.IndexName)
	results, hit, err := searcher.Query(ctx, text, scheme, limit)
	if err != nil {
		return err
	}
	slog.Debug("query answered", "scheme", scheme.String(), "results", len(results), "cache_hit", hit)
	if opts.rerank {
		results, err = session.Rerank(ctx, text, results, executor.TermOverlap)
		if err != nil {
			return err
		}
	}
	return printResults(out, opts.format, results)
}

func printResults(out io.Writer, format string, results []executor.Result) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no matching documents")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(out, "%.6f\t%s\n", r.Score, r.Key)
	}
	return nil
}
