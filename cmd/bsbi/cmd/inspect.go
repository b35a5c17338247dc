package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/idmap"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/journal"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/postgres"
)

type inspectOptions struct {
	dir    string
	index  string
	term   string
	format string
}

type inspectReport struct {
	Index      string               `json:"index"`
	Codec      string               `json:"codec"`
	Generation uint32               `json:"generation"`
	Verify     segment.VerifyReport `json:"verify"`
	Term       *termReport          `json:"term,omitempty"`
	LastBuild  *indexer.BuildReport `json:"last_build,omitempty"`
}

type termReport struct {
	Text      string   `json:"text"`
	Term      string   `json:"term"`
	TermID    uint32   `json:"term_id"`
	Documents []string `json:"documents"`
	TermFreqs []uint32 `json:"term_freqs"`
}

func newInspectCmd(a *app) *cobra.Command {
	var opts inspectOptions
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Verify an index and print its statistics",
		Long: `Inspect decodes every postings list of the index, checks that document
ids are strictly increasing and that every document has a length entry,
and prints a summary. With --term it also prints one postings list. When
postgres.enabled is set the last journalled build of the index is shown.

Examples:
  bsbi inspect
  bsbi inspect --term running --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.dir, "output", "", "Index directory (overrides indexer.outputDir)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Index name (overrides indexer.indexName)")
	cmd.Flags().StringVarP(&opts.term, "term", "t", "", "Print the postings list of this word")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func runInspect(ctx context.Context, out io.Writer, a *app, opts inspectOptions) error {
	dir, name := a.cfg.Indexer.OutputDir, a.cfg.Indexer.IndexName
	if opts.dir != "" {
		dir = opts.dir
	}
	if opts.index != "" {
		name = opts.index
	}
	r, err := segment.Open(dir, name, 0)
	if err != nil {
		return err
	}
	defer r.Close()
	verified, err := segment.Verify(r)
	if err != nil {
		return err
	}
	report := inspectReport{
		Index:      name,
		Codec:      r.Codec().Name(),
		Generation: r.Generation(),
		Verify:     verified,
	}
	if opts.term != "" {
		tr, err := lookupTerm(r, dir, opts.term)
		if err != nil {
			return err
		}
		report.Term = tr
	}
	if a.cfg.Postgres.Enabled {
		report.LastBuild = lastBuild(ctx, a, name)
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "index          %s\n", report.Index)
	fmt.Fprintf(out, "codec          %s\n", report.Codec)
	fmt.Fprintf(out, "generation     %08x\n", report.Generation)
	fmt.Fprintf(out, "terms          %d\n", verified.Terms)
	fmt.Fprintf(out, "postings       %d\n", verified.Postings)
	fmt.Fprintf(out, "documents      %d\n", verified.Documents)
	fmt.Fprintf(out, "max doc freq   %d\n", verified.MaxDocFreq)
	fmt.Fprintf(out, "avg doc length %.3f\n", verified.AvgDocLength)
	fmt.Fprintf(out, "data bytes     %d\n", verified.DataBytes)
	if b := report.LastBuild; b != nil {
		fmt.Fprintf(out, "last build     %s at %s (%s)\n", b.BuildID, b.StartedAt.Format("2006-01-02 15:04:05"), b.Duration)
	}
	if t := report.Term; t != nil {
		fmt.Fprintf(out, "\n%s -> %s (id %d, df %d)\n", t.Text, t.Term, t.TermID, len(t.Documents))
		for i, doc := range t.Documents {
			fmt.Fprintf(out, "  %s\t%d\n", doc, t.TermFreqs[i])
		}
	}
	return nil
}

// lastBuild reads the journal. It never fails the inspection.
func lastBuild(ctx context.Context, a *app, index string) *indexer.BuildReport {
	pg, err := postgres.New(ctx, a.cfg.Postgres)
	if err != nil {
		slog.Warn("build journal unavailable", "error", err)
		return nil
	}
	defer pg.Close()
	r, err := journal.New(journal.FromSQL(pg.DB)).Latest(ctx, index)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			slog.Warn("reading build journal", "error", err)
		}
		return nil
	}
	return &r
}

// lookupTerm analyzes word the way documents are analyzed and resolves its
// postings to document keys.
func lookupTerm(r *segment.Reader, dir, word string) (*termReport, error) {
	tokens := analysis.NewEnglish().Analyze(word)
	if len(tokens) != 1 {
		return nil, usageErr("--term must analyze to exactly one term, %q gives %d", word, len(tokens))
	}
	terms, err := idmap.Load(filepath.Join(dir, indexer.TermsFile))
	if err != nil {
		return nil, err
	}
	docs, err := idmap.Load(filepath.Join(dir, indexer.DocsFile))
	if err != nil {
		return nil, err
	}
	id, err := terms.IDOf(tokens[0])
	if err != nil {
		return nil, err
	}
	ids, tfs, err := r.Postings(id)
	if err != nil {
		return nil, err
	}
	tr := &termReport{Text: word, Term: tokens[0], TermID: id, TermFreqs: tfs, Documents: make([]string, len(ids))}
	for i, docID := range ids {
		key, err := docs.KeyOf(docID)
		if err != nil {
			return nil, err
		}
		tr.Documents[i] = key
	}
	return tr, nil
}
