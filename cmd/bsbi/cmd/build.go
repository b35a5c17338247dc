package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/journal"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/postgres"
)

type buildOptions struct {
	collection       string
	output           string
	index            string
	workers          int
	frequency        string
	codec            string
	keepIntermediate bool
	format           string
}

func newBuildCmd(a *app) *cobra.Command {
	var opts buildOptions
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the index from a block-partitioned collection",
		Long: `Build parses every block directory of the collection, writes one
intermediate index per block and merges them into the final index.

Examples:
  bsbi build --collection ./collection --output ./index
  bsbi build --frequency presence --workers 8 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd.OutOrStdout(), a, opts)
		},
	}
	cmd.Flags().StringVar(&opts.collection, "collection", "", "Collection root (overrides indexer.collectionDir)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Index output directory (overrides indexer.outputDir)")
	cmd.Flags().StringVar(&opts.index, "index", "", "Final index name (overrides indexer.indexName)")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", 0, "Blocks inverted in parallel (overrides indexer.workers)")
	cmd.Flags().StringVar(&opts.frequency, "frequency", "", "Term frequency mode: count or presence")
	cmd.Flags().StringVar(&opts.codec, "codec", "vbyte", "Postings codec: vbyte or standard")
	cmd.Flags().BoolVar(&opts.keepIntermediate, "keep-intermediate", false, "Keep per-block indices after merging")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	return cmd
}

func (o buildOptions) apply(a *app) {
	c := &a.cfg.Indexer
	if o.collection != "" {
		c.CollectionDir = o.collection
	}
	if o.output != "" {
		c.OutputDir = o.output
	}
	if o.index != "" {
		c.IndexName = o.index
	}
	if o.workers > 0 {
		c.Workers = o.workers
	}
	if o.frequency != "" {
		c.FrequencyMode = o.frequency
	}
	if o.keepIntermediate {
		c.KeepIntermediate = true
	}
}

func runBuild(ctx context.Context, out io.Writer, a *app, opts buildOptions) error {
	opts.apply(a)
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	codec, err := postings.ByName(opts.codec)
	if err != nil {
		return usageErr("unknown codec %q", opts.codec)
	}
	engineOpts := []indexer.Option{indexer.WithMetrics(a.metrics), indexer.WithCodec(codec)}

	if a.cfg.Kafka.Enabled {
		producer := kafka.NewProducer(a.cfg.Kafka, a.cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		engineOpts = append(engineOpts, indexer.WithNotifier(indexer.NewKafkaNotifier(producer)))
	}
	if a.cfg.Postgres.Enabled {
		pg, err := postgres.New(ctx, a.cfg.Postgres)
		if err != nil {
			slog.Warn("build journal disabled", "error", err)
		} else {
			defer pg.Close()
			j := journal.New(journal.FromSQL(pg.DB))
			if err := j.Migrate(ctx); err != nil {
				slog.Warn("build journal disabled", "error", err)
			} else {
				engineOpts = append(engineOpts, indexer.WithJournal(j))
			}
		}
	}

	engine, err := indexer.NewEngine(a.cfg.Indexer, analysis.NewEnglish(), engineOpts...)
	if err != nil {
		return usageErr("%v", err)
	}
	report, err := engine.Build(ctx)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(out, "index      %s/%s\n", report.OutputDir, report.Index)
	fmt.Fprintf(out, "blocks     %d\n", report.Blocks)
	fmt.Fprintf(out, "documents  %d\n", report.Documents)
	fmt.Fprintf(out, "terms      %d\n", report.Terms)
	fmt.Fprintf(out, "postings   %d\n", report.Postings)
	fmt.Fprintf(out, "frequency  %s\n", report.Mode)
	fmt.Fprintf(out, "generation %08x\n", report.Generation)
	fmt.Fprintf(out, "took       %s\n", report.Duration.Round(1e6))
	return nil
}
