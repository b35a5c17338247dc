// Package indexer drives a blocked sort-based index build: parse each block
// of the collection, invert it into an intermediate index, then merge every
// intermediate index into the final one.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/block"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/idmap"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/merge"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/postings"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/resilience"
)

const (
	TermsFile          = "terms.dict"
	DocsFile           = "docs.dict"
	IntermediatePrefix = "intermediate_index_"
)

// IntermediateName is the index name used for one block.
func IntermediateName(block string) string {
	return IntermediatePrefix + block
}

// BuildReport summarises a finished build.
type BuildReport struct {
	BuildID    string        `json:"build_id"`
	Index      string        `json:"index"`
	OutputDir  string        `json:"output_dir"`
	Blocks     int           `json:"blocks"`
	Documents  int           `json:"documents"`
	Terms      int           `json:"terms"`
	Postings   int           `json:"postings"`
	Mode       string        `json:"frequency_mode"`
	Codec      string        `json:"codec"`
	Generation uint32        `json:"generation"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}

// Notifier announces a finished build, e.g. on a Kafka topic.
type Notifier interface {
	NotifyBuilt(ctx context.Context, report BuildReport) error
}

// Journal records finished builds, e.g. in Postgres.
type Journal interface {
	RecordBuild(ctx context.Context, report BuildReport) error
}

type Option func(*Engine)

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithNotifier(n Notifier) Option        { return func(e *Engine) { e.notifier = n } }
func WithJournal(j Journal) Option          { return func(e *Engine) { e.journal = j } }
func WithCodec(c postings.Codec) Option     { return func(e *Engine) { e.codec = c } }

// Engine builds one index from one collection. It is not safe to run two
// builds into the same output directory at once; the segment writer locks
// enforce that.
type Engine struct {
	cfg      config.IndexerConfig
	mode     index.FrequencyMode
	codec    postings.Codec
	analyzer analysis.Analyzer
	metrics  *metrics.Metrics
	notifier Notifier
	journal  Journal
}

func NewEngine(cfg config.IndexerConfig, analyzer analysis.Analyzer, opts ...Option) (*Engine, error) {
	mode, err := index.ParseFrequencyMode(cfg.FrequencyMode)
	if err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	e := &Engine{
		cfg:      cfg,
		mode:     mode,
		codec:    postings.VByte{},
		analyzer: analyzer,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Build indexes every block under the collection directory into the output
// directory. Block parsing is sequential because it grows the shared term
// and document maps; inversion of parsed blocks runs on up to cfg.Workers
// goroutines since each block writes its own intermediate index.
func (e *Engine) Build(ctx context.Context) (BuildReport, error) {
	report := BuildReport{
		BuildID:   uuid.NewString(),
		Index:     e.cfg.IndexName,
		OutputDir: e.cfg.OutputDir,
		Mode:      e.mode.String(),
		Codec:     e.codec.Name(),
		StartedAt: time.Now(),
	}
	ctx = logger.WithBuildID(ctx, report.BuildID)
	log := logger.FromContext(ctx).With("component", "indexer")

	blocks, err := block.Blocks(e.cfg.CollectionDir)
	if err != nil {
		return report, err
	}
	if err := os.MkdirAll(e.cfg.OutputDir, 0755); err != nil {
		return report, fmt.Errorf("creating output directory: %w", err)
	}
	log.Info("index build started",
		"collection", e.cfg.CollectionDir,
		"blocks", len(blocks),
		"workers", e.cfg.Workers,
		"frequency_mode", report.Mode,
	)

	terms, docs := idmap.New(), idmap.New()
	builder := block.NewBuilder(e.cfg.CollectionDir, e.analyzer, terms, docs)
	// token counts, kept apart from postings so presence mode still ranks
	// with real document lengths
	lengths := make(map[uint32]uint32)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for _, name := range blocks {
		if gctx.Err() != nil {
			break
		}
		res, err := builder.Build(name)
		if err != nil {
			g.Wait()
			return report, fmt.Errorf("block %q: %w", name, err)
		}
		e.metrics.AddDocs(res.Documents)
		for doc, n := range res.DocLengths {
			lengths[doc] = n
		}
		g.Go(func() error {
			if err := e.invertBlock(log, res); err != nil {
				return fmt.Errorf("block %q: %w", res.Block, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("index build cancelled: %w", err)
	}

	if err := terms.Save(filepath.Join(e.cfg.OutputDir, TermsFile)); err != nil {
		return report, fmt.Errorf("saving term map: %w", err)
	}
	if err := docs.Save(filepath.Join(e.cfg.OutputDir, DocsFile)); err != nil {
		return report, fmt.Errorf("saving document map: %w", err)
	}

	stats, generation, err := e.mergeBlocks(log, blocks, report.BuildID, lengths)
	if err != nil {
		return report, err
	}
	if !e.cfg.KeepIntermediate {
		for _, name := range blocks {
			if err := segment.Remove(e.cfg.OutputDir, IntermediateName(name)); err != nil {
				log.Warn("removing intermediate index", "block", name, "error", err)
			}
		}
	}

	report.Blocks = len(blocks)
	report.Documents = docs.Len()
	report.Terms = stats.Terms
	report.Postings = stats.Postings
	report.Generation = generation
	report.Duration = time.Since(report.StartedAt)
	e.metrics.SetIndexSize(report.Terms, report.Documents)
	log.Info("index build complete",
		"index", report.Index,
		"blocks", report.Blocks,
		"documents", report.Documents,
		"terms", report.Terms,
		"postings", report.Postings,
		"generation", report.Generation,
		"duration", report.Duration,
	)
	e.announce(ctx, log, report)
	return report, nil
}

func (e *Engine) invertBlock(log *slog.Logger, res block.Result) (err error) {
	start := time.Now()
	defer func() { e.metrics.ObserveBlock(time.Since(start).Seconds(), err) }()

	w, err := segment.Create(e.cfg.OutputDir, IntermediateName(res.Block), e.codec)
	if err != nil {
		return err
	}
	w.SetDocLengths(res.DocLengths)
	mem, invertErr := index.Invert(res.Pairs, e.mode, w)
	closeErr := w.Close()
	if invertErr != nil {
		return invertErr
	}
	if closeErr != nil {
		return closeErr
	}
	log.Info("block inverted",
		"block", res.Block,
		"documents", res.Documents,
		"pairs", len(res.Pairs),
		"terms", mem.Terms(),
		"duration", time.Since(start),
	)
	return nil
}

func (e *Engine) mergeBlocks(log *slog.Logger, blocks []string, buildID string, lengths map[uint32]uint32) (merge.Stats, uint32, error) {
	start := time.Now()
	readers := make([]*segment.Reader, 0, len(blocks))
	defer func() {
		for _, r := range readers {
			if err := r.Close(); err != nil {
				log.Warn("closing intermediate index", "index", r.Name(), "error", err)
			}
		}
	}()
	sources := make([]merge.Source, 0, len(blocks))
	for _, name := range blocks {
		r, err := segment.Open(e.cfg.OutputDir, IntermediateName(name), 0)
		if err != nil {
			return merge.Stats{}, 0, fmt.Errorf("block %q: %w", name, err)
		}
		readers = append(readers, r)
		sources = append(sources, r.Iterator())
	}

	w, err := segment.Create(e.cfg.OutputDir, e.cfg.IndexName, e.codec)
	if err != nil {
		return merge.Stats{}, 0, err
	}
	w.SetBuildID(buildID)
	w.SetDocLengths(lengths)
	stats, mergeErr := merge.Merge(sources, w)
	closeErr := w.Close()
	if mergeErr != nil {
		return stats, 0, fmt.Errorf("merging into %q: %w", e.cfg.IndexName, mergeErr)
	}
	if closeErr != nil {
		return stats, 0, closeErr
	}
	e.metrics.ObserveMerge(time.Since(start).Seconds(), stats.Postings)
	log.Info("block indices merged",
		"index", e.cfg.IndexName,
		"sources", stats.Sources,
		"terms", stats.Terms,
		"combined_terms", stats.Combined,
		"duration", time.Since(start),
	)
	return stats, w.Checksum(), nil
}

// announce runs the optional side effects of a finished build. Their
// failure is logged and does not fail the build: the index on disk is
// already complete.
func (e *Engine) announce(ctx context.Context, log *slog.Logger, report BuildReport) {
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: 200 * time.Millisecond}
	if e.journal != nil {
		err := resilience.Retry(ctx, "journal build", retry, func() error {
			return resilience.WithTimeout(ctx, 5*time.Second, "journal build", func(ctx context.Context) error {
				return e.journal.RecordBuild(ctx, report)
			})
		})
		if err != nil {
			log.Warn("build journal write failed", "error", err)
		}
	}
	if e.notifier != nil {
		err := resilience.Retry(ctx, "notify build", retry, func() error {
			return resilience.WithTimeout(ctx, 10*time.Second, "notify build", func(ctx context.Context) error {
				return e.notifier.NotifyBuilt(ctx, report)
			})
		})
		if err != nil {
			log.Warn("build notification failed", "error", err)
		}
	}
}
