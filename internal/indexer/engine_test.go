package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/idmap"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
)

func writeCollection(t *testing.T, docs map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, text := range docs {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(text), 0644))
	}
	return root
}

func testConfig(collection, output string) config.IndexerConfig {
	return config.IndexerConfig{
		CollectionDir: collection,
		OutputDir:     output,
		IndexName:     "main_index",
		Workers:       2,
		FrequencyMode: config.FrequencyCount,
	}
}

type recordingSink struct {
	notified []BuildReport
	recorded []BuildReport
	failures int
}

func (s *recordingSink) NotifyBuilt(_ context.Context, r BuildReport) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("broker unavailable")
	}
	s.notified = append(s.notified, r)
	return nil
}

func (s *recordingSink) RecordBuild(_ context.Context, r BuildReport) error {
	s.recorded = append(s.recorded, r)
	return nil
}

func postingsOf(t *testing.T, out, term string) ([]uint32, []uint32) {
	t.Helper()
	terms, err := idmap.Load(filepath.Join(out, TermsFile))
	require.NoError(t, err)
	id, err := terms.IDOf(term)
	require.NoError(t, err)
	r, err := segment.Open(out, "main_index", 0)
	require.NoError(t, err)
	defer r.Close()
	ids, tfs, err := r.Postings(id)
	require.NoError(t, err)
	return ids, tfs
}

func TestBuild_TwoBlocks(t *testing.T) {
	root := writeCollection(t, map[string]string{
		"A/a": "cat dog dog",
		"B/b": "dog",
	})
	out := t.TempDir()
	sink := &recordingSink{}
	m := metrics.New()
	e, err := NewEngine(testConfig(root, out), analysis.NewEnglish(),
		WithMetrics(m), WithNotifier(sink), WithJournal(sink))
	require.NoError(t, err)

	report, err := e.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Blocks)
	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 2, report.Terms)
	assert.Equal(t, 3, report.Postings)
	assert.Equal(t, "count", report.Mode)
	assert.Equal(t, "vbyte", report.Codec)
	assert.NotEmpty(t, report.BuildID)
	assert.NotZero(t, report.Generation)

	docs, err := idmap.Load(filepath.Join(out, DocsFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"A/a", "B/b"}, docs.Keys())

	ids, tfs := postingsOf(t, out, "dog")
	assert.Equal(t, []uint32{0, 1}, ids)
	assert.Equal(t, []uint32{2, 1}, tfs)

	r, err := segment.Open(out, "main_index", 0)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, report.Generation, r.Generation())
	l, ok := r.DocLength(0)
	require.True(t, ok)
	assert.Equal(t, uint32(3), l)
	_, err = segment.Verify(r)
	require.NoError(t, err)

	assert.False(t, segment.Exists(out, IntermediateName("A")))
	assert.False(t, segment.Exists(out, IntermediateName("B")))

	require.Len(t, sink.notified, 1)
	require.Len(t, sink.recorded, 1)
	assert.Equal(t, report.BuildID, sink.notified[0].BuildID)
}

func TestBuild_PresenceMode(t *testing.T) {
	root := writeCollection(t, map[string]string{
		"A/a": "cat dog dog",
		"B/b": "dog",
	})
	out := t.TempDir()
	cfg := testConfig(root, out)
	cfg.FrequencyMode = config.FrequencyPresence
	e, err := NewEngine(cfg, analysis.NewEnglish())
	require.NoError(t, err)
	_, err = e.Build(context.Background())
	require.NoError(t, err)

	_, tfs := postingsOf(t, out, "dog")
	assert.Equal(t, []uint32{1, 1}, tfs)

	// lengths are token counts, not the sum of the clipped frequencies
	r, err := segment.Open(out, "main_index", 0)
	require.NoError(t, err)
	defer r.Close()
	l, ok := r.DocLength(0)
	require.True(t, ok)
	assert.Equal(t, uint32(3), l)
	assert.InDelta(t, 2.0, r.AvgDocLength(), 1e-12)
	_, err = segment.Verify(r)
	require.NoError(t, err)
}

func TestBuild_RebuildChangesGeneration(t *testing.T) {
	out := t.TempDir()
	build := func(text string) BuildReport {
		root := writeCollection(t, map[string]string{"A/x": text})
		e, err := NewEngine(testConfig(root, out), analysis.NewEnglish())
		require.NoError(t, err)
		report, err := e.Build(context.Background())
		require.NoError(t, err)
		return report
	}

	first := build("cat")
	second := build("dog")
	assert.NotEqual(t, first.Generation, second.Generation)

	r, err := segment.Open(out, "main_index", 0)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, second.Generation, r.Generation())
	assert.Equal(t, second.BuildID, r.BuildID())

	third := build("dog")
	assert.NotEqual(t, second.Generation, third.Generation)
}

func TestBuild_KeepIntermediate(t *testing.T) {
	root := writeCollection(t, map[string]string{
		"0/x": "alpha beta",
		"1/y": "beta gamma",
		"2/z": "gamma delta",
	})
	out := t.TempDir()
	cfg := testConfig(root, out)
	cfg.KeepIntermediate = true
	cfg.Workers = 3
	e, err := NewEngine(cfg, analysis.NewEnglish())
	require.NoError(t, err)
	report, err := e.Build(context.Background())
	require.NoError(t, err)

	for _, b := range []string{"0", "1", "2"} {
		assert.True(t, segment.Exists(out, IntermediateName(b)), "block %s", b)
	}
	ids, _ := postingsOf(t, out, "gamma")
	assert.Equal(t, []uint32{1, 2}, ids)
	assert.Equal(t, 4, report.Terms)
}

func TestBuild_RetriesNotification(t *testing.T) {
	root := writeCollection(t, map[string]string{"A/a": "cat"})
	sink := &recordingSink{failures: 1}
	e, err := NewEngine(testConfig(root, t.TempDir()), analysis.NewEnglish(), WithNotifier(sink))
	require.NoError(t, err)
	_, err = e.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.notified, 1)
}

func TestBuild_Errors(t *testing.T) {
	t.Run("missing collection", func(t *testing.T) {
		e, err := NewEngine(testConfig(filepath.Join(t.TempDir(), "nope"), t.TempDir()), analysis.NewEnglish())
		require.NoError(t, err)
		_, err = e.Build(context.Background())
		assert.True(t, errors.Is(err, apperrors.ErrIOFailure))
	})
	t.Run("no blocks", func(t *testing.T) {
		e, err := NewEngine(testConfig(t.TempDir(), t.TempDir()), analysis.NewEnglish())
		require.NoError(t, err)
		_, err = e.Build(context.Background())
		assert.True(t, errors.Is(err, apperrors.ErrPreconditionViolation))
	})
	t.Run("cancelled", func(t *testing.T) {
		root := writeCollection(t, map[string]string{"A/a": "cat"})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		e, err := NewEngine(testConfig(root, t.TempDir()), analysis.NewEnglish())
		require.NoError(t, err)
		_, err = e.Build(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
	t.Run("bad frequency mode", func(t *testing.T) {
		cfg := testConfig(t.TempDir(), t.TempDir())
		cfg.FrequencyMode = "sometimes"
		_, err := NewEngine(cfg, analysis.NewEnglish())
		assert.Error(t, err)
	})
}
