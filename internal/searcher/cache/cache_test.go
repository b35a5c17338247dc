package cache

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	return nil
}

func (s *memStore) DeleteByPattern(_ context.Context, pattern string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.data {
		if ok, _ := path.Match(pattern, k); ok {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

var sampleKey = Key{Index: "main_index", Generation: 7, Scheme: ranker.BM25, BM25: ranker.DefaultBM25, Limit: 10, Terms: []string{"dog"}}

func TestKey_DistinguishesEveryField(t *testing.T) {
	with := func(edit func(k *Key)) Key {
		k := sampleKey
		edit(&k)
		return k
	}
	variants := []Key{
		sampleKey,
		with(func(k *Key) { k.Index = "other" }),
		with(func(k *Key) { k.Generation = 8 }),
		with(func(k *Key) { k.Scheme = ranker.TFIDF }),
		with(func(k *Key) { k.BM25.K1 = 1.2 }),
		with(func(k *Key) { k.BM25.B = 0.75 }),
		with(func(k *Key) { k.Limit = 5 }),
		with(func(k *Key) { k.Terms = []string{"dog", "dog"} }),
	}
	seen := make(map[string]bool)
	for _, k := range variants {
		s := k.String()
		assert.False(t, seen[s], "collision for %+v", k)
		seen[s] = true
		assert.True(t, strings.HasPrefix(s, keyPrefix+k.Index+":"))
	}
}

func TestGetOrCompute(t *testing.T) {
	m := metrics.New()
	c := New(newMemStore(), time.Minute, m)
	want := []executor.Result{{Score: 1.5, DocID: 3, Key: "A/x"}}
	calls := 0
	compute := func() ([]executor.Result, error) {
		calls++
		return want, nil
	}

	got, hit, err := c.GetOrCompute(context.Background(), sampleKey, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, want, got)

	got, hit, err = c.GetOrCompute(context.Background(), sampleKey, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, calls)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestGetOrCompute_ErrorIsNotCached(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("index unreadable")
	_, _, err := c.GetOrCompute(context.Background(), sampleKey, func() ([]executor.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get(context.Background(), sampleKey)
	assert.False(t, ok)
}

func TestGetOrCompute_CollapsesConcurrentMisses(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), sampleKey, func() ([]executor.Result, error) {
				calls.Add(1)
				<-release
				return []executor.Result{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.LessOrEqual(t, calls.Load(), int32(8))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestStoreFailureIsAMiss(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	c := New(store, time.Minute, nil)
	results, hit, err := c.GetOrCompute(context.Background(), sampleKey, func() ([]executor.Result, error) {
		return []executor.Result{{DocID: 1}}, nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Len(t, results, 1)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	c.Set(context.Background(), sampleKey, []executor.Result{})
	other := sampleKey
	other.Index = "other"
	c.Set(context.Background(), other, []executor.Result{})

	n, err := c.Invalidate(context.Background(), "main_index")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, ok := c.Get(context.Background(), other)
	assert.True(t, ok)
}

func buildDocs(t *testing.T, out string, docs map[string]string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "A"), 0755))
	for name, text := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(root, "A", name), []byte(text), 0644))
	}
	e, err := indexer.NewEngine(config.IndexerConfig{
		CollectionDir: root, OutputDir: out, IndexName: "main_index", Workers: 1,
	}, analysis.NewEnglish())
	require.NoError(t, err)
	_, err = e.Build(context.Background())
	require.NoError(t, err)
}

func openSession(t *testing.T, out string, bm25 ranker.BM25Params) *executor.Session {
	t.Helper()
	session, err := executor.Open(executor.Options{IndexDir: out, IndexName: "main_index", BM25: bm25}, analysis.NewEnglish())
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session
}

func TestSearcher_RebuildWithSameShapeMisses(t *testing.T) {
	out := t.TempDir()
	store := newMemStore()
	c := New(store, time.Minute, nil)

	buildDocs(t, out, map[string]string{"x": "cat"})
	before := openSession(t, out, ranker.BM25Params{})
	res, hit, err := NewSearcher(before, c, "main_index").Query(context.Background(), "cat", ranker.TFIDF, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, res, 1)

	// one document, one term: the rebuilt index has the same shape
	buildDocs(t, out, map[string]string{"x": "dog"})
	after := openSession(t, out, ranker.BM25Params{})
	assert.NotEqual(t, before.Generation(), after.Generation())

	res, hit, err = NewSearcher(after, c, "main_index").Query(context.Background(), "cat", ranker.TFIDF, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Empty(t, res)
}

func TestSearcher_BM25ParamsAreKeyed(t *testing.T) {
	out := t.TempDir()
	buildDocs(t, out, map[string]string{"x": "cat cat dog", "y": "dog"})
	c := New(newMemStore(), time.Minute, nil)

	defaults := openSession(t, out, ranker.BM25Params{})
	tuned := openSession(t, out, ranker.BM25Params{K1: 1.2, B: 0.75})

	first, hit, err := NewSearcher(defaults, c, "main_index").Query(context.Background(), "cat", ranker.BM25, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	second, hit, err := NewSearcher(tuned, c, "main_index").Query(context.Background(), "cat", ranker.BM25, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.NotEqual(t, first[0].Score, second[0].Score)

	_, hit, err = NewSearcher(tuned, c, "main_index").Query(context.Background(), "cat", ranker.BM25, 10)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestSearcher_UsesGeneration(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "A"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "A", "a"), []byte("cat dog"), 0644))
	out := t.TempDir()
	e, err := indexer.NewEngine(config.IndexerConfig{
		CollectionDir: root, OutputDir: out, IndexName: "main_index", Workers: 1,
	}, analysis.NewEnglish())
	require.NoError(t, err)
	_, err = e.Build(context.Background())
	require.NoError(t, err)

	session, err := executor.Open(executor.Options{IndexDir: out, IndexName: "main_index"}, analysis.NewEnglish())
	require.NoError(t, err)
	defer session.Close()

	store := newMemStore()
	s := NewSearcher(session, New(store, time.Minute, nil), "main_index")
	first, hit, err := s.Query(context.Background(), "Cats", ranker.TFIDF, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	// "cat" analyzes to the same terms as "Cats"
	second, hit, err := s.Query(context.Background(), "cat", ranker.TFIDF, 10)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)

	key := Key{
		Index:      "main_index",
		Generation: session.Generation(),
		Scheme:     ranker.TFIDF,
		BM25:       ranker.DefaultBM25,
		Limit:      10,
		Terms:      []string{"cat"},
	}
	_, ok := store.data[key.String()]
	assert.True(t, ok)

	direct := NewSearcher(session, nil, "main_index")
	res, hit, err := direct.Query(context.Background(), "cat", ranker.TFIDF, 10)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, first, res)
}
