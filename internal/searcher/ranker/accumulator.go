package ranker

import (
	"container/heap"
	"sort"
)

// ScoredDoc is one ranked document.
type ScoredDoc struct {
	DocID uint32  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Accumulator sums per-document scores. Only documents that received at
// least one Add appear in the ranking.
type Accumulator struct {
	scores map[uint32]float64
}

func NewAccumulator() *Accumulator {
	return &Accumulator{scores: make(map[uint32]float64)}
}

func (a *Accumulator) Add(docID uint32, score float64) {
	a.scores[docID] += score
}

func (a *Accumulator) Len() int {
	return len(a.scores)
}

// TopK returns the k best documents by descending score, ties broken by
// ascending document id. k <= 0 returns every document.
func (a *Accumulator) TopK(k int) []ScoredDoc {
	if k <= 0 || k >= len(a.scores) {
		result := make([]ScoredDoc, 0, len(a.scores))
		for docID, score := range a.scores {
			result = append(result, ScoredDoc{DocID: docID, Score: score})
		}
		sort.Slice(result, func(i, j int) bool {
			return ranksBefore(result[i], result[j])
		})
		return result
	}

	h := make(scoredDocHeap, 0, k+1)
	for docID, score := range a.scores {
		heap.Push(&h, ScoredDoc{DocID: docID, Score: score})
		if h.Len() > k {
			heap.Pop(&h)
		}
	}
	result := make([]ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&h).(ScoredDoc)
	}
	return result
}

func ranksBefore(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// scoredDocHeap keeps the worst-ranked document at the root.
type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
