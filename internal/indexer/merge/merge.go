// Package merge combines block indices into one index with a heap-driven
// k-way merge over their term-ordered entry streams.
package merge

import (
	"container/heap"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Source yields postings lists in strictly increasing term-id order.
// segment.Iterator implements it.
type Source interface {
	Next() bool
	Entry() index.TermEntry
	Err() error
}

// Stats describes one merge run.
type Stats struct {
	Sources  int
	Terms    int
	Postings int
	// Combined counts terms that appeared in more than one source.
	Combined int
}

type cursor struct {
	src   Source
	order int
	entry index.TermEntry
}

type cursorHeap []*cursor

func (h cursorHeap) Len() int { return len(h) }

func (h cursorHeap) Less(i, j int) bool {
	if h[i].entry.TermID != h[j].entry.TermID {
		return h[i].entry.TermID < h[j].entry.TermID
	}
	return h[i].order < h[j].order
}

func (h cursorHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *cursorHeap) Push(x interface{}) {
	*h = append(*h, x.(*cursor))
}

func (h *cursorHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Merge streams every source into w. Entries sharing a term id are combined
// with Postings, in source order. Sources that yield nothing are skipped;
// passing no sources at all is a precondition violation.
func Merge(sources []Source, w index.Appender) (Stats, error) {
	if len(sources) == 0 {
		return Stats{}, apperrors.New(apperrors.ErrPreconditionViolation, "merge", "no block indices to merge")
	}
	stats := Stats{Sources: len(sources)}
	h := make(cursorHeap, 0, len(sources))
	for i, src := range sources {
		c := &cursor{src: src, order: i}
		ok, err := c.advance()
		if err != nil {
			return stats, fmt.Errorf("reading source %d: %w", i, err)
		}
		if ok {
			h = append(h, c)
		}
	}
	heap.Init(&h)

	for h.Len() > 0 {
		termID := h[0].entry.TermID
		docIDs, freqs := h[0].entry.DocIDs, h[0].entry.TermFreqs
		contributors := 0
		for h.Len() > 0 && h[0].entry.TermID == termID {
			c := h[0]
			if contributors > 0 {
				var err error
				docIDs, freqs, err = Postings(docIDs, freqs, c.entry.DocIDs, c.entry.TermFreqs)
				if err != nil {
					return stats, fmt.Errorf("term %d: %w", termID, err)
				}
			}
			contributors++
			ok, err := c.advance()
			if err != nil {
				return stats, fmt.Errorf("reading source %d: %w", c.order, err)
			}
			if ok {
				heap.Fix(&h, 0)
			} else {
				heap.Pop(&h)
			}
		}
		if err := w.Append(termID, docIDs, freqs); err != nil {
			return stats, fmt.Errorf("appending term %d: %w", termID, err)
		}
		stats.Terms++
		stats.Postings += len(docIDs)
		if contributors > 1 {
			stats.Combined++
		}
	}
	return stats, nil
}

func (c *cursor) advance() (bool, error) {
	if c.src.Next() {
		next := c.src.Entry()
		if c.entry.DocIDs != nil && next.TermID <= c.entry.TermID {
			return false, apperrors.Newf(apperrors.ErrMalformedIndex, "merge",
				"term %d follows term %d", next.TermID, c.entry.TermID)
		}
		c.entry = next
		return true, nil
	}
	return false, c.src.Err()
}

// Postings merges two postings lists sorted by document id into one. A
// document present in both gets the sum of its frequencies. The inputs are
// not modified.
func Postings(aIDs, aFreqs, bIDs, bFreqs []uint32) ([]uint32, []uint32, error) {
	if len(aIDs) != len(aFreqs) || len(bIDs) != len(bFreqs) {
		return nil, nil, apperrors.New(apperrors.ErrPreconditionViolation, "merge", "postings and frequencies differ in length")
	}
	ids := make([]uint32, 0, len(aIDs)+len(bIDs))
	freqs := make([]uint32, 0, len(aIDs)+len(bIDs))
	i, j := 0, 0
	for i < len(aIDs) && j < len(bIDs) {
		switch {
		case aIDs[i] < bIDs[j]:
			ids = append(ids, aIDs[i])
			freqs = append(freqs, aFreqs[i])
			i++
		case aIDs[i] > bIDs[j]:
			ids = append(ids, bIDs[j])
			freqs = append(freqs, bFreqs[j])
			j++
		default:
			ids = append(ids, aIDs[i])
			freqs = append(freqs, aFreqs[i]+bFreqs[j])
			i++
			j++
		}
	}
	ids = append(ids, aIDs[i:]...)
	freqs = append(freqs, aFreqs[i:]...)
	ids = append(ids, bIDs[j:]...)
	freqs = append(freqs, bFreqs[j:]...)
	return ids, freqs, nil
}
