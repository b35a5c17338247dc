package index

import (
	"fmt"
	"sort"
)

// MemoryIndex inverts one block's (term, document) pairs in memory. It holds
// no state shared with other blocks, so separate blocks can be inverted on
// separate goroutines.
type MemoryIndex struct {
	index map[uint32]map[uint32]uint32
	mode  FrequencyMode
	pairs int
	docs  map[uint32]struct{}
}

func NewMemoryIndex(mode FrequencyMode) *MemoryIndex {
	return &MemoryIndex{
		index: make(map[uint32]map[uint32]uint32),
		mode:  mode,
		docs:  make(map[uint32]struct{}),
	}
}

// Add records one occurrence of the pair.
func (m *MemoryIndex) Add(p Pair) {
	docs, ok := m.index[p.TermID]
	if !ok {
		docs = make(map[uint32]uint32)
		m.index[p.TermID] = docs
	}
	switch m.mode {
	case Presence:
		docs[p.DocID] = 1
	default:
		docs[p.DocID]++
	}
	m.docs[p.DocID] = struct{}{}
	m.pairs++
}

func (m *MemoryIndex) AddAll(pairs []Pair) {
	for _, p := range pairs {
		m.Add(p)
	}
}

// Snapshot returns every term's postings, terms ascending, documents
// ascending within each term.
func (m *MemoryIndex) Snapshot() []TermEntry {
	termIDs := make([]uint32, 0, len(m.index))
	for termID := range m.index {
		termIDs = append(termIDs, termID)
	}
	sort.Slice(termIDs, func(i, j int) bool { return termIDs[i] < termIDs[j] })

	entries := make([]TermEntry, 0, len(termIDs))
	for _, termID := range termIDs {
		entries = append(entries, m.entry(termID))
	}
	return entries
}

func (m *MemoryIndex) entry(termID uint32) TermEntry {
	docs := m.index[termID]
	docIDs := make([]uint32, 0, len(docs))
	for docID := range docs {
		docIDs = append(docIDs, docID)
	}
	sort.Slice(docIDs, func(i, j int) bool { return docIDs[i] < docIDs[j] })
	freqs := make([]uint32, len(docIDs))
	for i, docID := range docIDs {
		freqs[i] = docs[docID]
	}
	return TermEntry{TermID: termID, DocIDs: docIDs, TermFreqs: freqs}
}

// WriteTo appends every postings list to w in ascending term order.
func (m *MemoryIndex) WriteTo(w Appender) error {
	for _, e := range m.Snapshot() {
		if err := w.Append(e.TermID, e.DocIDs, e.TermFreqs); err != nil {
			return fmt.Errorf("appending term %d: %w", e.TermID, err)
		}
	}
	return nil
}

func (m *MemoryIndex) Terms() int {
	return len(m.index)
}

func (m *MemoryIndex) DocCount() int {
	return len(m.docs)
}

func (m *MemoryIndex) Pairs() int {
	return m.pairs
}

// Invert aggregates pairs and writes the resulting postings through w.
func Invert(pairs []Pair, mode FrequencyMode, w Appender) (*MemoryIndex, error) {
	m := NewMemoryIndex(mode)
	m.AddAll(pairs)
	if err := m.WriteTo(w); err != nil {
		return nil, err
	}
	return m, nil
}
