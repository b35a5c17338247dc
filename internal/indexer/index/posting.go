package index

import "fmt"

// Pair is one (term, document) occurrence emitted by block building.
type Pair struct {
	TermID uint32
	DocID  uint32
}

// TermEntry is one term's postings list: document ids strictly increasing,
// with TermFreqs positionally aligned.
type TermEntry struct {
	TermID    uint32
	DocIDs    []uint32
	TermFreqs []uint32
}

// DocFreq is the number of documents containing the term.
func (e TermEntry) DocFreq() int {
	return len(e.DocIDs)
}

// Appender receives postings lists in strictly increasing term-id order.
// The segment writer implements it.
type Appender interface {
	Append(termID uint32, docIDs, termFreqs []uint32) error
}

// FrequencyMode selects how repeated (term, document) pairs are counted.
type FrequencyMode int

const (
	// CountOccurrences records the true number of occurrences.
	CountOccurrences FrequencyMode = iota
	// Presence records 1 for every term present in a document, matching
	// indices built from a de-duplicated pair set.
	Presence
)

func (m FrequencyMode) String() string {
	switch m {
	case CountOccurrences:
		return "count"
	case Presence:
		return "presence"
	default:
		return fmt.Sprintf("FrequencyMode(%d)", int(m))
	}
}

// ParseFrequencyMode maps the configuration spelling to a FrequencyMode.
func ParseFrequencyMode(s string) (FrequencyMode, error) {
	switch s {
	case "count", "":
		return CountOccurrences, nil
	case "presence":
		return Presence, nil
	default:
		return 0, fmt.Errorf("unknown frequency mode %q", s)
	}
}
