// Package block turns the raw documents of one collection block into
// (term id, document id) pairs.
package block

import (
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/idmap"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/logger"
)

// Builder parses blocks under a collection root. It mutates the shared term
// and document maps and must not be used from more than one goroutine.
type Builder struct {
	root     string
	analyzer analysis.Analyzer
	terms    *idmap.Map
	docs     *idmap.Map
	logger   *slog.Logger
}

// Result is the output of parsing one block. DocLengths holds the token
// count of every document that produced at least one token.
type Result struct {
	Block      string
	Pairs      []index.Pair
	DocLengths map[uint32]uint32
	Documents  int
}

func NewBuilder(root string, analyzer analysis.Analyzer, terms, docs *idmap.Map) *Builder {
	return &Builder{
		root:     root,
		analyzer: analyzer,
		terms:    terms,
		docs:     docs,
		logger:   logger.WithComponent("block-builder"),
	}
}

// Build reads every regular file of the named block in lexical order and
// emits one pair per token occurrence. Document keys are "<block>/<file>".
// The whole block is held in memory.
func (b *Builder) Build(block string) (Result, error) {
	dir := filepath.Join(b.root, block)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Result{}, apperrors.IOf(err, "listing block %q", block)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	res := Result{Block: block, DocLengths: make(map[uint32]uint32)}
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return Result{}, apperrors.IOf(err, "reading document %s/%s", block, name)
		}
		docID := b.docs.Intern(path.Join(block, name))
		tokens := b.analyzer.Analyze(string(raw))
		for _, token := range tokens {
			res.Pairs = append(res.Pairs, index.Pair{
				TermID: b.terms.Intern(token),
				DocID:  docID,
			})
		}
		if len(tokens) > 0 {
			res.DocLengths[docID] = uint32(len(tokens))
		}
		res.Documents++
	}
	b.logger.Debug("block parsed",
		"block", block,
		"documents", res.Documents,
		"pairs", len(res.Pairs),
	)
	return res, nil
}

// Blocks lists the block subdirectories of root in lexical order.
func Blocks(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, apperrors.IOf(err, "listing collection %s", root)
	}
	var blocks []string
	for _, e := range entries {
		if e.IsDir() {
			blocks = append(blocks, e.Name())
		}
	}
	sort.Strings(blocks)
	if len(blocks) == 0 {
		return nil, fmt.Errorf("collection %s: %w", root,
			apperrors.New(apperrors.ErrPreconditionViolation, "block", "no block directories"))
	}
	return blocks, nil
}
