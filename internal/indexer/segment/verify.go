package segment

import (
	"github.com/RoaringBitmap/roaring/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// VerifyReport summarises a full scan of an index.
type VerifyReport struct {
	Terms        int     `json:"terms"`
	Postings     uint64  `json:"postings"`
	Documents    uint64  `json:"documents"`
	MaxDocFreq   int     `json:"max_doc_freq"`
	AvgDocLength float64 `json:"avg_doc_length"`
	DataBytes    int64   `json:"data_bytes"`
}

// Verify checks the data file checksum, decodes every postings list and
// checks the index invariants: ids strictly increasing, document frequency equal to the list length, and every
// referenced document present in the length table.
func Verify(r *Reader) (VerifyReport, error) {
	report := VerifyReport{AvgDocLength: r.AvgDocLength()}
	if err := r.checkData(); err != nil {
		return report, err
	}
	seen := roaring.New()
	it := r.Iterator()
	for it.Next() {
		e := it.Entry()
		for i, docID := range e.DocIDs {
			if i > 0 && docID <= e.DocIDs[i-1] {
				return report, apperrors.Newf(apperrors.ErrMalformedIndex, "verify",
					"term %d: doc ids not strictly increasing at position %d", e.TermID, i)
			}
			if _, ok := r.DocLength(docID); !ok {
				return report, apperrors.Newf(apperrors.ErrMalformedIndex, "verify",
					"term %d references doc %d with no length entry", e.TermID, docID)
			}
		}
		seen.AddMany(e.DocIDs)
		report.Terms++
		report.Postings += uint64(len(e.DocIDs))
		if len(e.DocIDs) > report.MaxDocFreq {
			report.MaxDocFreq = len(e.DocIDs)
		}
	}
	if err := it.Err(); err != nil {
		return report, err
	}
	report.Documents = seen.GetCardinality()
	if int(report.Documents) != r.DocCount() {
		return report, apperrors.Newf(apperrors.ErrMalformedIndex, "verify",
			"postings reference %d documents, length table has %d", report.Documents, r.DocCount())
	}
	for _, e := range r.dict {
		report.DataBytes += int64(e.Length)
	}
	return report, nil
}
