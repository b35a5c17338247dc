package segment

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/postings"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Reader gives random access to one named index. The directory and the
// document length table are loaded on Open; postings are read with ReadAt, so
// one Reader can serve concurrent lookups.
type Reader struct {
	file       *os.File
	name       string
	header     Header
	buildID    string
	dataCRC    uint32
	dataSize   int64
	codec      postings.Codec
	dict       []DictEntry
	docLengths map[uint32]uint32
	totalLen   uint64
	cache      *lru.Cache[uint32, index.TermEntry]
}

// Open loads the named index. cacheSize > 0 keeps that many decoded postings
// lists in an LRU; slices returned from a cached lookup are shared and must
// not be modified.
func Open(dir, name string, cacheSize int) (*Reader, error) {
	dictBytes, err := os.ReadFile(DictPath(dir, name))
	if err != nil {
		return nil, apperrors.IOf(err, "reading directory of index %q", name)
	}
	header, err := unmarshalHeader(dictBytes)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", name, err)
	}
	payload := dictBytes[HeaderSize:]
	if uint64(len(payload)) != header.PayloadSize {
		return nil, apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"index %q: directory payload is %d bytes, header says %d", name, len(payload), header.PayloadSize)
	}
	if crc32.ChecksumIEEE(payload) != header.Checksum {
		return nil, apperrors.Newf(apperrors.ErrMalformedIndex, "segment", "index %q: directory checksum mismatch", name)
	}
	var d directory
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("index %q: parsing directory: %w: %w", name, apperrors.ErrMalformedIndex, err)
	}
	if err := checkDirectory(&d, header); err != nil {
		return nil, fmt.Errorf("index %q: %w", name, err)
	}
	codec, err := postings.ByName(d.Codec)
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", name, err)
	}

	f, err := os.Open(DataPath(dir, name))
	if err != nil {
		return nil, apperrors.IOf(err, "opening data file of index %q", name)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, apperrors.IOf(err, "stat data file of index %q", name)
	}
	if info.Size() != d.DataSize {
		f.Close()
		return nil, apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"index %q: data file is %d bytes, directory expects %d", name, info.Size(), d.DataSize)
	}

	r := &Reader{
		file:       f,
		name:       name,
		header:     header,
		buildID:    d.BuildID,
		dataCRC:    d.DataChecksum,
		dataSize:   d.DataSize,
		codec:      codec,
		dict:       d.Entries,
		docLengths: d.DocLengths,
	}
	if r.docLengths == nil {
		r.docLengths = make(map[uint32]uint32)
	}
	for _, l := range r.docLengths {
		r.totalLen += uint64(l)
	}
	if cacheSize > 0 {
		cache, err := lru.New[uint32, index.TermEntry](cacheSize)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating postings cache: %w", err)
		}
		r.cache = cache
	}
	return r, nil
}

func (r *Reader) lookup(termID uint32) (DictEntry, bool) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].TermID >= termID
	})
	if i >= len(r.dict) || r.dict[i].TermID != termID {
		return DictEntry{}, false
	}
	return r.dict[i], true
}

// Postings returns the document ids and aligned term frequencies of termID.
func (r *Reader) Postings(termID uint32) ([]uint32, []uint32, error) {
	if r.cache != nil {
		if e, ok := r.cache.Get(termID); ok {
			return e.DocIDs, e.TermFreqs, nil
		}
	}
	entry, ok := r.lookup(termID)
	if !ok {
		return nil, nil, apperrors.Newf(apperrors.ErrNotFound, "segment", "term %d not in index %q", termID, r.name)
	}
	e, err := r.read(entry)
	if err != nil {
		return nil, nil, err
	}
	if r.cache != nil {
		r.cache.Add(termID, e)
	}
	return e.DocIDs, e.TermFreqs, nil
}

func (r *Reader) read(entry DictEntry) (index.TermEntry, error) {
	buf := make([]byte, entry.Length)
	if _, err := r.file.ReadAt(buf, entry.Offset); err != nil {
		if err == io.EOF {
			return index.TermEntry{}, apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
				"index %q: short read for term %d", r.name, entry.TermID)
		}
		return index.TermEntry{}, apperrors.IOf(err, "reading postings of term %d", entry.TermID)
	}
	docIDs, freqs, err := r.codec.Decode(buf)
	if err != nil {
		return index.TermEntry{}, fmt.Errorf("index %q: decoding term %d: %w", r.name, entry.TermID, err)
	}
	if len(docIDs) != entry.DocFreq {
		return index.TermEntry{}, apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"index %q: term %d decoded %d postings, directory says %d", r.name, entry.TermID, len(docIDs), entry.DocFreq)
	}
	return index.TermEntry{TermID: entry.TermID, DocIDs: docIDs, TermFreqs: freqs}, nil
}

// DocFreq returns the document frequency recorded for termID.
func (r *Reader) DocFreq(termID uint32) (int, error) {
	entry, ok := r.lookup(termID)
	if !ok {
		return 0, apperrors.Newf(apperrors.ErrNotFound, "segment", "term %d not in index %q", termID, r.name)
	}
	return entry.DocFreq, nil
}

// DocLength returns the token count of docID and whether it is known.
func (r *Reader) DocLength(docID uint32) (uint32, bool) {
	l, ok := r.docLengths[docID]
	return l, ok
}

// AvgDocLength is the mean over the document length table.
func (r *Reader) AvgDocLength() float64 {
	if len(r.docLengths) == 0 {
		return 0
	}
	return float64(r.totalLen) / float64(len(r.docLengths))
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() int {
	return len(r.docLengths)
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) Codec() postings.Codec {
	return r.codec
}

// Generation is the directory checksum. The directory carries the build id
// and the data file checksum, so every rebuild gets a new generation.
func (r *Reader) Generation() uint32 {
	return r.header.Checksum
}

// BuildID is the id of the build that wrote the index, empty when the writer
// was never stamped.
func (r *Reader) BuildID() string {
	return r.buildID
}

// checkData compares the data file against the checksum in the directory.
func (r *Reader) checkData() error {
	h := crc32.NewIEEE()
	if _, err := io.Copy(h, io.NewSectionReader(r.file, 0, r.dataSize)); err != nil {
		return apperrors.IOf(err, "reading data file of index %q", r.name)
	}
	if h.Sum32() != r.dataCRC {
		return apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"index %q: data file checksum mismatch", r.name)
	}
	return nil
}

// Iterator walks every postings list in ascending term-id order.
func (r *Reader) Iterator() *Iterator {
	return &Iterator{r: r, pos: -1}
}

func (r *Reader) Close() error {
	if err := r.file.Close(); err != nil {
		return apperrors.IOf(err, "closing index %q", r.name)
	}
	return nil
}

// Iterator is a forward cursor over a Reader's entries.
type Iterator struct {
	r     *Reader
	pos   int
	entry index.TermEntry
	err   error
}

// Next advances to the next entry, returning false at the end or on error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	it.pos++
	if it.pos >= len(it.r.dict) {
		return false
	}
	it.entry, it.err = it.r.read(it.r.dict[it.pos])
	return it.err == nil
}

func (it *Iterator) Entry() index.TermEntry {
	return it.entry
}

func (it *Iterator) Err() error {
	return it.err
}
