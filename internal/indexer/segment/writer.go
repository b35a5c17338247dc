package segment

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"log/slog"
	"os"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/bsbi-search/internal/indexer/postings"
	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Writer builds one named index. Postings are streamed to the data file as
// they are appended; the directory and the document length table are written
// on Close. The caller must always Close a Writer, including after an Append
// error, so the directory on disk matches the data file.
type Writer struct {
	dir        string
	name       string
	codec      postings.Codec
	file       *os.File
	buf        *bufio.Writer
	lock       *flock.Flock
	offset     int64
	dict       []DictEntry
	docLengths map[uint32]uint32
	lengths    map[uint32]uint32
	dataHash   hash.Hash32
	buildID    string
	lastTerm   uint32
	appended   bool
	closed     bool
	checksum   uint32
	logger     *slog.Logger
}

// Create opens the named index for exclusive writing, truncating any previous
// files with the same name. A nil codec selects postings.VByte.
func Create(dir, name string, codec postings.Codec) (*Writer, error) {
	if codec == nil {
		codec = postings.VByte{}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.IOf(err, "creating index directory %s", dir)
	}
	lock := flock.New(lockPath(dir, name))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, apperrors.IOf(err, "locking index %q", name)
	}
	if !locked {
		return nil, apperrors.Newf(apperrors.ErrPreconditionViolation, "segment",
			"index %q is already open for writing", name)
	}
	f, err := os.Create(DataPath(dir, name))
	if err != nil {
		_ = lock.Unlock()
		return nil, apperrors.IOf(err, "creating data file for index %q", name)
	}
	dataHash := crc32.NewIEEE()
	return &Writer{
		dir:        dir,
		name:       name,
		codec:      codec,
		file:       f,
		buf:        bufio.NewWriterSize(io.MultiWriter(f, dataHash), 64*1024),
		lock:       lock,
		docLengths: make(map[uint32]uint32),
		dataHash:   dataHash,
		logger:     slog.Default().With("component", "segment-writer", "index", name),
	}, nil
}

// Append encodes one postings list and records its directory entry. Term ids
// must be strictly increasing across calls.
func (w *Writer) Append(termID uint32, docIDs, termFreqs []uint32) error {
	if w.closed {
		return apperrors.Newf(apperrors.ErrPreconditionViolation, "segment", "append to closed index %q", w.name)
	}
	if w.appended && termID <= w.lastTerm {
		return apperrors.Newf(apperrors.ErrPreconditionViolation, "segment",
			"term %d appended after term %d", termID, w.lastTerm)
	}
	if len(docIDs) == 0 {
		return apperrors.Newf(apperrors.ErrPreconditionViolation, "segment", "empty postings for term %d", termID)
	}
	data, err := w.codec.Encode(docIDs, termFreqs)
	if err != nil {
		return fmt.Errorf("encoding postings for term %d: %w", termID, err)
	}
	if _, err := w.buf.Write(data); err != nil {
		return apperrors.IOf(err, "writing postings for term %d", termID)
	}
	w.dict = append(w.dict, DictEntry{
		TermID:  termID,
		Offset:  w.offset,
		Length:  len(data),
		DocFreq: len(docIDs),
	})
	w.offset += int64(len(data))
	for i, docID := range docIDs {
		w.docLengths[docID] += termFreqs[i]
	}
	w.lastTerm = termID
	w.appended = true
	return nil
}

// Terms returns the number of postings lists appended so far.
func (w *Writer) Terms() int {
	return len(w.dict)
}

// SetBuildID stamps the directory with the id of the build that produced it,
// so two builds never share a checksum even when their postings are equal.
func (w *Writer) SetBuildID(id string) {
	w.buildID = id
}

// SetDocLengths replaces the length table accumulated from term frequencies
// with the given token counts. Every document referenced by a postings list
// must have an entry.
func (w *Writer) SetDocLengths(lengths map[uint32]uint32) {
	w.lengths = lengths
}

// Checksum is the crc32 of the written directory payload, available after
// Close. It identifies this build of the index.
func (w *Writer) Checksum() uint32 {
	return w.checksum
}

// Close flushes the data file, writes the directory atomically and releases
// the write lock. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	if err := w.buf.Flush(); err != nil {
		errs = append(errs, apperrors.IOf(err, "flushing data file"))
	}
	if err := w.file.Sync(); err != nil {
		errs = append(errs, apperrors.IOf(err, "syncing data file"))
	}
	if err := w.file.Close(); err != nil {
		errs = append(errs, apperrors.IOf(err, "closing data file"))
	}
	if err := w.writeDirectory(); err != nil {
		errs = append(errs, err)
	}
	if err := w.lock.Unlock(); err != nil {
		errs = append(errs, apperrors.IOf(err, "unlocking index"))
	}
	_ = os.Remove(lockPath(w.dir, w.name))
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing index %q: %w", w.name, err)
	}
	w.logger.Debug("index closed",
		"terms", len(w.dict),
		"docs", len(w.docLengths),
		"data_bytes", w.offset,
	)
	return nil
}

func (w *Writer) writeDirectory() error {
	entries := w.dict
	if entries == nil {
		entries = []DictEntry{}
	}
	if w.lengths != nil {
		w.docLengths = w.lengths
	}
	payload, err := json.Marshal(directory{
		Codec:        w.codec.Name(),
		BuildID:      w.buildID,
		DataSize:     w.offset,
		DataChecksum: w.dataHash.Sum32(),
		Entries:      entries,
		DocLengths:   w.docLengths,
	})
	if err != nil {
		return fmt.Errorf("marshaling directory: %w", err)
	}
	w.checksum = crc32.ChecksumIEEE(payload)
	header := Header{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		TermCount:   uint32(len(entries)),
		DocCount:    uint32(len(w.docLengths)),
		PayloadSize: uint64(len(payload)),
		Checksum:    w.checksum,
	}
	finalPath := DictPath(w.dir, w.name)
	tmpPath := finalPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return apperrors.IOf(err, "creating directory file")
	}
	if err := writeSynced(f, header.marshal(), payload); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return apperrors.IOf(err, "closing directory file")
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return apperrors.IOf(err, "renaming directory file")
	}
	return nil
}

func writeSynced(f *os.File, header, payload []byte) error {
	if _, err := f.Write(header); err != nil {
		return apperrors.IOf(err, "writing directory header")
	}
	if _, err := f.Write(payload); err != nil {
		return apperrors.IOf(err, "writing directory")
	}
	if err := f.Sync(); err != nil {
		return apperrors.IOf(err, "syncing directory file")
	}
	return nil
}
