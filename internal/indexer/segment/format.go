// Package segment reads and writes named on-disk indices. A named index is a
// pair of files: <name>.index holds the encoded postings lists back to back,
// and <name>.dict holds a fixed header followed by a checksummed JSON
// directory (term id -> offset, length, document frequency) and the
// per-document length table.
package segment

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// MagicBytes identifies a valid directory file ("BSBD").
const (
	MagicBytes    uint32 = 0x42534244
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
)

const (
	dataExt = ".index"
	dictExt = ".dict"
	lockExt = ".lock"
)

// Header is the fixed-size prefix of every directory file.
type Header struct {
	Magic       uint32
	Version     uint32
	TermCount   uint32
	DocCount    uint32
	PayloadSize uint64
	Checksum    uint32
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.PayloadSize)
	binary.LittleEndian.PutUint32(buf[24:28], h.Checksum)
	return buf
}

func unmarshalHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"directory header is %d bytes, want %d", len(buf), HeaderSize)
	}
	h := Header{
		Magic:       binary.LittleEndian.Uint32(buf[0:4]),
		Version:     binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:   binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:    binary.LittleEndian.Uint32(buf[12:16]),
		PayloadSize: binary.LittleEndian.Uint64(buf[16:24]),
		Checksum:    binary.LittleEndian.Uint32(buf[24:28]),
	}
	if h.Magic != MagicBytes {
		return Header{}, apperrors.Newf(apperrors.ErrMalformedIndex, "segment", "bad magic bytes %x", h.Magic)
	}
	if h.Version != FormatVersion {
		return Header{}, apperrors.Newf(apperrors.ErrMalformedIndex, "segment", "unsupported version %d", h.Version)
	}
	return h, nil
}

// DictEntry locates one term's postings in the data file.
type DictEntry struct {
	TermID  uint32 `json:"t"`
	Offset  int64  `json:"o"`
	Length  int    `json:"l"`
	DocFreq int    `json:"d"`
}

// directory is the JSON payload of a .dict file.
type directory struct {
	Codec        string            `json:"codec"`
	BuildID      string            `json:"build_id,omitempty"`
	DataSize     int64             `json:"data_size"`
	DataChecksum uint32            `json:"data_crc"`
	Entries      []DictEntry       `json:"terms"`
	DocLengths   map[uint32]uint32 `json:"doc_length"`
}

// DataPath returns the postings file of the named index.
func DataPath(dir, name string) string {
	return filepath.Join(dir, name+dataExt)
}

// DictPath returns the directory file of the named index.
func DictPath(dir, name string) string {
	return filepath.Join(dir, name+dictExt)
}

func lockPath(dir, name string) string {
	return filepath.Join(dir, name+lockExt)
}

// Exists reports whether both files of the named index are present.
func Exists(dir, name string) bool {
	if _, err := os.Stat(DataPath(dir, name)); err != nil {
		return false
	}
	_, err := os.Stat(DictPath(dir, name))
	return err == nil
}

// Remove deletes both files of the named index.
func Remove(dir, name string) error {
	for _, p := range []string{DataPath(dir, name), DictPath(dir, name)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return apperrors.IOf(err, "removing %s", p)
		}
	}
	return nil
}

func checkDirectory(d *directory, h Header) error {
	if int(h.TermCount) != len(d.Entries) {
		return apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"header declares %d terms, directory has %d", h.TermCount, len(d.Entries))
	}
	if int(h.DocCount) != len(d.DocLengths) {
		return apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
			"header declares %d documents, length table has %d", h.DocCount, len(d.DocLengths))
	}
	for i, e := range d.Entries {
		if i > 0 && e.TermID <= d.Entries[i-1].TermID {
			return apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
				"directory not in term order at entry %d", i)
		}
		if e.Offset < 0 || e.Length <= 0 || e.Offset+int64(e.Length) > d.DataSize {
			return apperrors.Newf(apperrors.ErrMalformedIndex, "segment",
				"term %d points outside data section (offset %d, length %d, data %d)",
				e.TermID, e.Offset, e.Length, d.DataSize)
		}
		if e.DocFreq <= 0 {
			return fmt.Errorf("%w: term %d has document frequency %d", apperrors.ErrMalformedIndex, e.TermID, e.DocFreq)
		}
	}
	return nil
}
