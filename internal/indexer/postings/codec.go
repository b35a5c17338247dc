// Package postings encodes a sorted document-id list and its aligned term
// frequency list into a compact byte slice.
//
// The default VByte codec stores document ids as gaps from the previous id
// (the first id as-is) and writes every gap and every frequency as a
// variable-byte integer: 7 data bits per byte, most-significant group first,
// high bit set on every byte except the last of a number. The gaps come first,
// followed by the frequencies, so the list length is half the number count.
package postings

import (
	"encoding/binary"
	"fmt"
	"math"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

// Codec encodes and decodes one postings list. Decode(Encode(x)) == x for
// every valid input.
type Codec interface {
	Name() string
	Encode(docIDs, termFreqs []uint32) ([]byte, error)
	Decode(data []byte) (docIDs, termFreqs []uint32, err error)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch name {
	case VByte{}.Name():
		return VByte{}, nil
	case Standard{}.Name():
		return Standard{}, nil
	default:
		return nil, apperrors.Newf(apperrors.ErrMalformedIndex, "postings", "unknown codec %q", name)
	}
}

// Validate checks the postings invariants shared by every codec: aligned
// lengths, strictly increasing ids and positive frequencies.
func Validate(docIDs, termFreqs []uint32) error {
	if len(docIDs) != len(termFreqs) {
		return apperrors.Newf(apperrors.ErrPreconditionViolation, "postings",
			"%d doc ids but %d term frequencies", len(docIDs), len(termFreqs))
	}
	for i, id := range docIDs {
		if i > 0 && id <= docIDs[i-1] {
			return apperrors.Newf(apperrors.ErrPreconditionViolation, "postings",
				"doc ids not strictly increasing at position %d (%d after %d)", i, id, docIDs[i-1])
		}
		if termFreqs[i] == 0 {
			return apperrors.Newf(apperrors.ErrPreconditionViolation, "postings",
				"zero term frequency for doc %d", id)
		}
	}
	return nil
}

// VByte is the gap + variable-byte codec.
type VByte struct{}

func (VByte) Name() string { return "vbyte" }

func (VByte) Encode(docIDs, termFreqs []uint32) ([]byte, error) {
	if err := Validate(docIDs, termFreqs); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 2*len(docIDs))
	var prev uint32
	for i, id := range docIDs {
		gap := id
		if i > 0 {
			gap = id - prev
		}
		out = AppendNumber(out, gap)
		prev = id
	}
	for _, tf := range termFreqs {
		out = AppendNumber(out, tf)
	}
	return out, nil
}

func (VByte) Decode(data []byte) ([]uint32, []uint32, error) {
	numbers, err := DecodeNumbers(data)
	if err != nil {
		return nil, nil, err
	}
	if len(numbers)%2 != 0 {
		return nil, nil, apperrors.Newf(apperrors.ErrMalformedIndex, "postings",
			"odd number count %d", len(numbers))
	}
	n := len(numbers) / 2
	docIDs := make([]uint32, n)
	termFreqs := make([]uint32, n)
	var acc uint64
	for i := 0; i < n; i++ {
		acc += uint64(numbers[i])
		if acc > math.MaxUint32 {
			return nil, nil, apperrors.New(apperrors.ErrMalformedIndex, "postings", "doc id overflow")
		}
		if i > 0 && numbers[i] == 0 {
			return nil, nil, apperrors.Newf(apperrors.ErrMalformedIndex, "postings",
				"zero gap at position %d", i)
		}
		docIDs[i] = uint32(acc)
		tf := numbers[n+i]
		if tf == 0 {
			return nil, nil, apperrors.Newf(apperrors.ErrMalformedIndex, "postings",
				"zero term frequency at position %d", i)
		}
		termFreqs[i] = tf
	}
	return docIDs, termFreqs, nil
}

// AppendNumber appends the variable-byte form of n to dst.
func AppendNumber(dst []byte, n uint32) []byte {
	var buf [5]byte
	i := len(buf) - 1
	buf[i] = byte(n & 0x7f)
	n >>= 7
	for n > 0 {
		i--
		buf[i] = byte(n&0x7f) | 0x80
		n >>= 7
	}
	return append(dst, buf[i:]...)
}

// DecodeNumbers reads a stream of variable-byte integers.
func DecodeNumbers(data []byte) ([]uint32, error) {
	numbers := make([]uint32, 0, len(data))
	var acc uint64
	var width int
	for _, b := range data {
		acc = acc<<7 | uint64(b&0x7f)
		width++
		if width > 5 || acc > math.MaxUint32 {
			return nil, apperrors.New(apperrors.ErrMalformedIndex, "postings", "variable-byte integer overflow")
		}
		if b&0x80 == 0 {
			numbers = append(numbers, uint32(acc))
			acc = 0
			width = 0
		}
	}
	if width != 0 {
		return nil, apperrors.New(apperrors.ErrMalformedIndex, "postings", "truncated variable-byte integer")
	}
	return numbers, nil
}

// Standard stores ids and frequencies as fixed 4-byte little-endian words. It
// is the uncompressed baseline the variable-byte codec is measured against.
type Standard struct{}

func (Standard) Name() string { return "standard" }

func (Standard) Encode(docIDs, termFreqs []uint32) ([]byte, error) {
	if err := Validate(docIDs, termFreqs); err != nil {
		return nil, err
	}
	out := make([]byte, 0, 8*len(docIDs))
	for _, id := range docIDs {
		out = binary.LittleEndian.AppendUint32(out, id)
	}
	for _, tf := range termFreqs {
		out = binary.LittleEndian.AppendUint32(out, tf)
	}
	return out, nil
}

func (Standard) Decode(data []byte) ([]uint32, []uint32, error) {
	if len(data)%8 != 0 {
		return nil, nil, apperrors.Newf(apperrors.ErrMalformedIndex, "postings",
			"standard postings length %d is not a multiple of 8", len(data))
	}
	n := len(data) / 8
	docIDs := make([]uint32, n)
	termFreqs := make([]uint32, n)
	for i := 0; i < n; i++ {
		docIDs[i] = binary.LittleEndian.Uint32(data[4*i:])
		termFreqs[i] = binary.LittleEndian.Uint32(data[4*(n+i):])
	}
	if err := Validate(docIDs, termFreqs); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", apperrors.ErrMalformedIndex, err)
	}
	return docIDs, termFreqs, nil
}
