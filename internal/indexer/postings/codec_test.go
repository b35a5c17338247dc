package postings

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bsbi-search/pkg/errors"
)

func TestAppendNumber_KnownEncodings(t *testing.T) {
	tests := []struct {
		n    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{5, []byte{0x05}},
		{127, []byte{0x7f}},
		{128, []byte{0x81, 0x00}},
		{130, []byte{0x81, 0x02}},
		{824, []byte{0x86, 0x38}},
		{16384, []byte{0x81, 0x80, 0x00}},
		{math.MaxUint32, []byte{0x8f, 0xff, 0xff, 0xff, 0x7f}},
	}
	for _, tt := range tests {
		got := AppendNumber(nil, tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)

		back, err := DecodeNumbers(got)
		require.NoError(t, err)
		assert.Equal(t, []uint32{tt.n}, back)
	}
}

func TestVByte_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		ids   []uint32
		freqs []uint32
	}{
		{"single element", []uint32{7}, []uint32{1}},
		{"first id zero", []uint32{0, 1, 2}, []uint32{3, 1, 1}},
		{"gaps of one", []uint32{10, 11, 12, 13}, []uint32{1, 2, 3, 4}},
		{"large gaps", []uint32{3, 130, 100000, math.MaxUint32}, []uint32{1, 200, 1, 70000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := VByte{}.Encode(tt.ids, tt.freqs)
			require.NoError(t, err)
			ids, freqs, err := VByte{}.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, ids)
			assert.Equal(t, tt.freqs, freqs)
		})
	}
}

func TestCodecs_RandomRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, codec := range []Codec{VByte{}, Standard{}} {
		for round := 0; round < 200; round++ {
			ids, freqs := randomPostings(rng, 1+rng.Intn(300))
			data, err := codec.Encode(ids, freqs)
			require.NoError(t, err)
			gotIDs, gotFreqs, err := codec.Decode(data)
			require.NoError(t, err, codec.Name())
			require.Equal(t, ids, gotIDs, codec.Name())
			require.Equal(t, freqs, gotFreqs, codec.Name())
		}
	}
}

func TestVByte_SmallerThanStandard(t *testing.T) {
	ids := []uint32{1, 2, 3, 5, 8, 13, 21, 34}
	freqs := []uint32{1, 1, 2, 1, 1, 3, 1, 1}
	v, err := VByte{}.Encode(ids, freqs)
	require.NoError(t, err)
	s, err := Standard{}.Encode(ids, freqs)
	require.NoError(t, err)
	assert.Len(t, v, 16)
	assert.Len(t, s, 64)
}

func TestEncode_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		ids   []uint32
		freqs []uint32
	}{
		{"misaligned", []uint32{1, 2}, []uint32{1}},
		{"duplicate id", []uint32{1, 1}, []uint32{1, 1}},
		{"decreasing", []uint32{5, 2}, []uint32{1, 1}},
		{"zero frequency", []uint32{1}, []uint32{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VByte{}.Encode(tt.ids, tt.freqs)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrPreconditionViolation))
		})
	}
}

func TestVByte_DecodeCorrupt(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"truncated", []byte{0x05, 0x81}},
		{"odd count", []byte{0x01, 0x02, 0x01}},
		{"overflow", []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}},
		{"zero frequency", []byte{0x01, 0x00}},
		{"zero gap", []byte{0x01, 0x00, 0x01, 0x01}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := VByte{}.Decode(tt.data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrMalformedIndex))
		})
	}
}

func TestByName(t *testing.T) {
	c, err := ByName("vbyte")
	require.NoError(t, err)
	assert.Equal(t, VByte{}, c)

	_, err = ByName("elias-gamma")
	assert.True(t, errors.Is(err, apperrors.ErrMalformedIndex))
}

func randomPostings(rng *rand.Rand, n int) ([]uint32, []uint32) {
	seen := make(map[uint32]struct{}, n)
	ids := make([]uint32, 0, n)
	for len(ids) < n {
		var id uint32
		if rng.Intn(2) == 0 {
			id = uint32(rng.Intn(5 * n))
		} else {
			id = rng.Uint32()
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	freqs := make([]uint32, n)
	for i := range freqs {
		freqs[i] = 1 + uint32(rng.Intn(1000))
	}
	return ids, freqs
}
