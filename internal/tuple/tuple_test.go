package tuple

import (
	"bytes"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	id := uuid.New()
	cases := []Tuple{
		{nil},
		{true, false},
		{int64(-1), int64(0), int64(1), int64(1 << 40)},
		{uint64(0), uint64(1), uint64(1 << 40)},
		{float64(-1.5), float64(0), float64(1.5)},
		{[]byte("hello"), []byte{0x00, 0x01, 0x00}},
		{"hello", "with\x00embedded\x00nulls"},
		{id},
		{Tuple{"nested", int64(1), Tuple{"deep", nil}}},
		{"a", int64(1), true, nil, []byte("x")},
	}

	for _, c := range cases {
		packed := Pack(c)
		decoded, err := Unpack(packed)
		require.NoError(t, err)
		assert.Equal(t, normalize(c), normalize(decoded))
	}
}

// normalize collapses int/int64 distinctions introduced by literal `int`
// elements in test cases, since Pack always re-emits int64.
func normalize(t Tuple) Tuple {
	out := make(Tuple, len(t))
	for i, e := range t {
		if v, ok := e.(int); ok {
			out[i] = int64(v)
		} else if nested, ok := e.(Tuple); ok {
			out[i] = normalize(nested)
		} else {
			out[i] = e
		}
	}
	return out
}

func TestOrderPreservation(t *testing.T) {
	ints := []int64{-1 << 40, -100, -1, 0, 1, 100, 1 << 40}
	for i := range ints {
		for j := range ints {
			a, b := Pack(Tuple{ints[i]}), Pack(Tuple{ints[j]})
			wantLess := ints[i] < ints[j]
			gotLess := bytes.Compare(a, b) < 0
			if ints[i] != ints[j] {
				assert.Equal(t, wantLess, gotLess, "ints[%d]=%d vs ints[%d]=%d", i, ints[i], j, ints[j])
			}
		}
	}

	floats := []float64{-100.5, -1.0, -0.001, 0, 0.001, 1.0, 100.5}
	for i := range floats {
		for j := range floats {
			a, b := Pack(Tuple{floats[i]}), Pack(Tuple{floats[j]})
			wantLess := floats[i] < floats[j]
			gotLess := bytes.Compare(a, b) < 0
			if floats[i] != floats[j] {
				assert.Equal(t, wantLess, gotLess, "floats[%d]=%v vs floats[%d]=%v", i, floats[i], j, floats[j])
			}
		}
	}

	strs := []string{"", "a", "aa", "ab", "b", "b\x00", "ba"}
	packed := make([][]byte, len(strs))
	for i, s := range strs {
		packed[i] = Pack(Tuple{s})
	}
	sortedIdx := make([]int, len(strs))
	for i := range sortedIdx {
		sortedIdx[i] = i
	}
	sort.Slice(sortedIdx, func(i, j int) bool {
		return bytes.Compare(packed[sortedIdx[i]], packed[sortedIdx[j]]) < 0
	})
	wantOrder := []string{"", "a", "aa", "ab", "b", "b\x00", "ba"}
	gotOrder := make([]string, len(strs))
	for i, idx := range sortedIdx {
		gotOrder[i] = strs[idx]
	}
	assert.Equal(t, wantOrder, gotOrder)
}

func TestConcatenationPrefixOrder(t *testing.T) {
	a := Pack(Tuple{"customer", int64(1)})
	b := Pack(Tuple{"customer", int64(1), "extra"})
	assert.True(t, bytes.HasPrefix(b, a))
	assert.True(t, bytes.Compare(a, b) < 0)
}
