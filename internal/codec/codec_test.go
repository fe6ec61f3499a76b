package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeScalarFields(t *testing.T) {
	rec := Record{
		{Tag: 1, Value: int64(42)},
		{Tag: 2, Value: "hello"},
		{Tag: 3, Value: 3.5},
	}

	w := NewWire()
	data, err := w.Encode(rec)
	require.NoError(t, err)

	got, err := w.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, uint32(1), got[0].Tag)
	assert.Equal(t, int64(42), got[0].Value)

	assert.Equal(t, uint32(2), got[1].Tag)
	s, err := AsString(got[1].Value)
	require.NoError(t, err)
	assert.Equal(t, "hello", s)

	assert.Equal(t, uint32(3), got[2].Tag)
	assert.Equal(t, 3.5, got[2].Value)
}

func TestEncodeDecodeNestedMessage(t *testing.T) {
	inner := Record{{Tag: 1, Value: "nested"}}
	rec := Record{{Tag: 1, Value: inner}}

	w := NewWire()
	data, err := w.Encode(rec)
	require.NoError(t, err)

	got, err := w.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 1)

	nested, err := AsMessage(got[0].Value)
	require.NoError(t, err)
	require.Len(t, nested, 1)
	s, err := AsString(nested[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "nested", s)
}

func TestEncodeDecodeRepeatedMessage(t *testing.T) {
	rec := Record{
		{Tag: 5, Value: []Record{
			{{Tag: 1, Value: int64(1)}},
			{{Tag: 1, Value: int64(2)}},
		}},
	}

	w := NewWire()
	data, err := w.Encode(rec)
	require.NoError(t, err)

	got, err := w.Decode(data)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, f := range got {
		assert.Equal(t, uint32(5), f.Tag)
	}

	first, err := AsMessage(got[0].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first[0].Value)

	second, err := AsMessage(got[1].Value)
	require.NoError(t, err)
	assert.Equal(t, int64(2), second[0].Value)
}

func TestEncodeUnsupportedValueType(t *testing.T) {
	rec := Record{{Tag: 1, Value: struct{ X int }{X: 1}}}

	w := NewWire()
	_, err := w.Encode(rec)
	require.Error(t, err)
}

func TestEncodeInvalidTag(t *testing.T) {
	rec := Record{{Tag: 0, Value: int64(1)}}

	w := NewWire()
	_, err := w.Encode(rec)
	require.Error(t, err)
}
