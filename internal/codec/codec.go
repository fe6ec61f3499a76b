/*
Package codec is Strata's external Codec collaborator (spec.md §6): a
length-prefixed, field-tagged binary encoding for items. Exact field-to-tag
mapping is the job of the out-of-scope metadata generator (spec.md's
explicit non-goal), so this package operates on a Record — an ordered list
of already-tagged Field values — rather than reflecting over Go structs.

The wire format is built directly on
google.golang.org/protobuf/encoding/protowire's varint, fixed64, and
length-delimited primitives, the same low-level building blocks gRPC's
generated marshalers use, without requiring a .proto file or generated
stubs: tag numbers are caller-assigned (spec.md: "derived from the declared
field order (1-based) or explicit tag overrides"), and BytesType payloads
are handed back to the caller as raw bytes for the caller to interpret as a
string or a nested Record, since the out-of-scope generator is what would
normally know which.
*/
package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/strata-db/strata/internal/errs"
)

// Field is one tagged value in a Record. Exactly one of the typed fields is
// meaningful, selected by the dynamic type stored in Value.
//
// Supported Value types: int64 (varint), float64 (fixed64), []byte or
// string (length-delimited), Record (length-delimited nested message), and
// []Record (repeated nested message, encoded as repeated same-tag fields
// the way protobuf encodes repeated message fields).
type Field struct {
	Tag   uint32
	Value any
}

// Record is an ordered sequence of tagged fields: the in-memory form the
// Codec interface encodes from and decodes to.
type Record []Field

// Codec is the external collaborator interface items are serialized
// through; itemstore depends only on this, never on a concrete encoding.
type Codec interface {
	Encode(rec Record) ([]byte, error)
	Decode(data []byte) (Record, error)
}

// Wire is the reference Codec implementation described above.
type Wire struct{}

// NewWire returns the reference protowire-based Codec.
func NewWire() Wire { return Wire{} }

// Encode implements Codec.
func (Wire) Encode(rec Record) ([]byte, error) {
	return encodeRecord(rec)
}

// Decode implements Codec.
func (Wire) Decode(data []byte) (Record, error) {
	return decodeRecord(data)
}

func encodeRecord(rec Record) ([]byte, error) {
	var b []byte
	for _, f := range rec {
		num := protowire.Number(f.Tag)
		if !num.IsValid() {
			return nil, fmt.Errorf("codec: %w: invalid tag %d", errs.ErrCodec, f.Tag)
		}
		var err error
		b, err = appendField(b, num, f.Value)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func appendField(b []byte, num protowire.Number, v any) ([]byte, error) {
	switch val := v.(type) {
	case int64:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(val))
	case int:
		b = protowire.AppendTag(b, num, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(val)))
	case float64:
		b = protowire.AppendTag(b, num, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(val))
	case string:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte(val))
	case []byte:
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, val)
	case Record:
		nested, err := encodeRecord(val)
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendBytes(b, nested)
	case []Record:
		for _, r := range val {
			nested, err := encodeRecord(r)
			if err != nil {
				return nil, err
			}
			b = protowire.AppendTag(b, num, protowire.BytesType)
			b = protowire.AppendBytes(b, nested)
		}
	default:
		return nil, fmt.Errorf("codec: %w: unsupported field value type %T", errs.ErrCodec, v)
	}
	return b, nil
}

func decodeRecord(data []byte) (Record, error) {
	var rec Record
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("codec: %w: malformed tag", errs.ErrCodec)
		}
		data = data[n:]

		var value any
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, fmt.Errorf("codec: %w: malformed varint", errs.ErrCodec)
			}
			value = int64(v)
			data = data[n:]
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return nil, fmt.Errorf("codec: %w: malformed fixed64", errs.ErrCodec)
			}
			value = math.Float64frombits(v)
			data = data[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, fmt.Errorf("codec: %w: malformed length-delimited field", errs.ErrCodec)
			}
			cp := make([]byte, len(v))
			copy(cp, v)
			value = cp
			data = data[n:]
		default:
			return nil, fmt.Errorf("codec: %w: unsupported wire type %v", errs.ErrCodec, typ)
		}
		rec = append(rec, Field{Tag: uint32(num), Value: value})
	}
	return rec, nil
}

// AsString reinterprets a decoded BytesType field (delivered as []byte) as
// a string; callers use this when they know the tag's declared type.
func AsString(v any) (string, error) {
	b, ok := v.([]byte)
	if !ok {
		return "", fmt.Errorf("codec: %w: not a bytes field", errs.ErrTypeMismatch)
	}
	return string(b), nil
}

// AsMessage reinterprets a decoded BytesType field as a nested Record.
func AsMessage(v any) (Record, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("codec: %w: not a bytes field", errs.ErrTypeMismatch)
	}
	return decodeRecord(b)
}
