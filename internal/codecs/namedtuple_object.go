package codecs

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// Record is the dynamic representation of an object or named-tuple
// value: an ordered set of named fields, preserving the server's field
// order (object field order is significant — two objects with the same
// fields in different orders are different shapes). Mirrors the
// teacher's KeyValueBind, generalized from an unordered key/value map
// to an order-preserving field list.
type Record struct {
	Fields []RecordField
}

// RecordField is one named value within a Record.
type RecordField struct {
	Name  string
	Value any
}

// Get returns the value of the named field and whether it was present.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

type objectFieldCodec struct {
	ObjectField
	codec Codec
}

// namedTupleCodec backs both std::tuple's named-tuple variant and, via
// objectCodec below, object shapes — the two wire shapes are identical;
// only the reported Kind differs.
type namedTupleCodec struct {
	baseCodec
	fields []objectFieldCodec
}

func newNamedTupleCodec(id uuid.UUID, fields []resolvedField) Codec {
	return namedTupleCodec{baseCodec{id: id, name: "named_tuple", kind: KindNamedTuple}, toFieldCodecs(fields)}
}

func toFieldCodecs(fields []resolvedField) []objectFieldCodec {
	out := make([]objectFieldCodec, len(fields))
	for i, f := range fields {
		out[i] = objectFieldCodec{ObjectField: f.ObjectField, codec: f.codec}
	}
	return out
}

func (c namedTupleCodec) Encode(buf []byte, v any) ([]byte, error) {
	rec, ok := v.(Record)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.fields)))
	for _, fc := range c.fields {
		val, present := rec.Get(fc.Name)
		if !present && fc.Cardinality == protocol.CardinalityAtMostOne {
			val = nil
		}
		var err error
		buf, err = appendElement(buf, fc.codec, val)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (c namedTupleCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	pos := 4
	rec := Record{Fields: make([]RecordField, len(c.fields))}
	for i, fc := range c.fields {
		v, n, err := readElement(buf[pos:], fc.codec)
		if err != nil {
			return nil, 0, err
		}
		rec.Fields[i] = RecordField{Name: fc.Name, Value: v}
		pos += n
	}
	return rec, pos, nil
}

// objectCodec is a named tuple codec under a distinct Kind
// (KindObject). Both decode to a Record, and bind.go treats the two
// alike: a registered constructor first, then field assignment by name.
type objectCodec struct {
	namedTupleCodec
}

func newObjectCodec(id uuid.UUID, fields []resolvedField) Codec {
	nt := namedTupleCodec{baseCodec{id: id, name: "object", kind: KindObject}, toFieldCodecs(fields)}
	return objectCodec{nt}
}
