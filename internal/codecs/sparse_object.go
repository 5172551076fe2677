package codecs

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// sparseObjectCodec backs SessionState on the wire: unlike an object
// shape, a sparse object's fields are each independently present or
// absent per encoding — only the fields present in the Record being
// encoded are written, each tagged with its field index. Grounded
// on the same per-field independence the teacher's sparse session
// settings API implies, but here applied to wire encoding rather than
// an RPC surface.
type sparseObjectCodec struct {
	baseCodec
	fields []objectFieldCodec
}

func newSparseObjectCodec(id uuid.UUID, fields []resolvedField) Codec {
	return sparseObjectCodec{baseCodec{id: id, name: "sparse_object", kind: KindSparseObject}, toFieldCodecs(fields)}
}

func (c sparseObjectCodec) indexOf(name string) (int, bool) {
	for i, f := range c.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

func (c sparseObjectCodec) Encode(buf []byte, v any) ([]byte, error) {
	rec, ok := v.(Record)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	countPos := len(buf)
	buf = binary.BigEndian.AppendUint32(buf, 0)
	n := 0
	for _, rf := range rec.Fields {
		idx, ok := c.indexOf(rf.Name)
		if !ok {
			return nil, fmt.Errorf("codecs: sparse object has no field %q", rf.Name)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(idx))
		var err error
		buf, err = appendElement(buf, c.fields[idx].codec, rf.Value)
		if err != nil {
			return nil, err
		}
		n++
	}
	binary.BigEndian.PutUint32(buf[countPos:countPos+4], uint32(n))
	return buf, nil
}

func (c sparseObjectCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	count := int(binary.BigEndian.Uint32(buf))
	pos := 4
	rec := Record{}
	for i := 0; i < count; i++ {
		if len(buf) < pos+4 {
			return nil, 0, ErrShortInput{Codec: c.name, Need: pos + 4, Have: len(buf)}
		}
		idx := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
		pos += 4
		if idx >= len(c.fields) {
			return nil, 0, fmt.Errorf("codecs: sparse object field index %d out of range", idx)
		}
		v, n, err := readElement(buf[pos:], c.fields[idx].codec)
		if err != nil {
			return nil, 0, err
		}
		rec.Fields = append(rec.Fields, RecordField{Name: c.fields[idx].Name, Value: v})
		pos += n
	}
	return rec, pos, nil
}
