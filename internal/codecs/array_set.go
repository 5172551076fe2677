package codecs

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Array and Set are both the dynamic representation of a
// variable-length homogeneous sequence; they are distinguished only by
// codec Kind (a set additionally asserts no meaningful element order
// for equality purposes, a driver-level distinction with no wire-shape
// consequence).
type Array []any

type arrayCodec struct {
	baseCodec
	elem Codec
}

func newArrayCodec(id uuid.UUID, elem Codec) Codec {
	return arrayCodec{baseCodec{id: id, name: "array", kind: KindArray}, elem}
}

func (c arrayCodec) Encode(buf []byte, v any) ([]byte, error) {
	a, ok := v.(Array)
	if !ok {
		if s, ok2 := v.([]any); ok2 {
			a = Array(s)
		} else {
			return nil, typeMismatch(c.name, v)
		}
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(a)))
	for _, el := range a {
		var err error
		buf, err = appendElement(buf, c.elem, el)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (c arrayCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	count := int(binary.BigEndian.Uint32(buf))
	pos := 4
	out := make(Array, count)
	for i := 0; i < count; i++ {
		v, n, err := readElement(buf[pos:], c.elem)
		if err != nil {
			return nil, 0, err
		}
		out[i] = v
		pos += n
	}
	return out, pos, nil
}

type setCodec struct {
	baseCodec
	elem Codec
}

func newSetCodec(id uuid.UUID, elem Codec) Codec {
	return setCodec{baseCodec{id: id, name: "set", kind: KindSet}, elem}
}

func (c setCodec) Encode(buf []byte, v any) ([]byte, error) {
	a, ok := v.(Array)
	if !ok {
		if s, ok2 := v.([]any); ok2 {
			a = Array(s)
		} else {
			return nil, typeMismatch(c.name, v)
		}
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(a)))
	for _, el := range a {
		var err error
		buf, err = appendElement(buf, c.elem, el)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (c setCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	count := int(binary.BigEndian.Uint32(buf))
	pos := 4
	out := make(Array, count)
	for i := 0; i < count; i++ {
		v, n, err := readElement(buf[pos:], c.elem)
		if err != nil {
			return nil, 0, err
		}
		out[i] = v
		pos += n
	}
	return out, pos, nil
}
