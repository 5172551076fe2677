package codecs

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Tuple is the dynamic representation of a std::tuple value: a
// positional, heterogeneously-typed fixed-length sequence. Mirrors the
// teacher's plain-array tuple encoding in request.go, generalized from
// Tarantool's homogeneous arrays to EdgeDB's per-position element
// codecs.
type Tuple []any

type tupleCodec struct {
	baseCodec
	elems []Codec
}

func newTupleCodec(id uuid.UUID, elems []Codec) Codec {
	return tupleCodec{baseCodec{id: id, name: "tuple", kind: KindTuple}, elems}
}

func (c tupleCodec) Encode(buf []byte, v any) ([]byte, error) {
	t, ok := v.(Tuple)
	if !ok {
		if s, ok2 := v.([]any); ok2 {
			t = Tuple(s)
		} else {
			return nil, typeMismatch(c.name, v)
		}
	}
	if len(t) != len(c.elems) {
		return nil, fmt.Errorf("codecs: tuple expects %d elements, got %d", len(c.elems), len(t))
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t)))
	for i, el := range t {
		var err error
		buf, err = appendElement(buf, c.elems[i], el)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (c tupleCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	count := int(binary.BigEndian.Uint32(buf))
	pos := 4
	out := make(Tuple, count)
	for i := 0; i < count; i++ {
		v, n, err := readElement(buf[pos:], c.elems[i])
		if err != nil {
			return nil, 0, err
		}
		out[i] = v
		pos += n
	}
	return out, pos, nil
}
