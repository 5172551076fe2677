package codecs

import (
	"github.com/google/uuid"
)

// Range flag bits, carried in the single flag byte that precedes a
// range value's bound encodings.
const (
	rangeFlagEmpty       byte = 1 << 0
	rangeFlagLBInclusive byte = 1 << 1
	rangeFlagUBInclusive byte = 1 << 2
	rangeFlagHasLB       byte = 1 << 3
	rangeFlagHasUB       byte = 1 << 4
)

// Range is the dynamic representation of a std::range<T> value: an
// optionally-bounded, optionally-inclusive interval over an orderable
// scalar type.
type Range struct {
	Empty        bool
	Lower, Upper any
	HasLower     bool
	HasUpper     bool
	LowerInc     bool
	UpperInc     bool
}

type rangeCodec struct {
	baseCodec
	elem Codec
}

func newRangeCodec(id uuid.UUID, elem Codec) Codec {
	return rangeCodec{baseCodec{id: id, name: "range", kind: KindRange}, elem}
}

func (c rangeCodec) Encode(buf []byte, v any) ([]byte, error) {
	r, ok := v.(Range)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	var flags byte
	if r.Empty {
		flags |= rangeFlagEmpty
	}
	if r.LowerInc {
		flags |= rangeFlagLBInclusive
	}
	if r.UpperInc {
		flags |= rangeFlagUBInclusive
	}
	if r.HasLower {
		flags |= rangeFlagHasLB
	}
	if r.HasUpper {
		flags |= rangeFlagHasUB
	}
	buf = append(buf, flags)
	if r.Empty {
		return buf, nil
	}
	var err error
	if r.HasLower {
		buf, err = appendElement(buf, c.elem, r.Lower)
		if err != nil {
			return nil, err
		}
	}
	if r.HasUpper {
		buf, err = appendElement(buf, c.elem, r.Upper)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func (c rangeCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 1, Have: 0}
	}
	flags := buf[0]
	pos := 1
	r := Range{
		Empty:    flags&rangeFlagEmpty != 0,
		LowerInc: flags&rangeFlagLBInclusive != 0,
		UpperInc: flags&rangeFlagUBInclusive != 0,
		HasLower: flags&rangeFlagHasLB != 0,
		HasUpper: flags&rangeFlagHasUB != 0,
	}
	if r.Empty {
		return r, pos, nil
	}
	if r.HasLower {
		v, n, err := readElement(buf[pos:], c.elem)
		if err != nil {
			return nil, 0, err
		}
		r.Lower = v
		pos += n
	}
	if r.HasUpper {
		v, n, err := readElement(buf[pos:], c.elem)
		if err != nil {
			return nil, 0, err
		}
		r.Upper = v
		pos += n
	}
	return r, pos, nil
}
