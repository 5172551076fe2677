package codecs

import (
	"encoding/binary"
	"fmt"
)

// Composite wire shapes (tuple, object, named tuple, array, set) all
// share one envelope: an element count, then each element as a 4-byte
// reserved word (unused, mirrors the protocol's own padding) followed
// by a signed 32-bit length (-1 meaning "null"/empty-set element) and
// that many bytes of nested encoding. Factoring the envelope here
// avoids repeating the same reserved/length bookkeeping in every
// composite codec file.

func appendElement(buf []byte, codec Codec, v any) ([]byte, error) {
	if v == nil {
		buf = binary.BigEndian.AppendUint32(buf, 0)
		return binary.BigEndian.AppendUint32(buf, 0xFFFFFFFF), nil
	}
	buf = binary.BigEndian.AppendUint32(buf, 0)
	lenPos := len(buf)
	buf = binary.BigEndian.AppendUint32(buf, 0) // placeholder, patched below
	before := len(buf)
	buf, err := codec.Encode(buf, v)
	if err != nil {
		return nil, err
	}
	n := len(buf) - before
	binary.BigEndian.PutUint32(buf[lenPos:lenPos+4], uint32(n))
	return buf, nil
}

func readElement(buf []byte, codec Codec) (val any, consumed int, err error) {
	if len(buf) < 8 {
		return nil, 0, ErrShortInput{Codec: codec.TypeName(), Need: 8, Have: len(buf)}
	}
	length := int32(binary.BigEndian.Uint32(buf[4:8]))
	if length < 0 {
		return nil, 8, nil
	}
	if len(buf) < 8+int(length) {
		return nil, 0, ErrShortInput{Codec: codec.TypeName(), Need: 8 + int(length), Have: len(buf)}
	}
	v, n, err := codec.Decode(buf[8 : 8+int(length)])
	if err != nil {
		return nil, 0, err
	}
	if n != int(length) {
		return nil, 0, fmt.Errorf("codecs: %s: decoded %d of %d declared bytes", codec.TypeName(), n, length)
	}
	return v, 8 + int(length), nil
}
