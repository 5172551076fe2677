package codecs

import (
	"fmt"

	"github.com/google/uuid"
)

// Enum values are sent on the wire as their member name (a std::str
// payload); the codec's member list exists to validate that name
// against the type's declared members rather than to change the
// encoding.
type enumCodec struct {
	baseCodec
	members []string
}

func newEnumCodec(id uuid.UUID, members []string) Codec {
	return enumCodec{baseCodec{id: id, name: "enum", kind: KindEnum}, members}
}

func (c enumCodec) isMember(s string) bool {
	for _, m := range c.members {
		if m == s {
			return true
		}
	}
	return false
}

func (c enumCodec) Encode(buf []byte, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	if !c.isMember(s) {
		return nil, fmt.Errorf("codecs: %q is not a member of enum %s", s, c.id)
	}
	return append(buf, s...), nil
}

func (c enumCodec) Decode(buf []byte) (any, int, error) {
	return string(buf), len(buf), nil
}
