// Package codecs implements the type-descriptor reader and the codec
// tree that encodes arguments and decodes result rows for every scalar
// and composite type the wire protocol describes.
package codecs

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind distinguishes a codec's shape (scalar, tuple, object, ...);
// argcodec.go checks it before coercing an enum argument to text.
type Kind int

const (
	KindScalar Kind = iota
	KindTuple
	KindNamedTuple
	KindObject
	KindArray
	KindSet
	KindRange
	KindSparseObject
	KindEnum
)

// Codec encodes/decodes one wire type, identified by its 128-bit type
// id. Composite codecs hold child Codecs obtained from the registry
// during descriptor materialization; they never re-resolve children at
// encode/decode time.
type Codec interface {
	ID() uuid.UUID
	Kind() Kind
	// TypeName is the codec's type name ("std::str" for a scalar, a
	// shape name such as "tuple" for a composite), used in error
	// messages and by CoerceArgument's text-codec check.
	TypeName() string

	// Encode appends the wire representation of v to buf and returns it.
	Encode(buf []byte, v any) ([]byte, error)
	// Decode reads one value from buf, returning the value and the
	// number of bytes consumed.
	Decode(buf []byte) (any, int, error)
}

// baseCodec factors the id/name/kind bookkeeping every concrete codec
// needs, mirroring the small embedded-struct style the teacher uses for
// its per-extension-type codec wrappers.
type baseCodec struct {
	id   uuid.UUID
	name string
	kind Kind
}

func (b baseCodec) ID() uuid.UUID    { return b.id }
func (b baseCodec) Kind() Kind       { return b.kind }
func (b baseCodec) TypeName() string { return b.name }

// ErrShortInput is returned by Decode implementations when buf is
// shorter than the value's declared length requires.
type ErrShortInput struct {
	Codec string
	Need  int
	Have  int
}

func (e ErrShortInput) Error() string {
	return fmt.Sprintf("codecs: %s: need %d bytes, have %d", e.Codec, e.Need, e.Have)
}
