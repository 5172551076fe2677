package codecs

import (
	"fmt"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// EnumValue is implemented by generated enum types so the argument
// encoder can recognize them and apply the enum-to-string coercion
// rule below, instead of requiring every caller to pass a bare string.
type EnumValue interface {
	EnumMember() string
}

// textLikeCodecNames is the set of scalar codecs an enum member name may be
// coerced into. Binding an enum value against anything outside this set
// is caller error, not a silently-degraded encoding.
var textLikeCodecNames = map[string]bool{
	"std::str":  true,
	"std::json": true,
}

// CoerceArgument adapts v to whatever Go representation codec.Encode
// expects, applying the one coercion this driver performs implicitly:
// an EnumValue may stand in for a std::str/std::json argument. Any
// other enum/non-enum type mismatch is left for codec.Encode itself to
// reject, except that an EnumValue bound against a non-text codec is
// rejected here with an explicit client-misuse error rather than a
// generic type-mismatch message.
func CoerceArgument(codec Codec, v any) (any, error) {
	ev, isEnum := v.(EnumValue)
	if !isEnum {
		return v, nil
	}
	if codec.Kind() == KindScalar && textLikeCodecNames[codec.TypeName()] {
		return ev.EnumMember(), nil
	}
	return nil, protocol.NewMisuseError(fmt.Sprintf(
		"cannot bind enum value %q to non-text argument type %s", ev.EnumMember(), codec.TypeName()))
}

// EncodeArguments encodes a fully-assembled Record of named arguments
// (or a Tuple of positional arguments) through the command's negotiated
// input codec. For a Record against an object or named-tuple codec,
// CoerceArgument is applied to each top-level field value; nested values
// and any other argument shape are passed to the codec unchanged.
//
// Mirrors the teacher's request.go encodeSQLBind/KeyValueBind split
// between positional and named argument encoding, generalized to route
// both shapes through the same object/tuple codec machinery.
func EncodeArguments(inputCodec Codec, args any) ([]byte, error) {
	coerced, err := coerceDeep(inputCodec, args)
	if err != nil {
		return nil, err
	}
	return inputCodec.Encode(nil, coerced)
}

// coerceDeep applies CoerceArgument to every field of a Record (the
// only shape EncodeArguments' inputCodec is ever built from — command
// arguments are always an object or named tuple, never a bare scalar).
func coerceDeep(inputCodec Codec, args any) (any, error) {
	rec, ok := args.(Record)
	if !ok {
		return args, nil
	}
	nt, ok := inputCodec.(namedTupleCodec)
	if !ok {
		if oc, ok2 := inputCodec.(objectCodec); ok2 {
			nt = oc.namedTupleCodec
		} else {
			return args, nil
		}
	}
	out := Record{Fields: make([]RecordField, len(rec.Fields))}
	for i, f := range rec.Fields {
		fieldCodec, err := fieldCodecFor(nt, f.Name)
		if err != nil {
			return nil, err
		}
		v, err := CoerceArgument(fieldCodec, f.Value)
		if err != nil {
			return nil, err
		}
		out.Fields[i] = RecordField{Name: f.Name, Value: v}
	}
	return out, nil
}

func fieldCodecFor(nt namedTupleCodec, name string) (Codec, error) {
	for _, f := range nt.fields {
		if f.Name == name {
			return f.codec, nil
		}
	}
	return nil, fmt.Errorf("codecs: argument %q is not part of this command's parameter list", name)
}
