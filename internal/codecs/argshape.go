package codecs

import (
	"github.com/google/uuid"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// ArgField describes one positional command argument for
// NewArgumentObjectCodec: its wire name (the server reports positional
// parameters as "0", "1", ... within an object shape) and the codec
// inferred for its Go value.
type ArgField struct {
	Name  string
	Codec Codec
}

// NewArgumentObjectCodec builds an object-shaped codec straight from
// argument field descriptions, without a server descriptor. Argument
// encoding never needs a round trip the way result decoding does — each
// argument's codec can be inferred directly from its Go type — so the
// client builds this shape locally and only Materialize's descriptor
// path (used for decoding results) touches the registry.
func NewArgumentObjectCodec(fields []ArgField) Codec {
	objFields := make([]objectFieldCodec, len(fields))
	for i, f := range fields {
		objFields[i] = objectFieldCodec{
			ObjectField: ObjectField{Name: f.Name, Cardinality: protocol.CardinalityOne},
			codec:       f.Codec,
		}
	}
	nt := namedTupleCodec{baseCodec{id: uuid.Nil, name: "object", kind: KindObject}, objFields}
	return objectCodec{nt}
}
