package codecs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/goerch/edgedb-net/internal/protocol"
)

// Descriptor node tags. A descriptor stream is a flat, append-only list
// of nodes; a node may reference an earlier node by its position
// (uint16 index) but never a later one, so the stream can always be
// read and materialized in one forward pass — the same "describe a
// server-side shape, decode it into Go structs, let later entries point
// back at earlier ones" pattern the teacher uses for _vspace/_vindex
// tuples in schema.go, generalized from a two-level space/index schema
// to an arbitrarily nested type tree.
const (
	nodeBaseScalar byte = iota
	nodeSet
	nodeObjectShape
	nodeTuple
	nodeNamedTuple
	nodeArray
	nodeRange
	nodeSparseObject
	nodeEnum
)

// ObjectField is one property of an object/named-tuple shape: its name,
// the index of its element type among already-read nodes, and whether
// the server may omit it (cardinality AtMostOne/Many) from a given row.
type ObjectField struct {
	Name        string
	TypeIndex   uint16
	Cardinality protocol.Cardinality
}

// node is the unmaterialized, intermediate form of one descriptor
// entry. Exactly one of its fields is meaningful, selected by tag.
type node struct {
	tag  byte
	id   uuid.UUID
	name string // base scalar / enum name

	elementIndex uint16        // set, array
	fields       []ObjectField // object shape, named tuple, sparse object
	tupleIndices []uint16      // plain tuple
	enumMembers  []string
}

// ReadDescriptors parses a CommandDataDescription (or StateDataDescription)
// byte stream into its flat node list, ready for Materialize.
func ReadDescriptors(buf []byte) ([]node, error) {
	r := protocol.NewPacketReader(buf)
	var nodes []node
	for !r.Done() {
		tag, err := r.ReadUint8()
		if err != nil {
			return nil, err
		}
		id, err := r.ReadUUID()
		if err != nil {
			return nil, err
		}
		n := node{tag: tag, id: id}

		switch tag {
		case nodeBaseScalar:
			// no further fields; id alone identifies a pre-registered scalar.
		case nodeSet:
			n.elementIndex, err = r.ReadUint16()
		case nodeArray:
			n.elementIndex, err = r.ReadUint16()
		case nodeRange:
			n.elementIndex, err = r.ReadUint16()
		case nodeTuple:
			var count uint16
			count, err = r.ReadUint16()
			if err == nil {
				n.tupleIndices = make([]uint16, count)
				for i := range n.tupleIndices {
					n.tupleIndices[i], err = r.ReadUint16()
					if err != nil {
						break
					}
				}
			}
		case nodeNamedTuple, nodeObjectShape, nodeSparseObject:
			var count uint16
			count, err = r.ReadUint16()
			if err == nil {
				n.fields = make([]ObjectField, count)
				for i := range n.fields {
					flags, ferr := r.ReadUint8()
					if ferr != nil {
						err = ferr
						break
					}
					name, ferr := r.ReadLenString()
					if ferr != nil {
						err = ferr
						break
					}
					idx, ferr := r.ReadUint16()
					if ferr != nil {
						err = ferr
						break
					}
					n.fields[i] = ObjectField{
						Name:        name,
						TypeIndex:   idx,
						Cardinality: protocol.Cardinality(flags),
					}
				}
			}
		case nodeEnum:
			var count uint16
			count, err = r.ReadUint16()
			if err == nil {
				n.enumMembers = make([]string, count)
				for i := range n.enumMembers {
					n.enumMembers[i], err = r.ReadLenString()
					if err != nil {
						break
					}
				}
			}
		default:
			return nil, fmt.Errorf("codecs: unknown descriptor node tag %d", tag)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Materialize walks nodes once, building a Codec tree and registering
// every composite codec it constructs in reg so subsequent descriptors
// that reference the same type id are resolved from cache instead of
// rebuilt. It returns the Codec for the root (last) node, matching the
// wire convention that the final descriptor entry describes the
// overall command's input or output shape.
func Materialize(reg *Registry, nodes []node) (Codec, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("codecs: empty descriptor stream")
	}
	built := make([]Codec, len(nodes))
	for i, n := range nodes {
		c, err := materializeNode(reg, nodes, built, i, n)
		if err != nil {
			return nil, err
		}
		built[i] = c
		reg.Register(c)
	}
	return built[len(nodes)-1], nil
}

func materializeNode(reg *Registry, nodes []node, built []Codec, i int, n node) (Codec, error) {
	if c, ok := reg.Lookup(n.id); ok {
		return c, nil
	}
	if n.tag == nodeBaseScalar {
		return nil, fmt.Errorf("codecs: unknown base scalar type id %s", n.id)
	}

	resolve := func(idx uint16) (Codec, error) {
		if int(idx) >= len(built) || built[idx] == nil {
			return nil, fmt.Errorf("codecs: descriptor node %d references unbuilt node %d", i, idx)
		}
		return built[idx], nil
	}

	switch n.tag {
	case nodeSet:
		elem, err := resolve(n.elementIndex)
		if err != nil {
			return nil, err
		}
		return newSetCodec(n.id, elem), nil
	case nodeArray:
		elem, err := resolve(n.elementIndex)
		if err != nil {
			return nil, err
		}
		return newArrayCodec(n.id, elem), nil
	case nodeRange:
		elem, err := resolve(n.elementIndex)
		if err != nil {
			return nil, err
		}
		return newRangeCodec(n.id, elem), nil
	case nodeTuple:
		elems := make([]Codec, len(n.tupleIndices))
		for i, idx := range n.tupleIndices {
			c, err := resolve(idx)
			if err != nil {
				return nil, err
			}
			elems[i] = c
		}
		return newTupleCodec(n.id, elems), nil
	case nodeNamedTuple:
		fields, err := resolveFields(resolve, n.fields)
		if err != nil {
			return nil, err
		}
		return newNamedTupleCodec(n.id, fields), nil
	case nodeObjectShape:
		fields, err := resolveFields(resolve, n.fields)
		if err != nil {
			return nil, err
		}
		return newObjectCodec(n.id, fields), nil
	case nodeSparseObject:
		fields, err := resolveFields(resolve, n.fields)
		if err != nil {
			return nil, err
		}
		return newSparseObjectCodec(n.id, fields), nil
	case nodeEnum:
		return newEnumCodec(n.id, n.enumMembers), nil
	default:
		return nil, fmt.Errorf("codecs: unhandled descriptor node tag %d", n.tag)
	}
}

type resolvedField struct {
	ObjectField
	codec Codec
}

func resolveFields(resolve func(uint16) (Codec, error), fields []ObjectField) ([]resolvedField, error) {
	out := make([]resolvedField, len(fields))
	for i, f := range fields {
		c, err := resolve(f.TypeIndex)
		if err != nil {
			return nil, err
		}
		out[i] = resolvedField{ObjectField: f, codec: c}
	}
	return out, nil
}
