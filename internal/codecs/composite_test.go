package codecs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goerch/edgedb-net/internal/protocol"
)

func strCodecFor(t *testing.T, reg *Registry) Codec {
	t.Helper()
	c, ok := reg.Lookup(IDStr)
	require.True(t, ok)
	return c
}

func int64CodecFor(t *testing.T, reg *Registry) Codec {
	t.Helper()
	c, ok := reg.Lookup(IDInt64)
	require.True(t, ok)
	return c
}

func TestArrayCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	elem := int64CodecFor(t, reg)
	c := newArrayCodec(uuid.New(), elem)

	arr := Array{int64(1), int64(2), int64(3)}
	got := roundTrip(t, c, arr)
	assert.Equal(t, arr, got)
}

func TestArrayCodecEmptyAndNullElements(t *testing.T) {
	reg := NewRegistry()
	elem := int64CodecFor(t, reg)
	c := newArrayCodec(uuid.New(), elem)

	empty := Array{}
	got := roundTrip(t, c, empty)
	assert.Equal(t, Array{}, got)

	withNull := Array{int64(7), nil, int64(9)}
	got = roundTrip(t, c, withNull)
	assert.Equal(t, withNull, got)
}

func TestSetCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	elem := strCodecFor(t, reg)
	c := newSetCodec(uuid.New(), elem)

	set := Array{"a", "b", "c"}
	got := roundTrip(t, c, set)
	assert.Equal(t, set, got)
}

func TestTupleCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	c := newTupleCodec(uuid.New(), []Codec{int64CodecFor(t, reg), strCodecFor(t, reg)})

	tup := Tuple{int64(42), "answer"}
	got := roundTrip(t, c, tup)
	assert.Equal(t, tup, got)
}

func TestTupleCodecArityMismatch(t *testing.T) {
	reg := NewRegistry()
	c := newTupleCodec(uuid.New(), []Codec{int64CodecFor(t, reg), strCodecFor(t, reg)})

	_, err := c.Encode(nil, Tuple{int64(1)})
	assert.Error(t, err)
}

func fieldFor(name string, card protocol.Cardinality, codec Codec) resolvedField {
	return resolvedField{ObjectField: ObjectField{Name: name, Cardinality: card}, codec: codec}
}

func TestNamedTupleCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	fields := []resolvedField{
		fieldFor("x", protocol.CardinalityOne, int64CodecFor(t, reg)),
		fieldFor("y", protocol.CardinalityOne, strCodecFor(t, reg)),
	}
	c := newNamedTupleCodec(uuid.New(), fields)

	rec := Record{Fields: []RecordField{{Name: "x", Value: int64(1)}, {Name: "y", Value: "hi"}}}
	got := roundTrip(t, c, rec)
	assert.Equal(t, rec, got)
}

func TestObjectCodecRoundTripPreservesFieldOrder(t *testing.T) {
	reg := NewRegistry()
	fields := []resolvedField{
		fieldFor("name", protocol.CardinalityOne, strCodecFor(t, reg)),
		fieldFor("age", protocol.CardinalityOne, int64CodecFor(t, reg)),
	}
	c := newObjectCodec(uuid.New(), fields)
	assert.Equal(t, KindObject, c.Kind())

	rec := Record{Fields: []RecordField{{Name: "name", Value: "Ada"}, {Name: "age", Value: int64(36)}}}
	got := roundTrip(t, c, rec).(Record)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "name", got.Fields[0].Name)
	assert.Equal(t, "age", got.Fields[1].Name)
}

func TestObjectCodecOptionalFieldDefaultsToNull(t *testing.T) {
	reg := NewRegistry()
	fields := []resolvedField{
		fieldFor("required", protocol.CardinalityOne, strCodecFor(t, reg)),
		fieldFor("optional", protocol.CardinalityAtMostOne, strCodecFor(t, reg)),
	}
	c := newObjectCodec(uuid.New(), fields)

	rec := Record{Fields: []RecordField{{Name: "required", Value: "present"}}}
	got := roundTrip(t, c, rec).(Record)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "present", got.Fields[0].Value)
	assert.Nil(t, got.Fields[1].Value)
}

func TestSparseObjectCodecOnlySendsPresentFields(t *testing.T) {
	reg := NewRegistry()
	fields := []resolvedField{
		fieldFor("module", protocol.CardinalityOne, strCodecFor(t, reg)),
		fieldFor("count", protocol.CardinalityOne, int64CodecFor(t, reg)),
	}
	c := newSparseObjectCodec(uuid.New(), fields)

	rec := Record{Fields: []RecordField{{Name: "count", Value: int64(5)}}}
	encoded, err := c.Encode(nil, rec)
	require.NoError(t, err)

	decoded, n, err := c.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)

	got := decoded.(Record)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "count", got.Fields[0].Name)
	assert.Equal(t, int64(5), got.Fields[0].Value)
}

func TestSparseObjectCodecUnknownFieldRejected(t *testing.T) {
	reg := NewRegistry()
	fields := []resolvedField{fieldFor("module", protocol.CardinalityOne, strCodecFor(t, reg))}
	c := newSparseObjectCodec(uuid.New(), fields)

	rec := Record{Fields: []RecordField{{Name: "does-not-exist", Value: "x"}}}
	_, err := c.Encode(nil, rec)
	assert.Error(t, err)
}

func TestEnumCodecRoundTrip(t *testing.T) {
	c := newEnumCodec(uuid.New(), []string{"Red", "Green", "Blue"})

	got := roundTrip(t, c, "Green")
	assert.Equal(t, "Green", got)
}

func TestEnumCodecRejectsUnknownMember(t *testing.T) {
	c := newEnumCodec(uuid.New(), []string{"Red", "Green", "Blue"})

	_, err := c.Encode(nil, "Purple")
	assert.Error(t, err)
}

func TestRangeCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	elem := int64CodecFor(t, reg)
	c := newRangeCodec(uuid.New(), elem)

	bounded := Range{HasLower: true, HasUpper: true, LowerInc: true, UpperInc: false, Lower: int64(1), Upper: int64(10)}
	got := roundTrip(t, c, bounded).(Range)
	assert.Equal(t, bounded, got)

	unboundedUpper := Range{HasLower: true, LowerInc: true, Lower: int64(5)}
	got = roundTrip(t, c, unboundedUpper).(Range)
	assert.Equal(t, unboundedUpper, got)

	empty := Range{Empty: true}
	got = roundTrip(t, c, empty).(Range)
	assert.Equal(t, empty, got)
}
