package codecs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goerch/edgedb-net/internal/protocol"
)

type fakeEnumValue string

func (v fakeEnumValue) EnumMember() string { return string(v) }

func TestCoerceArgumentPassesNonEnumThrough(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDInt64)
	require.True(t, ok)

	v, err := CoerceArgument(c, int64(5))
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func TestCoerceArgumentCoercesEnumToStr(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDStr)
	require.True(t, ok)

	v, err := CoerceArgument(c, fakeEnumValue("Active"))
	require.NoError(t, err)
	assert.Equal(t, "Active", v)
}

func TestCoerceArgumentCoercesEnumToJSON(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDJSON)
	require.True(t, ok)

	v, err := CoerceArgument(c, fakeEnumValue("Active"))
	require.NoError(t, err)
	assert.Equal(t, "Active", v)
}

func TestCoerceArgumentRejectsEnumAgainstNonTextCodec(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDInt64)
	require.True(t, ok)

	_, err := CoerceArgument(c, fakeEnumValue("Active"))
	require.Error(t, err)
	var clientErr protocol.ClientError
	assert.ErrorAs(t, err, &clientErr)
}

func TestEncodeArgumentsRoundTripsNamedArguments(t *testing.T) {
	reg := NewRegistry()
	strCodec, _ := reg.Lookup(IDStr)
	intCodec, _ := reg.Lookup(IDInt64)

	inputCodec := NewArgumentObjectCodec([]ArgField{
		{Name: "name", Codec: strCodec},
		{Name: "age", Codec: intCodec},
	})

	args := Record{Fields: []RecordField{{Name: "name", Value: "Ada"}, {Name: "age", Value: int64(36)}}}
	encoded, err := EncodeArguments(inputCodec, args)
	require.NoError(t, err)

	decoded, n, err := inputCodec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, args, decoded)
}

func TestEncodeArgumentsCoercesEnumArgument(t *testing.T) {
	reg := NewRegistry()
	strCodec, _ := reg.Lookup(IDStr)
	inputCodec := NewArgumentObjectCodec([]ArgField{{Name: "status", Codec: strCodec}})

	args := Record{Fields: []RecordField{{Name: "status", Value: fakeEnumValue("Closed")}}}
	encoded, err := EncodeArguments(inputCodec, args)
	require.NoError(t, err)

	decoded, _, err := inputCodec.Decode(encoded)
	require.NoError(t, err)
	rec := decoded.(Record)
	assert.Equal(t, "Closed", rec.Fields[0].Value)
}

func TestEncodeArgumentsRejectsUnknownArgumentName(t *testing.T) {
	reg := NewRegistry()
	strCodec, _ := reg.Lookup(IDStr)
	inputCodec := NewArgumentObjectCodec([]ArgField{{Name: "name", Codec: strCodec}})

	args := Record{Fields: []RecordField{{Name: "nickname", Value: "Ada"}}}
	_, err := EncodeArguments(inputCodec, args)
	assert.Error(t, err)
}

func TestNewArgumentObjectCodecIsObjectKind(t *testing.T) {
	reg := NewRegistry()
	intCodec, _ := reg.Lookup(IDInt64)
	c := NewArgumentObjectCodec([]ArgField{{Name: "0", Codec: intCodec}})
	assert.Equal(t, KindObject, c.Kind())
}
