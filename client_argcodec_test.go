package edgedb

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goerch/edgedb-net/internal/codecs"
)

func TestCodecForGoValueCoversEveryBuiltinScalarType(t *testing.T) {
	cases := []struct {
		name string
		v    any
		id   uuid.UUID
	}{
		{"bool", true, codecs.IDBool},
		{"int16", int16(1), codecs.IDInt16},
		{"int32", int32(1), codecs.IDInt32},
		{"int", int(1), codecs.IDInt64},
		{"int64", int64(1), codecs.IDInt64},
		{"float32", float32(1), codecs.IDFloat32},
		{"float64", float64(1), codecs.IDFloat64},
		{"bytes", []byte{1}, codecs.IDBytes},
		{"string", "s", codecs.IDStr},
		{"uuid", uuid.New(), codecs.IDUUID},
		{"decimal", decimal.RequireFromString("1.5"), codecs.IDDecimal},
		{"bigint", big.NewInt(1), codecs.IDBigInt},
		{"time", time.Now(), codecs.IDDatetime},
		{"duration", time.Second, codecs.IDDuration},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := codecForGoValue(tc.v)
			require.NoError(t, err)
			assert.Equal(t, tc.id, c.ID())
		})
	}
}

func TestCodecForGoValueRejectsCompositeTypesPositionally(t *testing.T) {
	_, err := codecForGoValue(codecs.Tuple{1, 2})
	assert.Error(t, err)
}

func TestCodecForGoValueRejectsUnknownType(t *testing.T) {
	type unknownType struct{ X int }
	_, err := codecForGoValue(unknownType{})
	assert.Error(t, err)
}

func TestLookupBuiltinFindsRegisteredScalar(t *testing.T) {
	c, err := lookupBuiltin(codecs.IDInt64)
	require.NoError(t, err)
	assert.Equal(t, codecs.IDInt64, c.ID())
}

func TestLookupBuiltinRejectsUnknownID(t *testing.T) {
	_, err := lookupBuiltin(uuid.New())
	assert.Error(t, err)
}

func TestBuildArgumentsProducesPositionalFieldNames(t *testing.T) {
	c := &Client{}
	rec, inputCodec, err := c.buildArguments([]any{"hello", int64(42)})
	require.NoError(t, err)
	require.Len(t, rec.Fields, 2)
	assert.Equal(t, "0", rec.Fields[0].Name)
	assert.Equal(t, "hello", rec.Fields[0].Value)
	assert.Equal(t, "1", rec.Fields[1].Name)
	assert.Equal(t, int64(42), rec.Fields[1].Value)

	encoded, err := inputCodec.Encode(nil, rec)
	require.NoError(t, err)
	decoded, n, err := inputCodec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, rec, decoded)
}

func TestBuildArgumentsPropagatesPerArgumentError(t *testing.T) {
	c := &Client{}
	type unknownType struct{ X int }
	_, _, err := c.buildArguments([]any{unknownType{}})
	assert.Error(t, err)
}
