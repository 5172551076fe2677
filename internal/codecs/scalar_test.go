package codecs

import (
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTrip encodes v through codec and decodes the result, asserting
// every byte produced is consumed and the decoded value equals v.
func roundTrip(t *testing.T, codec Codec, v any) any {
	t.Helper()
	encoded, err := codec.Encode(nil, v)
	require.NoError(t, err)

	decoded, n, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, len(encoded), n, "decode should consume the whole encoded value")
	return decoded
}

func TestScalarCodecRoundTrips(t *testing.T) {
	reg := NewRegistry()

	t.Run("bool", func(t *testing.T) {
		c, ok := reg.Lookup(IDBool)
		require.True(t, ok)
		assert.Equal(t, true, roundTrip(t, c, true))
		assert.Equal(t, false, roundTrip(t, c, false))
	})

	t.Run("int16", func(t *testing.T) {
		c, ok := reg.Lookup(IDInt16)
		require.True(t, ok)
		assert.Equal(t, int16(-12345), roundTrip(t, c, int16(-12345)))
	})

	t.Run("int32", func(t *testing.T) {
		c, ok := reg.Lookup(IDInt32)
		require.True(t, ok)
		assert.Equal(t, int32(-123456789), roundTrip(t, c, int32(-123456789)))
	})

	t.Run("int64", func(t *testing.T) {
		c, ok := reg.Lookup(IDInt64)
		require.True(t, ok)
		assert.Equal(t, int64(-123456789012345), roundTrip(t, c, int64(-123456789012345)))
	})

	t.Run("float32", func(t *testing.T) {
		c, ok := reg.Lookup(IDFloat32)
		require.True(t, ok)
		assert.Equal(t, float32(3.14159), roundTrip(t, c, float32(3.14159)))
	})

	t.Run("float64", func(t *testing.T) {
		c, ok := reg.Lookup(IDFloat64)
		require.True(t, ok)
		assert.Equal(t, 2.718281828459045, roundTrip(t, c, 2.718281828459045))
	})

	t.Run("bytes", func(t *testing.T) {
		c, ok := reg.Lookup(IDBytes)
		require.True(t, ok)
		assert.Equal(t, []byte{1, 2, 3, 0, 255}, roundTrip(t, c, []byte{1, 2, 3, 0, 255}))
	})

	t.Run("str", func(t *testing.T) {
		c, ok := reg.Lookup(IDStr)
		require.True(t, ok)
		assert.Equal(t, "hello, world", roundTrip(t, c, "hello, world"))
	})

	t.Run("json", func(t *testing.T) {
		c, ok := reg.Lookup(IDJSON)
		require.True(t, ok)
		assert.Equal(t, `{"a":1}`, roundTrip(t, c, `{"a":1}`))
	})

	t.Run("uuid", func(t *testing.T) {
		c, ok := reg.Lookup(IDUUID)
		require.True(t, ok)
		id := uuid.New()
		assert.Equal(t, id, roundTrip(t, c, id))
	})

	t.Run("bigint", func(t *testing.T) {
		c, ok := reg.Lookup(IDBigInt)
		require.True(t, ok)
		for _, s := range []string{"0", "42", "-42", "123456789012345678901234567890", "-99999999999999999999"} {
			bi, ok := new(big.Int).SetString(s, 10)
			require.True(t, ok)
			got := roundTrip(t, c, bi)
			assert.Equal(t, 0, bi.Cmp(got.(*big.Int)), "bigint %s round-trip mismatch: got %s", s, got)
		}
	})

	t.Run("datetime", func(t *testing.T) {
		c, ok := reg.Lookup(IDDatetime)
		require.True(t, ok)
		ts := time.Date(2024, 3, 15, 12, 30, 45, 123000, time.UTC)
		got := roundTrip(t, c, ts)
		assert.True(t, ts.Equal(got.(time.Time)))
	})

	t.Run("duration", func(t *testing.T) {
		c, ok := reg.Lookup(IDDuration)
		require.True(t, ok)
		d := 90*time.Minute + 30*time.Second
		assert.Equal(t, d, roundTrip(t, c, d))
	})
}

func TestDecimalCodecRoundTrip(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDDecimal)
	require.True(t, ok)

	for _, s := range []string{"0", "1", "-1", "3.14159", "-2.5", "100", "0.0001", "123456789.987654321"} {
		d := decimal.RequireFromString(s)
		got := roundTrip(t, c, d)
		assert.True(t, d.Equal(got.(decimal.Decimal)), "decimal %s round-trip mismatch: got %s", s, got)
	}
}

func TestScalarCodecTypeMismatch(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDBool)
	require.True(t, ok)

	_, err := c.Encode(nil, "not a bool")
	assert.Error(t, err)
}

func TestScalarCodecShortInput(t *testing.T) {
	reg := NewRegistry()
	c, ok := reg.Lookup(IDInt32)
	require.True(t, ok)

	_, _, err := c.Decode([]byte{1, 2})
	var short ErrShortInput
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 4, short.Need)
	assert.Equal(t, 2, short.Have)
}

func TestRegistryPreRegistersAllScalars(t *testing.T) {
	reg := NewRegistry()
	for _, c := range scalarCodecs {
		got, ok := reg.Lookup(c.ID())
		require.True(t, ok, "scalar %s should be pre-registered", c.TypeName())
		assert.Equal(t, c.TypeName(), got.TypeName())
	}
}
