package codecs

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Well-known base scalar type ids, fixed by the protocol itself (every
// server build advertises the same ids for these types, so they can be
// pre-registered instead of waiting for a descriptor to name them).
var (
	IDUUID               = mustParse("00000000-0000-0000-0000-000000000100")
	IDStr                = mustParse("00000000-0000-0000-0000-000000000101")
	IDBytes              = mustParse("00000000-0000-0000-0000-000000000102")
	IDInt16              = mustParse("00000000-0000-0000-0000-000000000103")
	IDInt32              = mustParse("00000000-0000-0000-0000-000000000104")
	IDInt64              = mustParse("00000000-0000-0000-0000-000000000105")
	IDFloat32            = mustParse("00000000-0000-0000-0000-000000000106")
	IDFloat64            = mustParse("00000000-0000-0000-0000-000000000107")
	IDDecimal            = mustParse("00000000-0000-0000-0000-000000000108")
	IDBool               = mustParse("00000000-0000-0000-0000-000000000109")
	IDDatetime           = mustParse("00000000-0000-0000-0000-00000000010a")
	IDLocalDatetime      = mustParse("00000000-0000-0000-0000-00000000010b")
	IDLocalDate          = mustParse("00000000-0000-0000-0000-00000000010c")
	IDLocalTime          = mustParse("00000000-0000-0000-0000-00000000010d")
	IDDuration           = mustParse("00000000-0000-0000-0000-00000000010e")
	IDJSON               = mustParse("00000000-0000-0000-0000-00000000010f")
	IDBigInt             = mustParse("00000000-0000-0000-0000-000000000110")
	IDRelativeDuration   = mustParse("00000000-0000-0000-0000-000000000111")
	IDDateDuration       = mustParse("00000000-0000-0000-0000-000000000112")
	IDConfigMemory       = mustParse("00000000-0000-0000-0000-000000000130")
)

func mustParse(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// scalarCodecs lists every built-in scalar, used by NewRegistry to
// pre-populate the id->codec map.
var scalarCodecs = []Codec{
	boolCodec{baseCodec{id: IDBool, name: "std::bool", kind: KindScalar}},
	int16Codec{baseCodec{id: IDInt16, name: "std::int16", kind: KindScalar}},
	int32Codec{baseCodec{id: IDInt32, name: "std::int32", kind: KindScalar}},
	int64Codec{baseCodec{id: IDInt64, name: "std::int64", kind: KindScalar}},
	float32Codec{baseCodec{id: IDFloat32, name: "std::float32", kind: KindScalar}},
	float64Codec{baseCodec{id: IDFloat64, name: "std::float64", kind: KindScalar}},
	bytesCodec{baseCodec{id: IDBytes, name: "std::bytes", kind: KindScalar}},
	strCodec{baseCodec{id: IDStr, name: "std::str", kind: KindScalar}},
	jsonCodec{baseCodec{id: IDJSON, name: "std::json", kind: KindScalar}},
	uuidCodec{baseCodec{id: IDUUID, name: "std::uuid", kind: KindScalar}},
	decimalCodec{baseCodec{id: IDDecimal, name: "std::decimal", kind: KindScalar}},
	bigIntCodec{baseCodec{id: IDBigInt, name: "std::bigint", kind: KindScalar}},
	datetimeCodec{baseCodec{id: IDDatetime, name: "std::datetime", kind: KindScalar}},
	localDatetimeCodec{baseCodec{id: IDLocalDatetime, name: "cal::local_datetime", kind: KindScalar}},
	localDateCodec{baseCodec{id: IDLocalDate, name: "cal::local_date", kind: KindScalar}},
	localTimeCodec{baseCodec{id: IDLocalTime, name: "cal::local_time", kind: KindScalar}},
	durationCodec{baseCodec{id: IDDuration, name: "std::duration", kind: KindScalar}},
	relativeDurationCodec{baseCodec{id: IDRelativeDuration, name: "cal::relative_duration", kind: KindScalar}},
	dateDurationCodec{baseCodec{id: IDDateDuration, name: "cal::date_duration", kind: KindScalar}},
	configMemoryCodec{baseCodec{id: IDConfigMemory, name: "cfg::memory", kind: KindScalar}},
}

// --- bool ---

type boolCodec struct{ baseCodec }

func (c boolCodec) Encode(buf []byte, v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	if b {
		return append(buf, 1), nil
	}
	return append(buf, 0), nil
}

func (c boolCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 1, Have: len(buf)}
	}
	return buf[0] != 0, 1, nil
}

// --- fixed-width integers ---

type int16Codec struct{ baseCodec }

func (c int16Codec) Encode(buf []byte, v any) ([]byte, error) {
	n, err := asInt64(c.name, v)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint16(buf, uint16(int16(n))), nil
}

func (c int16Codec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 2 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 2, Have: len(buf)}
	}
	return int16(binary.BigEndian.Uint16(buf)), 2, nil
}

type int32Codec struct{ baseCodec }

func (c int32Codec) Encode(buf []byte, v any) ([]byte, error) {
	n, err := asInt64(c.name, v)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint32(buf, uint32(int32(n))), nil
}

func (c int32Codec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	return int32(binary.BigEndian.Uint32(buf)), 4, nil
}

type int64Codec struct{ baseCodec }

func (c int64Codec) Encode(buf []byte, v any) ([]byte, error) {
	n, err := asInt64(c.name, v)
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint64(buf, uint64(n)), nil
}

func (c int64Codec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 8 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 8, Have: len(buf)}
	}
	return int64(binary.BigEndian.Uint64(buf)), 8, nil
}

func asInt64(name string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	default:
		return 0, typeMismatch(name, v)
	}
}

// --- floats ---

type float32Codec struct{ baseCodec }

func (c float32Codec) Encode(buf []byte, v any) ([]byte, error) {
	f, ok := v.(float32)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	return binary.BigEndian.AppendUint32(buf, math.Float32bits(f)), nil
}

func (c float32Codec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 4, Have: len(buf)}
	}
	return math.Float32frombits(binary.BigEndian.Uint32(buf)), 4, nil
}

type float64Codec struct{ baseCodec }

func (c float64Codec) Encode(buf []byte, v any) ([]byte, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(f)), nil
}

func (c float64Codec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 8 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 8, Have: len(buf)}
	}
	return math.Float64frombits(binary.BigEndian.Uint64(buf)), 8, nil
}

// --- bytes / str / json (all length-implied-by-frame blobs) ---

type bytesCodec struct{ baseCodec }

func (c bytesCodec) Encode(buf []byte, v any) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	return append(buf, b...), nil
}

func (c bytesCodec) Decode(buf []byte) (any, int, error) {
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, len(buf), nil
}

type strCodec struct{ baseCodec }

func (c strCodec) Encode(buf []byte, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	return append(buf, s...), nil
}

func (c strCodec) Decode(buf []byte) (any, int, error) {
	return string(buf), len(buf), nil
}

// jsonCodec wraps the raw bytes with a one-byte format prefix the wire
// format prepends to JSON values (format 1 == text JSON, the only value
// the server emits).
type jsonCodec struct{ baseCodec }

func (c jsonCodec) Encode(buf []byte, v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	buf = append(buf, 1)
	return append(buf, s...), nil
}

func (c jsonCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 1 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 1, Have: 0}
	}
	return string(buf[1:]), len(buf), nil
}

// --- uuid ---

type uuidCodec struct{ baseCodec }

func (c uuidCodec) Encode(buf []byte, v any) ([]byte, error) {
	id, ok := v.(uuid.UUID)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	return append(buf, id[:]...), nil
}

func (c uuidCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 16 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 16, Have: len(buf)}
	}
	id, err := uuid.FromBytes(buf[:16])
	if err != nil {
		return nil, 0, err
	}
	return id, 16, nil
}

// --- decimal ---
//
// Wire shape: ndigits(uint16) weight(int16) sign(uint16) dscale(uint16)
// then ndigits big-endian uint16 base-10000 digit groups, the same
// variable-precision representation EdgeDB borrows from PostgreSQL's
// numeric type.
type decimalCodec struct{ baseCodec }

const decimalDigitBase = 10000

func (c decimalCodec) Encode(buf []byte, v any) ([]byte, error) {
	d, ok := v.(decimal.Decimal)
	if !ok {
		return nil, typeMismatch(c.name, v)
	}
	digits, weight, sign, dscale := decimalToDigits(d)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(digits)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(weight))
	buf = binary.BigEndian.AppendUint16(buf, sign)
	buf = binary.BigEndian.AppendUint16(buf, dscale)
	for _, dg := range digits {
		buf = binary.BigEndian.AppendUint16(buf, dg)
	}
	return buf, nil
}

func (c decimalCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 8 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 8, Have: len(buf)}
	}
	ndigits := binary.BigEndian.Uint16(buf[0:2])
	weight := int16(binary.BigEndian.Uint16(buf[2:4]))
	sign := binary.BigEndian.Uint16(buf[4:6])
	dscale := binary.BigEndian.Uint16(buf[6:8])
	pos := 8
	need := 8 + int(ndigits)*2
	if len(buf) < need {
		return nil, 0, ErrShortInput{Codec: c.name, Need: need, Have: len(buf)}
	}
	digits := make([]uint16, ndigits)
	for i := range digits {
		digits[i] = binary.BigEndian.Uint16(buf[pos : pos+2])
		pos += 2
	}
	d := digitsToDecimal(digits, weight, sign, dscale)
	return d, need, nil
}

func decimalToDigits(d decimal.Decimal) (digits []uint16, weight int16, sign uint16, dscale uint16) {
	sign = 0
	if d.IsNegative() {
		sign = 0x4000
		d = d.Neg()
	}
	dscale = uint16(d.Exponent() * -1)
	coeff := d.Coefficient()
	s := coeff.String()
	if s == "0" {
		return nil, 0, sign, dscale
	}
	// Pad on the left so the string length is a multiple of 4, then
	// chunk into base-10000 groups, most significant first.
	pad := (4 - len(s)%4) % 4
	padded := make([]byte, 0, len(s)+pad)
	for i := 0; i < pad; i++ {
		padded = append(padded, '0')
	}
	padded = append(padded, s...)
	groups := len(padded) / 4
	digits = make([]uint16, groups)
	for i := 0; i < groups; i++ {
		var v uint16
		for j := 0; j < 4; j++ {
			v = v*10 + uint16(padded[i*4+j]-'0')
		}
		digits[i] = v
	}
	// weight is (total digit groups counting the integer part) - 1,
	// adjusted for dscale trailing fractional groups already included
	// in digits; since coeff already folds in the exponent's scale,
	// weight is simply groups-1 minus however many groups are fractional.
	fractionalGroups := (int(dscale) + 3) / 4
	weight = int16(groups - fractionalGroups - 1)
	return digits, weight, sign, dscale
}

func digitsToDecimal(digits []uint16, weight int16, sign uint16, dscale uint16) decimal.Decimal {
	if len(digits) == 0 {
		return decimal.Zero
	}
	var intStr string
	for _, dg := range digits {
		intStr += padDigit(dg)
	}
	// Strip the leading zero padding introduced by padDigit, but keep at
	// least one digit.
	trimmed := stripLeadingZeros(intStr)
	coeff := trimmed
	d := decimal.RequireFromString(coeff)
	d = d.Shift(-int32(dscale))
	if sign&0x4000 != 0 {
		d = d.Neg()
	}
	return d
}

func padDigit(v uint16) string {
	s := ""
	for i := 0; i < 4; i++ {
		s = string(rune('0'+v%10)) + s
		v /= 10
	}
	return s
}

func stripLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// --- bigint ---

type bigIntCodec struct{ baseCodec }

func (c bigIntCodec) Encode(buf []byte, v any) ([]byte, error) {
	bi, err := asBigInt(c.name, v)
	if err != nil {
		return nil, err
	}
	digits, weight, sign := bigIntToDigits(bi)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(digits)))
	buf = binary.BigEndian.AppendUint16(buf, uint16(weight))
	buf = binary.BigEndian.AppendUint16(buf, sign)
	buf = binary.BigEndian.AppendUint16(buf, 0) // dscale, always 0 for bigint
	for _, dg := range digits {
		buf = binary.BigEndian.AppendUint16(buf, dg)
	}
	return buf, nil
}

func (c bigIntCodec) Decode(buf []byte) (any, int, error) {
	if len(buf) < 8 {
		return nil, 0, ErrShortInput{Codec: c.name, Need: 8, Have: len(buf)}
	}
	ndigits := binary.BigEndian.Uint16(buf[0:2])
	sign := binary.BigEndian.Uint16(buf[4:6])
	pos := 8
	need := 8 + int(ndigits)*2
	if len(buf) < need {
		return nil, 0, ErrShortInput{Codec: c.name, Need: need, Have: len(buf)}
	}
	digits := make([]uint16, ndigits)
	for i := range digits {
		digits[i] = binary.BigEndian.Uint16(buf[pos : pos+2])
		pos += 2
	}
	return digitsToBigInt(digits, sign), need, nil
}
