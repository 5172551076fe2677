package codecs

import (
	"fmt"
	"math/big"
)

// bigint has no counterpart among the teacher's scalar types (Tarantool
// has no arbitrary-precision wire integer); math/big is the only
// reasonable representation for an unbounded integer in Go, so this
// file is justified stdlib use rather than an ecosystem gap.

func typeMismatch(codecName string, v any) error {
	return fmt.Errorf("codecs: %s: cannot encode value of type %T", codecName, v)
}

func asBigInt(name string, v any) (*big.Int, error) {
	switch n := v.(type) {
	case *big.Int:
		return n, nil
	case big.Int:
		return &n, nil
	case int64:
		return big.NewInt(n), nil
	case int:
		return big.NewInt(int64(n)), nil
	default:
		return nil, typeMismatch(name, v)
	}
}

// bigIntToDigits splits the absolute value of bi into base-10000 groups,
// most significant first, mirroring the decimal codec's digit packing
// (bigint is a decimal with dscale pinned to 0).
func bigIntToDigits(bi *big.Int) (digits []uint16, weight int16, sign uint16) {
	abs := new(big.Int).Abs(bi)
	sign = 0
	if bi.Sign() < 0 {
		sign = 0x4000
	}
	if abs.Sign() == 0 {
		return nil, 0, sign
	}
	base := big.NewInt(decimalDigitBase)
	var groups []uint16
	rem := new(big.Int)
	quot := new(big.Int).Set(abs)
	for quot.Sign() > 0 {
		quot.QuoRem(quot, base, rem)
		groups = append(groups, uint16(rem.Int64()))
	}
	// groups is least-significant-first; reverse it.
	digits = make([]uint16, len(groups))
	for i, g := range groups {
		digits[len(groups)-1-i] = g
	}
	weight = int16(len(digits) - 1)
	return digits, weight, sign
}

func digitsToBigInt(digits []uint16, sign uint16) *big.Int {
	result := new(big.Int)
	base := big.NewInt(decimalDigitBase)
	for _, dg := range digits {
		result.Mul(result, base)
		result.Add(result, big.NewInt(int64(dg)))
	}
	if sign&0x4000 != 0 {
		result.Neg(result)
	}
	return result
}
