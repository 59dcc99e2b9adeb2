// Package uint128 provides the small unsigned 128-bit integer needed for
// exact binomial coefficients. Only the operations the combination routine
// uses are implemented; all of them report overflow instead of wrapping.
package uint128

import (
	"math"
	"math/bits"
)

// Uint128 is an unsigned 128-bit integer.
type Uint128 struct {
	Hi, Lo uint64
}

// Zero and One are the obvious constants.
var (
	Zero = Uint128{}
	One  = Uint128{Lo: 1}
	Max  = Uint128{Hi: math.MaxUint64, Lo: math.MaxUint64}
)

// From64 widens v.
func From64(v uint64) Uint128 { return Uint128{Lo: v} }

// IsZero reports whether u == 0.
func (u Uint128) IsZero() bool { return u.Hi == 0 && u.Lo == 0 }

// IsUint64 reports whether u fits into 64 bits.
func (u Uint128) IsUint64() bool { return u.Hi == 0 }

// Cmp returns -1, 0 or +1.
func (u Uint128) Cmp(v Uint128) int {
	switch {
	case u.Hi < v.Hi:
		return -1
	case u.Hi > v.Hi:
		return 1
	case u.Lo < v.Lo:
		return -1
	case u.Lo > v.Lo:
		return 1
	}
	return 0
}

// Cmp64 compares u with a 64-bit value.
func (u Uint128) Cmp64(v uint64) int { return u.Cmp(From64(v)) }

// Add returns u+v, ok is false on overflow.
func (u Uint128) Add(v Uint128) (sum Uint128, ok bool) {
	lo, carry := bits.Add64(u.Lo, v.Lo, 0)
	hi, carry := bits.Add64(u.Hi, v.Hi, carry)
	return Uint128{Hi: hi, Lo: lo}, carry == 0
}

// Mul64 returns u*v, ok is false on overflow.
func (u Uint128) Mul64(v uint64) (prod Uint128, ok bool) {
	carryHi, lo := bits.Mul64(u.Lo, v)
	overflow, hi := bits.Mul64(u.Hi, v)
	if overflow != 0 {
		return Zero, false
	}
	hi, carry := bits.Add64(hi, carryHi, 0)
	if carry != 0 {
		return Zero, false
	}
	return Uint128{Hi: hi, Lo: lo}, true
}

// Mul returns u*v, ok is false on overflow.
func (u Uint128) Mul(v Uint128) (prod Uint128, ok bool) {
	if u.Hi != 0 && v.Hi != 0 {
		return Zero, false
	}
	if u.Hi != 0 {
		u, v = v, u
	}
	// u fits in 64 bits now
	return v.Mul64(u.Lo)
}

// QuoRem64 returns u/v and u%v. It panics if v == 0.
func (u Uint128) QuoRem64(v uint64) (q Uint128, r uint64) {
	if u.Hi < v {
		q.Lo, r = bits.Div64(u.Hi, u.Lo, v)
		return q, r
	}
	q.Hi, r = u.Hi/v, u.Hi%v
	q.Lo, r = bits.Div64(r, u.Lo, v)
	return q, r
}

// Float64 returns the nearest float64 value of u.
func (u Uint128) Float64() float64 {
	return float64(u.Hi)*(1<<64) + float64(u.Lo)
}

// String formats u in base 10.
func (u Uint128) String() string {
	if u.IsZero() {
		return "0"
	}

	// 2^128 has 39 decimal digits
	var buf [40]byte
	i := len(buf)
	for !u.IsZero() {
		var r uint64
		u, r = u.QuoRem64(10)
		i--
		buf[i] = byte('0' + r)
	}
	return string(buf[i:])
}
