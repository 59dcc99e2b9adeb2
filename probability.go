package quickpick

import (
	"fmt"
	"math"

	"github.com/kydenul/quickpick/internal/uint128"
)

// Combination returns C(n, k) exactly.
//
// The running product result*(n-i)/(i+1) is an integer after every step
// (it equals C(n, i+1)), so each division is exact. When the product itself
// would not fit in 128 bits, the common factor of result and i+1 is divided
// out first. Only results larger than 128 bits fail with
// ErrCalculationOverflow. k > n yields zero.
func Combination(n, k int) (uint128.Uint128, error) {
	if n < 0 || k < 0 {
		return uint128.Zero, ErrInvalidParameters.WithDetails("C(%d,%d)", n, k)
	}
	if k > n {
		return uint128.Zero, nil
	}
	if n-k < k {
		k = n - k
	}

	result := uint128.One
	for i := 0; i < k; i++ {
		num, den := uint64(n-i), uint64(i+1)
		if next, ok := result.Mul64(num); ok {
			var rem uint64
			if result, rem = next.QuoRem64(den); rem != 0 {
				invariantf("C(%d,%d): inexact division at step %d", n, k, i+1)
			}
			continue
		}

		// result/g and den/g are coprime, so den/g divides num
		_, r := result.QuoRem64(den)
		g := gcd(r, den)
		reduced, _ := result.QuoRem64(g)
		if num%(den/g) != 0 {
			invariantf("C(%d,%d): inexact division at step %d", n, k, i+1)
		}
		var ok bool
		if result, ok = reduced.Mul64(num / (den / g)); !ok {
			return uint128.Zero, ErrCalculationOverflow.WithDetails("C(%d,%d) exceeds 128 bits", n, k)
		}
	}
	return result, nil
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// Probability is the exact chance of matching M of the K balls drawn from N,
// kept as the ratio Favorable/Total.
type Probability struct {
	N, K, M   int
	Favorable uint128.Uint128
	Total     uint128.Uint128
}

// Float64 returns Favorable/Total
func (p Probability) Float64() float64 {
	if p.Total.IsZero() {
		return 0
	}
	return p.Favorable.Float64() / p.Total.Float64()
}

// OneIn returns x such that the probability is 1 in x, +Inf when impossible
func (p Probability) OneIn() float64 {
	if p.Favorable.IsZero() {
		return math.Inf(1)
	}
	return p.Total.Float64() / p.Favorable.Float64()
}

func (p Probability) String() string {
	return fmt.Sprintf("%s/%s", p.Favorable, p.Total)
}

// CalculateProbability returns the probability of matching exactly m numbers
// when k numbers are drawn from a pool of n: C(k,m)*C(n-k,k-m)/C(n,k).
func CalculateProbability(n, k, m int) (Probability, error) {
	switch {
	case n <= 0:
		return Probability{}, ErrInvalidPoolSize.WithDetails("n=%d", n)
	case k < 0 || m < 0:
		return Probability{}, ErrInvalidParameters.WithDetails("k=%d m=%d", k, m)
	case k > n:
		return Probability{}, ErrPickExceedsRange.WithDetails("cannot draw %d from %d", k, n)
	case m > k:
		return Probability{}, ErrInvalidMatchCount.WithDetails("cannot match %d of %d", m, k)
	}

	hits, err := Combination(k, m)
	if err != nil {
		return Probability{}, err
	}
	misses, err := Combination(n-k, k-m)
	if err != nil {
		return Probability{}, err
	}
	favorable, ok := hits.Mul(misses)
	if !ok {
		return Probability{}, ErrCalculationOverflow.WithDetails("favorable outcomes for (%d,%d,%d)", n, k, m)
	}
	total, err := Combination(n, k)
	if err != nil {
		return Probability{}, err
	}

	return Probability{N: n, K: k, M: m, Favorable: favorable, Total: total}, nil
}

// OddsTable returns the probability of every match count 0..k, indexed by m.
// The favorable counts add up to Total exactly.
func OddsTable(n, k int) ([]Probability, error) {
	if k < 0 {
		return nil, ErrInvalidParameters.WithDetails("k=%d", k)
	}
	table := make([]Probability, 0, k+1)
	for m := 0; m <= k; m++ {
		p, err := CalculateProbability(n, k, m)
		if err != nil {
			return nil, err
		}
		table = append(table, p)
	}
	return table, nil
}
