// Package num provides overflow-safe integer arithmetic for monetary
// amounts. All amounts are int64 base units; intermediate products are
// widened to big.Int so multiply-before-divide never overflows.
package num

import (
	"math/big"
	"sync"
)

// Basis-point scale shared by trading fees and redemption rates.
const (
	BpsScale      int64 = 10_000
	MaxFeeRateBps int64 = 500
)

// RoundingMode selects how DivideInt128 treats a non-zero remainder.
type RoundingMode int

const (
	RoundDown RoundingMode = iota // Truncate (default for all monetary math)
	RoundUp
	RoundHalfEven // Banker's rounding
)

// Pooled big.Int for intermediate calculations
var int128Pool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getInt128() *big.Int {
	return int128Pool.Get().(*big.Int)
}

func putInt128(v *big.Int) {
	v.SetInt64(0) // Clear before returning to pool
	int128Pool.Put(v)
}

// MultiplyInt128 performs a * b using int128 to prevent overflow.
func MultiplyInt128(a, b int64) *big.Int {
	result := getInt128()
	result.Mul(big.NewInt(a), big.NewInt(b))
	return result
}

// DivideInt128 performs numerator / denominator with rounding and
// returns the int128 to the pool.
func DivideInt128(numerator *big.Int, denominator int64, mode RoundingMode) int64 {
	denom := big.NewInt(denominator)
	quotient := getInt128()
	remainder := getInt128()

	quotient.DivMod(numerator, denom, remainder)

	result := quotient.Int64()

	switch mode {
	case RoundUp:
		if remainder.Sign() != 0 {
			result++
		}
	case RoundHalfEven:
		// If remainder == denominator/2, round to even
		half := big.NewInt(denominator / 2)
		cmp := remainder.Cmp(half)
		if cmp > 0 {
			result++
		} else if cmp == 0 && denominator%2 == 0 {
			if result%2 != 0 {
				result++
			}
		}
	}

	putInt128(quotient)
	putInt128(remainder)

	return result
}

// Gross returns price * amount, reporting false when the product does
// not fit in an int64.
func Gross(price, amount int64) (int64, bool) {
	product := MultiplyInt128(price, amount)
	defer putInt128(product)

	if !product.IsInt64() {
		return 0, false
	}
	return product.Int64(), true
}

// TradeFee computes the fee on a gross trade value at rateBps basis
// points, rounded down. A non-zero rate on a non-zero gross always
// charges at least one base unit.
func TradeFee(gross, rateBps int64) int64 {
	if rateBps == 0 || gross == 0 {
		return 0
	}

	raw := MultiplyInt128(gross, rateBps)
	fee := DivideInt128(raw, BpsScale, RoundDown)
	putInt128(raw)

	if fee == 0 {
		fee = 1
	}
	return fee
}

// ProRataShare returns the holder's slice of a pool:
// balance * pool / supply, rounded down. A zero supply yields zero.
func ProRataShare(balance, pool, supply int64) int64 {
	if supply == 0 || balance == 0 || pool == 0 {
		return 0
	}

	raw := MultiplyInt128(balance, pool)
	share := DivideInt128(raw, supply, RoundDown)
	putInt128(raw)

	return share
}

// RedemptionPayout converts a token amount to settlement currency at
// rateBps basis points, rounded down.
func RedemptionPayout(amount, rateBps int64) int64 {
	if amount == 0 || rateBps == 0 {
		return 0
	}

	raw := MultiplyInt128(amount, rateBps)
	payout := DivideInt128(raw, BpsScale, RoundDown)
	putInt128(raw)

	return payout
}
