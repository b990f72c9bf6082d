package common

import "github.com/holiman/uint256"

// Price and Quantity are wide unsigned integers so that multiplying a price
// by a basis-point slippage tolerance never overflows. See DESIGN.md for why
// holiman/uint256 stands in for the original's 256/512-bit crypto_bigint
// types.
type Price = uint256.Int
type Quantity = uint256.Int

// NewPrice and NewQuantity build a Price/Quantity from a plain uint64, the
// common case in tests and the demo wire protocol.
func NewPrice(v uint64) *Price       { return new(uint256.Int).SetUint64(v) }
func NewQuantity(v uint64) *Quantity { return new(uint256.Int).SetUint64(v) }

// ZeroQuantity reports whether q is the zero quantity.
func ZeroQuantity(q *Quantity) bool { return q.IsZero() }

// MinQuantity returns the smaller of a and b without mutating either.
func MinQuantity(a, b *Quantity) *Quantity {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// SatSub computes a-b, saturating at zero instead of wrapping. Spec §7:
// "Arithmetic is saturating on subtractions to eliminate underflow as an
// error path."
func SatSub(a, b *Quantity) *Quantity {
	if a.Cmp(b) < 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// slippageBoundPrice computes the worst acceptable execution price given a
// reference price and a slippage tolerance in basis points, per side. For
// Buy the bound is an upper cap (price may rise); for Sell it is a lower
// floor (price may fall). bps must already be validated to be in [0, 5000].
func slippageBoundPrice(side Side, price *Price, bps uint32) *Price {
	factor := new(uint256.Int).SetUint64(uint64(bps))
	factor.Mul(factor, price)
	factor.Div(factor, new(uint256.Int).SetUint64(10000))

	bound := new(uint256.Int)
	if side == Buy {
		bound.Add(price, factor)
	} else {
		bound = SatSub(price, factor)
	}
	return bound
}
