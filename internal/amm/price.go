package amm

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// SpotPrice returns reserveOut / reserveIn, the marginal price of the input asset
// before fees. Zero reserves yield zero.
func SpotPrice(reserveIn, reserveOut *uint256.Int) decimal.Decimal {
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() {
		return decimal.Zero
	}
	return toDecimal(reserveOut).DivRound(toDecimal(reserveIn), 18)
}

// EffectiveRate computes the marginal exchange rate including fees.
func EffectiveRate(reserveIn, reserveOut *uint256.Int, fee Fee) decimal.Decimal {
	return SpotPrice(reserveIn, reserveOut).Mul(fee.Multiplier())
}

// PriceImpact returns how far the executed price (amountOut/amountIn) falls
// short of the spot price, as a fraction in [0, 1].
func PriceImpact(amountIn, amountOut, reserveIn, reserveOut *uint256.Int) decimal.Decimal {
	spot := SpotPrice(reserveIn, reserveOut)
	if spot.IsZero() || amountIn == nil || amountIn.IsZero() || amountOut == nil {
		return decimal.Zero
	}
	executed := toDecimal(amountOut).DivRound(toDecimal(amountIn), 18)
	impact := decimal.NewFromInt(1).Sub(executed.DivRound(spot, 18))
	if impact.IsNegative() {
		return decimal.Zero
	}
	return impact
}

// FormatUnits renders a smallest-unit amount with the given number of decimals,
// e.g. 1500000000000000000 with 18 decimals is "1.5".
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}

// ParseUnits converts a human readable amount into smallest units.
// Fractional digits beyond decimals are rejected rather than rounded.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAmount, value)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}

	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrArithmeticOverflow, value)
	}
	return out, nil
}

func toDecimal(x *uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), 0)
}
