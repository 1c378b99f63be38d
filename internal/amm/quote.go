package amm

import (
	"github.com/holiman/uint256"
)

// QuoteOutput calculates the output amount for a constant product swap.
// Formula: amountOut = (amountIn * feeNum * reserveOut) / (reserveIn * feeDen + amountIn * feeNum)
//
// All intermediate values are 256-bit and any overflow is reported as
// ErrArithmeticOverflow instead of wrapping. The result is truncated toward zero
// and is always strictly below reserveOut.
func QuoteOutput(amountIn, reserveIn, reserveOut *uint256.Int, fee Fee) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	feeNum := uint256.NewInt(fee.Numerator)
	feeDen := uint256.NewInt(fee.Denominator)

	amountInWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, feeNum)
	if overflow {
		return nil, ErrArithmeticOverflow
	}

	numerator, overflow := new(uint256.Int).MulOverflow(amountInWithFee, reserveOut)
	if overflow {
		return nil, ErrArithmeticOverflow
	}

	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, feeDen)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	if _, overflow = denominator.AddOverflow(denominator, amountInWithFee); overflow {
		return nil, ErrArithmeticOverflow
	}

	return new(uint256.Int).Div(numerator, denominator), nil
}

// QuoteDeposit returns the amount of the other asset that keeps the current
// reserve ratio for a deposit of amount: amount * reserveOther / reserveSame.
// Deposits are not required to be proportional; this is a suggestion only.
func QuoteDeposit(amount, reserveSame, reserveOther *uint256.Int) (*uint256.Int, error) {
	if amount == nil || amount.IsZero() {
		return nil, ErrInvalidAmount
	}
	if reserveSame == nil || reserveOther == nil || reserveSame.IsZero() || reserveOther.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	product, overflow := new(uint256.Int).MulOverflow(amount, reserveOther)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, reserveSame), nil
}
