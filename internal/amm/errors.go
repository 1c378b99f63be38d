package amm

import "errors"

var (
	// ErrInvalidAmount is returned for a nil or zero amount.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientLiquidity is returned when either reserve is empty.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")

	// ErrArithmeticOverflow is returned when an intermediate product does not fit in 256 bits.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrInvalidFee is returned for a fee with a zero numerator or a numerator above the denominator.
	ErrInvalidFee = errors.New("invalid fee")
)
