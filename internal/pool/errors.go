package pool

import (
	"errors"

	"nexusdex/internal/amm"
)

var (
	// Pricing errors are shared with the amm package so errors.Is works across layers.
	ErrInvalidAmount         = amm.ErrInvalidAmount
	ErrInsufficientLiquidity = amm.ErrInsufficientLiquidity
	ErrArithmeticOverflow    = amm.ErrArithmeticOverflow
	ErrInvalidFee            = amm.ErrInvalidFee

	// ErrTransferFailed is returned when the asset ledger declines a pull or push.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrInvariantViolation is returned when a reserve commit would go negative.
	ErrInvariantViolation = errors.New("reserve invariant violation")

	// ErrInvalidAccount is returned when the pool's own custody account is
	// named as a depositor or trader.
	ErrInvalidAccount = errors.New("custody account cannot trade with its own pool")

	ErrInvalidSide     = errors.New("invalid side")
	ErrUnknownAsset    = errors.New("asset not in pool")
	ErrIdenticalAssets = errors.New("pool assets must differ")
	ErrSlippage        = errors.New("output below minimum")
	ErrAlreadySeeded   = errors.New("pool already holds reserves")
)

// ErrorClass returns a short stable label for err, used in metrics and API responses.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientLiquidity):
		return "insufficient_liquidity"
	case errors.Is(err, ErrArithmeticOverflow):
		return "arithmetic_overflow"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrInvariantViolation):
		return "invariant_violation"
	case errors.Is(err, ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, ErrInvalidSide):
		return "invalid_side"
	case errors.Is(err, ErrUnknownAsset):
		return "unknown_asset"
	case errors.Is(err, ErrSlippage):
		return "slippage"
	default:
		return "internal"
	}
}
