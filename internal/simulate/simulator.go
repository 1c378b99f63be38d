package simulate

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"nexusdex/internal/amm"
	"nexusdex/internal/pool"
)

// Step is one swap in a simulated sequence.
type Step struct {
	Side     pool.Side
	AmountIn *uint256.Int
}

// StepResult is the outcome of one simulated swap.
type StepResult struct {
	Step
	AmountOut   *uint256.Int
	Reserves    pool.Reserves
	PriceImpact decimal.Decimal
	Err         error
}

// Result contains the outcome of simulating a sequence of swaps.
type Result struct {
	Start pool.Reserves
	End   pool.Reserves
	Steps []StepResult

	// KGrowth is the end constant product over the start one. Fees make it
	// at least 1.
	KGrowth decimal.Decimal

	// Failed counts steps that were rejected and left the reserves unchanged.
	Failed int
}

// Run applies steps to a copy of reserves with the pool's pricing, without
// moving any assets. A rejected step is recorded and skipped.
func Run(reserves pool.Reserves, fee amm.Fee, steps []Step) (*Result, error) {
	if err := fee.Validate(); err != nil {
		return nil, err
	}

	current := reserves.Clone()
	result := &Result{
		Start: reserves.Clone(),
		Steps: make([]StepResult, 0, len(steps)),
	}

	for _, step := range steps {
		sr := StepResult{Step: step}
		next, out, err := apply(current, fee, step)
		if err != nil {
			sr.Err = err
			sr.Reserves = current.Clone()
			result.Failed++
			result.Steps = append(result.Steps, sr)
			continue
		}

		reserveIn, reserveOut := current.InOut(step.Side)
		sr.AmountOut = out
		sr.Reserves = next
		sr.PriceImpact = amm.PriceImpact(step.AmountIn, out, reserveIn, reserveOut)
		result.Steps = append(result.Steps, sr)
		current = next
	}

	result.End = current
	result.KGrowth = kGrowth(result.Start, result.End)
	return result, nil
}

func apply(r pool.Reserves, fee amm.Fee, step Step) (pool.Reserves, *uint256.Int, error) {
	if !step.Side.Valid() {
		return pool.Reserves{}, nil, fmt.Errorf("%w: %s", pool.ErrInvalidSide, step.Side)
	}
	reserveIn, reserveOut := r.InOut(step.Side)
	out, err := amm.QuoteOutput(step.AmountIn, reserveIn, reserveOut, fee)
	if err != nil {
		return pool.Reserves{}, nil, err
	}

	newIn := new(big.Int).Add(reserveIn.ToBig(), step.AmountIn.ToBig())
	newOut := new(big.Int).Sub(reserveOut.ToBig(), out.ToBig())
	var next pool.Reserves
	if step.Side == pool.SideA {
		next, err = pool.NewReserves(newIn, newOut)
	} else {
		next, err = pool.NewReserves(newOut, newIn)
	}
	if err != nil {
		return pool.Reserves{}, nil, err
	}
	return next, out, nil
}

func kGrowth(start, end pool.Reserves) decimal.Decimal {
	k0 := start.Product()
	if k0.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(end.Product(), 0).DivRound(decimal.NewFromBigInt(k0, 0), 18)
}

// MaxInputForImpact returns the largest input on side whose price impact,
// fee included and integer rounding ignored, does not exceed maxImpact.
// It returns zero when the fee alone exceeds maxImpact.
//
// The executed rate over the spot rate is f*rIn/(rIn+f*x) for fee multiplier
// f, which solved for x gives rIn*(f-(1-m))/((1-m)*f).
func MaxInputForImpact(reserves pool.Reserves, side pool.Side, fee amm.Fee, maxImpact decimal.Decimal) (*uint256.Int, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %s", pool.ErrInvalidSide, side)
	}
	if err := fee.Validate(); err != nil {
		return nil, err
	}
	one := decimal.NewFromInt(1)
	if maxImpact.IsNegative() || maxImpact.GreaterThanOrEqual(one) {
		return nil, fmt.Errorf("max impact %s must be in [0, 1)", maxImpact)
	}
	reserveIn, reserveOut := reserves.InOut(side)
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, pool.ErrInsufficientLiquidity
	}

	retained := one.Sub(maxImpact)
	num := decimal.NewFromUint64(fee.Numerator)
	den := decimal.NewFromUint64(fee.Denominator)

	headroom := num.Sub(retained.Mul(den))
	if !headroom.IsPositive() {
		return new(uint256.Int), nil
	}

	x := decimal.NewFromBigInt(reserveIn.ToBig(), 0).
		Mul(headroom).
		DivRound(retained.Mul(num), 18).
		Floor()

	out, overflow := uint256.FromBig(x.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: max input exceeds 256 bits", pool.ErrArithmeticOverflow)
	}
	return out, nil
}

// ParseStep parses "A:1.5" or "B:200" with the amount in whole units of the
// input asset.
func ParseStep(s string, decimalsA, decimalsB uint8) (Step, error) {
	sideStr, amountStr, ok := strings.Cut(s, ":")
	if !ok {
		return Step{}, fmt.Errorf("step %q must look like SIDE:AMOUNT", s)
	}
	side, err := pool.ParseSide(sideStr)
	if err != nil {
		return Step{}, err
	}
	decimals := decimalsA
	if side == pool.SideB {
		decimals = decimalsB
	}
	amount, err := amm.ParseUnits(strings.TrimSpace(amountStr), decimals)
	if err != nil {
		return Step{}, fmt.Errorf("step %q: %w", s, err)
	}
	return Step{Side: side, AmountIn: amount}, nil
}
