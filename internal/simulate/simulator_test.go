package simulate

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"nexusdex/internal/amm"
	"nexusdex/internal/pool"
)

func reserves(a, b uint64) pool.Reserves {
	return pool.Reserves{A: uint256.NewInt(a), B: uint256.NewInt(b)}
}

func TestRunConcreteScenario(t *testing.T) {
	start := reserves(1000, 500)

	res, err := Run(start, amm.DefaultFee, []Step{
		{Side: pool.SideA, AmountIn: uint256.NewInt(100)},
		{Side: pool.SideB, AmountIn: uint256.NewInt(0)},
		{Side: pool.SideB, AmountIn: uint256.NewInt(45)},
	})
	require.NoError(t, err)
	require.Len(t, res.Steps, 3)

	first := res.Steps[0]
	require.NoError(t, first.Err)
	require.Equal(t, uint64(45), first.AmountOut.Uint64())
	require.Equal(t, uint64(1100), first.Reserves.A.Uint64())
	require.Equal(t, uint64(455), first.Reserves.B.Uint64())
	require.True(t, first.PriceImpact.IsPositive())

	require.ErrorIs(t, res.Steps[1].Err, amm.ErrInvalidAmount)
	require.Equal(t, 1, res.Failed)

	// Selling the output back returns less than the original input.
	back := res.Steps[2]
	require.NoError(t, back.Err)
	require.Less(t, back.AmountOut.Uint64(), uint64(100))

	require.True(t, res.KGrowth.GreaterThanOrEqual(decimal.NewFromInt(1)))
	// The input reserves are not modified.
	require.Equal(t, uint64(1000), start.A.Uint64())
}

func TestRunEmptyPool(t *testing.T) {
	res, err := Run(reserves(0, 0), amm.DefaultFee, []Step{{Side: pool.SideA, AmountIn: uint256.NewInt(1)}})
	require.NoError(t, err)
	require.ErrorIs(t, res.Steps[0].Err, amm.ErrInsufficientLiquidity)
	require.True(t, res.KGrowth.IsZero())
}

func TestRunRejectsInvalidFee(t *testing.T) {
	_, err := Run(reserves(1, 1), amm.Fee{Numerator: 0, Denominator: 1000}, nil)
	require.ErrorIs(t, err, amm.ErrInvalidFee)
}

func TestMaxInputForImpact(t *testing.T) {
	e18 := uint256.NewInt(1e18)
	r := pool.Reserves{
		A: new(uint256.Int).Mul(uint256.NewInt(1000), e18),
		B: new(uint256.Int).Mul(uint256.NewInt(500), e18),
	}
	limit := decimal.RequireFromString("0.01")

	x, err := MaxInputForImpact(r, pool.SideA, amm.DefaultFee, limit)
	require.NoError(t, err)
	require.False(t, x.IsZero())

	out, err := amm.QuoteOutput(x, r.A, r.B, amm.DefaultFee)
	require.NoError(t, err)
	impact := amm.PriceImpact(x, out, r.A, r.B)
	require.True(t, impact.LessThanOrEqual(decimal.RequireFromString("0.0100001")), impact.String())

	larger := new(uint256.Int).Add(x, new(uint256.Int).Div(x, uint256.NewInt(50)))
	out, err = amm.QuoteOutput(larger, r.A, r.B, amm.DefaultFee)
	require.NoError(t, err)
	require.True(t, amm.PriceImpact(larger, out, r.A, r.B).GreaterThan(limit))
}

func TestMaxInputForImpactBelowFee(t *testing.T) {
	x, err := MaxInputForImpact(reserves(1000, 500), pool.SideA, amm.DefaultFee, decimal.RequireFromString("0.002"))
	require.NoError(t, err)
	require.True(t, x.IsZero())

	_, err = MaxInputForImpact(reserves(0, 500), pool.SideA, amm.DefaultFee, decimal.RequireFromString("0.1"))
	require.ErrorIs(t, err, pool.ErrInsufficientLiquidity)

	_, err = MaxInputForImpact(reserves(1, 1), pool.SideA, amm.DefaultFee, decimal.NewFromInt(1))
	require.Error(t, err)
}

func TestParseStep(t *testing.T) {
	step, err := ParseStep("a:1.5", 18, 6)
	require.NoError(t, err)
	require.Equal(t, pool.SideA, step.Side)
	require.Equal(t, "1500000000000000000", step.AmountIn.Dec())

	step, err = ParseStep("B: 2", 18, 6)
	require.NoError(t, err)
	require.Equal(t, pool.SideB, step.Side)
	require.Equal(t, uint64(2_000_000), step.AmountIn.Uint64())

	_, err = ParseStep("C:1", 18, 18)
	require.ErrorIs(t, err, pool.ErrInvalidSide)

	_, err = ParseStep("A1", 18, 18)
	require.Error(t, err)

	_, err = ParseStep("B:0.0000001", 18, 6)
	require.Error(t, err)
}
