package amm

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

// u creates a uint256 from a decimal string for test convenience
func u(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func TestQuoteOutputConcreteScenario(t *testing.T) {
	out, err := QuoteOutput(u("100"), u("1000"), u("500"), DefaultFee)
	require.NoError(t, err)
	require.Equal(t, "45", out.Dec())
}

func TestQuoteOutputMatchesReferenceWithEtherUnits(t *testing.T) {
	// Same pool as above expressed in 18-decimal units.
	amountIn := u("100000000000000000000")
	reserveIn := u("1000000000000000000000")
	reserveOut := u("500000000000000000000")

	out, err := QuoteOutput(amountIn, reserveIn, reserveOut, DefaultFee)
	require.NoError(t, err)

	withFee := new(big.Int).Mul(amountIn.ToBig(), big.NewInt(997))
	num := new(big.Int).Mul(withFee, reserveOut.ToBig())
	den := new(big.Int).Mul(reserveIn.ToBig(), big.NewInt(1000))
	den.Add(den, withFee)
	expected := new(big.Int).Div(num, den)

	require.Equal(t, expected.String(), out.Dec())
}

func TestQuoteOutputRejectsZeroAmount(t *testing.T) {
	_, err := QuoteOutput(uint256.NewInt(0), u("1000"), u("500"), DefaultFee)
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = QuoteOutput(nil, u("1000"), u("500"), DefaultFee)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestQuoteOutputRejectsEmptyReserves(t *testing.T) {
	tests := []struct {
		name       string
		reserveIn  *uint256.Int
		reserveOut *uint256.Int
	}{
		{"empty input reserve", uint256.NewInt(0), u("500")},
		{"empty output reserve", u("1000"), uint256.NewInt(0)},
		{"both empty", uint256.NewInt(0), uint256.NewInt(0)},
		{"nil reserve", nil, u("500")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := QuoteOutput(u("100"), tt.reserveIn, tt.reserveOut, DefaultFee)
			require.ErrorIs(t, err, ErrInsufficientLiquidity)
		})
	}
}

func TestQuoteOutputRejectsInvalidFee(t *testing.T) {
	for _, fee := range []Fee{{Numerator: 0, Denominator: 1000}, {Numerator: 1001, Denominator: 1000}, {Numerator: 1, Denominator: 0}} {
		_, err := QuoteOutput(u("100"), u("1000"), u("500"), fee)
		require.ErrorIs(t, err, ErrInvalidFee, "fee %s", fee)
	}
}

func TestQuoteOutputOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	// amountIn * feeNumerator overflows
	_, err := QuoteOutput(max, u("1000"), u("500"), DefaultFee)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	// amountInWithFee * reserveOut overflows
	half := new(uint256.Int).Rsh(max, 128)
	_, err = QuoteOutput(half, u("1000"), half, DefaultFee)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	// reserveIn * feeDenominator overflows
	_, err = QuoteOutput(u("1"), max, u("500"), DefaultFee)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestQuoteOutputNeverDrainsReserve(t *testing.T) {
	reserveOut := u("500")
	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 200)

	out, err := QuoteOutput(huge, u("1000"), reserveOut, DefaultFee)
	require.NoError(t, err)
	require.True(t, out.Lt(reserveOut), "output %s must stay below reserve %s", out, reserveOut)
}

func TestQuoteOutputMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	reserveIn := u("1000000000000000000000")
	reserveOut := u("2500000000000000000000")

	prevIn := uint256.NewInt(1)
	prevOut, err := QuoteOutput(prevIn, reserveIn, reserveOut, DefaultFee)
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		step := uint256.NewInt(uint64(rng.Int63n(1 << 60)))
		nextIn := new(uint256.Int).Add(prevIn, step)
		nextOut, err := QuoteOutput(nextIn, reserveIn, reserveOut, DefaultFee)
		require.NoError(t, err)
		require.False(t, nextOut.Lt(prevOut), "quote(%s)=%s < quote(%s)=%s", nextIn, nextOut, prevIn, prevOut)
		prevIn, prevOut = nextIn, nextOut
	}
}

func TestQuoteOutputFeeReducesOutput(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < 200; i++ {
		amountIn := uint256.NewInt(uint64(rng.Int63n(1<<40) + 1))
		reserveIn := uint256.NewInt(uint64(rng.Int63n(1<<50) + 1))
		reserveOut := uint256.NewInt(uint64(rng.Int63n(1<<50) + 1))

		out, err := QuoteOutput(amountIn, reserveIn, reserveOut, DefaultFee)
		require.NoError(t, err)

		// out < amountIn * reserveOut / reserveIn, compared without division
		lhs := new(big.Int).Mul(out.ToBig(), reserveIn.ToBig())
		rhs := new(big.Int).Mul(amountIn.ToBig(), reserveOut.ToBig())
		require.Equal(t, -1, lhs.Cmp(rhs))
	}
}

func TestQuoteOutputPreservesInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for i := 0; i < 200; i++ {
		amountIn := uint256.NewInt(uint64(rng.Int63n(1<<40) + 1))
		reserveIn := uint256.NewInt(uint64(rng.Int63n(1<<50) + 1))
		reserveOut := uint256.NewInt(uint64(rng.Int63n(1<<50) + 1))

		out, err := QuoteOutput(amountIn, reserveIn, reserveOut, DefaultFee)
		require.NoError(t, err)

		before := new(big.Int).Mul(reserveIn.ToBig(), reserveOut.ToBig())
		newIn := new(big.Int).Add(reserveIn.ToBig(), amountIn.ToBig())
		newOut := new(big.Int).Sub(reserveOut.ToBig(), out.ToBig())
		after := new(big.Int).Mul(newIn, newOut)
		require.Equal(t, 1, after.Cmp(before), "k must strictly grow with a positive fee")
	}
}

func TestQuoteDeposit(t *testing.T) {
	other, err := QuoteDeposit(u("100"), u("1000"), u("500"))
	require.NoError(t, err)
	require.Equal(t, "50", other.Dec())

	_, err = QuoteDeposit(u("0"), u("1000"), u("500"))
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = QuoteDeposit(u("10"), u("0"), u("500"))
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}
