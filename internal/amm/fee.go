package amm

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fee is the fraction of the swap input that is priced, as an exact rational.
// A Fee of 997/1000 keeps 0.3% of every input in the pool.
type Fee struct {
	Numerator   uint64 `yaml:"numerator" json:"numerator"`
	Denominator uint64 `yaml:"denominator" json:"denominator"`
}

// DefaultFee is the 0.3% fee used by Uniswap V2 style pools.
var DefaultFee = Fee{Numerator: 997, Denominator: 1000}

// Validate checks that 0 < Numerator <= Denominator.
func (f Fee) Validate() error {
	if f.Denominator == 0 || f.Numerator == 0 || f.Numerator > f.Denominator {
		return fmt.Errorf("%w: %d/%d", ErrInvalidFee, f.Numerator, f.Denominator)
	}
	return nil
}

// Multiplier returns Numerator/Denominator, e.g. 0.997.
func (f Fee) Multiplier() decimal.Decimal {
	if f.Denominator == 0 {
		return decimal.Zero
	}
	return decimal.NewFromUint64(f.Numerator).Div(decimal.NewFromUint64(f.Denominator))
}

// Rate returns the retained fraction, e.g. 0.003.
func (f Fee) Rate() decimal.Decimal {
	return decimal.NewFromInt(1).Sub(f.Multiplier())
}

func (f Fee) String() string {
	return fmt.Sprintf("%d/%d", f.Numerator, f.Denominator)
}
