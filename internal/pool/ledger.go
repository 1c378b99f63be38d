package pool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// Reserves is a consistent pair of pool reserves.
type Reserves struct {
	A *uint256.Int
	B *uint256.Int
}

// Get returns the reserve of side.
func (r Reserves) Get(side Side) *uint256.Int {
	if side == SideA {
		return r.A
	}
	return r.B
}

// InOut returns (reserveIn, reserveOut) for a swap whose input is side.
func (r Reserves) InOut(side Side) (*uint256.Int, *uint256.Int) {
	return r.Get(side), r.Get(side.Other())
}

// Product returns A * B without overflow.
func (r Reserves) Product() *big.Int {
	return new(big.Int).Mul(r.A.ToBig(), r.B.ToBig())
}

// Clone returns a deep copy.
func (r Reserves) Clone() Reserves {
	return Reserves{A: r.A.Clone(), B: r.B.Clone()}
}

// Ledger owns the reserve pair. Reads never observe a half-applied commit.
type Ledger struct {
	mu sync.RWMutex

	reserveA *uint256.Int
	reserveB *uint256.Int
}

// NewLedger creates a ledger with both reserves at zero.
func NewLedger() *Ledger {
	return &Ledger{
		reserveA: new(uint256.Int),
		reserveB: new(uint256.Int),
	}
}

// Snapshot returns a copy of the current reserves.
func (l *Ledger) Snapshot() Reserves {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Reserves{
		A: l.reserveA.Clone(),
		B: l.reserveB.Clone(),
	}
}

// Commit replaces both reserves at once.
// Fails with ErrInvariantViolation if either value is negative.
func (l *Ledger) Commit(newA, newB *big.Int) error {
	next, err := NewReserves(newA, newB)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.reserveA = next.A
	l.reserveB = next.B
	return nil
}

// NewReserves validates a signed reserve pair and converts it.
func NewReserves(a, b *big.Int) (Reserves, error) {
	if a == nil || b == nil || a.Sign() < 0 || b.Sign() < 0 {
		return Reserves{}, fmt.Errorf("%w: reserves (%v, %v)", ErrInvariantViolation, a, b)
	}

	ra, overflowA := uint256.FromBig(a)
	rb, overflowB := uint256.FromBig(b)
	if overflowA || overflowB {
		return Reserves{}, fmt.Errorf("%w: reserves exceed 256 bits", ErrArithmeticOverflow)
	}
	return Reserves{A: ra, B: rb}, nil
}
