package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"
)

// maxAllowance is treated as an infinite approval and never decremented.
var maxAllowance = new(uint256.Int).SetAllOne()

// Ledger is an in-memory ERC20-style token.
type Ledger struct {
	mu sync.RWMutex

	id       common.Address
	symbol   string
	decimals uint8

	totalSupply *uint256.Int
	balances    map[common.Address]*uint256.Int
	allowances  map[common.Address]map[common.Address]*uint256.Int
}

var _ Token = (*Ledger)(nil)

// NewLedger creates an empty token ledger.
func NewLedger(id common.Address, symbol string, decimals uint8) *Ledger {
	return &Ledger{
		id:          id,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: new(uint256.Int),
		balances:    make(map[common.Address]*uint256.Int),
		allowances:  make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

func (l *Ledger) ID() common.Address { return l.id }
func (l *Ledger) Symbol() string     { return l.symbol }
func (l *Ledger) Decimals() uint8    { return l.decimals }

// TotalSupply returns the amount minted so far.
func (l *Ledger) TotalSupply() *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply.Clone()
}

// Mint creates amount new units owned by to.
func (l *Ledger) Mint(to common.Address, amount *uint256.Int) error {
	if to == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	supply, overflow := new(uint256.Int).AddOverflow(l.totalSupply, amount)
	if overflow {
		return fmt.Errorf("minting %s %s: %w", amount.Dec(), l.symbol, ErrOverflow)
	}
	l.totalSupply = supply
	l.balances[to] = new(uint256.Int).Add(l.balanceLocked(to), amount)

	log.Debug().
		Str("token", l.symbol).
		Str("to", to.Hex()).
		Str("amount", amount.Dec()).
		Msg("Minted tokens")
	return nil
}

// BalanceOf returns the balance of account.
func (l *Ledger) BalanceOf(_ context.Context, account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(account).Clone(), nil
}

// Allowance returns how much spender may still move on behalf of owner.
func (l *Ledger) Allowance(_ context.Context, owner, spender common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowanceLocked(owner, spender).Clone(), nil
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(_ context.Context, owner, spender common.Address, amount *uint256.Int) error {
	if owner == (common.Address{}) || spender == (common.Address{}) {
		return ErrZeroAddress
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	spenders, ok := l.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*uint256.Int)
		l.allowances[owner] = spenders
	}
	spenders[spender] = amount.Clone()
	return nil
}

// Transfer moves amount from from to to.
func (l *Ledger) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.moveLocked(from, to, amount)
}

// TransferFrom moves amount from owner to to, consuming spender's allowance.
// Allowance and balance are both checked before anything changes.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	allowance := l.allowanceLocked(owner, spender)
	if allowance.Lt(amount) {
		return fmt.Errorf("%s: %s allows %s to move %s, need %s: %w",
			l.symbol, owner.Hex(), spender.Hex(), allowance.Dec(), amount.Dec(), ErrInsufficientAllowance)
	}

	if err := l.moveLocked(owner, to, amount); err != nil {
		return err
	}

	if spenders, ok := l.allowances[owner]; ok && !allowance.Eq(maxAllowance) {
		spenders[spender] = new(uint256.Int).Sub(allowance, amount)
	}
	return nil
}

// moveLocked moves amount between accounts. Must be called with l.mu held.
func (l *Ledger) moveLocked(from, to common.Address, amount *uint256.Int) error {
	if from == (common.Address{}) || to == (common.Address{}) {
		return ErrZeroAddress
	}

	balance := l.balanceLocked(from)
	if balance.Lt(amount) {
		return fmt.Errorf("%s: %s holds %s, need %s: %w",
			l.symbol, from.Hex(), balance.Dec(), amount.Dec(), ErrInsufficientBalance)
	}

	l.balances[from] = new(uint256.Int).Sub(balance, amount)
	l.balances[to] = new(uint256.Int).Add(l.balanceLocked(to), amount)
	return nil
}

func (l *Ledger) balanceLocked(account common.Address) *uint256.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}

func (l *Ledger) allowanceLocked(owner, spender common.Address) *uint256.Int {
	if a, ok := l.allowances[owner][spender]; ok {
		return a
	}
	return new(uint256.Int)
}
