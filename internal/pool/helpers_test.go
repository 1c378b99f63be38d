package pool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"nexusdex/internal/amm"
	"nexusdex/internal/token"
)

var (
	assetA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetB   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	factory  = common.HexToAddress("0x00000000000000000000000000000000000000fa")
	provider = common.HexToAddress("0x0000000000000000000000000000000000000001")
	trader   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

var errInjected = errors.New("injected failure")

// flakyToken wraps a ledger and fails selected calls on demand.
type flakyToken struct {
	*token.Ledger
	failTransfer     atomic.Bool
	failTransferFrom atomic.Bool
}

func (f *flakyToken) Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error {
	if f.failTransfer.Load() {
		return errInjected
	}
	return f.Ledger.Transfer(ctx, from, to, amount)
}

func (f *flakyToken) TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error {
	if f.failTransferFrom.Load() {
		return errInjected
	}
	return f.Ledger.TransferFrom(ctx, spender, owner, to, amount)
}

// failingJournal rejects every record.
type failingJournal struct{}

func (failingJournal) RecordSwap(context.Context, SwapRecord) error       { return errInjected }
func (failingJournal) RecordDeposit(context.Context, DepositRecord) error { return errInjected }

// hookJournal runs fn when a record arrives and then rejects it.
type hookJournal struct {
	fn func()
}

func (j hookJournal) RecordSwap(context.Context, SwapRecord) error {
	j.fn()
	return errInjected
}

func (j hookJournal) RecordDeposit(context.Context, DepositRecord) error {
	j.fn()
	return errInjected
}

// memJournal keeps records in memory.
type memJournal struct {
	swaps    []SwapRecord
	deposits []DepositRecord
}

func (j *memJournal) RecordSwap(_ context.Context, rec SwapRecord) error {
	j.swaps = append(j.swaps, rec)
	return nil
}

func (j *memJournal) RecordDeposit(_ context.Context, rec DepositRecord) error {
	j.deposits = append(j.deposits, rec)
	return nil
}

type fixture struct {
	manager *Manager
	tokenA  *flakyToken
	tokenB  *flakyToken
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokenA := &flakyToken{Ledger: token.NewLedger(assetA, "NEXA", 18)}
	tokenB := &flakyToken{Ledger: token.NewLedger(assetB, "NEXB", 18)}

	m, err := NewManager(Config{Factory: factory, Fee: amm.DefaultFee, UpdateBuffer: 1024}, tokenA, tokenB, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)

	return &fixture{manager: m, tokenA: tokenA, tokenB: tokenB}
}

// fund mints and approves amounts of both assets for account.
func (f *fixture) fund(t *testing.T, account common.Address, amountA, amountB uint64) {
	t.Helper()
	ctx := context.Background()
	custody := f.manager.Address()

	require.NoError(t, f.tokenA.Mint(account, uint256.NewInt(amountA)))
	require.NoError(t, f.tokenB.Mint(account, uint256.NewInt(amountB)))
	require.NoError(t, f.tokenA.Approve(ctx, account, custody, new(uint256.Int).SetAllOne()))
	require.NoError(t, f.tokenB.Approve(ctx, account, custody, new(uint256.Int).SetAllOne()))
}

// seed deposits liquidity from provider.
func (f *fixture) seed(t *testing.T, amountA, amountB uint64) {
	t.Helper()
	f.fund(t, provider, amountA, amountB)
	_, err := f.manager.Deposit(context.Background(), uint256.NewInt(amountA), uint256.NewInt(amountB), provider)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, tok token.Token, account common.Address) uint64 {
	t.Helper()
	b, err := tok.BalanceOf(context.Background(), account)
	require.NoError(t, err)
	return b.Uint64()
}

func requireReserves(t *testing.T, m *Manager, a, b uint64) {
	t.Helper()
	r := m.Reserves()
	require.Equal(t, a, r.A.Uint64(), "reserve A")
	require.Equal(t, b, r.B.Uint64(), "reserve B")
}
