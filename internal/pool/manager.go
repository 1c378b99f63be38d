package pool

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"nexusdex/internal/amm"
	"nexusdex/internal/metrics"
	"nexusdex/internal/token"
)

const defaultUpdateBuffer = 64

// Config holds the construction-time parameters of a pool.
type Config struct {
	// Factory is the deployer account the custody address is derived from.
	Factory common.Address
	Fee     amm.Fee

	// UpdateBuffer is the capacity of the reserve update channel.
	UpdateBuffer int
}

// SwapRequest asks to sell AmountIn of the Side asset.
type SwapRequest struct {
	Side     Side
	AmountIn *uint256.Int

	// MinAmountOut optionally bounds the acceptable output.
	MinAmountOut *uint256.Int
}

// SwapResult is the outcome of a committed swap.
type SwapResult struct {
	Side      Side
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Reserves  Reserves
	Sequence  uint64
}

// DepositResult is the outcome of a committed deposit.
type DepositResult struct {
	AmountA  *uint256.Int
	AmountB  *uint256.Int
	Reserves Reserves
	Sequence uint64
}

// ReserveUpdate is published after every committed operation.
type ReserveUpdate struct {
	Pool      common.Address
	Kind      string
	Sequence  uint64
	ReserveA  *uint256.Int
	ReserveB  *uint256.Int
	Timestamp time.Time
}

// Manager orchestrates deposits and swaps on a single pool.
// Every mutating operation runs under one lock from the reserve snapshot
// used for pricing to the reserve commit, so operations are serialised.
type Manager struct {
	mu sync.Mutex

	tokenA  token.Token
	tokenB  token.Token
	fee     amm.Fee
	address common.Address

	ledger  *Ledger
	journal Journal
	metrics *metrics.Metrics

	sequence uint64
	updateCh chan ReserveUpdate
	closed   bool
}

// NewManager creates a pool over two distinct assets with empty reserves.
func NewManager(cfg Config, tokenA, tokenB token.Token, m *metrics.Metrics) (*Manager, error) {
	if tokenA == nil || tokenB == nil {
		return nil, fmt.Errorf("%w: nil token", ErrUnknownAsset)
	}
	if tokenA.ID() == tokenB.ID() {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalAssets, tokenA.ID().Hex())
	}
	if err := cfg.Fee.Validate(); err != nil {
		return nil, err
	}

	buffer := cfg.UpdateBuffer
	if buffer <= 0 {
		buffer = defaultUpdateBuffer
	}

	return &Manager{
		tokenA:   tokenA,
		tokenB:   tokenB,
		fee:      cfg.Fee,
		address:  Address(cfg.Factory, tokenA.ID(), tokenB.ID()),
		ledger:   NewLedger(),
		metrics:  m,
		updateCh: make(chan ReserveUpdate, buffer),
	}, nil
}

// SetJournal attaches a journal. Must be called before the pool is used.
func (m *Manager) SetJournal(j Journal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.journal = j
}

// Restore loads previously persisted reserves into an empty pool.
func (m *Manager) Restore(reserves Reserves, sequence uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.ledger.Snapshot()
	if !current.A.IsZero() || !current.B.IsZero() || m.sequence != 0 {
		return ErrAlreadySeeded
	}
	if err := m.ledger.Commit(reserves.A.ToBig(), reserves.B.ToBig()); err != nil {
		return err
	}
	m.sequence = sequence
	m.recordStateLocked(reserves)

	log.Info().
		Str("pool", m.address.Hex()).
		Str("reserve_a", reserves.A.Dec()).
		Str("reserve_b", reserves.B.Dec()).
		Uint64("sequence", sequence).
		Msg("Restored pool reserves")
	return nil
}

// Address returns the pool's custody account.
func (m *Manager) Address() common.Address {
	return m.address
}

// AssetIdentifiers returns the Side A and Side B assets.
func (m *Manager) AssetIdentifiers() (common.Address, common.Address) {
	return m.tokenA.ID(), m.tokenB.ID()
}

// Token returns the token on side.
func (m *Manager) Token(side Side) token.Token {
	if side == SideA {
		return m.tokenA
	}
	return m.tokenB
}

// Fee returns the pool fee.
func (m *Manager) Fee() amm.Fee {
	return m.fee
}

// Reserves returns the current reserves. It does not wait for in-flight operations.
func (m *Manager) Reserves() Reserves {
	return m.ledger.Snapshot()
}

// Sequence returns the sequence number of the last committed operation.
func (m *Manager) Sequence() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sequence
}

// State returns the reserves together with the sequence number of the
// operation that produced them.
func (m *Manager) State() (Reserves, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledger.Snapshot(), m.sequence
}

// Custody returns the reserves and the custody balances of both assets, read
// while no operation is in flight.
func (m *Manager) Custody(ctx context.Context) (Reserves, *uint256.Int, *uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	balanceA, err := m.tokenA.BalanceOf(ctx, m.address)
	if err != nil {
		return Reserves{}, nil, nil, fmt.Errorf("reading %s custody balance: %w", m.tokenA.Symbol(), err)
	}
	balanceB, err := m.tokenB.BalanceOf(ctx, m.address)
	if err != nil {
		return Reserves{}, nil, nil, fmt.Errorf("reading %s custody balance: %w", m.tokenB.Symbol(), err)
	}
	return m.ledger.Snapshot(), balanceA, balanceB, nil
}

// SideOf returns the side holding asset.
func (m *Manager) SideOf(asset common.Address) (Side, error) {
	switch asset {
	case m.tokenA.ID():
		return SideA, nil
	case m.tokenB.ID():
		return SideB, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
}

// Quote prices a swap against the current reserves. The result is stale as
// soon as another operation commits.
func (m *Manager) Quote(side Side, amountIn *uint256.Int) (*uint256.Int, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, side)
	}
	reserveIn, reserveOut := m.ledger.Snapshot().InOut(side)
	return amm.QuoteOutput(amountIn, reserveIn, reserveOut, m.fee)
}

// QuoteExact prices a swap whose input is identified by asset.
func (m *Manager) QuoteExact(assetIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	side, err := m.SideOf(assetIn)
	if err != nil {
		return nil, err
	}
	return m.Quote(side, amountIn)
}

// QuoteDeposit returns the amount of the other asset that matches amount of
// side at the current reserve ratio.
func (m *Manager) QuoteDeposit(side Side, amount *uint256.Int) (*uint256.Int, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, side)
	}
	same, other := m.ledger.Snapshot().InOut(side)
	return amm.QuoteDeposit(amount, same, other)
}

// Deposit moves amountA and amountB from depositor into the pool. The
// deposit ratio is not enforced and no ownership share is issued.
func (m *Manager) Deposit(ctx context.Context, amountA, amountB *uint256.Int, depositor common.Address) (*DepositResult, error) {
	start := time.Now()
	res, err := m.deposit(ctx, amountA, amountB, depositor)
	if m.metrics != nil {
		m.metrics.RecordDeposit(ErrorClass(err), time.Since(start))
	}
	if err != nil {
		log.Debug().
			Err(err).
			Str("depositor", depositor.Hex()).
			Msg("Deposit rejected")
		return nil, err
	}

	log.Info().
		Str("depositor", depositor.Hex()).
		Str("amount_a", res.AmountA.Dec()).
		Str("amount_b", res.AmountB.Dec()).
		Str("reserve_a", res.Reserves.A.Dec()).
		Str("reserve_b", res.Reserves.B.Dec()).
		Uint64("sequence", res.Sequence).
		Msg("Liquidity added")
	return res, nil
}

func (m *Manager) deposit(ctx context.Context, amountA, amountB *uint256.Int, depositor common.Address) (*DepositResult, error) {
	if amountA == nil || amountB == nil || amountA.IsZero() || amountB.IsZero() {
		return nil, ErrInvalidAmount
	}
	if depositor == m.address {
		return nil, fmt.Errorf("%w: depositor %s", ErrInvalidAccount, depositor.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.ledger.Snapshot()
	after, err := NewReserves(
		new(big.Int).Add(before.A.ToBig(), amountA.ToBig()),
		new(big.Int).Add(before.B.ToBig(), amountB.ToBig()),
	)
	if err != nil {
		return nil, err
	}

	tx := newTransferTx(m.address)
	if err := tx.pull(ctx, m.tokenA, depositor, amountA); err != nil {
		return nil, err
	}
	if err := tx.pull(ctx, m.tokenB, depositor, amountB); err != nil {
		return nil, m.abortLocked(ctx, tx, "deposit", err)
	}

	seq := m.sequence + 1
	if m.journal != nil {
		rec := DepositRecord{
			Pool:      m.infoLocked(),
			Sequence:  seq,
			Depositor: depositor,
			AmountA:   amountA.Clone(),
			AmountB:   amountB.Clone(),
			Reserves:  after.Clone(),
			Timestamp: time.Now(),
		}
		if err := m.journal.RecordDeposit(ctx, rec); err != nil {
			return nil, m.abortLocked(ctx, tx, "deposit", fmt.Errorf("journaling deposit: %w", err))
		}
	}

	if err := m.commitLocked(after, seq, "deposit"); err != nil {
		return nil, m.abortLocked(ctx, tx, "deposit", err)
	}

	return &DepositResult{
		AmountA:  amountA.Clone(),
		AmountB:  amountB.Clone(),
		Reserves: after,
		Sequence: seq,
	}, nil
}

// Swap sells req.AmountIn of the req.Side asset from trader for the other asset.
// Either the input is pulled, the output pushed and the reserves committed,
// or nothing observable changes.
func (m *Manager) Swap(ctx context.Context, req SwapRequest, trader common.Address) (*SwapResult, error) {
	start := time.Now()
	res, err := m.swap(ctx, req, trader)
	if m.metrics != nil {
		m.metrics.RecordSwap(req.Side.String(), ErrorClass(err), time.Since(start))
	}
	if err != nil {
		log.Debug().
			Err(err).
			Str("trader", trader.Hex()).
			Stringer("side", req.Side).
			Msg("Swap rejected")
		return nil, err
	}

	log.Debug().
		Str("trader", trader.Hex()).
		Stringer("side", res.Side).
		Str("amount_in", res.AmountIn.Dec()).
		Str("amount_out", res.AmountOut.Dec()).
		Uint64("sequence", res.Sequence).
		Msg("Swap executed")
	return res, nil
}

// SwapExact is Swap with the input side selected by asset identifier.
func (m *Manager) SwapExact(ctx context.Context, assetIn common.Address, amountIn *uint256.Int, trader common.Address) (*SwapResult, error) {
	side, err := m.SideOf(assetIn)
	if err != nil {
		return nil, err
	}
	return m.Swap(ctx, SwapRequest{Side: side, AmountIn: amountIn}, trader)
}

func (m *Manager) swap(ctx context.Context, req SwapRequest, trader common.Address) (*SwapResult, error) {
	if req.AmountIn == nil || req.AmountIn.IsZero() {
		return nil, ErrInvalidAmount
	}
	if !req.Side.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSide, req.Side)
	}
	if trader == m.address {
		return nil, fmt.Errorf("%w: trader %s", ErrInvalidAccount, trader.Hex())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The snapshot stays current until commit because m.mu is held throughout.
	before := m.ledger.Snapshot()
	reserveIn, reserveOut := before.InOut(req.Side)

	amountOut, err := amm.QuoteOutput(req.AmountIn, reserveIn, reserveOut, m.fee)
	if err != nil {
		return nil, err
	}
	if req.MinAmountOut != nil && amountOut.Lt(req.MinAmountOut) {
		return nil, fmt.Errorf("%w: quoted %s, minimum %s", ErrSlippage, amountOut.Dec(), req.MinAmountOut.Dec())
	}

	newIn := new(big.Int).Add(reserveIn.ToBig(), req.AmountIn.ToBig())
	newOut := new(big.Int).Sub(reserveOut.ToBig(), amountOut.ToBig())
	var after Reserves
	if req.Side == SideA {
		after, err = NewReserves(newIn, newOut)
	} else {
		after, err = NewReserves(newOut, newIn)
	}
	if err != nil {
		return nil, err
	}

	tokenIn, tokenOut := m.Token(req.Side), m.Token(req.Side.Other())

	tx := newTransferTx(m.address)
	if err := tx.pull(ctx, tokenIn, trader, req.AmountIn); err != nil {
		return nil, err
	}
	if err := tx.push(ctx, tokenOut, trader, amountOut); err != nil {
		return nil, m.abortLocked(ctx, tx, "swap", err)
	}

	seq := m.sequence + 1
	if m.journal != nil {
		rec := SwapRecord{
			Pool:      m.infoLocked(),
			Sequence:  seq,
			Trader:    trader,
			Side:      req.Side,
			AssetIn:   tokenIn.ID(),
			AssetOut:  tokenOut.ID(),
			AmountIn:  req.AmountIn.Clone(),
			AmountOut: amountOut.Clone(),
			Reserves:  after.Clone(),
			Timestamp: time.Now(),
		}
		if err := m.journal.RecordSwap(ctx, rec); err != nil {
			return nil, m.abortLocked(ctx, tx, "swap", fmt.Errorf("journaling swap: %w", err))
		}
	}

	if err := m.commitLocked(after, seq, "swap"); err != nil {
		return nil, m.abortLocked(ctx, tx, "swap", err)
	}

	return &SwapResult{
		Side:      req.Side,
		AssetIn:   tokenIn.ID(),
		AssetOut:  tokenOut.ID(),
		AmountIn:  req.AmountIn.Clone(),
		AmountOut: amountOut,
		Reserves:  after,
		Sequence:  seq,
	}, nil
}

// abortLocked reverses the transfers of a failed operation and returns the
// error to report. Must be called with m.mu held.
func (m *Manager) abortLocked(ctx context.Context, tx *transferTx, op string, cause error) error {
	moves := tx.moves()
	rollbackErr := tx.rollback(ctx)
	if m.metrics != nil {
		m.metrics.RecordRollback(op, rollbackErr == nil)
	}
	if rollbackErr != nil {
		log.Error().
			Err(rollbackErr).
			AnErr("cause", cause).
			Str("op", op).
			Int("moves", moves).
			Msg("Failed to reverse transfers, custody and reserves may diverge")
		return errors.Join(cause, fmt.Errorf("rolling back transfers: %w", rollbackErr))
	}

	log.Warn().
		Err(cause).
		Str("op", op).
		Int("moves", moves).
		Msg("Operation aborted, transfers reversed")
	return cause
}

// commitLocked writes the new reserves and publishes them. Must be called with m.mu held.
func (m *Manager) commitLocked(after Reserves, seq uint64, kind string) error {
	if err := m.ledger.Commit(after.A.ToBig(), after.B.ToBig()); err != nil {
		return err
	}
	m.sequence = seq
	m.recordStateLocked(after)
	m.publishLocked(ReserveUpdate{
		Pool:      m.address,
		Kind:      kind,
		Sequence:  seq,
		ReserveA:  after.A.Clone(),
		ReserveB:  after.B.Clone(),
		Timestamp: time.Now(),
	})
	return nil
}

func (m *Manager) recordStateLocked(r Reserves) {
	if m.metrics == nil {
		return
	}
	a, _ := new(big.Float).SetInt(r.A.ToBig()).Float64()
	b, _ := new(big.Float).SetInt(r.B.ToBig()).Float64()
	m.metrics.SetReserves(a, b)
	m.metrics.SetLastSequence(m.sequence)
}

// publishLocked sends an update without blocking. Must be called with m.mu held.
func (m *Manager) publishLocked(update ReserveUpdate) {
	if m.closed {
		return
	}
	select {
	case m.updateCh <- update:
	default:
		if m.metrics != nil {
			m.metrics.RecordUpdateDropped()
		}
		log.Warn().
			Uint64("sequence", update.Sequence).
			Msg("Update channel full, discarding reserve update")
	}
}

func (m *Manager) infoLocked() PoolInfo {
	return PoolInfo{
		Address: m.address,
		AssetA:  m.tokenA.ID(),
		AssetB:  m.tokenB.ID(),
		Fee:     m.fee,
	}
}

// Info returns the pool identity used in journal records.
func (m *Manager) Info() PoolInfo {
	return m.infoLocked()
}

// Updates returns the channel of committed reserve updates.
func (m *Manager) Updates() <-chan ReserveUpdate {
	return m.updateCh
}

// Close closes the update channel. Operations after Close still work but
// publish nothing.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.updateCh)
	}
}
