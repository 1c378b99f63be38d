package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog/log"

	"nexusdex/internal/amm"
	"nexusdex/internal/config"
	"nexusdex/internal/metrics"
	"nexusdex/internal/persistence"
	"nexusdex/internal/pool"
	"nexusdex/internal/token"
)

// System state keys written by Run.
const (
	StateGenesisAt = "genesis_at"
	StatePool      = "pool_address"
)

// Options controls how a pool is brought up.
type Options struct {
	// Store, if set, is read for persisted reserves.
	Store *persistence.Store

	// Journal attaches Store as the pool journal. Without it the store is
	// only read and nothing is written back.
	Journal bool

	// Seed deposits the configured initial liquidity into an empty pool.
	Seed bool

	Metrics *metrics.Metrics
}

// Pool is a running pool with its asset ledgers.
type Pool struct {
	Manager  *pool.Manager
	TokenA   *token.Ledger
	TokenB   *token.Ledger
	Registry *token.Registry
	Deployer common.Address

	Restored bool
	Seeded   bool
}

// Run creates the asset ledgers, mints the genesis supply to the deployer,
// restores persisted reserves and seeds an empty pool.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Pool, error) {
	startTime := time.Now()

	tokenA := token.NewLedger(cfg.Pool.AssetA.ID(), cfg.Pool.AssetA.Symbol, cfg.Pool.AssetA.Decimals)
	tokenB := token.NewLedger(cfg.Pool.AssetB.ID(), cfg.Pool.AssetB.Symbol, cfg.Pool.AssetB.Decimals)
	deployer := cfg.Genesis.DeployerAddress()

	if err := mintUnits(tokenA, deployer, cfg.Genesis.SupplyA); err != nil {
		return nil, err
	}
	if err := mintUnits(tokenB, deployer, cfg.Genesis.SupplyB); err != nil {
		return nil, err
	}

	manager, err := pool.NewManager(pool.Config{
		Factory:      cfg.Pool.FactoryAddress(),
		Fee:          cfg.Pool.Fee,
		UpdateBuffer: cfg.Pool.UpdateBuffer,
	}, tokenA, tokenB, opts.Metrics)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	p := &Pool{
		Manager:  manager,
		TokenA:   tokenA,
		TokenB:   tokenB,
		Registry: token.NewRegistry(tokenA, tokenB),
		Deployer: deployer,
	}

	if opts.Store != nil {
		if err := p.restore(ctx, opts.Store); err != nil {
			manager.Close()
			return nil, err
		}
		if opts.Journal {
			manager.SetJournal(opts.Store)
		}
	}

	if opts.Seed && !p.Restored {
		if err := p.seed(ctx, cfg); err != nil {
			manager.Close()
			return nil, err
		}
		if p.Seeded && opts.Store != nil && opts.Journal {
			if err := opts.Store.SetSystemState(ctx, StateGenesisAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
				log.Warn().Err(err).Msg("Failed to record genesis time")
			}
			if err := opts.Store.SetSystemState(ctx, StatePool, manager.Address().Hex()); err != nil {
				log.Warn().Err(err).Msg("Failed to record pool address")
			}
		}
	}

	reserves := manager.Reserves()
	log.Info().
		Str("pool", manager.Address().Hex()).
		Str("asset_a", tokenA.Symbol()).
		Str("asset_b", tokenB.Symbol()).
		Str("reserve_a", amm.FormatUnits(reserves.A, tokenA.Decimals())).
		Str("reserve_b", amm.FormatUnits(reserves.B, tokenB.Decimals())).
		Bool("restored", p.Restored).
		Bool("seeded", p.Seeded).
		Dur("duration", time.Since(startTime)).
		Msg("Pool bootstrap complete")

	return p, nil
}

// restore loads journaled reserves. Custody balances live only in memory, so
// the custody account is credited with the restored reserves.
func (p *Pool) restore(ctx context.Context, store *persistence.Store) error {
	rec, err := store.LoadPool(ctx, p.Manager.Address())
	if err != nil {
		return fmt.Errorf("loading pool state: %w", err)
	}
	if rec == nil {
		log.Info().Str("pool", p.Manager.Address().Hex()).Msg("No persisted pool state")
		return nil
	}

	info := p.Manager.Info()
	if !strings.EqualFold(rec.AssetA, info.AssetA.Hex()) || !strings.EqualFold(rec.AssetB, info.AssetB.Hex()) {
		return fmt.Errorf("persisted pool %s holds %s/%s, configured %s/%s",
			rec.Address, rec.AssetA, rec.AssetB, info.AssetA.Hex(), info.AssetB.Hex())
	}
	if rec.FeeNumerator != info.Fee.Numerator || rec.FeeDenominator != info.Fee.Denominator {
		log.Warn().
			Uint64("persisted_numerator", rec.FeeNumerator).
			Uint64("persisted_denominator", rec.FeeDenominator).
			Str("configured", info.Fee.String()).
			Msg("Configured fee differs from persisted fee, using configured fee")
	}

	reserves, err := rec.Reserves()
	if err != nil {
		return err
	}
	custody := p.Manager.Address()
	if err := p.TokenA.Mint(custody, reserves.A); err != nil {
		return fmt.Errorf("crediting custody: %w", err)
	}
	if err := p.TokenB.Mint(custody, reserves.B); err != nil {
		return fmt.Errorf("crediting custody: %w", err)
	}
	if err := p.Manager.Restore(reserves, rec.Sequence); err != nil {
		return fmt.Errorf("restoring reserves: %w", err)
	}

	p.Restored = true
	return nil
}

// seed approves and deposits the initial liquidity from the deployer.
func (p *Pool) seed(ctx context.Context, cfg *config.Config) error {
	amountA, err := amm.ParseUnits(orZero(cfg.Genesis.InitialLiquidityA), p.TokenA.Decimals())
	if err != nil {
		return fmt.Errorf("genesis.initial_liquidity_a: %w", err)
	}
	amountB, err := amm.ParseUnits(orZero(cfg.Genesis.InitialLiquidityB), p.TokenB.Decimals())
	if err != nil {
		return fmt.Errorf("genesis.initial_liquidity_b: %w", err)
	}
	if amountA.IsZero() && amountB.IsZero() {
		log.Info().Msg("No initial liquidity configured")
		return nil
	}

	custody := p.Manager.Address()
	if err := p.TokenA.Approve(ctx, p.Deployer, custody, amountA); err != nil {
		return fmt.Errorf("approving %s: %w", p.TokenA.Symbol(), err)
	}
	if err := p.TokenB.Approve(ctx, p.Deployer, custody, amountB); err != nil {
		return fmt.Errorf("approving %s: %w", p.TokenB.Symbol(), err)
	}

	if _, err := p.Manager.Deposit(ctx, amountA, amountB, p.Deployer); err != nil {
		return fmt.Errorf("seeding initial liquidity: %w", err)
	}
	p.Seeded = true
	return nil
}

func mintUnits(tok *token.Ledger, to common.Address, units string) error {
	amount, err := amm.ParseUnits(orZero(units), tok.Decimals())
	if err != nil {
		return fmt.Errorf("genesis supply of %s: %w", tok.Symbol(), err)
	}
	if amount.IsZero() {
		return nil
	}
	if err := tok.Mint(to, amount); err != nil {
		return fmt.Errorf("minting %s: %w", tok.Symbol(), err)
	}
	return nil
}

func orZero(s string) string {
	if strings.TrimSpace(s) == "" {
		return "0"
	}
	return s
}

// Fund mints amount units of both assets to account and approves the pool
// without limit. Used by the simulation commands and tests.
func (p *Pool) Fund(ctx context.Context, account common.Address, amountA, amountB *uint256.Int) error {
	custody := p.Manager.Address()
	unlimited := new(uint256.Int).SetAllOne()
	for _, f := range []struct {
		tok    *token.Ledger
		amount *uint256.Int
	}{{p.TokenA, amountA}, {p.TokenB, amountB}} {
		if f.amount != nil && !f.amount.IsZero() {
			if err := f.tok.Mint(account, f.amount); err != nil {
				return err
			}
		}
		if err := f.tok.Approve(ctx, account, custody, unlimited); err != nil {
			return err
		}
	}
	return nil
}
