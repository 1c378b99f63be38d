package pool

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nexusdex/internal/amm"
)

// Journal durably records pool operations. It is called after all transfers
// have succeeded and before the reserves are committed; an error aborts the
// operation and reverses its transfers.
type Journal interface {
	RecordSwap(ctx context.Context, rec SwapRecord) error
	RecordDeposit(ctx context.Context, rec DepositRecord) error
}

// PoolInfo identifies a pool in journal records.
type PoolInfo struct {
	Address common.Address
	AssetA  common.Address
	AssetB  common.Address
	Fee     amm.Fee
}

// SwapRecord describes a swap about to be committed.
type SwapRecord struct {
	Pool      PoolInfo
	Sequence  uint64
	Trader    common.Address
	Side      Side
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
	Reserves  Reserves
	Timestamp time.Time
}

// DepositRecord describes a deposit about to be committed.
type DepositRecord struct {
	Pool      PoolInfo
	Sequence  uint64
	Depositor common.Address
	AmountA   *uint256.Int
	AmountB   *uint256.Int
	Reserves  Reserves
	Timestamp time.Time
}
