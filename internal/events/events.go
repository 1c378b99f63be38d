package events

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Event topics (keccak256 hashes of event signatures)
var (
	// Swap(address,address,address,uint256,uint256) - Emitted after every committed swap
	SwapEventTopic = crypto.Keccak256Hash([]byte("Swap(address,address,address,uint256,uint256)"))

	// LiquidityAdded(address,uint256,uint256) - Emitted after every committed deposit
	LiquidityAddedEventTopic = crypto.Keccak256Hash([]byte("LiquidityAdded(address,uint256,uint256)"))

	// Sync(uint256,uint256) - Emitted with the reserves resulting from any mutation
	SyncEventTopic = crypto.Keccak256Hash([]byte("Sync(uint256,uint256)"))
)

// Kind names an event for storage and logging.
type Kind string

const (
	KindSwap           Kind = "swap"
	KindLiquidityAdded Kind = "liquidity_added"
	KindSync           Kind = "sync"
)

// Log is an encoded pool event. Topics[0] is the event signature, the
// remaining topics are the indexed arguments and Data holds the rest.
type Log struct {
	Address  common.Address
	Topics   []common.Hash
	Data     []byte
	Sequence uint64
}

// SwapEvent represents a decoded Swap event.
type SwapEvent struct {
	Trader    common.Address
	AssetIn   common.Address
	AssetOut  common.Address
	AmountIn  *uint256.Int
	AmountOut *uint256.Int
}

// LiquidityAddedEvent represents a decoded LiquidityAdded event.
type LiquidityAddedEvent struct {
	Provider common.Address
	AmountA  *uint256.Int
	AmountB  *uint256.Int
}

// SyncEvent represents a decoded Sync event.
type SyncEvent struct {
	ReserveA *uint256.Int
	ReserveB *uint256.Int
}

// Codec encodes and decodes pool events.
type Codec struct {
	swapABI      abi.Arguments
	liquidityABI abi.Arguments
	syncABI      abi.Arguments
}

// NewCodec creates a new event codec.
func NewCodec() *Codec {
	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)

	// Swap: trader and assetIn are indexed (in topics), rest in data
	swapABI := abi.Arguments{
		{Type: addressType, Name: "assetOut"},
		{Type: uint256Type, Name: "amountIn"},
		{Type: uint256Type, Name: "amountOut"},
	}

	// LiquidityAdded: provider is indexed
	liquidityABI := abi.Arguments{
		{Type: uint256Type, Name: "amountA"},
		{Type: uint256Type, Name: "amountB"},
	}

	syncABI := abi.Arguments{
		{Type: uint256Type, Name: "reserveA"},
		{Type: uint256Type, Name: "reserveB"},
	}

	return &Codec{
		swapABI:      swapABI,
		liquidityABI: liquidityABI,
		syncABI:      syncABI,
	}
}

// EncodeSwap encodes a Swap event emitted by pool.
func (c *Codec) EncodeSwap(pool common.Address, ev SwapEvent) (*Log, error) {
	data, err := c.swapABI.Pack(ev.AssetOut, ev.AmountIn.ToBig(), ev.AmountOut.ToBig())
	if err != nil {
		return nil, fmt.Errorf("packing swap data: %w", err)
	}
	return &Log{
		Address: pool,
		Topics:  []common.Hash{SwapEventTopic, addressTopic(ev.Trader), addressTopic(ev.AssetIn)},
		Data:    data,
	}, nil
}

// EncodeLiquidityAdded encodes a LiquidityAdded event emitted by pool.
func (c *Codec) EncodeLiquidityAdded(pool common.Address, ev LiquidityAddedEvent) (*Log, error) {
	data, err := c.liquidityABI.Pack(ev.AmountA.ToBig(), ev.AmountB.ToBig())
	if err != nil {
		return nil, fmt.Errorf("packing liquidity data: %w", err)
	}
	return &Log{
		Address: pool,
		Topics:  []common.Hash{LiquidityAddedEventTopic, addressTopic(ev.Provider)},
		Data:    data,
	}, nil
}

// EncodeSync encodes a Sync event emitted by pool.
func (c *Codec) EncodeSync(pool common.Address, ev SyncEvent) (*Log, error) {
	data, err := c.syncABI.Pack(ev.ReserveA.ToBig(), ev.ReserveB.ToBig())
	if err != nil {
		return nil, fmt.Errorf("packing sync data: %w", err)
	}
	return &Log{
		Address: pool,
		Topics:  []common.Hash{SyncEventTopic},
		Data:    data,
	}, nil
}

// DecodeSwap decodes a Swap event.
func (c *Codec) DecodeSwap(log *Log) (*SwapEvent, error) {
	if len(log.Topics) < 3 {
		return nil, fmt.Errorf("insufficient topics for Swap: %d", len(log.Topics))
	}
	if log.Topics[0] != SwapEventTopic {
		return nil, fmt.Errorf("not a Swap event: %s", log.Topics[0].Hex())
	}

	values, err := c.swapABI.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpacking swap data: %w", err)
	}

	assetOut, ok := values[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("invalid assetOut type")
	}
	amountIn, err := toUint256(values[1])
	if err != nil {
		return nil, fmt.Errorf("amountIn: %w", err)
	}
	amountOut, err := toUint256(values[2])
	if err != nil {
		return nil, fmt.Errorf("amountOut: %w", err)
	}

	return &SwapEvent{
		Trader:    common.BytesToAddress(log.Topics[1].Bytes()),
		AssetIn:   common.BytesToAddress(log.Topics[2].Bytes()),
		AssetOut:  assetOut,
		AmountIn:  amountIn,
		AmountOut: amountOut,
	}, nil
}

// DecodeLiquidityAdded decodes a LiquidityAdded event.
func (c *Codec) DecodeLiquidityAdded(log *Log) (*LiquidityAddedEvent, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("insufficient topics for LiquidityAdded: %d", len(log.Topics))
	}
	if log.Topics[0] != LiquidityAddedEventTopic {
		return nil, fmt.Errorf("not a LiquidityAdded event: %s", log.Topics[0].Hex())
	}

	values, err := c.liquidityABI.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpacking liquidity data: %w", err)
	}

	amountA, err := toUint256(values[0])
	if err != nil {
		return nil, fmt.Errorf("amountA: %w", err)
	}
	amountB, err := toUint256(values[1])
	if err != nil {
		return nil, fmt.Errorf("amountB: %w", err)
	}

	return &LiquidityAddedEvent{
		Provider: common.BytesToAddress(log.Topics[1].Bytes()),
		AmountA:  amountA,
		AmountB:  amountB,
	}, nil
}

// DecodeSync decodes a Sync event.
func (c *Codec) DecodeSync(log *Log) (*SyncEvent, error) {
	if len(log.Topics) < 1 || log.Topics[0] != SyncEventTopic {
		return nil, fmt.Errorf("not a Sync event")
	}

	values, err := c.syncABI.Unpack(log.Data)
	if err != nil {
		return nil, fmt.Errorf("unpacking sync data: %w", err)
	}

	reserveA, err := toUint256(values[0])
	if err != nil {
		return nil, fmt.Errorf("reserveA: %w", err)
	}
	reserveB, err := toUint256(values[1])
	if err != nil {
		return nil, fmt.Errorf("reserveB: %w", err)
	}

	return &SyncEvent{ReserveA: reserveA, ReserveB: reserveB}, nil
}

// KindOf returns the kind of an encoded event, or "" if unknown.
func KindOf(log *Log) Kind {
	if len(log.Topics) < 1 {
		return ""
	}
	switch log.Topics[0] {
	case SwapEventTopic:
		return KindSwap
	case LiquidityAddedEventTopic:
		return KindLiquidityAdded
	case SyncEventTopic:
		return KindSync
	default:
		return ""
	}
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func toUint256(v interface{}) (*uint256.Int, error) {
	b, ok := v.(*big.Int)
	if !ok {
		return nil, fmt.Errorf("invalid uint256 type %T", v)
	}
	out, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("value %s exceeds 256 bits", b)
	}
	return out, nil
}
