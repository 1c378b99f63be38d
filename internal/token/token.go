// Package token provides the fungible-asset ledger the pool delegates custody to.
package token

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrZeroAddress           = errors.New("zero address")
	ErrUnknownToken          = errors.New("unknown token")
	ErrOverflow              = errors.New("balance overflow")
)

// Token is the narrow transfer interface of a single fungible asset.
// Implementations must apply every call atomically: a failed call moves nothing.
type Token interface {
	ID() common.Address
	Symbol() string
	Decimals() uint8

	BalanceOf(ctx context.Context, account common.Address) (*uint256.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*uint256.Int, error)

	// Approve lets spender move up to amount of owner's balance.
	Approve(ctx context.Context, owner, spender common.Address, amount *uint256.Int) error

	// Transfer moves amount from a sender that authorised the call itself.
	Transfer(ctx context.Context, from, to common.Address, amount *uint256.Int) error

	// TransferFrom moves amount from owner to to on behalf of spender,
	// consuming spender's allowance.
	TransferFrom(ctx context.Context, spender, owner, to common.Address, amount *uint256.Int) error
}
