package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"nexusdex/internal/token"
)

// move is a transfer that has been applied and can be reversed.
type move struct {
	token  token.Token
	from   common.Address
	to     common.Address
	amount *uint256.Int

	// refund is set on pulls that consumed a finite allowance.
	refund bool
}

// maxAllowance is an unlimited approval, which pulls do not consume.
var maxAllowance = new(uint256.Int).SetAllOne()

// transferTx applies the asset movements of one pool operation and undoes
// them, newest first, if the operation cannot complete.
type transferTx struct {
	custody common.Address
	applied []move
}

func newTransferTx(custody common.Address) *transferTx {
	return &transferTx{custody: custody}
}

// pull moves amount from owner into custody using the pool's allowance.
func (tx *transferTx) pull(ctx context.Context, tok token.Token, owner common.Address, amount *uint256.Int) error {
	allowance, err := tok.Allowance(ctx, owner, tx.custody)
	if err != nil {
		return fmt.Errorf("%w: reading %s allowance of %s: %w", ErrTransferFailed, tok.Symbol(), owner.Hex(), err)
	}
	if err := tok.TransferFrom(ctx, tx.custody, owner, tx.custody, amount); err != nil {
		return fmt.Errorf("%w: pulling %s %s from %s: %w", ErrTransferFailed, amount.Dec(), tok.Symbol(), owner.Hex(), err)
	}
	tx.applied = append(tx.applied, move{token: tok, from: owner, to: tx.custody, amount: amount, refund: !allowance.Eq(maxAllowance)})
	return nil
}

// push moves amount out of custody to recipient.
func (tx *transferTx) push(ctx context.Context, tok token.Token, recipient common.Address, amount *uint256.Int) error {
	if err := tok.Transfer(ctx, tx.custody, recipient, amount); err != nil {
		return fmt.Errorf("%w: pushing %s %s to %s: %w", ErrTransferFailed, amount.Dec(), tok.Symbol(), recipient.Hex(), err)
	}
	tx.applied = append(tx.applied, move{token: tok, from: tx.custody, to: recipient, amount: amount})
	return nil
}

// rollback reverses every applied move. It keeps going after a failed
// reversal and reports all of them.
func (tx *transferTx) rollback(ctx context.Context) error {
	// A canceled caller must not leave half a rollback behind.
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(tx.applied) - 1; i >= 0; i-- {
		mv := tx.applied[i]
		if err := mv.token.Transfer(ctx, mv.to, mv.from, mv.amount); err != nil {
			errs = append(errs, fmt.Errorf("reversing %s %s to %s: %w", mv.amount.Dec(), mv.token.Symbol(), mv.from.Hex(), err))
			continue
		}
		if mv.refund {
			if err := refundAllowance(ctx, mv); err != nil {
				errs = append(errs, fmt.Errorf("restoring %s allowance of %s: %w", mv.token.Symbol(), mv.from.Hex(), err))
			}
		}
	}
	tx.applied = nil
	return errors.Join(errs...)
}

// refundAllowance adds the amount of a reversed pull back to the owner's
// current allowance, keeping any approval made since the pull.
func refundAllowance(ctx context.Context, mv move) error {
	current, err := mv.token.Allowance(ctx, mv.from, mv.to)
	if err != nil {
		return err
	}
	if current.Eq(maxAllowance) {
		return nil
	}
	refunded, overflow := new(uint256.Int).AddOverflow(current, mv.amount)
	if overflow {
		refunded = maxAllowance.Clone()
	}
	return mv.token.Approve(ctx, mv.from, mv.to, refunded)
}

// moves returns the number of applied transfers.
func (tx *transferTx) moves() int {
	return len(tx.applied)
}
