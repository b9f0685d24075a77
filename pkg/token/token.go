// Package token defines the token-transfer capability the ledger moves funds through.
package token

import (
	"context"
	"errors"

	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrBalanceOverflow       = errors.New("balance overflow")
)

// ITokenTransfer moves fungible tokens. Every transfer is all-or-nothing: on error no
// balance has changed. Implementations that can undo a completed transfer register the
// undo on the execution frame carried by ctx (see txn.RegisterRollback), so a ledger call
// that fails after transferring leaves no balance change behind.
type ITokenTransfer interface {
	// PullFrom moves amount of token from `from` to `to`, spending the allowance `from`
	// granted to the ledger's custody account.
	PullFrom(ctx context.Context, token, from, to types.Address, amount *uint256.Int) error

	// PushTo moves amount of token out of the ledger's custody account to `to`.
	PushTo(ctx context.Context, token, to types.Address, amount *uint256.Int) error
}
