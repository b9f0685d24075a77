// Package inMemoryToken is an in-process ledger of token balances and allowances
// implementing token.ITokenTransfer. It backs tests and the CLI simulator.
package inMemoryToken

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropop-labs/dropop-go/pkg/token"
	"github.com/dropop-labs/dropop-go/pkg/txn"
	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Transfer describes a completed balance move, handed to the transfer hook.
type Transfer struct {
	Token  types.Address
	From   types.Address
	To     types.Address
	Amount uint256.Int
}

// TransferHook runs after a transfer has moved balances, outside of the token's lock,
// the way a receiver callback would. Returning an error reverts the transfer.
type TransferHook func(ctx context.Context, t Transfer) error

type accountKey struct {
	token   types.Address
	account types.Address
}

type allowanceKey struct {
	token   types.Address
	owner   types.Address
	spender types.Address
}

type InMemoryToken struct {
	custody types.Address
	logger  *zap.Logger

	mu         sync.Mutex
	balances   map[accountKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	hook       TransferHook
}

var _ token.ITokenTransfer = (*InMemoryToken)(nil)

// NewInMemoryToken creates a token ledger whose PushTo transfers spend from custody.
func NewInMemoryToken(custody types.Address, logger *zap.Logger) *InMemoryToken {
	return &InMemoryToken{
		custody:    custody,
		logger:     logger,
		balances:   make(map[accountKey]*uint256.Int),
		allowances: make(map[allowanceKey]*uint256.Int),
	}
}

// Custody is the account PushTo spends from and allowances are granted to.
func (m *InMemoryToken) Custody() types.Address {
	return m.custody
}

// SetTransferHook installs (or with nil, removes) the post-transfer hook.
func (m *InMemoryToken) SetTransferHook(hook TransferHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = hook
}

// Mint credits amount to account.
func (m *InMemoryToken) Mint(tok, account types.Address, amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balanceLocked(tok, account)
	next, overflow := new(uint256.Int).AddOverflow(bal, amount)
	if overflow {
		return token.ErrBalanceOverflow
	}
	m.balances[accountKey{tok, account}] = next
	return nil
}

// Approve sets the allowance owner grants to spender, replacing any previous value.
func (m *InMemoryToken) Approve(tok, owner, spender types.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[allowanceKey{tok, owner, spender}] = new(uint256.Int).Set(amount)
}

func (m *InMemoryToken) BalanceOf(tok, account types.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.balanceLocked(tok, account))
}

func (m *InMemoryToken) Allowance(tok, owner, spender types.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.allowanceLocked(tok, owner, spender))
}

// PullFrom moves amount from `from` to `to`, spending from's allowance to custody.
func (m *InMemoryToken) PullFrom(ctx context.Context, tok, from, to types.Address, amount *uint256.Int) error {
	m.mu.Lock()
	allowance := m.allowanceLocked(tok, from, m.custody)
	if allowance.Lt(amount) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s approved %s, need %s", token.ErrInsufficientAllowance, from, allowance.Dec(), amount.Dec())
	}
	if err := m.moveLocked(tok, from, to, amount); err != nil {
		m.mu.Unlock()
		return err
	}
	m.allowances[allowanceKey{tok, from, m.custody}] = new(uint256.Int).Sub(allowance, amount)
	hook := m.hook
	m.mu.Unlock()

	undo := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = m.moveLocked(tok, to, from, amount)
		k := allowanceKey{tok, from, m.custody}
		m.allowances[k] = new(uint256.Int).Add(m.allowanceLocked(tok, from, m.custody), amount)
	}
	return m.complete(ctx, hook, Transfer{Token: tok, From: from, To: to, Amount: *amount}, undo)
}

// PushTo moves amount out of custody to `to`.
func (m *InMemoryToken) PushTo(ctx context.Context, tok, to types.Address, amount *uint256.Int) error {
	m.mu.Lock()
	if err := m.moveLocked(tok, m.custody, to, amount); err != nil {
		m.mu.Unlock()
		return err
	}
	hook := m.hook
	m.mu.Unlock()

	undo := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		_ = m.moveLocked(tok, to, m.custody, amount)
	}
	return m.complete(ctx, hook, Transfer{Token: tok, From: m.custody, To: to, Amount: *amount}, undo)
}

// complete runs the hook for a transfer that has already moved balances. A failing hook
// reverts the transfer here; a successful one leaves the undo with the caller's frame.
func (m *InMemoryToken) complete(ctx context.Context, hook TransferHook, t Transfer, undo func()) error {
	if hook != nil {
		if err := hook(ctx, t); err != nil {
			undo()
			m.logger.Sugar().Debugw("Transfer reverted by hook", "token", t.Token, "from", t.From, "to", t.To, "error", err)
			return err
		}
	}
	txn.RegisterRollback(ctx, undo)
	m.logger.Sugar().Debugw("Transfer", "token", t.Token, "from", t.From, "to", t.To, "amount", t.Amount.Dec())
	return nil
}

func (m *InMemoryToken) moveLocked(tok, from, to types.Address, amount *uint256.Int) error {
	fromBal := m.balanceLocked(tok, from)
	if fromBal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", token.ErrInsufficientBalance, from, fromBal.Dec(), amount.Dec())
	}
	if from == to {
		return nil
	}
	toBal, overflow := new(uint256.Int).AddOverflow(m.balanceLocked(tok, to), amount)
	if overflow {
		return token.ErrBalanceOverflow
	}
	m.balances[accountKey{tok, from}] = new(uint256.Int).Sub(fromBal, amount)
	m.balances[accountKey{tok, to}] = toBal
	return nil
}

func (m *InMemoryToken) balanceLocked(tok, account types.Address) *uint256.Int {
	if b, ok := m.balances[accountKey{tok, account}]; ok {
		return b
	}
	return new(uint256.Int)
}

func (m *InMemoryToken) allowanceLocked(tok, owner, spender types.Address) *uint256.Int {
	if a, ok := m.allowances[allowanceKey{tok, owner, spender}]; ok {
		return a
	}
	return new(uint256.Int)
}
