// Package ledger implements the airdrop state machine: claim-mode pools redeemed
// with merkle proofs and direct multi-recipient distributions.
//
// Every state-mutating call runs in an execution frame (see pkg/txn). The outermost
// call takes the ledger's writer lock, stages its writes in the frame and commits them
// to the store in a single batch only when the call succeeds. A call that re-enters the
// ledger from inside a token transfer carries the frame in its context, runs in a
// child frame over the outer call's staged state, and does not take the lock again.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/dropop-labs/dropop-go/pkg/events"
	"github.com/dropop-labs/dropop-go/pkg/merkle"
	"github.com/dropop-labs/dropop-go/pkg/persistence"
	"github.com/dropop-labs/dropop-go/pkg/token"
	"github.com/dropop-labs/dropop-go/pkg/txn"
	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MaxDirectRecipients bounds the recipient list of a single direct airdrop.
const MaxDirectRecipients = 1000

const (
	opCreateAirdrop = "createAirdrop"
	opDirectAirdrop = "directAirdrop"
	opClaim         = "claim"
	opWithdraw      = "withdraw"
)

type Options struct {
	Store  persistence.IKVStore
	Token  token.ITokenTransfer
	Blocks blockHandler.IBlockSource

	// Events receives committed events. Optional.
	Events events.IEventPublisher

	// Custody is the ledger's own account: pools are pulled into it and paid out of it.
	Custody types.Address

	// PromRegistry registers ledger metrics. Optional.
	PromRegistry prometheus.Registerer

	Logger *zap.Logger
}

type Ledger struct {
	store     persistence.IKVStore
	token     token.ITokenTransfer
	blocks    blockHandler.IBlockSource
	publisher events.IEventPublisher
	custody   types.Address
	metrics   *ledgerMetrics
	logger    *zap.Logger

	// mu serialises state-mutating calls; only the outermost call of a chain holds it
	mu sync.Mutex
}

func NewLedger(opts *Options) (*Ledger, error) {
	if opts == nil {
		return nil, fmt.Errorf("ledger options cannot be nil")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("ledger store cannot be nil")
	}
	if opts.Token == nil {
		return nil, fmt.Errorf("ledger token transfer cannot be nil")
	}
	if opts.Blocks == nil {
		return nil, fmt.Errorf("ledger block source cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     opts.Store,
		token:     opts.Token,
		blocks:    opts.Blocks,
		publisher: opts.Events,
		custody:   opts.Custody,
		metrics:   newLedgerMetrics(opts.PromRegistry),
		logger:    logger,
	}, nil
}

// Custody returns the ledger's own account.
func (l *Ledger) Custody() types.Address {
	return l.custody
}

// CreateAirdrop opens a claim-mode airdrop, pulling totalAmount from caller into custody.
func (l *Ledger) CreateAirdrop(
	ctx context.Context,
	caller types.Address,
	tokenAddress types.Address,
	merkleRoot [32]byte,
	totalAmount *uint256.Int,
	recipientCount *uint256.Int,
) (*uint256.Int, error) {
	var id *uint256.Int
	err := l.execute(ctx, opCreateAirdrop, func(ctx context.Context, f *txn.Frame) error {
		if totalAmount == nil || totalAmount.IsZero() {
			return ErrInvalidAmount
		}
		if recipientCount == nil || recipientCount.IsZero() {
			return ErrInvalidRecipientCount
		}
		if merkleRoot == ([32]byte{}) {
			return ErrInvalidMerkleRoot
		}

		if err := l.token.PullFrom(ctx, tokenAddress, caller, l.custody, totalAmount); err != nil {
			return transferFailed(err)
		}

		next, err := l.allocateID(f)
		if err != nil {
			return err
		}

		record := &types.AirdropRecord{
			ID:             *next,
			Creator:        caller,
			TokenAddress:   tokenAddress,
			TotalAmount:    *totalAmount,
			RecipientCount: *recipientCount,
			MerkleRoot:     merkleRoot,
			Mode:           types.AirdropModeClaim,
			Status:         types.AirdropStatusActive,
			CreatedAt:      l.blocks.CurrentBlock(),
		}
		if err := l.putRecord(f, record); err != nil {
			return err
		}
		if err := l.appendCreatorIndex(f, caller, next); err != nil {
			return err
		}

		f.Emit(&types.AirdropCreatedEvent{
			AirdropID:    *next,
			Creator:      caller,
			TokenAddress: tokenAddress,
			TotalAmount:  *totalAmount,
			Mode:         types.AirdropModeClaim,
		})
		id = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.created(types.AirdropModeClaim.String())
	l.logger.Sugar().Infow("Airdrop created",
		"airdropId", id.Dec(),
		"creator", caller,
		"token", tokenAddress,
		"totalAmount", totalAmount.Dec(),
		"recipientCount", recipientCount.Dec(),
	)
	return id, nil
}

// DirectAirdrop pulls each recipient's amount from caller straight to the recipient and
// records a completed direct-mode airdrop.
func (l *Ledger) DirectAirdrop(
	ctx context.Context,
	caller types.Address,
	tokenAddress types.Address,
	recipients []types.Recipient,
) (*uint256.Int, error) {
	var id *uint256.Int
	total := new(uint256.Int)
	err := l.execute(ctx, opDirectAirdrop, func(ctx context.Context, f *txn.Frame) error {
		if len(recipients) == 0 {
			return ErrNoRecipients
		}
		if len(recipients) > MaxDirectRecipients {
			return ErrTooManyRecipients
		}

		total.Clear()
		for i := range recipients {
			if recipients[i].Amount.IsZero() {
				return errors.Wrapf(ErrInvalidAmount, "recipient %d", i)
			}
			if _, overflow := total.AddOverflow(total, &recipients[i].Amount); overflow {
				return ErrArithmeticOverflow
			}
		}

		for i := range recipients {
			r := &recipients[i]
			if err := l.token.PullFrom(ctx, tokenAddress, caller, r.Address, &r.Amount); err != nil {
				return transferFailed(errors.Wrapf(err, "recipient %d (%s)", i, r.Address))
			}
		}

		next, err := l.allocateID(f)
		if err != nil {
			return err
		}

		count := uint256.NewInt(uint64(len(recipients)))
		record := &types.AirdropRecord{
			ID:             *next,
			Creator:        caller,
			TokenAddress:   tokenAddress,
			TotalAmount:    *total,
			ClaimedAmount:  *total,
			RecipientCount: *count,
			ClaimedCount:   *count,
			Mode:           types.AirdropModeDirect,
			Status:         types.AirdropStatusCompleted,
			CreatedAt:      l.blocks.CurrentBlock(),
		}
		if err := l.putRecord(f, record); err != nil {
			return err
		}
		if err := l.appendCreatorIndex(f, caller, next); err != nil {
			return err
		}

		f.Emit(&types.AirdropCreatedEvent{
			AirdropID:    *next,
			Creator:      caller,
			TokenAddress: tokenAddress,
			TotalAmount:  *total,
			Mode:         types.AirdropModeDirect,
		})
		id = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.created(types.AirdropModeDirect.String())
	l.logger.Sugar().Infow("Direct airdrop distributed",
		"airdropId", id.Dec(),
		"creator", caller,
		"token", tokenAddress,
		"totalAmount", total.Dec(),
		"recipients", len(recipients),
	)
	return id, nil
}

// Claim pays caller its entitlement from a claim-mode pool, once per (airdrop, caller).
// State is updated before the payout transfer is made.
func (l *Ledger) Claim(
	ctx context.Context,
	caller types.Address,
	id *uint256.Int,
	amount *uint256.Int,
	proof [][32]byte,
) error {
	if id == nil || amount == nil {
		return ErrInvalidAmount
	}
	err := l.execute(ctx, opClaim, func(ctx context.Context, f *txn.Frame) error {
		record, err := l.loadRecordOrZero(f, id)
		if err != nil {
			return err
		}

		if record.Status != types.AirdropStatusActive {
			return ErrAirdropNotActive
		}
		if record.Mode != types.AirdropModeClaim {
			return ErrNotClaimMode
		}

		claimed, err := l.hasClaimed(f, id, caller)
		if err != nil {
			return err
		}
		if claimed {
			return ErrAlreadyClaimed
		}

		leaf := merkle.HashLeaf(caller.Bytes(), amount)
		if !merkle.VerifyProof(leaf, proof, record.MerkleRoot) {
			return ErrInvalidProof
		}

		newClaimed, overflow := new(uint256.Int).AddOverflow(&record.ClaimedAmount, amount)
		if overflow || newClaimed.Gt(&record.TotalAmount) {
			return ErrInsufficientPool
		}
		newCount, overflow := new(uint256.Int).AddOverflow(&record.ClaimedCount, uint256.NewInt(1))
		if overflow {
			return ErrArithmeticOverflow
		}

		f.Set(claimedKey(id, caller), claimedFlag)
		record.ClaimedAmount = *newClaimed
		record.ClaimedCount = *newCount
		if !newCount.Lt(&record.RecipientCount) {
			record.Status = types.AirdropStatusCompleted
		}
		if err := l.putRecord(f, record); err != nil {
			return err
		}

		if err := l.token.PushTo(ctx, record.TokenAddress, caller, amount); err != nil {
			return transferFailed(err)
		}

		f.Emit(&types.ClaimedEvent{
			AirdropID: *id,
			Claimer:   caller,
			Amount:    *amount,
		})
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Sugar().Infow("Airdrop claimed",
		"airdropId", id.Dec(),
		"claimer", caller,
		"amount", amount.Dec(),
	)
	return nil
}

// Withdraw returns the unclaimed pool of an active claim-mode airdrop to its creator and
// closes it for good.
func (l *Ledger) Withdraw(ctx context.Context, caller types.Address, id *uint256.Int) (*uint256.Int, error) {
	if id == nil {
		return nil, ErrAirdropNotFound
	}
	var remaining *uint256.Int
	err := l.execute(ctx, opWithdraw, func(ctx context.Context, f *txn.Frame) error {
		record, err := l.loadRecordOrZero(f, id)
		if err != nil {
			return err
		}

		if record.Creator != caller {
			return ErrNotCreator
		}
		if record.Status != types.AirdropStatusActive {
			return ErrAirdropNotActive
		}
		if record.Mode != types.AirdropModeClaim {
			return ErrNotClaimMode
		}

		pool, ok := record.Pool()
		if !ok {
			return ErrArithmeticOverflow
		}
		if pool.IsZero() {
			return ErrNothingToWithdraw
		}

		record.Status = types.AirdropStatusWithdrawn
		if err := l.putRecord(f, record); err != nil {
			return err
		}

		if err := l.token.PushTo(ctx, record.TokenAddress, caller, pool); err != nil {
			return transferFailed(err)
		}

		f.Emit(&types.WithdrawnEvent{
			AirdropID: *id,
			Amount:    *pool,
		})
		remaining = pool
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Sugar().Infow("Airdrop withdrawn",
		"airdropId", id.Dec(),
		"creator", caller,
		"amount", remaining.Dec(),
	)
	return remaining, nil
}

// GetAirdrop returns a copy of the record for id.
func (l *Ledger) GetAirdrop(ctx context.Context, id *uint256.Int) (*types.AirdropRecord, error) {
	if id == nil {
		return nil, ErrAirdropNotFound
	}
	record, err := l.loadRecord(l.reader(ctx), id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrAirdropNotFound
	}
	return record, nil
}

// GetAirdropCount returns how many airdrops have been created. Ids are 0..count-1.
func (l *Ledger) GetAirdropCount(ctx context.Context) (*uint256.Int, error) {
	return l.loadCount(l.reader(ctx))
}

// HasClaimed reports whether addr has claimed from airdrop id.
func (l *Ledger) HasClaimed(ctx context.Context, id *uint256.Int, addr types.Address) (bool, error) {
	if id == nil {
		return false, nil
	}
	return l.hasClaimed(l.reader(ctx), id, addr)
}

// GetAirdropsByCreator returns the ids created by addr, oldest first.
func (l *Ledger) GetAirdropsByCreator(ctx context.Context, addr types.Address) ([]uint256.Int, error) {
	return l.loadCreatorIndex(l.reader(ctx), addr)
}

// execute runs fn in an execution frame. The outermost call of a chain owns a root frame
// and the writer lock, and commits on success; a reentrant call runs in a child frame that
// is merged into its parent on success. On failure the frame's rollback hooks run and
// nothing it staged survives.
func (l *Ledger) execute(ctx context.Context, operation string, fn func(context.Context, *txn.Frame) error) error {
	if parent, ok := txn.FromContext(ctx); ok {
		child := parent.Child()
		if err := fn(txn.WithFrame(ctx, child), child); err != nil {
			child.Rollback()
			l.metrics.failure(operation, err)
			l.logger.Sugar().Debugw("Reentrant ledger call aborted",
				"operation", operation, "depth", child.Depth(), "error", err)
			return err
		}
		if err := child.Merge(); err != nil {
			return err
		}
		l.metrics.success(operation)
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	root := txn.NewFrame(l.store)
	if err := fn(txn.WithFrame(ctx, root), root); err != nil {
		root.Rollback()
		l.metrics.failure(operation, err)
		l.logger.Sugar().Debugw("Ledger call aborted", "operation", operation, "error", err)
		return err
	}

	writes := root.Writes()
	batch := make([]persistence.KV, 0, len(writes))
	for _, w := range writes {
		batch = append(batch, persistence.KV{Key: w.Key, Value: w.Value})
	}
	if err := l.store.WriteBatch(batch); err != nil {
		root.Rollback()
		l.metrics.failure(operation, err)
		return errors.Wrapf(err, "failed to commit %s", operation)
	}
	l.metrics.success(operation)

	if l.publisher != nil {
		for _, evt := range root.Events() {
			l.publisher.Publish(evt)
		}
	}
	return nil
}

// reader returns the frame carried by ctx, or committed state when there is none.
func (l *Ledger) reader(ctx context.Context) txn.Reader {
	if f, ok := txn.FromContext(ctx); ok {
		return f
	}
	return l.store
}

func (l *Ledger) loadCount(r txn.Reader) (*uint256.Int, error) {
	raw, err := r.Get(keyCount)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read airdrop count")
	}
	count, err := persistence.UnmarshalCounter(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode airdrop count")
	}
	return count, nil
}

// allocateID returns the next airdrop id and advances the counter.
func (l *Ledger) allocateID(f *txn.Frame) (*uint256.Int, error) {
	id, err := l.loadCount(f)
	if err != nil {
		return nil, err
	}
	next, overflow := new(uint256.Int).AddOverflow(id, uint256.NewInt(1))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	f.Set(keyCount, persistence.MarshalCounter(next))
	return id, nil
}

// loadRecord returns nil, nil when no record exists for id.
func (l *Ledger) loadRecord(r txn.Reader, id *uint256.Int) (*types.AirdropRecord, error) {
	raw, err := r.Get(recordKey(id))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read airdrop %s", id.Dec())
	}
	if raw == nil {
		return nil, nil
	}
	record, err := persistence.UnmarshalAirdropRecord(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode airdrop %s", id.Dec())
	}
	return record, nil
}

// loadRecordOrZero treats a missing record as all-zero fields: no creator, Pending status,
// Direct mode. Precondition checks then reject it the same way they reject any record
// that never became active.
func (l *Ledger) loadRecordOrZero(r txn.Reader, id *uint256.Int) (*types.AirdropRecord, error) {
	record, err := l.loadRecord(r, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &types.AirdropRecord{ID: *id}, nil
	}
	return record, nil
}

func (l *Ledger) putRecord(f *txn.Frame, record *types.AirdropRecord) error {
	data, err := persistence.MarshalAirdropRecord(record)
	if err != nil {
		return errors.Wrapf(err, "failed to encode airdrop %s", record.ID.Dec())
	}
	f.Set(recordKey(&record.ID), data)
	return nil
}

func (l *Ledger) hasClaimed(r txn.Reader, id *uint256.Int, addr types.Address) (bool, error) {
	raw, err := r.Get(claimedKey(id, addr))
	if err != nil {
		return false, errors.Wrapf(err, "failed to read claim of %s on airdrop %s", addr, id.Dec())
	}
	return len(raw) > 0 && raw[0] != 0, nil
}

func (l *Ledger) loadCreatorIndex(r txn.Reader, creator types.Address) ([]uint256.Int, error) {
	raw, err := r.Get(creatorKey(creator))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read airdrops of %s", creator)
	}
	ids, err := persistence.UnmarshalCreatorIndex(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode airdrops of %s", creator)
	}
	return ids, nil
}

func (l *Ledger) appendCreatorIndex(f *txn.Frame, creator types.Address, id *uint256.Int) error {
	ids, err := l.loadCreatorIndex(f, creator)
	if err != nil {
		return err
	}
	data, err := persistence.MarshalCreatorIndex(append(ids, *id))
	if err != nil {
		return errors.Wrapf(err, "failed to encode airdrops of %s", creator)
	}
	f.Set(creatorKey(creator), data)
	return nil
}

// transferFailed keeps both ErrTransferFailed and the token's own error matchable.
func transferFailed(err error) error {
	return fmt.Errorf("%w: %w", ErrTransferFailed, err)
}
