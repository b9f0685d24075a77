package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/dropop-labs/dropop-go/pkg/logger"
	"github.com/dropop-labs/dropop-go/pkg/merkle"
	"github.com/dropop-labs/dropop-go/pkg/persistence"
	"github.com/dropop-labs/dropop-go/pkg/persistence/badger"
	"github.com/dropop-labs/dropop-go/pkg/persistence/memory"
	"github.com/dropop-labs/dropop-go/pkg/token"
	"github.com/dropop-labs/dropop-go/pkg/token/inMemoryToken"
	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	tokenA  = types.BytesToAddress([]byte{0x70, 0x01})
	custody = types.BytesToAddress([]byte{0xcc})
	creator = types.BytesToAddress([]byte{0xc0})
	alice   = types.BytesToAddress([]byte{0xa1})
	bob     = types.BytesToAddress([]byte{0xb0})
	carol   = types.BytesToAddress([]byte{0xca})
	mallory = types.BytesToAddress([]byte{0x66})
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

type recorder struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recorder) Publish(evt types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recorder) eventTypes() []types.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

type fixture struct {
	ledger   *Ledger
	store    persistence.IKVStore
	token    *inMemoryToken.InMemoryToken
	blocks   *blockHandler.StaticBlockSource
	events   *recorder
	registry *prometheus.Registry
}

func newFixtureWithStore(t *testing.T, store persistence.IKVStore, tok *inMemoryToken.InMemoryToken) *fixture {
	t.Helper()
	if tok == nil {
		tok = inMemoryToken.NewInMemoryToken(custody, zap.NewNop())
	}
	f := &fixture{
		store:    store,
		token:    tok,
		blocks:   blockHandler.NewStaticBlockSource(100),
		events:   &recorder{},
		registry: prometheus.NewRegistry(),
	}
	l, err := NewLedger(&Options{
		Store:        store,
		Token:        tok,
		Blocks:       f.blocks,
		Events:       f.events,
		Custody:      custody,
		PromRegistry: f.registry,
		Logger:       zap.NewNop(),
	})
	require.NoError(t, err)
	f.ledger = l
	return f
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithStore(t, memory.NewMemoryPersistence(), nil)
}

// fund mints amount to who and approves the ledger to pull all of it.
func (f *fixture) fund(t *testing.T, who types.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.token.Mint(tokenA, who, u(amount)))
	f.token.Approve(tokenA, who, custody, f.token.BalanceOf(tokenA, who))
}

func (f *fixture) balance(who types.Address) uint64 {
	return f.token.BalanceOf(tokenA, who).Uint64()
}

type claimAirdrop struct {
	id           *uint256.Int
	tree         *merkle.MerkleTree
	entitlements []merkle.Entitlement
}

func (c *claimAirdrop) claim(t *testing.T, who types.Address) *merkle.ClaimData {
	t.Helper()
	cd, err := c.tree.ClaimData(c.entitlements, who)
	require.NoError(t, err)
	return cd
}

func (f *fixture) createClaimAirdrop(t *testing.T, total, recipientCount uint64, entitlements ...merkle.Entitlement) *claimAirdrop {
	t.Helper()
	tree, err := merkle.BuildEntitlementTree(entitlements)
	require.NoError(t, err)

	f.fund(t, creator, total)
	id, err := f.ledger.CreateAirdrop(context.Background(), creator, tokenA, tree.Root, u(total), u(recipientCount))
	require.NoError(t, err)
	return &claimAirdrop{id: id, tree: tree, entitlements: entitlements}
}

func ent(who types.Address, amount uint64) merkle.Entitlement {
	return merkle.Entitlement{Recipient: who, Amount: u(amount)}
}

func gatherValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func Test_NewLedger(t *testing.T) {
	tok := inMemoryToken.NewInMemoryToken(custody, zap.NewNop())
	store := memory.NewMemoryPersistence()
	blocks := blockHandler.NewStaticBlockSource(1)

	testCases := []struct {
		name string
		opts *Options
	}{
		{"nil options", nil},
		{"no store", &Options{Token: tok, Blocks: blocks}},
		{"no token", &Options{Store: store, Blocks: blocks}},
		{"no blocks", &Options{Store: store, Token: tok}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewLedger(tc.opts)
			require.Error(t, err)
		})
	}

	l, err := NewLedger(&Options{Store: store, Token: tok, Blocks: blocks, Custody: custody})
	require.NoError(t, err)
	assert.Equal(t, custody, l.Custody())
}

func Test_ClaimScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.createClaimAirdrop(t, 600, 3, ent(alice, 100), ent(bob, 200), ent(carol, 300))
	assert.Equal(t, uint64(0), a.id.Uint64())
	assert.Equal(t, uint64(600), f.balance(custody))
	assert.Equal(t, uint64(0), f.balance(creator))

	record, err := f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusActive, record.Status)
	assert.Equal(t, types.AirdropModeClaim, record.Mode)
	assert.Equal(t, a.tree.Root, record.MerkleRoot)
	assert.Equal(t, uint64(100), record.CreatedAt)

	bobClaim := a.claim(t, bob)
	require.NoError(t, f.ledger.Claim(ctx, bob, a.id, bobClaim.Amount, bobClaim.Proof))

	record, err = f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), record.ClaimedAmount.Uint64())
	assert.Equal(t, uint64(1), record.ClaimedCount.Uint64())
	assert.Equal(t, types.AirdropStatusActive, record.Status)
	assert.Equal(t, uint64(200), f.balance(bob))

	remaining, err := f.ledger.Withdraw(ctx, creator, a.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(400), remaining.Uint64())
	assert.Equal(t, uint64(400), f.balance(creator))
	assert.True(t, f.token.BalanceOf(tokenA, custody).IsZero())

	record, err = f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusWithdrawn, record.Status)

	aliceClaim := a.claim(t, alice)
	err = f.ledger.Claim(ctx, alice, a.id, aliceClaim.Amount, aliceClaim.Proof)
	assert.ErrorIs(t, err, ErrAirdropNotActive)

	_, err = f.ledger.Withdraw(ctx, creator, a.id)
	assert.ErrorIs(t, err, ErrAirdropNotActive)

	assert.Equal(t, []types.EventType{
		types.EventTypeAirdropCreated,
		types.EventTypeClaimed,
		types.EventTypeWithdrawn,
	}, f.events.eventTypes())

	created := f.events.events[0].(*types.AirdropCreatedEvent)
	assert.Equal(t, creator, created.Creator)
	assert.Equal(t, uint64(600), created.TotalAmount.Uint64())
	assert.Equal(t, types.AirdropModeClaim, created.Mode)

	claimed := f.events.events[1].(*types.ClaimedEvent)
	assert.Equal(t, bob, claimed.Claimer)
	assert.Equal(t, uint64(200), claimed.Amount.Uint64())

	withdrawn := f.events.events[2].(*types.WithdrawnEvent)
	assert.Equal(t, uint64(400), withdrawn.Amount.Uint64())

	assert.Equal(t, float64(1), gatherValue(t, f.registry, "dropop_ledger_operations_total", map[string]string{"operation": opClaim}))
	assert.Equal(t, float64(1), gatherValue(t, f.registry, "dropop_ledger_failures_total",
		map[string]string{"operation": opClaim, "reason": "not_active"}))
}

func Test_DirectScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 1000)

	id, err := f.ledger.DirectAirdrop(ctx, creator, tokenA, []types.Recipient{
		{Address: alice, Amount: *u(50)},
		{Address: bob, Amount: *u(75)},
	})
	require.NoError(t, err)

	record, err := f.ledger.GetAirdrop(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(125), record.TotalAmount.Uint64())
	assert.Equal(t, uint64(125), record.ClaimedAmount.Uint64())
	assert.Equal(t, uint64(2), record.RecipientCount.Uint64())
	assert.Equal(t, uint64(2), record.ClaimedCount.Uint64())
	assert.Equal(t, types.AirdropStatusCompleted, record.Status)
	assert.Equal(t, types.AirdropModeDirect, record.Mode)
	assert.Equal(t, [32]byte{}, record.MerkleRoot)

	assert.Equal(t, uint64(50), f.balance(alice))
	assert.Equal(t, uint64(75), f.balance(bob))
	assert.Equal(t, uint64(875), f.balance(creator))
	assert.True(t, f.token.BalanceOf(tokenA, custody).IsZero())

	ids, err := f.ledger.GetAirdropsByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, []uint256.Int{*id}, ids)

	require.Len(t, f.events.events, 1)
	created := f.events.events[0].(*types.AirdropCreatedEvent)
	assert.Equal(t, types.AirdropModeDirect, created.Mode)
	assert.Equal(t, uint64(125), created.TotalAmount.Uint64())

	// a completed direct airdrop can be neither claimed nor withdrawn
	err = f.ledger.Claim(ctx, alice, id, u(50), nil)
	assert.ErrorIs(t, err, ErrAirdropNotActive)
	_, err = f.ledger.Withdraw(ctx, creator, id)
	assert.ErrorIs(t, err, ErrAirdropNotActive)
}

func Test_CreateAirdropValidation(t *testing.T) {
	root := [32]byte{1}

	testCases := []struct {
		name   string
		root   [32]byte
		total  *uint256.Int
		count  *uint256.Int
		fund   uint64
		expect error
	}{
		{"zero total", root, u(0), u(1), 100, ErrInvalidAmount},
		{"zero total checked before zero count", root, u(0), u(0), 100, ErrInvalidAmount},
		{"nil total", root, nil, u(1), 100, ErrInvalidAmount},
		{"zero count", root, u(10), u(0), 100, ErrInvalidRecipientCount},
		{"zero root", [32]byte{}, u(10), u(1), 100, ErrInvalidMerkleRoot},
		{"unfunded creator", root, u(10), u(1), 0, ErrTransferFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.fund > 0 {
				f.fund(t, creator, tc.fund)
			}
			_, err := f.ledger.CreateAirdrop(context.Background(), creator, tokenA, tc.root, tc.total, tc.count)
			assert.ErrorIs(t, err, tc.expect)

			count, err := f.ledger.GetAirdropCount(context.Background())
			require.NoError(t, err)
			assert.True(t, count.IsZero())
			assert.Empty(t, f.events.events)
			assert.Equal(t, tc.fund, f.balance(creator))
		})
	}
}

func Test_CreateAirdropTransferErrorIsWrapped(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.token.Mint(tokenA, creator, u(100)))

	_, err := f.ledger.CreateAirdrop(context.Background(), creator, tokenA, [32]byte{1}, u(50), u(1))
	assert.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)
}

func Test_DirectAirdropValidation(t *testing.T) {
	maxAmount := new(uint256.Int).SetAllOne()
	tooMany := make([]types.Recipient, MaxDirectRecipients+1)
	for i := range tooMany {
		tooMany[i] = types.Recipient{Address: alice, Amount: *u(1)}
	}

	testCases := []struct {
		name       string
		recipients []types.Recipient
		expect     error
	}{
		{"no recipients", nil, ErrNoRecipients},
		{"too many recipients", tooMany, ErrTooManyRecipients},
		{"zero amount", []types.Recipient{{Address: alice, Amount: *u(5)}, {Address: bob}}, ErrInvalidAmount},
		{"overflow", []types.Recipient{{Address: alice, Amount: *maxAmount}, {Address: bob, Amount: *u(1)}}, ErrArithmeticOverflow},
		{"zero amount reported before later overflow", []types.Recipient{
			{Address: alice, Amount: *maxAmount},
			{Address: bob},
			{Address: carol, Amount: *u(1)},
		}, ErrInvalidAmount},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.fund(t, creator, 10_000)
			_, err := f.ledger.DirectAirdrop(context.Background(), creator, tokenA, tc.recipients)
			assert.ErrorIs(t, err, tc.expect)
			assert.Equal(t, uint64(10_000), f.balance(creator))
			assert.Empty(t, f.events.events)
		})
	}
}

func Test_DirectAirdropMaxRecipients(t *testing.T) {
	f := newFixture(t)
	f.fund(t, creator, MaxDirectRecipients)

	recipients := make([]types.Recipient, MaxDirectRecipients)
	for i := range recipients {
		recipients[i] = types.Recipient{Address: types.BytesToAddress([]byte{0x10, byte(i >> 8), byte(i)}), Amount: *u(1)}
	}
	id, err := f.ledger.DirectAirdrop(context.Background(), creator, tokenA, recipients)
	require.NoError(t, err)

	record, err := f.ledger.GetAirdrop(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(MaxDirectRecipients), record.RecipientCount.Uint64())
	assert.Equal(t, uint64(0), f.balance(creator))
}

func Test_DirectAirdropFailedTransferLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, creator, 100)

	// alice's transfer succeeds, bob's exceeds what remains of the allowance
	_, err := f.ledger.DirectAirdrop(ctx, creator, tokenA, []types.Recipient{
		{Address: alice, Amount: *u(50)},
		{Address: bob, Amount: *u(75)},
	})
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, token.ErrInsufficientAllowance)

	assert.Equal(t, uint64(0), f.balance(alice))
	assert.Equal(t, uint64(0), f.balance(bob))
	assert.Equal(t, uint64(100), f.balance(creator))
	assert.Equal(t, uint64(100), f.token.Allowance(tokenA, creator, custody).Uint64())

	count, err := f.ledger.GetAirdropCount(ctx)
	require.NoError(t, err)
	assert.True(t, count.IsZero())
	ids, err := f.ledger.GetAirdropsByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, f.events.events)
}

func Test_ClaimPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("nonexistent airdrop is not active", func(t *testing.T) {
		f := newFixture(t)
		err := f.ledger.Claim(ctx, alice, u(99), u(1), nil)
		assert.ErrorIs(t, err, ErrAirdropNotActive)
	})

	t.Run("active direct-mode record is not claimable", func(t *testing.T) {
		f := newFixture(t)
		data, err := persistence.MarshalAirdropRecord(&types.AirdropRecord{
			ID:     *u(0),
			Mode:   types.AirdropModeDirect,
			Status: types.AirdropStatusActive,
		})
		require.NoError(t, err)
		require.NoError(t, f.store.Set(recordKey(u(0)), data))

		err = f.ledger.Claim(ctx, alice, u(0), u(1), nil)
		assert.ErrorIs(t, err, ErrNotClaimMode)
	})

	t.Run("already claimed", func(t *testing.T) {
		f := newFixture(t)
		a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
		cd := a.claim(t, alice)

		require.NoError(t, f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof))
		err := f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof)
		assert.ErrorIs(t, err, ErrAlreadyClaimed)

		claimed, err := f.ledger.HasClaimed(ctx, a.id, alice)
		require.NoError(t, err)
		assert.True(t, claimed)
		claimed, err = f.ledger.HasClaimed(ctx, a.id, bob)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, uint64(100), f.balance(alice))
	})

	t.Run("invalid proof", func(t *testing.T) {
		f := newFixture(t)
		a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
		cd := a.claim(t, alice)

		// wrong amount
		err := f.ledger.Claim(ctx, alice, a.id, u(101), cd.Proof)
		assert.ErrorIs(t, err, ErrInvalidProof)

		// someone else's proof
		err = f.ledger.Claim(ctx, mallory, a.id, cd.Amount, cd.Proof)
		assert.ErrorIs(t, err, ErrInvalidProof)

		// tampered proof
		tampered := append([][32]byte{}, cd.Proof...)
		tampered[0][0] ^= 0xff
		err = f.ledger.Claim(ctx, alice, a.id, cd.Amount, tampered)
		assert.ErrorIs(t, err, ErrInvalidProof)

		claimed, err := f.ledger.HasClaimed(ctx, a.id, alice)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("insufficient pool", func(t *testing.T) {
		f := newFixture(t)
		// the tree promises 300 but only 250 was deposited
		a := f.createClaimAirdrop(t, 250, 2, ent(alice, 100), ent(bob, 200))

		cd := a.claim(t, alice)
		require.NoError(t, f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof))

		cd = a.claim(t, bob)
		err := f.ledger.Claim(ctx, bob, a.id, cd.Amount, cd.Proof)
		assert.ErrorIs(t, err, ErrInsufficientPool)

		claimed, err := f.ledger.HasClaimed(ctx, a.id, bob)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, uint64(150), f.balance(custody))
	})
}

func Test_ClaimCompletesAirdrop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createClaimAirdrop(t, 600, 3, ent(alice, 100), ent(bob, 200), ent(carol, 300))

	for _, who := range []types.Address{alice, bob, carol} {
		cd := a.claim(t, who)
		require.NoError(t, f.ledger.Claim(ctx, who, a.id, cd.Amount, cd.Proof))
	}

	record, err := f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusCompleted, record.Status)
	assert.Equal(t, uint64(600), record.ClaimedAmount.Uint64())
	assert.Equal(t, uint64(3), record.ClaimedCount.Uint64())

	_, err = f.ledger.Withdraw(ctx, creator, a.id)
	assert.ErrorIs(t, err, ErrAirdropNotActive)
}

func Test_ClaimPoolConservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 20
	entitlements := make([]merkle.Entitlement, n)
	var total uint64
	for i := 0; i < n; i++ {
		amount := uint64(10 * (i + 1))
		entitlements[i] = ent(types.BytesToAddress([]byte{0x20, byte(i)}), amount)
		total += amount
	}
	a := f.createClaimAirdrop(t, total, n, entitlements...)

	for i, e := range entitlements {
		cd := a.claim(t, e.Recipient)
		require.NoError(t, f.ledger.Claim(ctx, e.Recipient, a.id, cd.Amount, cd.Proof))

		record, err := f.ledger.GetAirdrop(ctx, a.id)
		require.NoError(t, err)
		pool, ok := record.Pool()
		require.True(t, ok, "claimed exceeds total after claim %d", i)
		assert.Equal(t, pool.Uint64(), f.balance(custody), "custody diverged from pool after claim %d", i)
		assert.Equal(t, uint64(i+1), record.ClaimedCount.Uint64())
	}
}

func Test_WithdrawPreconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("non-creator", func(t *testing.T) {
		f := newFixture(t)
		a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
		_, err := f.ledger.Withdraw(ctx, mallory, a.id)
		assert.ErrorIs(t, err, ErrNotCreator)
		assert.Equal(t, uint64(300), f.balance(custody))
	})

	t.Run("nonexistent airdrop has no creator", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.Withdraw(ctx, creator, u(5))
		assert.ErrorIs(t, err, ErrNotCreator)
	})

	t.Run("nothing to withdraw", func(t *testing.T) {
		f := newFixture(t)
		a := f.createClaimAirdrop(t, 100, 2, ent(alice, 100), ent(bob, 200))
		cd := a.claim(t, alice)
		require.NoError(t, f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof))

		_, err := f.ledger.Withdraw(ctx, creator, a.id)
		assert.ErrorIs(t, err, ErrNothingToWithdraw)

		record, err := f.ledger.GetAirdrop(ctx, a.id)
		require.NoError(t, err)
		assert.Equal(t, types.AirdropStatusActive, record.Status)
	})

	t.Run("withdraw is final", func(t *testing.T) {
		f := newFixture(t)
		a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))

		remaining, err := f.ledger.Withdraw(ctx, creator, a.id)
		require.NoError(t, err)
		assert.Equal(t, uint64(300), remaining.Uint64())

		_, err = f.ledger.Withdraw(ctx, creator, a.id)
		assert.ErrorIs(t, err, ErrAirdropNotActive)

		cd := a.claim(t, bob)
		err = f.ledger.Claim(ctx, bob, a.id, cd.Amount, cd.Proof)
		assert.ErrorIs(t, err, ErrAirdropNotActive)
		assert.Equal(t, uint64(300), f.balance(creator))
	})
}

func Test_ReentrantClaimHitsAlreadyClaimed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createClaimAirdrop(t, 300, 2, ent(mallory, 100), ent(alice, 200))
	cd := a.claim(t, mallory)

	var reentered bool
	var innerErr error
	f.token.SetTransferHook(func(ctx context.Context, tr inMemoryToken.Transfer) error {
		if tr.To != mallory || reentered {
			return nil
		}
		reentered = true
		innerErr = f.ledger.Claim(ctx, mallory, a.id, cd.Amount, cd.Proof)
		return nil
	})

	require.NoError(t, f.ledger.Claim(ctx, mallory, a.id, cd.Amount, cd.Proof))
	require.True(t, reentered)
	assert.ErrorIs(t, innerErr, ErrAlreadyClaimed)

	assert.Equal(t, uint64(100), f.balance(mallory))
	assert.Equal(t, uint64(200), f.balance(custody))

	record, err := f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), record.ClaimedAmount.Uint64())
	assert.Equal(t, uint64(1), record.ClaimedCount.Uint64())

	assert.Equal(t, []types.EventType{types.EventTypeAirdropCreated, types.EventTypeClaimed}, f.events.eventTypes())
}

func Test_ReentrantWithdrawDuringClaimPayout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
	cd := a.claim(t, alice)

	// the creator's withdraw runs inside alice's claim and sees the claim's staged state
	var remaining *uint256.Int
	var innerErr error
	f.token.SetTransferHook(func(ctx context.Context, tr inMemoryToken.Transfer) error {
		if tr.To != alice {
			return nil
		}
		remaining, innerErr = f.ledger.Withdraw(ctx, creator, a.id)
		return nil
	})

	require.NoError(t, f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof))
	require.NoError(t, innerErr)
	assert.Equal(t, uint64(200), remaining.Uint64())

	record, err := f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusWithdrawn, record.Status)
	assert.Equal(t, uint64(100), f.balance(alice))
	assert.Equal(t, uint64(200), f.balance(creator))

	assert.Equal(t, []types.EventType{
		types.EventTypeAirdropCreated,
		types.EventTypeWithdrawn,
		types.EventTypeClaimed,
	}, f.events.eventTypes())
}

func Test_ReentrantCallRolledBackWithOuterCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
	cd := a.claim(t, alice)
	f.fund(t, alice, 500)

	rejected := errors.New("receiver rejected")
	var nestedID *uint256.Int
	f.token.SetTransferHook(func(ctx context.Context, tr inMemoryToken.Transfer) error {
		if tr.To != alice {
			return nil
		}
		id, err := f.ledger.CreateAirdrop(ctx, alice, tokenA, [32]byte{7}, u(500), u(1))
		if err != nil {
			return err
		}
		nestedID = id
		return rejected
	})

	err := f.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof)
	require.ErrorIs(t, err, ErrTransferFailed)
	assert.ErrorIs(t, err, rejected)
	require.NotNil(t, nestedID)
	assert.Equal(t, uint64(1), nestedID.Uint64())

	// neither the claim nor the nested creation survived
	count, err := f.ledger.GetAirdropCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count.Uint64())
	_, err = f.ledger.GetAirdrop(ctx, nestedID)
	assert.ErrorIs(t, err, ErrAirdropNotFound)

	claimed, err := f.ledger.HasClaimed(ctx, a.id, alice)
	require.NoError(t, err)
	assert.False(t, claimed)

	assert.Equal(t, uint64(500), f.balance(alice))
	assert.Equal(t, uint64(300), f.balance(custody))
	assert.Equal(t, uint64(500), f.token.Allowance(tokenA, alice, custody).Uint64())
	assert.Equal(t, []types.EventType{types.EventTypeAirdropCreated}, f.events.eventTypes())
}

func Test_ConcurrentClaims(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 16
	entitlements := make([]merkle.Entitlement, n)
	for i := 0; i < n; i++ {
		entitlements[i] = ent(types.BytesToAddress([]byte{0x30, byte(i)}), 10)
	}
	a := f.createClaimAirdrop(t, 10*n, n, entitlements...)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := make(map[types.Address]int)
	for i := 0; i < n; i++ {
		cd := a.claim(t, entitlements[i].Recipient)
		// every recipient races itself
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := f.ledger.Claim(ctx, cd.Recipient, a.id, cd.Amount, cd.Proof)
				if err == nil {
					mu.Lock()
					successes[cd.Recipient]++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, ErrAlreadyClaimed)
			}()
		}
	}
	wg.Wait()

	require.Len(t, successes, n)
	for addr, c := range successes {
		assert.Equal(t, 1, c, "recipient %s paid %d times", addr, c)
	}

	record, err := f.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusCompleted, record.Status)
	assert.Equal(t, uint64(10*n), record.ClaimedAmount.Uint64())
	assert.True(t, f.token.BalanceOf(tokenA, custody).IsZero())
}

func Test_Queries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	count, err := f.ledger.GetAirdropCount(ctx)
	require.NoError(t, err)
	assert.True(t, count.IsZero())

	_, err = f.ledger.GetAirdrop(ctx, u(0))
	assert.ErrorIs(t, err, ErrAirdropNotFound)
	_, err = f.ledger.GetAirdrop(ctx, nil)
	assert.ErrorIs(t, err, ErrAirdropNotFound)

	ids, err := f.ledger.GetAirdropsByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Empty(t, ids)

	f.createClaimAirdrop(t, 100, 1, ent(alice, 100))
	f.blocks.Set(150)
	f.fund(t, creator, 10)
	direct, err := f.ledger.DirectAirdrop(ctx, creator, tokenA, []types.Recipient{{Address: bob, Amount: *u(10)}})
	require.NoError(t, err)

	count, err = f.ledger.GetAirdropCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count.Uint64())

	ids, err = f.ledger.GetAirdropsByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, []uint256.Int{*u(0), *u(1)}, ids)

	record, err := f.ledger.GetAirdrop(ctx, direct)
	require.NoError(t, err)
	assert.Equal(t, uint64(150), record.CreatedAt)

	// returned records are copies
	record.Status = types.AirdropStatusWithdrawn
	again, err := f.ledger.GetAirdrop(ctx, direct)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusCompleted, again.Status)
}

type failingBatchStore struct {
	*memory.MemoryPersistence
}

func (s *failingBatchStore) WriteBatch([]persistence.KV) error {
	return fmt.Errorf("disk full")
}

func Test_CommitFailureRollsBackTransfers(t *testing.T) {
	f := newFixtureWithStore(t, &failingBatchStore{memory.NewMemoryPersistence()}, nil)
	f.fund(t, creator, 100)

	_, err := f.ledger.CreateAirdrop(context.Background(), creator, tokenA, [32]byte{1}, u(100), u(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.Equal(t, uint64(100), f.balance(creator))
	assert.True(t, f.token.BalanceOf(tokenA, custody).IsZero())
	assert.Empty(t, f.events.events)
}

func Test_StatePersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	l, _ := logger.NewLogger(&logger.LoggerConfig{Debug: false})
	tok := inMemoryToken.NewInMemoryToken(custody, zap.NewNop())
	ctx := context.Background()

	store1, err := badger.NewBadgerPersistence(dir, l)
	require.NoError(t, err)
	f1 := newFixtureWithStore(t, store1, tok)
	a := f1.createClaimAirdrop(t, 300, 2, ent(alice, 100), ent(bob, 200))
	cd := a.claim(t, alice)
	require.NoError(t, f1.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof))
	before, err := f1.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	require.NoError(t, store1.Close())

	store2, err := badger.NewBadgerPersistence(dir, l)
	require.NoError(t, err)
	defer func() { _ = store2.Close() }()
	f2 := newFixtureWithStore(t, store2, tok)

	after, err := f2.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, *before, *after)

	count, err := f2.ledger.GetAirdropCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count.Uint64())

	ids, err := f2.ledger.GetAirdropsByCreator(ctx, creator)
	require.NoError(t, err)
	assert.Equal(t, []uint256.Int{*a.id}, ids)

	err = f2.ledger.Claim(ctx, alice, a.id, cd.Amount, cd.Proof)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	cd = a.claim(t, bob)
	require.NoError(t, f2.ledger.Claim(ctx, bob, a.id, cd.Amount, cd.Proof))
	after, err = f2.ledger.GetAirdrop(ctx, a.id)
	require.NoError(t, err)
	assert.Equal(t, types.AirdropStatusCompleted, after.Status)
}
