package testutil

import (
	"testing"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/dropop-labs/dropop-go/pkg/events"
	"github.com/dropop-labs/dropop-go/pkg/ledger"
	"github.com/dropop-labs/dropop-go/pkg/merkle"
	"github.com/dropop-labs/dropop-go/pkg/persistence"
	"github.com/dropop-labs/dropop-go/pkg/persistence/memory"
	"github.com/dropop-labs/dropop-go/pkg/token/inMemoryToken"
	"github.com/dropop-labs/dropop-go/pkg/types"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	TestCustody = types.BytesToAddress([]byte("dropop-test-custody"))
	TestToken   = types.BytesToAddress([]byte("dropop-test-token"))
	TestCreator = types.BytesToAddress([]byte("dropop-test-creator"))
)

// TestLedger bundles a ledger with the in-memory collaborators tests drive it through.
type TestLedger struct {
	Ledger *ledger.Ledger
	Store  persistence.IKVStore
	Token  *inMemoryToken.InMemoryToken
	Blocks blockHandler.IBlockSource
}

// NewTestLedger creates a ledger over a memory store. publisher may be nil; a nil
// blocks pins the height at 1.
func NewTestLedger(t *testing.T, publisher events.IEventPublisher, blocks blockHandler.IBlockSource) *TestLedger {
	t.Helper()

	if blocks == nil {
		blocks = blockHandler.NewStaticBlockSource(1)
	}
	tl := &TestLedger{
		Store:  memory.NewMemoryPersistence(),
		Token:  inMemoryToken.NewInMemoryToken(TestCustody, zap.NewNop()),
		Blocks: blocks,
	}
	l, err := ledger.NewLedger(&ledger.Options{
		Store:   tl.Store,
		Token:   tl.Token,
		Blocks:  tl.Blocks,
		Events:  publisher,
		Custody: TestCustody,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	tl.Ledger = l
	return tl
}

// Fund mints amount of TestToken to who and approves the ledger to pull it.
func (tl *TestLedger) Fund(t *testing.T, who types.Address, amount uint64) {
	t.Helper()
	require.NoError(t, tl.Token.Mint(TestToken, who, uint256.NewInt(amount)))
	tl.Token.Approve(TestToken, who, TestCustody, tl.Token.BalanceOf(TestToken, who))
}

// Balance returns who's TestToken balance.
func (tl *TestLedger) Balance(who types.Address) uint64 {
	return tl.Token.BalanceOf(TestToken, who).Uint64()
}

// CreateTestEntitlements returns n entitlements with distinct recipients and amounts
// 100, 200, ... n*100.
func CreateTestEntitlements(n int) []merkle.Entitlement {
	entitlements := make([]merkle.Entitlement, n)
	for i := 0; i < n; i++ {
		entitlements[i] = merkle.Entitlement{
			Recipient: types.BytesToAddress([]byte{0xe0, byte(i >> 8), byte(i)}),
			Amount:    uint256.NewInt(uint64(i+1) * 100),
		}
	}
	return entitlements
}

// TotalOf sums entitlement amounts.
func TotalOf(entitlements []merkle.Entitlement) *uint256.Int {
	total := new(uint256.Int)
	for _, e := range entitlements {
		total.Add(total, e.Amount)
	}
	return total
}
