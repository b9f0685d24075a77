package testutil

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// MockChainPoller announces blocks to block handlers without following a chain
type MockChainPoller struct {
	blockHandlers []blockHandler.IBlockHandler
	logger        *zap.Logger
	currentBlock  uint64
	blockInterval uint64 // How many blocks to increment per emission
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.Mutex
}

// NewMockChainPoller creates a new mock chain poller that broadcasts to multiple handlers
// blockInterval determines how many blocks to skip per emission (e.g., 5 for every 5th block)
func NewMockChainPoller(
	blockHandlers []blockHandler.IBlockHandler,
	blockInterval uint64,
	logger *zap.Logger,
) *MockChainPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MockChainPoller{
		blockHandlers: blockHandlers,
		logger:        logger,
		blockInterval: blockInterval,
	}
}

// Start arms the poller. Blocks are only emitted on request.
func (m *MockChainPoller) Start(ctx context.Context) error {
	m.mu.Lock()
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.logger.Sugar().Info("MockChainPoller started")
	return nil
}

// Stop stops the mock poller
func (m *MockChainPoller) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.logger.Sugar().Info("MockChainPoller stopped")
	}
}

// EmitBlock emits the next block, blockInterval past the current one, to every handler
func (m *MockChainPoller) EmitBlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}
	m.currentBlock += m.blockInterval
	m.broadcastLocked(m.currentBlock)
	return nil
}

// EmitBlockAtNumber emits a block with a specific block number to all handlers
func (m *MockChainPoller) EmitBlockAtNumber(blockNumber uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}
	m.currentBlock = blockNumber
	m.broadcastLocked(blockNumber)
	return nil
}

func (m *MockChainPoller) broadcastLocked(number uint64) {
	block := &blockHandler.Block{
		Number:    number,
		Hash:      GenerateBlockHash(number),
		Timestamp: uint64(time.Now().Unix()),
	}

	m.logger.Sugar().Debugw("MockChainPoller emitting block", "block", number, "handlers", len(m.blockHandlers))
	for i, handler := range m.blockHandlers {
		if err := handler.HandleBlock(m.ctx, block); err != nil {
			m.logger.Sugar().Warnw("Failed to send block to handler", "block", number, "handler", i, "error", err)
		}
	}
}

// GetCurrentBlock returns the current block number
func (m *MockChainPoller) GetCurrentBlock() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentBlock
}

// SetCurrentBlock sets the current block number (useful for test setup)
func (m *MockChainPoller) SetCurrentBlock(blockNumber uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentBlock = blockNumber
}

// GenerateBlockHash derives a deterministic block hash from a block number
func GenerateBlockHash(blockNumber uint64) common.Hash {
	return common.BigToHash(new(big.Int).SetUint64(blockNumber))
}
