package blockHandler

import (
	"context"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// IBlockSource reports the current block height. Airdrop records are stamped with it.
type IBlockSource interface {
	CurrentBlock() uint64
}

// Block is a finalized block announced by whatever follows the chain.
type Block struct {
	Number    uint64
	Hash      common.Hash
	Timestamp uint64
}

type IBlockHandler interface {
	IBlockSource
	HandleBlock(ctx context.Context, block *Block) error
	ListenToChannel(ctx context.Context, handleFunc func(*Block))
}

// BlockHandler buffers announced blocks on a channel and tracks the highest height seen.
type BlockHandler struct {
	BlockChannel chan *Block
	logger       *zap.Logger
	current      atomic.Uint64
}

func NewBlockHandler(
	logger *zap.Logger,
) *BlockHandler {
	return &BlockHandler{
		// 100 block capacity should be more than enough to handle finalized blocks
		BlockChannel: make(chan *Block, 100),
		logger:       logger,
	}
}

// CurrentBlock returns the highest block height received by a listener.
func (h *BlockHandler) CurrentBlock() uint64 {
	return h.current.Load()
}

// ListenToChannel drains the block channel until ctx is done, advancing the current
// height and then calling handleFunc (which may be nil) for each block.
func (h *BlockHandler) ListenToChannel(ctx context.Context, handleFunc func(*Block)) {
	for {
		select {
		case block := <-h.BlockChannel:
			h.logger.Sugar().Debugw("BlockHandler received block from channel", "block", block.Number)
			h.advance(block.Number)
			if handleFunc != nil {
				handleFunc(block)
			}
		case <-ctx.Done():
			h.logger.Sugar().Info("BlockHandler channel listener exiting due to context done")
			return
		}
	}
}

// HandleBlock enqueues a block without blocking. Blocks are dropped when the channel is full.
func (h *BlockHandler) HandleBlock(ctx context.Context, block *Block) error {
	select {
	case h.BlockChannel <- block:
		h.logger.Sugar().Debugw("Block sent to channel", "block", block.Number)
	case <-ctx.Done():
		h.logger.Sugar().Warnw("Context done before sending block to channel", "block", block.Number)
	default:
		h.logger.Sugar().Warnw("Block channel is full, dropping block", "block", block.Number)
	}
	return nil
}

// heights only move forward; a late or replayed block is ignored
func (h *BlockHandler) advance(number uint64) {
	for {
		cur := h.current.Load()
		if number <= cur {
			return
		}
		if h.current.CompareAndSwap(cur, number) {
			return
		}
	}
}

// StaticBlockSource is a fixed block height, settable between calls.
type StaticBlockSource struct {
	height atomic.Uint64
}

func NewStaticBlockSource(height uint64) *StaticBlockSource {
	s := &StaticBlockSource{}
	s.height.Store(height)
	return s
}

func (s *StaticBlockSource) CurrentBlock() uint64 {
	return s.height.Load()
}

func (s *StaticBlockSource) Set(height uint64) {
	s.height.Store(height)
}
