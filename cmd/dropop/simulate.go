package main

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/dropop-labs/dropop-go/pkg/contractAbi"
	"github.com/dropop-labs/dropop-go/pkg/events"
	"github.com/dropop-labs/dropop-go/pkg/token/inMemoryToken"
	"github.com/dropop-labs/dropop-go/pkg/types"
)

var (
	simulatedCreator = types.Address(crypto.Keccak256Hash([]byte("dropop/simulate/creator")))
	simulatedCustody = types.Address(crypto.Keccak256Hash([]byte("dropop/simulate/custody")))
	simulatedToken   = types.Address(crypto.Keccak256Hash([]byte("dropop/simulate/token")))
)

type logOutput struct {
	Event  string   `json:"event"`
	Topics []string `json:"topics"`
	Data   string   `json:"data"`
}

// logWriter prints every committed ledger event in indexer log form.
type logWriter struct {
	mu     sync.Mutex
	c      *cli.Context
	logger *zap.Logger
}

func (w *logWriter) handle(evt types.Event) {
	log, err := contractAbi.EncodeEvent(evt)
	if err != nil {
		w.logger.Sugar().Errorw("Failed to encode event", "type", evt.Type(), "error", err)
		return
	}
	out := logOutput{Event: string(evt.Type()), Data: hexutil.Encode(log.Data)}
	for _, t := range log.Topics {
		out.Topics = append(out.Topics, t.Hex())
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := writeJSON(w.c.App.Writer, out); err != nil {
		w.logger.Sugar().Errorw("Failed to write event log", "error", err)
	}
}

type simulation struct {
	ctx        context.Context
	abi        *abi.ABI
	dispatcher *contractAbi.Dispatcher
	blocks     *blockHandler.BlockHandler
	processed  chan uint64
	height     uint64
}

// nextBlock announces a new block and waits until the ledger's block source has seen it.
func (s *simulation) nextBlock() error {
	s.height++
	block := &blockHandler.Block{
		Number:    s.height,
		Hash:      crypto.Keccak256Hash(new(big.Int).SetUint64(s.height).Bytes()),
		Timestamp: uint64(time.Now().Unix()),
	}
	if err := s.blocks.HandleBlock(s.ctx, block); err != nil {
		return err
	}
	select {
	case <-s.processed:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *simulation) call(caller types.Address, method string, args ...interface{}) ([]interface{}, error) {
	if err := s.nextBlock(); err != nil {
		return nil, err
	}
	calldata, err := s.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	out, err := s.dispatcher.Call(s.ctx, caller, calldata)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", method, err)
	}
	return s.abi.Unpack(method, out)
}

func simulateCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	entitlements, tree, err := buildTree(c, l)
	if err != nil {
		return err
	}
	total := new(uint256.Int)
	for _, e := range entitlements {
		if _, overflow := total.AddOverflow(total, e.Amount); overflow {
			return fmt.Errorf("total amount exceeds 256 bits")
		}
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	blocks := blockHandler.NewBlockHandler(l)
	processed := make(chan uint64, 1)
	go blocks.ListenToChannel(ctx, func(b *blockHandler.Block) {
		select {
		case processed <- b.Number:
		case <-ctx.Done():
		}
	})

	bus := events.NewEventBus(nil, l)
	defer bus.Stop()
	writer := &logWriter{c: c, logger: l}
	for _, t := range []types.EventType{types.EventTypeAirdropCreated, types.EventTypeClaimed, types.EventTypeWithdrawn} {
		bus.SubscribeFunc(t, writer.handle)
	}

	tok := inMemoryToken.NewInMemoryToken(simulatedCustody, l)
	if err := tok.Mint(simulatedToken, simulatedCreator, total); err != nil {
		return err
	}
	tok.Approve(simulatedToken, simulatedCreator, simulatedCustody, total)

	lg, store, err := openLedger(c, l, simulatedCustody, ledgerDeps{token: tok, blocks: blocks, events: bus})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	parsed, err := contractAbi.GetAbi()
	if err != nil {
		return err
	}
	dispatcher, err := contractAbi.NewDispatcher(lg, l)
	if err != nil {
		return err
	}
	sim := &simulation{ctx: ctx, abi: parsed, dispatcher: dispatcher, blocks: blocks, processed: processed}

	out, err := sim.call(simulatedCreator, contractAbi.MethodCreateAirdrop,
		[32]byte(simulatedToken), tree.Root, total.ToBig(), big.NewInt(int64(len(entitlements))))
	if err != nil {
		return err
	}
	id, ok := out[0].(*big.Int)
	if !ok {
		return fmt.Errorf("unexpected createAirdrop result %T", out[0])
	}
	l.Sugar().Infow("Simulated airdrop created", "airdropId", id, "root", hexutil.Encode(tree.Root[:]), "totalAmount", total.Dec())

	claimers := entitlements
	if c.Bool("withdraw") && len(claimers) > 0 {
		claimers = claimers[:len(claimers)-1]
	}
	for _, e := range claimers {
		cd, err := tree.ClaimData(entitlements, e.Recipient)
		if err != nil {
			return err
		}
		if _, err := sim.call(e.Recipient, contractAbi.MethodClaim, id, cd.Amount.ToBig(), cd.Proof); err != nil {
			return err
		}
	}

	if c.Bool("withdraw") {
		out, err := sim.call(simulatedCreator, contractAbi.MethodWithdraw, id)
		if err != nil {
			return err
		}
		l.Sugar().Infow("Simulated airdrop withdrawn", "airdropId", id, "amount", out[0])
	}

	record, err := lg.GetAirdrop(ctx, uint256.MustFromBig(id))
	if err != nil {
		return err
	}
	// flush event logs before the summary
	bus.Stop()
	return writeRecord(c, record)
}
