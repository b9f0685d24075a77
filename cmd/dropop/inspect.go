package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dropop-labs/dropop-go/pkg/blockHandler"
	"github.com/dropop-labs/dropop-go/pkg/events"
	"github.com/dropop-labs/dropop-go/pkg/ledger"
	"github.com/dropop-labs/dropop-go/pkg/persistence"
	"github.com/dropop-labs/dropop-go/pkg/persistence/factory"
	"github.com/dropop-labs/dropop-go/pkg/token"
	"github.com/dropop-labs/dropop-go/pkg/token/inMemoryToken"
	"github.com/dropop-labs/dropop-go/pkg/types"
)

type ledgerDeps struct {
	token  token.ITokenTransfer
	blocks blockHandler.IBlockSource
	events events.IEventPublisher
}

// openLedger opens the configured store and builds a ledger over it. The caller closes
// the returned store.
func openLedger(c *cli.Context, l *zap.Logger, custody types.Address, deps ledgerDeps) (*ledger.Ledger, persistence.IKVStore, error) {
	cfg, err := parseLedgerConfig(c)
	if err != nil {
		return nil, nil, err
	}
	store, err := factory.NewStore(&cfg.Persistence, l)
	if err != nil {
		return nil, nil, err
	}
	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("store health check failed: %w", err)
	}

	lg, err := ledger.NewLedger(&ledger.Options{
		Store:   store,
		Token:   deps.token,
		Blocks:  deps.blocks,
		Events:  deps.events,
		Custody: custody,
		Logger:  l,
	})
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	l.Sugar().Infow("Opened ledger store", "type", cfg.Persistence.Type)
	return lg, store, nil
}

func inspectCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	// queries never move tokens or stamp heights
	lg, store, err := openLedger(c, l, types.ZeroAddress, ledgerDeps{
		token:  inMemoryToken.NewInMemoryToken(types.ZeroAddress, l),
		blocks: blockHandler.NewStaticBlockSource(0),
	})
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	count, err := lg.GetAirdropCount(c.Context)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.App.Writer, "airdrops: %s\n", count.Dec()); err != nil {
		return err
	}

	if c.IsSet("creator") {
		creator, err := types.HexToAddress(c.String("creator"))
		if err != nil {
			return err
		}
		ids, err := lg.GetAirdropsByCreator(c.Context, creator)
		if err != nil {
			return err
		}
		out := make([]string, len(ids))
		for i := range ids {
			out[i] = ids[i].Dec()
		}
		if err := writeJSON(c.App.Writer, map[string]interface{}{"creator": creator.Hex(), "airdropIds": out}); err != nil {
			return err
		}
	}

	if !c.IsSet("id") {
		return nil
	}
	id, err := uint256.FromDecimal(c.String("id"))
	if err != nil {
		return fmt.Errorf("invalid airdrop id %q: %w", c.String("id"), err)
	}
	record, err := lg.GetAirdrop(c.Context, id)
	if err != nil {
		return err
	}
	if err := writeRecord(c, record); err != nil {
		return err
	}

	if c.IsSet("claimer") {
		claimer, err := types.HexToAddress(c.String("claimer"))
		if err != nil {
			return err
		}
		claimed, err := lg.HasClaimed(c.Context, id, claimer)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.App.Writer, "%s claimed: %t\n", claimer.Hex(), claimed); err != nil {
			return err
		}
	}
	return nil
}

// writeRecord prints a record in its stored JSON form plus readable mode and status.
func writeRecord(c *cli.Context, record *types.AirdropRecord) error {
	data, err := persistence.MarshalAirdropRecord(record)
	if err != nil {
		return err
	}
	var fields map[string]interface{}
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&fields); err != nil {
		return err
	}
	fields["mode"] = record.Mode.String()
	fields["status"] = record.Status.String()
	if pool, ok := record.Pool(); ok {
		fields["pool"] = pool.Dec()
	}
	return writeJSON(c.App.Writer, fields)
}
