package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dropop-labs/dropop-go/pkg/config"
	"github.com/dropop-labs/dropop-go/pkg/logger"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dropop",
		Usage: "Airdrop ledger and merkle tooling",
		Description: `Tooling around the dropop airdrop ledger.

This tool can:
- Build a merkle tree and per-recipient proofs from a recipient list
- Verify a claim proof against a committed root
- Inspect ledger state held in a badger or redis store
- Run a complete claim airdrop against a local ledger and print its event logs`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "tree",
				Usage: "Build the merkle root and every recipient's proof from a recipient list",
				Flags: []cli.Flag{
					recipientsFileFlag(),
					decimalsFlag(),
				},
				Action: treeCommand,
			},
			{
				Name:  "proof",
				Usage: "Print the claim data of one recipient",
				Flags: []cli.Flag{
					recipientsFileFlag(),
					decimalsFlag(),
					&cli.StringFlag{
						Name:     "recipient",
						Usage:    "Recipient address (hex)",
						Required: true,
					},
				},
				Action: proofCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a claim proof against a merkle root",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "root",
						Usage:    "Merkle root (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "recipient",
						Usage:    "Recipient address (hex)",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "amount",
						Usage:    "Claim amount in smallest units",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "proof",
						Usage: "Proof element (hex), repeated in order",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:  "inspect",
				Usage: "Inspect ledger state in a persistent store",
				Flags: append(persistenceFlags(),
					&cli.StringFlag{
						Name:  "id",
						Usage: "Airdrop id to print",
					},
					&cli.StringFlag{
						Name:  "creator",
						Usage: "List the airdrops created by this address (hex)",
					},
					&cli.StringFlag{
						Name:  "claimer",
						Usage: "With --id, report whether this address (hex) has claimed",
					},
				),
				Action: inspectCommand,
			},
			{
				Name:  "simulate",
				Usage: "Create a claim airdrop from a recipient list, claim it for every recipient and print the event logs",
				Flags: append(persistenceFlags(),
					recipientsFileFlag(),
					decimalsFlag(),
					&cli.BoolFlag{
						Name:  "withdraw",
						Usage: "Leave the last recipient unclaimed and withdraw the remainder",
					},
				),
				Action: simulateCommand,
			},
		},
	}
}

func recipientsFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "file",
		Aliases:  []string{"f"},
		Usage:    "Recipient list: one \"address,amount\" per line",
		Required: true,
	}
}

func decimalsFlag() cli.Flag {
	return &cli.IntFlag{
		Name:  "decimals",
		Usage: "Token decimals used to convert list amounts to smallest units",
		Value: 18,
	}
}

func persistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "persistence-type",
			Usage:   fmt.Sprintf("Ledger store: %s", config.GetSupportedPersistenceTypesString()),
			Value:   string(config.PersistenceTypeBadger),
			EnvVars: []string{config.EnvPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			Value:   "./data/dropop",
			EnvVars: []string{config.EnvDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis address (host:port)",
			Value:   "localhost:6379",
			EnvVars: []string{config.EnvRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number (0-15)",
			EnvVars: []string{config.EnvRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every redis key",
			EnvVars: []string{config.EnvRedisKeyPrefix},
		},
	}
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func parseLedgerConfig(c *cli.Context) (*config.LedgerConfig, error) {
	persistenceType, err := config.ParsePersistenceType(c.String("persistence-type"))
	if err != nil {
		return nil, err
	}
	cfg := &config.LedgerConfig{
		Persistence: config.PersistenceConfig{
			Type:           persistenceType,
			DataPath:       c.String("data-path"),
			RedisAddress:   c.String("redis-address"),
			RedisPassword:  c.String("redis-password"),
			RedisDB:        c.Int("redis-db"),
			RedisKeyPrefix: c.String("redis-key-prefix"),
		},
		Debug:   c.Bool("verbose"),
		Verbose: c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
