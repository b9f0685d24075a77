// Package factory opens the key-value store selected by a PersistenceConfig.
package factory

import (
	"fmt"

	"github.com/dropop-labs/dropop-go/pkg/config"
	"github.com/dropop-labs/dropop-go/pkg/persistence"
	"github.com/dropop-labs/dropop-go/pkg/persistence/badger"
	"github.com/dropop-labs/dropop-go/pkg/persistence/memory"
	"github.com/dropop-labs/dropop-go/pkg/persistence/redis"
	"go.uber.org/zap"
)

// NewStore opens the configured backend.
func NewStore(cfg *config.PersistenceConfig, l *zap.Logger) (persistence.IKVStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("persistence config cannot be nil")
	}

	switch cfg.Type {
	case config.PersistenceTypeMemory, "":
		l.Sugar().Warnw("Using in-memory persistence - all ledger state will be lost on exit",
			"hint", fmt.Sprintf("set %s=%s for durable storage", config.EnvPersistenceType, config.PersistenceTypeBadger))
		return memory.NewMemoryPersistence(), nil
	case config.PersistenceTypeBadger:
		return badger.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceTypeRedis:
		return redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.RedisAddress,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type: %s", cfg.Type)
	}
}
