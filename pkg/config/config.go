package config

import (
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for ledger configuration
const (
	EnvPersistenceType = "DROPOP_PERSISTENCE_TYPE"
	EnvDataPath        = "DROPOP_DATA_PATH"
	EnvRedisAddress    = "DROPOP_REDIS_ADDRESS"
	EnvRedisPassword   = "DROPOP_REDIS_PASSWORD"
	EnvRedisDB         = "DROPOP_REDIS_DB"
	EnvRedisKeyPrefix  = "DROPOP_REDIS_KEY_PREFIX"
	EnvVerbose         = "DROPOP_VERBOSE"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceTypeMemory PersistenceType = "memory"
	PersistenceTypeBadger PersistenceType = "badger"
	PersistenceTypeRedis  PersistenceType = "redis"
)

// ParsePersistenceType maps a case-insensitive name to a PersistenceType.
func ParsePersistenceType(s string) (PersistenceType, error) {
	switch PersistenceType(strings.ToLower(strings.TrimSpace(s))) {
	case PersistenceTypeMemory, "":
		return PersistenceTypeMemory, nil
	case PersistenceTypeBadger:
		return PersistenceTypeBadger, nil
	case PersistenceTypeRedis:
		return PersistenceTypeRedis, nil
	default:
		return "", fmt.Errorf("unsupported persistence type: %q. Supported: %s", s, GetSupportedPersistenceTypesString())
	}
}

// GetSupportedPersistenceTypesString returns supported persistence types for CLI help
func GetSupportedPersistenceTypesString() string {
	return fmt.Sprintf("%s, %s, %s", PersistenceTypeMemory, PersistenceTypeBadger, PersistenceTypeRedis)
}

// PersistenceConfig selects and configures the key-value store backing the ledger
type PersistenceConfig struct {
	Type PersistenceType `json:"type"`

	// Badger
	DataPath string `json:"data_path"`

	// Redis
	RedisAddress   string `json:"redis_address"`
	RedisPassword  string `json:"-"`
	RedisDB        int    `json:"redis_db"`
	RedisKeyPrefix string `json:"redis_key_prefix"`
}

// LedgerConfig represents the complete configuration for an airdrop ledger process
type LedgerConfig struct {
	Persistence PersistenceConfig `json:"persistence"`

	// Operational settings
	Debug   bool `json:"debug"`
	Verbose bool `json:"verbose"`
}

// Validate validates the ledger configuration, reporting every problem at once
func (c *LedgerConfig) Validate() error {
	var allErrors field.ErrorList
	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (p *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch p.Type {
	case PersistenceTypeMemory:
	case PersistenceTypeBadger:
		if p.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if p.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(path.Child("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if p.RedisDB < 0 || p.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redisDB"), p.RedisDB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), p.Type,
			[]string{string(PersistenceTypeMemory), string(PersistenceTypeBadger), string(PersistenceTypeRedis)}))
	}
	return allErrors
}
