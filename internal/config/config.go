// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendSQLite   = "sqlite"
)

// Config keys, read from environment variables of the same name.
const (
	KeyStoreBackend     = "STORE_BACKEND"
	KeyEntityTable      = "ENTITY_TABLE"
	KeySQLitePath       = "SQLITE_PATH"
	KeySpaceID          = "SPACE_ID"
	KeyParamPrefix      = "PARAM_PREFIX"
	KeySigningKey       = "SIGNING_KEY"
	KeyHTTPAddr         = "HTTP_ADDR"
	KeyRateLimitRPS     = "RATE_LIMIT_RPS"
	KeyRateLimitBurst   = "RATE_LIMIT_BURST"
	KeyMaxQueryEntities = "MAX_QUERY_ENTITIES"
	KeySweepSchedule    = "SWEEP_SCHEDULE"
	KeyLogLevel         = "LOG_LEVEL"
)

type Config struct {
	StoreBackend     string
	EntityTable      string
	SQLitePath       string
	SpaceID          string
	ParamPrefix      string
	SigningKey       string
	HTTPAddr         string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxQueryEntities int
	SweepSchedule    string
	LogLevel         slog.Level
}

// New returns a viper instance bound to the environment with defaults set.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyStoreBackend, BackendMemory)
	v.SetDefault(KeySQLitePath, "mentorgraph.db")
	v.SetDefault(KeySpaceID, "local-dev")
	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyRateLimitRPS, 10)
	v.SetDefault(KeyRateLimitBurst, 20)
	v.SetDefault(KeyMaxQueryEntities, 1000)
	v.SetDefault(KeySweepSchedule, "@every 1m")
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads and validates a Config from v.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		return Config{}, errors.New("config: viper must not be nil")
	}
	cfg := Config{
		StoreBackend:     strings.ToLower(strings.TrimSpace(v.GetString(KeyStoreBackend))),
		EntityTable:      strings.TrimSpace(v.GetString(KeyEntityTable)),
		SQLitePath:       strings.TrimSpace(v.GetString(KeySQLitePath)),
		SpaceID:          strings.TrimSpace(v.GetString(KeySpaceID)),
		ParamPrefix:      strings.TrimSpace(v.GetString(KeyParamPrefix)),
		SigningKey:       strings.TrimSpace(v.GetString(KeySigningKey)),
		HTTPAddr:         strings.TrimSpace(v.GetString(KeyHTTPAddr)),
		RateLimitRPS:     v.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst:   v.GetInt(KeyRateLimitBurst),
		MaxQueryEntities: v.GetInt(KeyMaxQueryEntities),
		SweepSchedule:    strings.TrimSpace(v.GetString(KeySweepSchedule)),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", KeyLogLevel, err)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendDynamoDB:
		if cfg.EntityTable == "" {
			return Config{}, fmt.Errorf("config: %s is required for the %s backend", KeyEntityTable, BackendDynamoDB)
		}
	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return Config{}, fmt.Errorf("config: %s is required for the %s backend", KeySQLitePath, BackendSQLite)
		}
	default:
		return Config{}, fmt.Errorf("config: unknown %s %q", KeyStoreBackend, cfg.StoreBackend)
	}

	if cfg.RateLimitRPS < 0 || cfg.RateLimitBurst < 0 {
		return Config{}, fmt.Errorf("config: rate limit must not be negative")
	}
	if cfg.MaxQueryEntities <= 0 {
		return Config{}, fmt.Errorf("config: %s must be positive", KeyMaxQueryEntities)
	}
	return cfg, nil
}
