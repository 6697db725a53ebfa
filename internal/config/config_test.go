package config

import (
	"log/slog"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, "local-dev", cfg.SpaceID)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, 10.0, cfg.RateLimitRPS)
	require.Equal(t, 20, cfg.RateLimitBurst)
	require.Equal(t, 1000, cfg.MaxQueryEntities)
	require.Equal(t, "@every 1m", cfg.SweepSchedule)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv(KeyStoreBackend, "DynamoDB")
	t.Setenv(KeyEntityTable, "entities")
	t.Setenv(KeySpaceID, "prod")
	t.Setenv(KeyRateLimitRPS, "2.5")
	t.Setenv(KeyLogLevel, "debug")

	cfg, err := Load(New())
	require.NoError(t, err)
	require.Equal(t, BackendDynamoDB, cfg.StoreBackend)
	require.Equal(t, "entities", cfg.EntityTable)
	require.Equal(t, "prod", cfg.SpaceID)
	require.Equal(t, 2.5, cfg.RateLimitRPS)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		set  map[string]any
	}{
		{name: "unknown backend", set: map[string]any{KeyStoreBackend: "postgres"}},
		{name: "dynamodb without table", set: map[string]any{KeyStoreBackend: BackendDynamoDB}},
		{name: "sqlite without path", set: map[string]any{KeyStoreBackend: BackendSQLite, KeySQLitePath: " "}},
		{name: "bad log level", set: map[string]any{KeyLogLevel: "loud"}},
		{name: "negative burst", set: map[string]any{KeyRateLimitBurst: -1}},
		{name: "zero query cap", set: map[string]any{KeyMaxQueryEntities: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			SetDefaults(v)
			for k, val := range tc.set {
				v.Set(k, val)
			}
			_, err := Load(v)
			require.Error(t, err)
		})
	}

	_, err := Load(nil)
	require.Error(t, err)
}
