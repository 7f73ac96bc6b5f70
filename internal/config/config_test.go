package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "issuer", cfg.Ledger.RedemptionPolicy)
	assert.Equal(t, 24*time.Hour, cfg.Ledger.MinDistributeInterval)
	assert.Equal(t, []string{"main", "side"}, cfg.Bridge.Domains)
	assert.True(t, cfg.HostsDomain("side"))
	assert.True(t, cfg.Bridge.SendEnabled)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.False(t, cfg.Relay.Dedup)
	assert.Len(t, cfg.Security.CORSAllowedOrigins, 2)

	ratio, err := cfg.Ledger.MaxRatio()
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.RequireFromString("0.1")))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STBT_ENV", "prod")
	t.Setenv("STBT_DOMAINS", "side")
	t.Setenv("STBT_REDEMPTION_POLICY", "holder")
	t.Setenv("STBT_MIN_DISTRIBUTE_INTERVAL", "1h")
	t.Setenv("STBT_RELAY_DEDUP", "true")
	t.Setenv("STBT_TIMELOCK_ENABLED", "true")
	t.Setenv("STBT_TIMELOCK_PROPOSERS", "0x0000000000000000000000000000000000000b01, 0x0000000000000000000000000000000000000b02")
	t.Setenv("STBT_TIMELOCK_DELAYS", "issue=30m")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, []string{"side"}, cfg.Bridge.Domains)
	assert.False(t, cfg.HostsDomain("main"))
	assert.Equal(t, "holder", cfg.Ledger.RedemptionPolicy)
	assert.Equal(t, time.Hour, cfg.Ledger.MinDistributeInterval)
	assert.True(t, cfg.Relay.Dedup)
	assert.Len(t, Addresses(cfg.Timelock.Proposers), 2)

	delays, err := cfg.Timelock.MethodDelays()
	require.NoError(t, err)
	assert.Equal(t, map[string]time.Duration{"issue": 30 * time.Minute}, delays)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad owner", "STBT_OWNER", "nope"},
		{"bad policy", "STBT_REDEMPTION_POLICY", "anyone"},
		{"bad ratio", "STBT_MAX_DISTRIBUTE_RATIO", "ten"},
		{"negative ratio", "STBT_MAX_DISTRIBUTE_RATIO", "-0.1"},
		{"bad domain", "STBT_DOMAINS", "main,moon"},
		{"bad backend", "STBT_KV_BACKEND", "etcd"},
		{"bad transport", "STBT_RELAY_TRANSPORT", "carrier-pigeon"},
		{"bad fallback", "STBT_BRIDGE_FALLBACK", "0x12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := load(viper.New())
			assert.Error(t, err)
		})
	}
}

func TestValidateTimelockDelays(t *testing.T) {
	t.Setenv("STBT_TIMELOCK_ENABLED", "true")
	t.Setenv("STBT_TIMELOCK_DELAYS", "issue")
	_, err := load(viper.New())
	assert.Error(t, err)
}
