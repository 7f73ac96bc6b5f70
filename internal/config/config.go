package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Env      string `mapstructure:"STBT_ENV"`
	LogLevel string `mapstructure:"STBT_LOG_LEVEL"`
	HTTPAddr string `mapstructure:"STBT_HTTP_ADDR"`

	Ledger   LedgerConfig   `mapstructure:",squash"`
	Bridge   BridgeConfig   `mapstructure:",squash"`
	Timelock TimelockConfig `mapstructure:",squash"`
	Database DBConfig       `mapstructure:",squash"`
	Cache    CacheConfig    `mapstructure:",squash"`
	Relay    RelayConfig    `mapstructure:",squash"`
	Security SecurityConfig `mapstructure:",squash"`
}

type LedgerConfig struct {
	Name                  string        `mapstructure:"STBT_LEDGER_NAME"`
	Symbol                string        `mapstructure:"STBT_LEDGER_SYMBOL"`
	Owner                 string        `mapstructure:"STBT_OWNER"`
	Issuer                string        `mapstructure:"STBT_ISSUER"`
	Controller            string        `mapstructure:"STBT_CONTROLLER"`
	Moderator             string        `mapstructure:"STBT_MODERATOR"`
	RedemptionPolicy      string        `mapstructure:"STBT_REDEMPTION_POLICY"`
	MinDistributeInterval time.Duration `mapstructure:"STBT_MIN_DISTRIBUTE_INTERVAL"`
	MaxDistributeRatio    string        `mapstructure:"STBT_MAX_DISTRIBUTE_RATIO"`
	SnapshotInterval      time.Duration `mapstructure:"STBT_SNAPSHOT_INTERVAL"`
}

type BridgeConfig struct {
	// Domains lists which ledger domains this process hosts: main, side or both.
	Domains     []string `mapstructure:"STBT_DOMAINS"`
	Messager    string   `mapstructure:"STBT_BRIDGE_MESSAGER"`
	Fallback    string   `mapstructure:"STBT_BRIDGE_FALLBACK"`
	SendEnabled bool     `mapstructure:"STBT_BRIDGE_SEND_ENABLED"`
}

type TimelockConfig struct {
	Enabled   bool     `mapstructure:"STBT_TIMELOCK_ENABLED"`
	Admin     string   `mapstructure:"STBT_TIMELOCK_ADMIN"`
	Proposers []string `mapstructure:"STBT_TIMELOCK_PROPOSERS"`
	Executors []string `mapstructure:"STBT_TIMELOCK_EXECUTORS"`
	// Delays maps ledger method names to minimum delays, e.g.
	// "issue=4h,setPermission=2h".
	Delays string `mapstructure:"STBT_TIMELOCK_DELAYS"`
}

type DBConfig struct {
	// PostgresDSN enables the Postgres event journal when set.
	PostgresDSN string `mapstructure:"STBT_POSTGRES_DSN"`
}

type CacheConfig struct {
	Backend          string `mapstructure:"STBT_KV_BACKEND"`
	RedisURL         string `mapstructure:"STBT_REDIS_URL"`
	FallbackToMemory bool   `mapstructure:"STBT_KV_FALLBACK_TO_MEMORY"`
}

type RelayConfig struct {
	Transport string        `mapstructure:"STBT_RELAY_TRANSPORT"`
	Consumer  string        `mapstructure:"STBT_RELAY_CONSUMER"`
	Dedup     bool          `mapstructure:"STBT_RELAY_DEDUP"`
	DedupTTL  time.Duration `mapstructure:"STBT_RELAY_DEDUP_TTL"`
}

type SecurityConfig struct {
	RateLimitRPM       int      `mapstructure:"STBT_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string `mapstructure:"STBT_CORS_ALLOWED_ORIGINS"`
}

func loadDotEnvFiles() {
	candidates := []string{".env", filepath.Join("..", ".env")}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // variables already set win
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("STBT_ENV", "dev")
	v.SetDefault("STBT_LOG_LEVEL", "")
	v.SetDefault("STBT_HTTP_ADDR", ":8080")
	v.SetDefault("STBT_LEDGER_NAME", "Short-term Treasury Bond Token")
	v.SetDefault("STBT_LEDGER_SYMBOL", "STBT")
	v.SetDefault("STBT_OWNER", "0x0000000000000000000000000000000000000a01")
	v.SetDefault("STBT_ISSUER", "0x0000000000000000000000000000000000000a02")
	v.SetDefault("STBT_CONTROLLER", "0x0000000000000000000000000000000000000a03")
	v.SetDefault("STBT_MODERATOR", "0x0000000000000000000000000000000000000a04")
	v.SetDefault("STBT_REDEMPTION_POLICY", "issuer")
	v.SetDefault("STBT_MIN_DISTRIBUTE_INTERVAL", "24h")
	v.SetDefault("STBT_MAX_DISTRIBUTE_RATIO", "0.1")
	v.SetDefault("STBT_SNAPSHOT_INTERVAL", "30s")
	v.SetDefault("STBT_DOMAINS", "main,side")
	v.SetDefault("STBT_BRIDGE_MESSAGER", "0x0000000000000000000000000000000000000a07")
	v.SetDefault("STBT_BRIDGE_FALLBACK", "")
	v.SetDefault("STBT_BRIDGE_SEND_ENABLED", true)
	v.SetDefault("STBT_TIMELOCK_ENABLED", false)
	v.SetDefault("STBT_TIMELOCK_ADMIN", "0x0000000000000000000000000000000000000a01")
	v.SetDefault("STBT_TIMELOCK_PROPOSERS", "")
	v.SetDefault("STBT_TIMELOCK_EXECUTORS", "")
	v.SetDefault("STBT_TIMELOCK_DELAYS", "issue=4h,redeem=4h,redeemFrom=4h,setPermission=2h,distributeInterests=1h")
	v.SetDefault("STBT_POSTGRES_DSN", "")
	v.SetDefault("STBT_KV_BACKEND", "memory")
	v.SetDefault("STBT_REDIS_URL", "redis://127.0.0.1:6379/0")
	v.SetDefault("STBT_KV_FALLBACK_TO_MEMORY", true)
	v.SetDefault("STBT_RELAY_TRANSPORT", "memory")
	v.SetDefault("STBT_RELAY_CONSUMER", "stbt-1")
	v.SetDefault("STBT_RELAY_DEDUP", false)
	v.SetDefault("STBT_RELAY_DEDUP_TTL", "168h")
	v.SetDefault("STBT_RATE_LIMIT_RPM", 120)
	v.SetDefault("STBT_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
}

var listKeys = []string{
	"STBT_DOMAINS",
	"STBT_TIMELOCK_PROPOSERS",
	"STBT_TIMELOCK_EXECUTORS",
	"STBT_CORS_ALLOWED_ORIGINS",
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func Load() (*Config, error) {
	loadDotEnvFiles()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// comma-separated values arrive as one string
	for _, key := range listKeys {
		v.Set(key, splitList(v.GetString(key)))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	for key, addr := range map[string]string{
		"STBT_OWNER":           c.Ledger.Owner,
		"STBT_ISSUER":          c.Ledger.Issuer,
		"STBT_CONTROLLER":      c.Ledger.Controller,
		"STBT_MODERATOR":       c.Ledger.Moderator,
		"STBT_BRIDGE_MESSAGER": c.Bridge.Messager,
	} {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not an address: %q", key, addr)
		}
	}
	if c.Bridge.Fallback != "" && !common.IsHexAddress(c.Bridge.Fallback) {
		return fmt.Errorf("STBT_BRIDGE_FALLBACK is not an address: %q", c.Bridge.Fallback)
	}

	switch c.Ledger.RedemptionPolicy {
	case "issuer", "holder":
	default:
		return fmt.Errorf("invalid STBT_REDEMPTION_POLICY %q (must be issuer or holder)", c.Ledger.RedemptionPolicy)
	}

	ratio, err := c.Ledger.MaxRatio()
	if err != nil {
		return err
	}
	if ratio.IsNegative() {
		return fmt.Errorf("STBT_MAX_DISTRIBUTE_RATIO must not be negative")
	}

	if len(c.Bridge.Domains) == 0 {
		return fmt.Errorf("STBT_DOMAINS must name at least one domain")
	}
	for _, d := range c.Bridge.Domains {
		if d != "main" && d != "side" {
			return fmt.Errorf("invalid domain %q in STBT_DOMAINS (must be main or side)", d)
		}
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid STBT_KV_BACKEND %q", c.Cache.Backend)
	}
	switch c.Relay.Transport {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid STBT_RELAY_TRANSPORT %q", c.Relay.Transport)
	}
	if c.Relay.Transport == "redis" && c.Cache.RedisURL == "" {
		return fmt.Errorf("STBT_REDIS_URL is required for the redis relay transport")
	}
	if c.Relay.Transport == "redis" && c.Relay.Consumer == "" {
		return fmt.Errorf("STBT_RELAY_CONSUMER is required for the redis relay transport")
	}

	if c.Timelock.Enabled {
		if !common.IsHexAddress(c.Timelock.Admin) {
			return fmt.Errorf("STBT_TIMELOCK_ADMIN is not an address: %q", c.Timelock.Admin)
		}
		for _, list := range [][]string{c.Timelock.Proposers, c.Timelock.Executors} {
			for _, a := range list {
				if !common.IsHexAddress(a) {
					return fmt.Errorf("timelock role member is not an address: %q", a)
				}
			}
		}
		if _, err := c.Timelock.MethodDelays(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

func (c *Config) HostsDomain(name string) bool {
	for _, d := range c.Bridge.Domains {
		if d == name {
			return true
		}
	}
	return false
}

// MaxRatio parses the distribution bound as a plain fraction, e.g. 0.1.
func (l LedgerConfig) MaxRatio() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(l.MaxDistributeRatio)
	if err != nil {
		return decimal.Zero, fmt.Errorf("STBT_MAX_DISTRIBUTE_RATIO %q: %w", l.MaxDistributeRatio, err)
	}
	return d, nil
}

// MethodDelays parses Delays into method name -> delay.
func (t TimelockConfig) MethodDelays() (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, pair := range splitList(t.Delays) {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("STBT_TIMELOCK_DELAYS entry %q is not method=duration", pair)
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("STBT_TIMELOCK_DELAYS entry %q: %w", pair, err)
		}
		out[strings.TrimSpace(name)] = d
	}
	return out, nil
}

func Address(s string) common.Address {
	return common.HexToAddress(s)
}

func Addresses(list []string) []common.Address {
	out := make([]common.Address, 0, len(list))
	for _, s := range list {
		out = append(out, common.HexToAddress(s))
	}
	return out
}
