package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Listen         string
	RPC            map[uint64]string
	Contracts      map[uint64]string
	SigningKey     string
	HomeChainID    uint64
	PgDSN          string
	ArchivePath    string
	PoolCacheTTL   time.Duration
	ExpireInterval time.Duration
	RateLimit      int
	RateWindow     time.Duration
	RateMaxKeys    int
	RateSweep      time.Duration
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
// A missing signing key is not an error: settlement then runs in mock mode.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SETTLEMENTD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen", ":8080")
	v.SetDefault("archive-path", "./data/settlements.jsonl")
	v.SetDefault("pool-cache-ttl", 30*time.Second)
	v.SetDefault("expire-interval", 15*time.Second)
	v.SetDefault("rate-limit", 60)
	v.SetDefault("rate-window", time.Minute)
	v.SetDefault("rate-max-keys", 10_000)
	v.SetDefault("rate-sweep", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	rpc, err := getChainMap(v, "rpc")
	if err != nil {
		return Config{}, err
	}
	contracts, err := getChainMap(v, "contract")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen:         v.GetString("listen"),
		RPC:            rpc,
		Contracts:      contracts,
		SigningKey:     strings.TrimPrefix(v.GetString("signing-key"), "0x"),
		HomeChainID:    v.GetUint64("home-chain"),
		PgDSN:          v.GetString("pg-dsn"),
		ArchivePath:    v.GetString("archive-path"),
		PoolCacheTTL:   v.GetDuration("pool-cache-ttl"),
		ExpireInterval: v.GetDuration("expire-interval"),
		RateLimit:      v.GetInt("rate-limit"),
		RateWindow:     v.GetDuration("rate-window"),
		RateMaxKeys:    v.GetInt("rate-max-keys"),
		RateSweep:      v.GetDuration("rate-sweep"),
		LogLevel:       v.GetString("log-level"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.RPC) == 0 {
		return fmt.Errorf("at least one rpc endpoint is required")
	}
	for chainID := range c.RPC {
		if _, ok := c.Contracts[chainID]; !ok {
			return fmt.Errorf("chain %d has an rpc endpoint but no contract address", chainID)
		}
	}
	for chainID := range c.Contracts {
		if _, ok := c.RPC[chainID]; !ok {
			return fmt.Errorf("chain %d has a contract address but no rpc endpoint", chainID)
		}
	}
	if c.HomeChainID != 0 {
		if _, ok := c.RPC[c.HomeChainID]; !ok {
			return fmt.Errorf("home chain %d is not in the routing table", c.HomeChainID)
		}
	}
	return nil
}

// Home returns the chain used for channel settlement: the configured
// home chain, or the only routed chain when exactly one is configured.
func (c Config) Home() (uint64, error) {
	if c.HomeChainID != 0 {
		return c.HomeChainID, nil
	}
	if len(c.RPC) == 1 {
		for chainID := range c.RPC {
			return chainID, nil
		}
	}
	return 0, fmt.Errorf("home-chain is required with multiple routed chains")
}

// getChainMap reads a chainID->value mapping given either as a config
// file map or as comma-separated id=value flag entries.
func getChainMap(v *viper.Viper, key string) (map[uint64]string, error) {
	if !v.IsSet(key) {
		return map[uint64]string{}, nil
	}

	raw := map[string]string{}
	switch typed := v.Get(key).(type) {
	case map[string]interface{}:
		for k, item := range typed {
			raw[k] = fmt.Sprintf("%v", item)
		}
	case map[string]string:
		raw = typed
	case []string:
		for _, item := range typed {
			k, value, ok := strings.Cut(item, "=")
			if !ok {
				return nil, fmt.Errorf("%s entry %q must be id=value", key, item)
			}
			raw[k] = value
		}
	case string:
		for _, item := range strings.Split(typed, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			k, value, ok := strings.Cut(item, "=")
			if !ok {
				return nil, fmt.Errorf("%s entry %q must be id=value", key, item)
			}
			raw[k] = value
		}
	default:
		return nil, fmt.Errorf("%s has unsupported type %T", key, typed)
	}

	out := make(map[uint64]string, len(raw))
	for k, value := range raw {
		chainID, err := strconv.ParseUint(strings.TrimSpace(k), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s key %q is not a chain id", key, k)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("%s for chain %d is empty", key, chainID)
		}
		out[chainID] = value
	}
	return out, nil
}
