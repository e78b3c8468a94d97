package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
	PGDSN  string
}

// Validate checks the driver and its settings.
func (c StoreConfig) Validate() error {
	switch c.Driver {
	case StorePostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q (want %s or %s)", c.Driver, StorePostgres, StoreMemory)
	}
	return nil
}

// ChainConfig holds the RPC settings of one chain.
type ChainConfig struct {
	RPCURL       string
	RPCRateLimit float64
	MaxRetries   int
	RetryBackoff time.Duration
}

// BridgeConfig holds the destination chain reconciler settings.
type BridgeConfig struct {
	Enabled      bool
	RPCURL       string
	RPCRateLimit float64
	Receivers    []string
	FromBlock    uint64
	ChunkSize    uint64
	PollInterval time.Duration
}

// Config holds the settings of the run command.
type Config struct {
	Chain           ChainConfig
	Store           StoreConfig
	FromBlock       uint64
	BatchSize       uint64
	PollInterval    time.Duration
	InterfacesFile  string
	RegistryRefresh time.Duration
	Bridge          BridgeConfig
	OpsAddr         string
	LogLevel        string
}

// Validate reports the first missing or inconsistent setting.
func (c Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.Bridge.Enabled {
		if c.Bridge.RPCURL == "" {
			return fmt.Errorf("bridge-rpc is required when the bridge is enabled")
		}
		if len(c.Bridge.Receivers) == 0 {
			return fmt.Errorf("bridge-receiver is required when the bridge is enabled")
		}
	}
	return nil
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		setStoreDefaults(v)
		v.SetDefault("batch-size", uint64(50))
		v.SetDefault("poll-interval", 5*time.Second)
		v.SetDefault("registry-refresh", 30*time.Second)
		v.SetDefault("bridge-enabled", false)
		v.SetDefault("bridge-chunk-size", uint64(10_000))
		v.SetDefault("bridge-poll-interval", 15*time.Second)
		v.SetDefault("ops-addr", ":9090")
	})
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Chain:           chainConfig(v),
		Store:           storeConfig(v),
		FromBlock:       v.GetUint64("from-block"),
		BatchSize:       v.GetUint64("batch-size"),
		PollInterval:    v.GetDuration("poll-interval"),
		InterfacesFile:  v.GetString("interfaces-file"),
		RegistryRefresh: v.GetDuration("registry-refresh"),
		Bridge: BridgeConfig{
			Enabled:      v.GetBool("bridge-enabled"),
			RPCURL:       v.GetString("bridge-rpc"),
			RPCRateLimit: v.GetFloat64("bridge-rpc-rate-limit"),
			Receivers:    getStringSlice(v, "bridge-receiver"),
			FromBlock:    v.GetUint64("bridge-from-block"),
			ChunkSize:    v.GetUint64("bridge-chunk-size"),
			PollInterval: v.GetDuration("bridge-poll-interval"),
		},
		OpsAddr:  v.GetString("ops-addr"),
		LogLevel: v.GetString("log-level"),
	}
	return cfg, nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log-level", "info")
	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}

func setChainDefaults(v *viper.Viper) {
	v.SetDefault("rpc-rate-limit", 0.0)
	v.SetDefault("max-retries", 0)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
}

func setStoreDefaults(v *viper.Viper) {
	v.SetDefault("store", StorePostgres)
}

func chainConfig(v *viper.Viper) ChainConfig {
	return ChainConfig{
		RPCURL:       v.GetString("rpc"),
		RPCRateLimit: v.GetFloat64("rpc-rate-limit"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
	}
}

func storeConfig(v *viper.Viper) StoreConfig {
	return StoreConfig{
		Driver: strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		PGDSN:  v.GetString("pg-dsn"),
	}
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(flattenCommas(typed))
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// flattenCommas splits env values such as "0xa,0xb" that reach viper as a
// single-element slice.
func flattenCommas(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, strings.Split(item, ",")...)
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	return cleanStrings(strings.Split(input, ","))
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
