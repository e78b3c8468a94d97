package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ProcessConfig holds configuration for the process command.
type ProcessConfig struct {
	Chain          ChainConfig
	Store          StoreConfig
	FromBlock      uint64
	From           uint64
	To             uint64
	BatchSize      uint64
	InterfacesFile string
	LogLevel       string
}

// Validate reports the first missing or inconsistent setting.
func (c ProcessConfig) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("rpc is required")
	}
	if c.To < c.From {
		return fmt.Errorf("to (%d) must be >= from (%d)", c.To, c.From)
	}
	if c.BatchSize == 0 {
		return fmt.Errorf("batch-size must be greater than zero")
	}
	return c.Store.Validate()
}

// LoadProcess merges config file, environment variables, and flags into ProcessConfig.
func LoadProcess(cfgFile string, flags *pflag.FlagSet) (ProcessConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setChainDefaults(v)
		setStoreDefaults(v)
		v.SetDefault("batch-size", uint64(50))
	})
	if err != nil {
		return ProcessConfig{}, err
	}

	return ProcessConfig{
		Chain:          chainConfig(v),
		Store:          storeConfig(v),
		FromBlock:      v.GetUint64("from-block"),
		From:           v.GetUint64("from"),
		To:             v.GetUint64("to"),
		BatchSize:      v.GetUint64("batch-size"),
		InterfacesFile: v.GetString("interfaces-file"),
		LogLevel:       v.GetString("log-level"),
	}, nil
}
