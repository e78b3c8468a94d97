package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ReconcileConfig holds configuration for the reconcile command.
type ReconcileConfig struct {
	Store      StoreConfig
	EventName  string
	OrderIDArg string
	Limit      int
	Status     string
	Out        string
	LogLevel   string
}

// Validate reports the first missing or inconsistent setting.
func (c ReconcileConfig) Validate() error {
	if c.Store.Driver != StorePostgres {
		return fmt.Errorf("reconcile reads indexed data and needs the postgres store")
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.EventName == "" || c.OrderIDArg == "" {
		return fmt.Errorf("order-event and order-id-arg are required")
	}
	switch c.Status {
	case "", "pending", "completed":
	default:
		return fmt.Errorf("unknown status filter %q", c.Status)
	}
	return nil
}

// LoadReconcile merges config file, environment variables, and flags into ReconcileConfig.
func LoadReconcile(cfgFile string, flags *pflag.FlagSet) (ReconcileConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setStoreDefaults(v)
		v.SetDefault("order-event", "OrderCreated")
		v.SetDefault("order-id-arg", "orderId")
		v.SetDefault("limit", 100)
		v.SetDefault("out", "-")
	})
	if err != nil {
		return ReconcileConfig{}, err
	}

	return ReconcileConfig{
		Store:      storeConfig(v),
		EventName:  v.GetString("order-event"),
		OrderIDArg: v.GetString("order-id-arg"),
		Limit:      v.GetInt("limit"),
		Status:     strings.ToLower(strings.TrimSpace(v.GetString("status"))),
		Out:        v.GetString("out"),
		LogLevel:   v.GetString("log-level"),
	}, nil
}
