package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"chainIndexer/internal/bridge"
	"chainIndexer/internal/chain"
	"chainIndexer/internal/config"
	"chainIndexer/internal/indexer"
	"chainIndexer/internal/metrics"
	"chainIndexer/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "EVM chain indexer with cross-chain payment reconciliation",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Backfill and follow the chain, and reconcile bridge payments",
		RunE:  runIndexer,
	}

	runCmd.Flags().String("rpc", "", "source chain RPC URL")
	runCmd.Flags().Float64("rpc-rate-limit", 0, "max RPC requests per second, 0 means unlimited")
	runCmd.Flags().Uint64("from-block", 0, "lowest block to index")
	runCmd.Flags().Uint64("batch-size", indexer.DefaultBatchSize, "blocks processed concurrently during backfill")
	runCmd.Flags().Duration("poll-interval", indexer.DefaultPollInterval, "real-time polling interval")
	runCmd.Flags().Int("max-retries", 0, "retries per RPC call, 0 leaves retrying to the next tick")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	addStoreFlags(runCmd)
	runCmd.Flags().String("interfaces-file", "", "YAML file with contract interfaces")
	runCmd.Flags().Duration("registry-refresh", 30*time.Second, "contract interface cache lifetime")
	runCmd.Flags().Bool("bridge-enabled", false, "run the bridge payment reconciler")
	runCmd.Flags().String("bridge-rpc", "", "destination chain RPC URL")
	runCmd.Flags().Float64("bridge-rpc-rate-limit", 0, "max destination RPC requests per second")
	runCmd.Flags().StringSlice("bridge-receiver", nil, "payment receiver contract addresses (comma-separated)")
	runCmd.Flags().Uint64("bridge-from-block", 0, "first destination block to scan")
	runCmd.Flags().Uint64("bridge-chunk-size", bridge.DefaultChunkSize, "blocks per log query")
	runCmd.Flags().Duration("bridge-poll-interval", bridge.DefaultPollInterval, "bridge polling interval")
	runCmd.Flags().String("ops-addr", ":9090", "health, status and metrics listen address")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Process a fixed block range once",
		RunE:  runProcess,
	}

	processCmd.Flags().String("rpc", "", "source chain RPC URL")
	processCmd.Flags().Float64("rpc-rate-limit", 0, "max RPC requests per second, 0 means unlimited")
	processCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	processCmd.Flags().Uint64("to", 0, "end block (inclusive)")
	processCmd.Flags().Uint64("from-block", 0, "lowest block of the indexed prefix, as given to run")
	processCmd.Flags().Uint64("batch-size", indexer.DefaultBatchSize, "blocks processed concurrently")
	processCmd.Flags().Int("max-retries", 0, "retries per RPC call")
	processCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	addStoreFlags(processCmd)
	processCmd.Flags().String("interfaces-file", "", "YAML file with contract interfaces")
	processCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(processCmd)

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "List cross-chain transfers with their payment status",
		RunE:  runReconcile,
	}

	addStoreFlags(reconcileCmd)
	reconcileCmd.Flags().String("order-event", "OrderCreated", "decoded event name of order creations")
	reconcileCmd.Flags().String("order-id-arg", "orderId", "event argument holding the order id")
	reconcileCmd.Flags().Int("limit", 100, "number of most recent orders")
	reconcileCmd.Flags().String("status", "", "only list pending or completed transfers")
	reconcileCmd.Flags().String("out", "-", "output JSONL path, - for stdout")
	reconcileCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(reconcileCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("store", config.StorePostgres, "store driver (postgres, memory)")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.Chain.RPCURL, cfg.Chain.RPCRateLimit)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	chainID, err := chainClient.GetChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain id: %w", err)
	}

	store, source, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(reg)

	resolver := newResolver(source, cfg.InterfacesFile, cfg.RegistryRefresh, logger)
	processor := indexer.NewProcessor(indexer.ProcessorConfig{
		FromBlock:    cfg.FromBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.Chain.MaxRetries,
		RetryBackoff: cfg.Chain.RetryBackoff,
	}, chainID, chainClient, resolver, store, m, withComponent(logger, "processor"))

	coordinator := indexer.NewCoordinator(indexer.CoordinatorConfig{
		FromBlock:    cfg.FromBlock,
		PollInterval: cfg.PollInterval,
	}, chainClient, processor, store, m, withComponent(logger, "sync"))

	var (
		reconciler   *bridge.Reconciler
		bridgeStatus server.BridgeStatusProvider
	)
	if cfg.Bridge.Enabled {
		receivers, err := chain.ParseAddresses(cfg.Bridge.Receivers)
		if err != nil {
			return err
		}
		destClient, err := chain.NewClient(ctx, cfg.Bridge.RPCURL, cfg.Bridge.RPCRateLimit)
		if err != nil {
			return fmt.Errorf("connect bridge rpc: %w", err)
		}
		defer destClient.Close()

		reconciler, err = bridge.NewReconciler(bridge.Config{
			Receivers:    receivers,
			FromBlock:    cfg.Bridge.FromBlock,
			ChunkSize:    cfg.Bridge.ChunkSize,
			PollInterval: cfg.Bridge.PollInterval,
		}, destClient, store, m, withComponent(logger, "bridge"))
		if err != nil {
			return err
		}
		bridgeStatus = reconciler
	}

	ops := server.New(cfg.OpsAddr, coordinator, bridgeStatus, reg, withComponent(logger, "ops"))
	opsErr := make(chan error, 1)
	go func() { opsErr <- ops.Start() }()
	defer func() {
		if err := ops.Stop(context.Background()); err != nil {
			logger.Warn("stop ops server", zap.Error(err))
		}
	}()

	logger.Info("indexer start",
		zap.String("rpc", cfg.Chain.RPCURL),
		zap.String("chain_id", chainID.String()),
		zap.Uint64("from_block", cfg.FromBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("store", cfg.Store.Driver),
		zap.Bool("bridge_enabled", cfg.Bridge.Enabled),
	)

	if reconciler != nil {
		go func() {
			if err := reconciler.Start(ctx); err != nil {
				logger.Error("bridge reconciler start", zap.Error(err))
			}
		}()
		defer reconciler.Stop()
	}

	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("start sync: %w", err)
	}
	defer func() {
		if err := coordinator.Stop(context.Background()); err != nil {
			logger.Warn("stop sync", zap.Error(err))
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		return nil
	case err := <-opsErr:
		return err
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func withComponent(logger *zap.Logger, component string) *zap.Logger {
	return logger.With(zap.String("component", component))
}
