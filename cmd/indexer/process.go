package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainIndexer/internal/chain"
	"chainIndexer/internal/config"
	"chainIndexer/internal/indexer"
)

func runProcess(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadProcess(cfgFile, cmd.Flags())
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

	resolver := newResolver(source, cfg.InterfacesFile, 0, logger)
	processor := indexer.NewProcessor(indexer.ProcessorConfig{
		FromBlock:    cfg.FromBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.Chain.MaxRetries,
		RetryBackoff: cfg.Chain.RetryBackoff,
	}, chainID, chainClient, resolver, store, nil, withComponent(logger, "processor"))

	logger.Info("process start",
		zap.String("rpc", cfg.Chain.RPCURL),
		zap.Uint64("from", cfg.From),
		zap.Uint64("to", cfg.To),
		zap.Uint64("batch_size", cfg.BatchSize),
	)

	err = processor.ProcessBlockRange(ctx, cfg.From, cfg.To, func(done, total uint64) {
		logger.Info("progress", zap.Uint64("done", done), zap.Uint64("total", total))
	})
	if err != nil {
		return err
	}

	logger.Info("process complete", zap.Uint64("blocks", cfg.To-cfg.From+1))
	return nil
}
