package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chainIndexer/internal/bridge"
	"chainIndexer/internal/config"
	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadReconcile(cfgFile, cmd.Flags())
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

	store, _, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	transfers, err := bridge.ListTransfers(ctx, store, storage.OrderQuery{
		EventName:  cfg.EventName,
		OrderIDArg: cfg.OrderIDArg,
		Limit:      cfg.Limit,
	})
	if err != nil {
		return err
	}

	out, err := storage.NewJSONLWriter(cfg.Out)
	if err != nil {
		return err
	}

	var completed, written int
	for _, transfer := range transfers {
		if transfer.Status == model.ReconciliationCompleted {
			completed++
		}
		if cfg.Status != "" && string(transfer.Status) != cfg.Status {
			continue
		}
		if err := out.Write(transfer); err != nil {
			out.Close()
			return err
		}
		written++
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Info("reconcile complete",
		zap.Int("orders", len(transfers)),
		zap.Int("completed", completed),
		zap.Int("pending", len(transfers)-completed),
		zap.Int("written", written),
	)
	return nil
}
