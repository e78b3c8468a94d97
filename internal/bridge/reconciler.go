package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"chainIndexer/internal/indexer"
	"chainIndexer/internal/metrics"
	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

const (
	// DefaultChunkSize keeps eth_getLogs ranges under common provider limits.
	DefaultChunkSize    = 10_000
	DefaultPollInterval = 15 * time.Second
)

// Chain is the destination chain client used by the reconciler.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Config holds reconciler settings.
type Config struct {
	Receivers    []common.Address
	FromBlock    uint64
	ChunkSize    uint64
	PollInterval time.Duration
}

// Status is a snapshot of the reconciler.
type Status struct {
	LastSyncedBlock int64 `json:"lastSyncedBlock"`
	IsSyncing       bool  `json:"isSyncing"`
}

// Reconciler polls the destination chain for payment events and stores them
// on its own cursor.
type Reconciler struct {
	cfg     Config
	chain   Chain
	store   storage.BridgeStore
	event   abi.Event
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time

	syncing    atomic.Bool
	lastSynced atomic.Int64

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewReconciler builds a Reconciler. m may be nil.
func NewReconciler(cfg Config, chain Chain, store storage.BridgeStore, m *metrics.Metrics, logger *zap.Logger) (*Reconciler, error) {
	if len(cfg.Receivers) == 0 {
		return nil, fmt.Errorf("at least one receiver address is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := ReceiverABI()
	if err != nil {
		return nil, fmt.Errorf("parse receiver abi: %w", err)
	}
	event, ok := parsed.Events[PaymentEventName]
	if !ok {
		return nil, fmt.Errorf("receiver abi has no %s event", PaymentEventName)
	}

	r := &Reconciler{
		cfg:     cfg,
		chain:   chain,
		store:   store,
		event:   event,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	r.lastSynced.Store(model.NoBlock)
	return r, nil
}

// Start runs one cycle and then schedules the next ones. An error in the
// first cycle is logged; polling continues regardless.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		r.logger.Info("bridge reconciler already running")
		return nil
	}

	r.cycle(ctx)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(r.cfg.PollInterval),
		gocron.NewTask(r.cycle, ctx),
		gocron.WithName("bridge-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule bridge sync: %w", err)
	}
	scheduler.Start()
	r.scheduler = scheduler
	r.logger.Info("bridge reconciler started", zap.Duration("interval", r.cfg.PollInterval))
	return nil
}

// Stop cancels future cycles. A running cycle finishes.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	scheduler := r.scheduler
	r.scheduler = nil
	r.mu.Unlock()

	if scheduler == nil {
		return
	}
	if err := scheduler.Shutdown(); err != nil {
		r.logger.Warn("bridge scheduler shutdown", zap.Error(err))
	}
}

// Status returns the cursor and whether a cycle is in progress.
func (r *Reconciler) Status() Status {
	return Status{
		LastSyncedBlock: r.lastSynced.Load(),
		IsSyncing:       r.syncing.Load(),
	}
}

func (r *Reconciler) cycle(ctx context.Context) {
	if err := r.SyncOnce(ctx); err != nil {
		r.metrics.BridgeCycleError()
		r.logger.Error("bridge sync failed", zap.Error(err))
	}
}

// SyncOnce scans the blocks between the cursor and the head for payments. It
// returns immediately when another cycle is running.
func (r *Reconciler) SyncOnce(ctx context.Context) error {
	if !r.syncing.CompareAndSwap(false, true) {
		r.logger.Debug("bridge sync in progress, skipping")
		return nil
	}
	defer r.syncing.Store(false)

	head, err := r.chain.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	cursor, err := r.store.LastBridgeSyncedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load bridge cursor: %w", err)
	}
	r.setLastSynced(cursor)

	from := r.cfg.FromBlock
	if cursor >= 0 {
		from = uint64(cursor) + 1
	}
	if from > head {
		return nil
	}

	chunks, err := indexer.SplitRange(from, head, r.cfg.ChunkSize)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := r.syncChunk(ctx, chunk); err != nil {
			return fmt.Errorf("chunk %d-%d: %w", chunk.From, chunk.To, err)
		}
		if err := r.advance(ctx, chunk.To); err != nil {
			return err
		}
	}
	// The last chunk ends at head, so ranges without payments are not rescanned.
	return nil
}

func (r *Reconciler) syncChunk(ctx context.Context, chunk indexer.BlockRange) error {
	logs, err := r.chain.FilterLogs(ctx, chunk.From, chunk.To, r.cfg.Receivers, []common.Hash{r.event.ID})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}
	if len(logs) == 0 {
		return nil
	}

	timestamps := r.blockTimestamps(ctx, logs)
	ingestedAt := r.now()
	inserted := 0
	for _, log := range logs {
		if log.Removed {
			continue
		}
		payment, err := decodePayment(r.event, log, timestamps[log.BlockNumber], ingestedAt)
		if err != nil {
			r.logger.Warn("skip malformed payment log",
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}

		ok, err := r.store.InsertBridgePayment(ctx, payment)
		if err != nil {
			return fmt.Errorf("insert payment %s: %w", payment.TxHash, err)
		}
		r.metrics.BridgePayment(ok)
		if ok {
			inserted++
		}
	}

	r.logger.Info("bridge chunk synced",
		zap.Uint64("from", chunk.From),
		zap.Uint64("to", chunk.To),
		zap.Int("logs", len(logs)),
		zap.Int("inserted", inserted),
	)
	return nil
}

// blockTimestamps resolves the timestamp of every distinct block touched by
// logs, once per block. A failed lookup leaves the block without a timestamp.
func (r *Reconciler) blockTimestamps(ctx context.Context, logs []types.Log) map[uint64]*time.Time {
	out := make(map[uint64]*time.Time)
	for _, log := range logs {
		if _, done := out[log.BlockNumber]; done {
			continue
		}
		ts, err := r.chain.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			r.logger.Warn("block timestamp unavailable", zap.Uint64("block_number", log.BlockNumber), zap.Error(err))
			out[log.BlockNumber] = nil
			continue
		}
		t := time.Unix(int64(ts), 0).UTC()
		out[log.BlockNumber] = &t
	}
	return out
}

func (r *Reconciler) advance(ctx context.Context, number uint64) error {
	if err := r.store.SetLastBridgeSyncedBlock(ctx, int64(number)); err != nil {
		return fmt.Errorf("persist bridge cursor %d: %w", number, err)
	}
	r.setLastSynced(int64(number))
	r.metrics.SetBridgeLastSyncedBlock(number)
	return nil
}

func (r *Reconciler) setLastSynced(number int64) {
	for {
		current := r.lastSynced.Load()
		if number <= current || r.lastSynced.CompareAndSwap(current, number) {
			return
		}
	}
}
