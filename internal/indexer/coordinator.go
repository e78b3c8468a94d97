package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"chainIndexer/internal/metrics"
	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

// DefaultPollInterval is the real-time polling cadence.
const DefaultPollInterval = 5 * time.Second

// HeadSource reports the chain head.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// BlockProcessor ingests single blocks and ranges.
type BlockProcessor interface {
	ProcessBlock(ctx context.Context, number uint64) error
	ProcessBlockRange(ctx context.Context, from, to uint64, onProgress ProgressFunc) error
}

// CoordinatorConfig holds sync settings.
type CoordinatorConfig struct {
	// FromBlock is the lowest block ever indexed.
	FromBlock    uint64
	PollInterval time.Duration
}

// Status is a snapshot of the coordinator.
type Status struct {
	State            model.SyncStatus `json:"syncStatus"`
	LastIndexedBlock int64            `json:"lastIndexedBlock"`
}

// Coordinator backfills the chain up to its head and then follows it by
// polling. It owns the last indexed block cursor and the sync status.
type Coordinator struct {
	cfg       CoordinatorConfig
	head      HeadSource
	processor BlockProcessor
	store     storage.SyncStateStore
	metrics   *metrics.Metrics
	logger    *zap.Logger

	// statusMu serializes status writes; it is taken before mu.
	statusMu sync.Mutex

	mu          sync.Mutex
	running     bool
	gen         uint64
	state       model.SyncStatus
	lastIndexed int64
	scheduler   gocron.Scheduler
}

// NewCoordinator builds a Coordinator. m may be nil.
func NewCoordinator(
	cfg CoordinatorConfig,
	head HeadSource,
	processor BlockProcessor,
	store storage.SyncStateStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		cfg:         cfg,
		head:        head,
		processor:   processor,
		store:       store,
		metrics:     m,
		logger:      logger,
		state:       model.SyncStatusIdle,
		lastIndexed: model.NoBlock,
	}
}

// Start backfills [max(cursor+1, FromBlock), head] and then schedules
// real-time polling. It returns once the backfill is done. Calling Start while
// the coordinator is running does nothing. When Stop is called before the
// backfill finishes, Start returns without scheduling anything.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.logger.Info("sync already running")
		return nil
	}
	c.running = true
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if err := c.start(ctx, gen); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.running = false
		}
		c.mu.Unlock()
		c.transition(ctx, gen, model.SyncStatusIdle)
		return err
	}
	return nil
}

func (c *Coordinator) start(ctx context.Context, gen uint64) error {
	head, err := c.head.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	cursor, err := c.store.LastIndexedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	c.setLastIndexed(cursor)

	if !c.transition(ctx, gen, model.SyncStatusSyncing) {
		c.logger.Info("sync stopped before backfill")
		return nil
	}

	begin := c.begin(cursor)
	if begin <= head {
		c.logger.Info("backfill start", zap.Uint64("from", begin), zap.Uint64("to", head))
		err := c.processor.ProcessBlockRange(ctx, begin, head, func(done, total uint64) {
			c.setLastIndexed(int64(begin + done - 1))
			c.logger.Info("backfill progress", zap.Uint64("done", done), zap.Uint64("total", total))
		})
		if err != nil {
			return fmt.Errorf("backfill %d-%d: %w", begin, head, err)
		}
		c.logger.Info("backfill complete", zap.Uint64("head", head))
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(c.cfg.PollInterval),
		gocron.NewTask(c.tick, ctx, gen),
		gocron.WithName("sync-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule poll: %w", err)
	}

	if !c.transition(ctx, gen, model.SyncStatusRealtime) {
		c.discard(scheduler)
		return nil
	}

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		c.discard(scheduler)
		return nil
	}
	c.scheduler = scheduler
	scheduler.Start()
	c.mu.Unlock()

	c.logger.Info("realtime polling started", zap.Duration("interval", c.cfg.PollInterval))
	return nil
}

func (c *Coordinator) discard(scheduler gocron.Scheduler) {
	if err := scheduler.Shutdown(); err != nil {
		c.logger.Warn("scheduler shutdown", zap.Error(err))
	}
	c.logger.Info("sync stopped during backfill")
}

// Stop cancels future polling ticks and persists the idle status. A tick or
// backfill that is already running finishes but no longer changes the status.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	scheduler := c.scheduler
	c.scheduler = nil
	c.running = false
	c.gen++
	c.mu.Unlock()

	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			c.logger.Warn("scheduler shutdown", zap.Error(err))
		}
	}
	return c.setStatus(ctx, model.SyncStatusIdle)
}

// Status returns the current state and cursor.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, LastIndexedBlock: c.lastIndexed}
}

func (c *Coordinator) tick(ctx context.Context, gen uint64) {
	if !c.current(gen) {
		return
	}
	if err := c.poll(ctx); err != nil {
		c.logger.Error("poll tick failed", zap.Error(err))
		c.metrics.TickError()
		c.transition(ctx, gen, model.SyncStatusIdle)
		return
	}

	c.mu.Lock()
	restore := c.state != model.SyncStatusRealtime
	c.mu.Unlock()
	if restore {
		c.transition(ctx, gen, model.SyncStatusRealtime)
	}
}

// poll processes the blocks between the cursor and the head one at a time so
// the cursor always marks a gap-free prefix.
func (c *Coordinator) poll(ctx context.Context) error {
	head, err := c.head.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	cursor, err := c.store.LastIndexedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}

	for number := c.begin(cursor); number <= head; number++ {
		if err := c.processor.ProcessBlock(ctx, number); err != nil {
			return fmt.Errorf("process block %d: %w", number, err)
		}
		if err := c.store.SetLastIndexedBlock(ctx, int64(number)); err != nil {
			return fmt.Errorf("persist cursor %d: %w", number, err)
		}
		c.setLastIndexed(int64(number))
		c.metrics.SetLastIndexedBlock(number)
	}
	return nil
}

func (c *Coordinator) begin(cursor int64) uint64 {
	return NextBlock(cursor, c.cfg.FromBlock)
}

func (c *Coordinator) setLastIndexed(number int64) {
	c.mu.Lock()
	if number > c.lastIndexed {
		c.lastIndexed = number
	}
	c.mu.Unlock()
}

func (c *Coordinator) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// transition applies status on behalf of the Start generation gen. It reports
// false, changing nothing, once that generation has been stopped.
func (c *Coordinator) transition(ctx context.Context, gen uint64, status model.SyncStatus) bool {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if !c.current(gen) {
		return false
	}
	_ = c.writeStatus(ctx, status)
	return true
}

func (c *Coordinator) setStatus(ctx context.Context, status model.SyncStatus) error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.writeStatus(ctx, status)
}

func (c *Coordinator) writeStatus(ctx context.Context, status model.SyncStatus) error {
	c.mu.Lock()
	c.state = status
	c.mu.Unlock()

	c.metrics.SetSyncStatus(status)
	if err := c.store.SetSyncStatus(ctx, status); err != nil {
		c.logger.Warn("persist sync status", zap.String("status", string(status)), zap.Error(err))
		return fmt.Errorf("persist sync status: %w", err)
	}
	return nil
}
