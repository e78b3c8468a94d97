package indexer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chainIndexer/internal/decoder"
	"chainIndexer/internal/metrics"
	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

// DefaultBatchSize is the number of blocks fetched concurrently during backfill.
const DefaultBatchSize = 50

// BlockSource is the part of the chain client the processor needs.
type BlockSource interface {
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// InterfaceResolver returns the ranked decode candidates for an address.
type InterfaceResolver interface {
	Candidates(ctx context.Context, address common.Address) []decoder.Interface
}

// ProcessorStore is the persistence the processor writes to.
type ProcessorStore interface {
	storage.BlockStore
	LastIndexedBlock(ctx context.Context) (int64, error)
	SetLastIndexedBlock(ctx context.Context, number int64) error
}

// ProcessorConfig holds processor settings.
type ProcessorConfig struct {
	// FromBlock is the lowest block of the indexed prefix. It must match the
	// coordinator's floor.
	FromBlock    uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// ProgressFunc is called after every completed backfill batch.
type ProgressFunc func(done, total uint64)

// Processor fetches blocks with their receipts, decodes their logs and stores
// them.
type Processor struct {
	cfg      ProcessorConfig
	chain    BlockSource
	resolver InterfaceResolver
	store    ProcessorStore
	signer   types.Signer
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewProcessor builds a Processor. chainID selects the signer used to recover
// transaction senders. resolver and m may be nil.
func NewProcessor(
	cfg ProcessorConfig,
	chainID *big.Int,
	chain BlockSource,
	resolver InterfaceResolver,
	store ProcessorStore,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Processor {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		cfg:      cfg,
		chain:    chain,
		resolver: resolver,
		store:    store,
		signer:   types.LatestSignerForChainID(chainID),
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessBlock ingests a single block. It does not move the cursor.
func (p *Processor) ProcessBlock(ctx context.Context, number uint64) error {
	started := p.now()

	bundle, err := p.buildBundle(ctx, number)
	if err != nil {
		return err
	}
	if err := p.store.SaveBlock(ctx, bundle); err != nil {
		return fmt.Errorf("save block %d: %w", number, err)
	}

	p.metrics.BlockProcessed(len(bundle.Transactions), len(bundle.Events), p.now().Sub(started).Seconds())
	p.logger.Debug("block processed",
		zap.Uint64("block_number", number),
		zap.Int("txs", len(bundle.Transactions)),
		zap.Int("events", len(bundle.Events)),
	)
	return nil
}

// ProcessBlockRange ingests [from, to] in consecutive batches. Blocks within a
// batch are processed concurrently. After a whole batch succeeded the cursor
// moves to its end, but only when the batch extends the indexed prefix: a
// range ahead of the cursor is stored without moving it, so no gap is hidden.
func (p *Processor) ProcessBlockRange(ctx context.Context, from, to uint64, onProgress ProgressFunc) error {
	if to < from {
		return nil
	}
	ranges, err := SplitRange(from, to, p.cfg.BatchSize)
	if err != nil {
		return err
	}

	total := to - from + 1
	var done uint64
	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(int(p.cfg.BatchSize))
		for number := blockRange.From; number <= blockRange.To; number++ {
			g.Go(func() error {
				return p.ProcessBlock(gctx, number)
			})
		}
		if err := g.Wait(); err != nil {
			return fmt.Errorf("batch %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if err := p.advanceCursor(ctx, blockRange); err != nil {
			return err
		}

		done += blockRange.Len()
		if onProgress != nil {
			onProgress(done, total)
		}
	}
	return nil
}

func (p *Processor) advanceCursor(ctx context.Context, blockRange BlockRange) error {
	cursor, err := p.store.LastIndexedBlock(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if next := NextBlock(cursor, p.cfg.FromBlock); blockRange.From > next {
		p.logger.Warn("range ahead of cursor, cursor unchanged",
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
			zap.Uint64("next_block", next),
		)
		return nil
	}
	if err := p.store.SetLastIndexedBlock(ctx, int64(blockRange.To)); err != nil {
		return fmt.Errorf("persist cursor %d: %w", blockRange.To, err)
	}
	p.metrics.SetLastIndexedBlock(blockRange.To)
	return nil
}

func (p *Processor) buildBundle(ctx context.Context, number uint64) (model.BlockBundle, error) {
	block, err := p.fetchBlock(ctx, number)
	if err != nil {
		return model.BlockBundle{}, err
	}

	ingestedAt := p.now()
	bundle := model.BlockBundle{
		Block:        buildBlock(block, ingestedAt),
		Transactions: make([]model.Transaction, 0, len(block.Transactions())),
	}

	for i, tx := range block.Transactions() {
		receipt, err := p.fetchReceipt(ctx, tx.Hash())
		if err != nil {
			return model.BlockBundle{}, err
		}

		record, err := buildTransaction(block, i, tx, receipt, p.signer)
		if err != nil {
			return model.BlockBundle{}, err
		}
		bundle.Transactions = append(bundle.Transactions, record)

		for _, log := range receipt.Logs {
			event := buildEvent(log)
			event.Decoded = p.decode(ctx, log.Address, event, ingestedAt)
			bundle.Events = append(bundle.Events, event)
		}
	}
	return bundle, nil
}

func (p *Processor) fetchBlock(ctx context.Context, number uint64) (*types.Block, error) {
	var block *types.Block
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		block, err = p.chain.BlockByNumber(ctx, new(big.Int).SetUint64(number))
		if err == nil && block == nil {
			err = fmt.Errorf("block %d: %w", number, model.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch block %d: %w", number, err)
	}
	return block, nil
}

func (p *Processor) fetchReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		receipt, err = p.chain.TransactionReceipt(ctx, hash)
		if err == nil && receipt == nil {
			err = fmt.Errorf("receipt %s: %w", hash.Hex(), model.ErrNotFound)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

func (p *Processor) decode(ctx context.Context, address common.Address, event model.Event, decodedAt time.Time) *model.DecodedEvent {
	if p.resolver == nil {
		return nil
	}
	decoded := decoder.Decode(event, p.resolver.Candidates(ctx, address))
	p.metrics.DecodeResult(decoded != nil)
	if decoded != nil {
		decoded.DecodedAt = decodedAt.UTC()
	}
	return decoded
}
