package storage

import (
	"context"

	"chainIndexer/internal/model"
)

// BlockStore persists ingested blocks. Natural-key conflicts on blocks,
// transactions, events and decoded events are ignored, so saving the same
// block twice leaves a single copy.
type BlockStore interface {
	SaveBlock(ctx context.Context, bundle model.BlockBundle) error
}

// SyncStateStore holds the primary chain cursor and status. The cursor never
// moves backward; model.NoBlock means nothing has been indexed.
type SyncStateStore interface {
	LastIndexedBlock(ctx context.Context) (int64, error)
	SetLastIndexedBlock(ctx context.Context, number int64) error
	SyncStatus(ctx context.Context) (model.SyncStatus, error)
	SetSyncStatus(ctx context.Context, status model.SyncStatus) error
}

// BridgeStore persists destination-chain payments and the reconciler cursor.
type BridgeStore interface {
	// InsertBridgePayment reports false when the payment already exists by
	// (proxy, order id) or by tx hash.
	InsertBridgePayment(ctx context.Context, payment model.BridgePayment) (bool, error)
	LastBridgeSyncedBlock(ctx context.Context) (int64, error)
	SetLastBridgeSyncedBlock(ctx context.Context, number int64) error
}

// OrderQuery selects decoded order-creation events.
type OrderQuery struct {
	EventName  string
	OrderIDArg string
	Limit      int
}

// ReconciliationReader serves the read side of cross-chain reconciliation.
type ReconciliationReader interface {
	ListOrderCreations(ctx context.Context, query OrderQuery) ([]model.OrderCreation, error)
	BridgePaymentsForOrders(ctx context.Context, orders []model.OrderCreation) ([]model.BridgePayment, error)
}

// Store is the full persistence contract.
type Store interface {
	BlockStore
	SyncStateStore
	BridgeStore
	ReconciliationReader
	Close()
}
