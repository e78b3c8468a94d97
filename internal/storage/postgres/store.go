package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

// Store provides Postgres persistence for the indexer. Every insert is
// insert-or-ignore on its natural key.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// SaveBlock writes a block, its transactions, events and decoded events in a
// single transaction.
func (s *Store) SaveBlock(ctx context.Context, bundle model.BlockBundle) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := insertBlock(ctx, tx, bundle.Block); err != nil {
			return fmt.Errorf("insert block %d: %w", bundle.Block.Number, err)
		}
		if err := insertTransactions(ctx, tx, bundle.Transactions); err != nil {
			return fmt.Errorf("insert transactions of block %d: %w", bundle.Block.Number, err)
		}
		for _, event := range bundle.Events {
			id, err := insertEvent(ctx, tx, event)
			if err != nil {
				return fmt.Errorf("insert event %s:%d: %w", event.TxHash, event.LogIndex, err)
			}
			if event.Decoded == nil {
				continue
			}
			if err := insertDecodedEvent(ctx, tx, id, *event.Decoded); err != nil {
				return fmt.Errorf("insert decoded event %d: %w", id, err)
			}
		}
		return nil
	})
}

func insertBlock(ctx context.Context, tx pgx.Tx, block model.Block) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO blocks (
			number, hash, parent_hash, timestamp, miner, tx_count, size, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (number) DO NOTHING
	`,
		int64(block.Number),
		block.Hash,
		block.ParentHash,
		int64(block.Timestamp),
		block.Miner,
		block.TxCount,
		int64(block.Size),
		block.IngestedAt,
	)
	return err
}

func insertTransactions(ctx context.Context, tx pgx.Tx, txs []model.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range txs {
		batch.Queue(`
			INSERT INTO transactions (
				hash, block_number, block_hash, tx_index, from_address, to_address,
				value, input, nonce, gas_used, status, contract_address
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			ON CONFLICT (hash) DO NOTHING
		`,
			t.Hash,
			int64(t.BlockNumber),
			t.BlockHash,
			int64(t.TxIndex),
			t.From,
			t.To,
			t.Value,
			t.Input,
			int64(t.Nonce),
			int64(t.GasUsed),
			string(t.Status),
			t.ContractAddress,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range txs {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

// insertEvent returns the id of the stored event, whether it was inserted now
// or by an earlier run.
func insertEvent(ctx context.Context, tx pgx.Tx, event model.Event) (int64, error) {
	var topics [model.MaxTopics]*string
	for i := range topics {
		if topic := event.Topic(i); topic != "" {
			topics[i] = &topic
		}
	}

	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO events (
			tx_hash, log_index, block_number, address, topic0, topic1, topic2, topic3, data
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tx_hash, log_index) DO UPDATE SET tx_hash = EXCLUDED.tx_hash
		RETURNING id
	`,
		event.TxHash,
		int64(event.LogIndex),
		int64(event.BlockNumber),
		event.Address,
		topics[0],
		topics[1],
		topics[2],
		topics[3],
		event.Data,
	).Scan(&id)
	return id, err
}

func insertDecodedEvent(ctx context.Context, tx pgx.Tx, eventID int64, decoded model.DecodedEvent) error {
	args, err := json.Marshal(decoded.Args)
	if err != nil {
		return fmt.Errorf("marshal args: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO decoded_events (event_id, event_name, args, interface_address, decoded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, decoded.Name, args, decoded.Interface, decoded.DecodedAt)
	return err
}

func (s *Store) LastIndexedBlock(ctx context.Context) (int64, error) {
	return s.loadCursor(ctx, model.StateLastIndexedBlock)
}

func (s *Store) SetLastIndexedBlock(ctx context.Context, number int64) error {
	return s.advanceCursor(ctx, model.StateLastIndexedBlock, number)
}

func (s *Store) LastBridgeSyncedBlock(ctx context.Context) (int64, error) {
	return s.loadCursor(ctx, model.StateLastBridgeSyncedBlock)
}

func (s *Store) SetLastBridgeSyncedBlock(ctx context.Context, number int64) error {
	return s.advanceCursor(ctx, model.StateLastBridgeSyncedBlock, number)
}

func (s *Store) SyncStatus(ctx context.Context) (model.SyncStatus, error) {
	value, ok, err := s.loadState(ctx, model.StateSyncStatus)
	if err != nil {
		return "", err
	}
	if !ok {
		return model.SyncStatusIdle, nil
	}
	return model.SyncStatus(value), nil
}

func (s *Store) SetSyncStatus(ctx context.Context, status model.SyncStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid sync status: %q", status)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
	`, model.StateSyncStatus, string(status))
	return err
}

// InsertBridgePayment ignores conflicts on (proxy_address, order_id) and on tx_hash.
func (s *Store) InsertBridgePayment(ctx context.Context, payment model.BridgePayment) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO bridge_payments (
			proxy_address, order_id, amount, recipient, tx_hash, log_index,
			block_number, block_timestamp, ingested_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`,
		strings.ToLower(payment.ProxyAddress),
		payment.OrderID,
		payment.Amount,
		payment.Recipient,
		payment.TxHash,
		int64(payment.LogIndex),
		int64(payment.BlockNumber),
		payment.BlockTimestamp,
		payment.IngestedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListOrderCreations returns decoded order events, newest first.
func (s *Store) ListOrderCreations(ctx context.Context, query storage.OrderQuery) ([]model.OrderCreation, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, lower(e.address), d.args->>$2, e.tx_hash, e.block_number
		FROM decoded_events d
		JOIN events e ON e.id = d.event_id
		WHERE d.event_name = $1 AND d.args->>$2 IS NOT NULL
		ORDER BY e.block_number DESC, e.id DESC
		LIMIT $3
	`, query.EventName, query.OrderIDArg, limit)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderCreation, error) {
		var (
			order       model.OrderCreation
			blockNumber int64
		)
		err := row.Scan(&order.EventID, &order.ProxyAddress, &order.OrderID, &order.TxHash, &blockNumber)
		order.BlockNumber = uint64(blockNumber)
		return order, err
	})
}

func (s *Store) BridgePaymentsForOrders(ctx context.Context, orders []model.OrderCreation) ([]model.BridgePayment, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	proxies := make([]string, 0, len(orders))
	orderIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		proxies = append(proxies, strings.ToLower(order.ProxyAddress))
		orderIDs = append(orderIDs, order.OrderID)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT p.proxy_address, p.order_id, p.amount, p.recipient, p.tx_hash, p.log_index,
			p.block_number, p.block_timestamp, p.ingested_at
		FROM bridge_payments p
		JOIN unnest($1::text[], $2::text[]) AS k(proxy_address, order_id)
			ON p.proxy_address = k.proxy_address AND p.order_id = k.order_id
	`, proxies, orderIDs)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.BridgePayment, error) {
		var (
			payment     model.BridgePayment
			logIndex    int64
			blockNumber int64
		)
		err := row.Scan(
			&payment.ProxyAddress,
			&payment.OrderID,
			&payment.Amount,
			&payment.Recipient,
			&payment.TxHash,
			&logIndex,
			&blockNumber,
			&payment.BlockTimestamp,
			&payment.IngestedAt,
		)
		payment.LogIndex = uint64(logIndex)
		payment.BlockNumber = uint64(blockNumber)
		return payment, err
	})
}

// ListInterfaces returns the registered contract interfaces.
func (s *Store) ListInterfaces(ctx context.Context) ([]model.ContractInterface, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, name, abi::text, implementation_address
		FROM contract_interfaces
	`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ContractInterface, error) {
		var item model.ContractInterface
		err := row.Scan(&item.Address, &item.Name, &item.ABI, &item.Implementation)
		return item, err
	})
}

func (s *Store) loadCursor(ctx context.Context, key string) (int64, error) {
	value, ok, err := s.loadState(ctx, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return model.NoBlock, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

// advanceCursor stores number unless the stored cursor is already ahead.
func (s *Store) advanceCursor(ctx context.Context, key string, number int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()
		WHERE sync_state.value::bigint < EXCLUDED.value::bigint
	`, key, strconv.FormatInt(number, 10))
	return err
}

func (s *Store) loadState(ctx context.Context, key string) (string, bool, error) {
	var value string
	row := s.pool.QueryRow(ctx, `SELECT value FROM sync_state WHERE key=$1`, key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}
