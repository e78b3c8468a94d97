package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

type eventKey struct {
	txHash   string
	logIndex uint64
}

type orderKey struct {
	proxy   string
	orderID string
}

// Store keeps everything in process memory. It honours the same
// insert-or-ignore contract as the Postgres store and backs dry runs and tests.
type Store struct {
	mu sync.RWMutex

	blocks       map[uint64]model.Block
	transactions map[string]model.Transaction
	events       map[eventKey]model.Event
	decoded      map[int64]model.DecodedEvent
	nextEventID  int64

	payments     map[orderKey]model.BridgePayment
	paymentTxLog map[string]struct{}

	state map[string]string
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		blocks:       make(map[uint64]model.Block),
		transactions: make(map[string]model.Transaction),
		events:       make(map[eventKey]model.Event),
		decoded:      make(map[int64]model.DecodedEvent),
		payments:     make(map[orderKey]model.BridgePayment),
		paymentTxLog: make(map[string]struct{}),
		state:        make(map[string]string),
	}
}

func (s *Store) Close() {}

// SaveBlock stores the bundle, ignoring rows that already exist.
func (s *Store) SaveBlock(_ context.Context, bundle model.BlockBundle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blocks[bundle.Block.Number]; !ok {
		s.blocks[bundle.Block.Number] = bundle.Block
	}
	for _, tx := range bundle.Transactions {
		if _, ok := s.transactions[tx.Hash]; !ok {
			s.transactions[tx.Hash] = tx
		}
	}
	for _, event := range bundle.Events {
		key := eventKey{txHash: event.TxHash, logIndex: event.LogIndex}
		stored, ok := s.events[key]
		if !ok {
			s.nextEventID++
			stored = event
			stored.ID = s.nextEventID
			stored.Decoded = nil
			s.events[key] = stored
		}
		if event.Decoded == nil {
			continue
		}
		if _, ok := s.decoded[stored.ID]; ok {
			continue
		}
		decoded := *event.Decoded
		decoded.EventID = stored.ID
		s.decoded[stored.ID] = decoded
	}
	return nil
}

func (s *Store) LastIndexedBlock(_ context.Context) (int64, error) {
	return s.cursor(model.StateLastIndexedBlock)
}

func (s *Store) SetLastIndexedBlock(_ context.Context, number int64) error {
	return s.advanceCursor(model.StateLastIndexedBlock, number)
}

func (s *Store) SyncStatus(_ context.Context) (model.SyncStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.state[model.StateSyncStatus]
	if !ok {
		return model.SyncStatusIdle, nil
	}
	return model.SyncStatus(value), nil
}

func (s *Store) SetSyncStatus(_ context.Context, status model.SyncStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid sync status: %q", status)
	}
	s.mu.Lock()
	s.state[model.StateSyncStatus] = string(status)
	s.mu.Unlock()
	return nil
}

func (s *Store) InsertBridgePayment(_ context.Context, payment model.BridgePayment) (bool, error) {
	payment.ProxyAddress = strings.ToLower(payment.ProxyAddress)
	key := orderKey{proxy: payment.ProxyAddress, orderID: payment.OrderID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[key]; ok {
		return false, nil
	}
	if _, ok := s.paymentTxLog[strings.ToLower(payment.TxHash)]; ok {
		return false, nil
	}
	s.payments[key] = payment
	s.paymentTxLog[strings.ToLower(payment.TxHash)] = struct{}{}
	return true, nil
}

func (s *Store) LastBridgeSyncedBlock(_ context.Context) (int64, error) {
	return s.cursor(model.StateLastBridgeSyncedBlock)
}

func (s *Store) SetLastBridgeSyncedBlock(_ context.Context, number int64) error {
	return s.advanceCursor(model.StateLastBridgeSyncedBlock, number)
}

// ListOrderCreations returns decoded order events, newest first.
func (s *Store) ListOrderCreations(_ context.Context, query storage.OrderQuery) ([]model.OrderCreation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.OrderCreation, 0)
	for _, event := range s.events {
		decoded, ok := s.decoded[event.ID]
		if !ok || decoded.Name != query.EventName {
			continue
		}
		orderID, ok := decoded.Args[query.OrderIDArg]
		if !ok {
			continue
		}
		out = append(out, model.OrderCreation{
			ProxyAddress: strings.ToLower(event.Address),
			OrderID:      fmt.Sprintf("%v", orderID),
			TxHash:       event.TxHash,
			BlockNumber:  event.BlockNumber,
			EventID:      event.ID,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber > out[j].BlockNumber
		}
		return out[i].EventID > out[j].EventID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

func (s *Store) BridgePaymentsForOrders(_ context.Context, orders []model.OrderCreation) ([]model.BridgePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.BridgePayment, 0, len(orders))
	for _, order := range orders {
		key := orderKey{proxy: strings.ToLower(order.ProxyAddress), orderID: order.OrderID}
		if payment, ok := s.payments[key]; ok {
			out = append(out, payment)
		}
	}
	return out, nil
}

// Blocks returns the stored blocks ordered by number.
func (s *Store) Blocks() []model.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Block, 0, len(s.blocks))
	for _, block := range s.blocks {
		out = append(out, block)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Transactions returns the stored transactions ordered by block and index.
func (s *Store) Transactions() []model.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].TxIndex < out[j].TxIndex
	})
	return out
}

// Events returns the stored events ordered by id, with their decoded form attached.
func (s *Store) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Event, 0, len(s.events))
	for _, event := range s.events {
		if decoded, ok := s.decoded[event.ID]; ok {
			d := decoded
			event.Decoded = &d
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BridgePayments returns the stored payments ordered by block number.
func (s *Store) BridgePayments() []model.BridgePayment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.BridgePayment, 0, len(s.payments))
	for _, payment := range s.payments {
		out = append(out, payment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].LogIndex < out[j].LogIndex
	})
	return out
}

func (s *Store) cursor(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursorLocked(key)
}

func (s *Store) cursorLocked(key string) (int64, error) {
	value, ok := s.state[key]
	if !ok {
		return model.NoBlock, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) advanceCursor(key string, number int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.cursorLocked(key)
	if err != nil {
		return err
	}
	if number > current {
		s.state[key] = strconv.FormatInt(number, 10)
	}
	return nil
}
