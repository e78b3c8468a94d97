package bridge

import (
	"context"
	"fmt"

	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
)

// Reconcile joins order creations with payments by composite key. An order is
// completed when a payment with the same key exists and pending otherwise.
// The result keeps the order of orders.
func Reconcile(orders []model.OrderCreation, payments []model.BridgePayment) []model.CrossChainTransfer {
	paid := make(map[string]model.BridgePayment, len(payments))
	for _, payment := range payments {
		paid[CompositeKey(payment.ProxyAddress, payment.OrderID)] = payment
	}

	transfers := make([]model.CrossChainTransfer, 0, len(orders))
	for _, order := range orders {
		key := CompositeKey(order.ProxyAddress, order.OrderID)
		transfer := model.CrossChainTransfer{
			Key:    key,
			Order:  order,
			Status: model.ReconciliationPending,
		}
		if payment, ok := paid[key]; ok {
			p := payment
			transfer.Payment = &p
			transfer.Status = model.ReconciliationCompleted
		}
		transfers = append(transfers, transfer)
	}
	return transfers
}

// ListTransfers loads recent order creations and their payments and joins them.
func ListTransfers(ctx context.Context, reader storage.ReconciliationReader, query storage.OrderQuery) ([]model.CrossChainTransfer, error) {
	orders, err := reader.ListOrderCreations(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list order creations: %w", err)
	}
	if len(orders) == 0 {
		return nil, nil
	}
	payments, err := reader.BridgePaymentsForOrders(ctx, orders)
	if err != nil {
		return nil, fmt.Errorf("load bridge payments: %w", err)
	}
	return Reconcile(orders, payments), nil
}
