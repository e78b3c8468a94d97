package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"chainIndexer/internal/model"
	"chainIndexer/internal/storage"
	"chainIndexer/internal/storage/memory"
)

func TestCompositeKey(t *testing.T) {
	require.Equal(t, "0xaa-7", CompositeKey("0xAA", "7"))
}

func TestReconcileCompletedAndPending(t *testing.T) {
	orders := []model.OrderCreation{
		{ProxyAddress: "0xAA", OrderID: "7", BlockNumber: 50},
		{ProxyAddress: "0xaa", OrderID: "8", BlockNumber: 51},
	}
	payments := []model.BridgePayment{
		{ProxyAddress: "0xaa", OrderID: "7", BlockNumber: 80, TxHash: "0xpay"},
		{ProxyAddress: "0xbb", OrderID: "8", BlockNumber: 81, TxHash: "0xother"},
	}

	got := Reconcile(orders, payments)
	require.Len(t, got, 2)

	require.Equal(t, "0xaa-7", got[0].Key)
	require.Equal(t, model.ReconciliationCompleted, got[0].Status)
	require.NotNil(t, got[0].Payment)
	require.Equal(t, "0xpay", got[0].Payment.TxHash)

	require.Equal(t, "0xaa-8", got[1].Key)
	require.Equal(t, model.ReconciliationPending, got[1].Status, "payment for another proxy does not match")
	require.Nil(t, got[1].Payment)
}

func TestListTransfersJoinsBothChains(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	proxy := "0x00000000000000000000000000000000000000AA"

	require.NoError(t, store.SaveBlock(ctx, model.BlockBundle{
		Block:        model.Block{Number: 50},
		Transactions: []model.Transaction{{Hash: "0xorder", BlockNumber: 50}},
		Events: []model.Event{{
			TxHash: "0xorder", BlockNumber: 50, Address: proxy,
			Decoded: &model.DecodedEvent{Name: "OrderCreated", Args: map[string]interface{}{"orderId": "7"}},
		}},
	}))
	query := storage.OrderQuery{EventName: "OrderCreated", OrderIDArg: "orderId"}

	transfers, err := ListTransfers(ctx, store, query)
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Equal(t, "0x00000000000000000000000000000000000000aa-7", transfers[0].Key)
	require.Equal(t, model.ReconciliationPending, transfers[0].Status)

	_, err = store.InsertBridgePayment(ctx, model.BridgePayment{
		ProxyAddress: proxy, OrderID: "7", TxHash: "0xpay", BlockNumber: 80,
	})
	require.NoError(t, err)

	transfers, err = ListTransfers(ctx, store, query)
	require.NoError(t, err)
	require.Equal(t, model.ReconciliationCompleted, transfers[0].Status)
}
