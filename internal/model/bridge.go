package model

import "time"

// BridgePayment is a payment observed on the destination chain. It is unique
// by (ProxyAddress, OrderID) and by TxHash.
type BridgePayment struct {
	ProxyAddress   string     `json:"proxy_address"`
	OrderID        string     `json:"order_id"`
	Amount         string     `json:"amount"`
	Recipient      string     `json:"recipient"`
	TxHash         string     `json:"tx_hash"`
	LogIndex       uint64     `json:"log_index"`
	BlockNumber    uint64     `json:"block_number"`
	BlockTimestamp *time.Time `json:"block_timestamp,omitempty"`
	IngestedAt     time.Time  `json:"ingested_at"`
}

// OrderCreation is an order-creation event emitted by a proxy on the source chain.
type OrderCreation struct {
	ProxyAddress string `json:"proxy_address"`
	OrderID      string `json:"order_id"`
	TxHash       string `json:"tx_hash"`
	BlockNumber  uint64 `json:"block_number"`
	EventID      int64  `json:"event_id"`
}

// ReconciliationStatus tells whether an order has been paid on the destination chain.
type ReconciliationStatus string

const (
	ReconciliationPending   ReconciliationStatus = "pending"
	ReconciliationCompleted ReconciliationStatus = "completed"
)

// CrossChainTransfer joins an order creation with its payment, if any.
type CrossChainTransfer struct {
	Key     string               `json:"key"`
	Order   OrderCreation        `json:"order"`
	Payment *BridgePayment       `json:"payment,omitempty"`
	Status  ReconciliationStatus `json:"status"`
}
