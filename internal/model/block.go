package model

import "time"

// Block is the normalized representation of a chain block for storage.
type Block struct {
	Number     uint64    `json:"number"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parent_hash"`
	Timestamp  uint64    `json:"timestamp"`
	Miner      string    `json:"miner"`
	TxCount    int       `json:"tx_count"`
	Size       uint64    `json:"size"`
	IngestedAt time.Time `json:"ingested_at"`
}

// TxStatus is the execution outcome reported by the receipt.
type TxStatus string

const (
	TxStatusSuccess  TxStatus = "success"
	TxStatusReverted TxStatus = "reverted"
)

// Transaction is the normalized representation of a transaction and its receipt.
type Transaction struct {
	Hash            string   `json:"hash"`
	BlockNumber     uint64   `json:"block_number"`
	BlockHash       string   `json:"block_hash"`
	TxIndex         uint64   `json:"tx_index"`
	From            string   `json:"from"`
	To              *string  `json:"to,omitempty"`
	Value           string   `json:"value"`
	Input           string   `json:"input"`
	Nonce           uint64   `json:"nonce"`
	GasUsed         uint64   `json:"gas_used"`
	Status          TxStatus `json:"status"`
	ContractAddress *string  `json:"contract_address,omitempty"`
}

// IsContractCreation reports whether the transaction deployed a contract.
func (t Transaction) IsContractCreation() bool {
	return t.To == nil
}

// BlockBundle groups everything ingested for a single block so it can be
// persisted in one unit.
type BlockBundle struct {
	Block        Block
	Transactions []Transaction
	Events       []Event
}
