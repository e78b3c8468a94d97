package indexer

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"chainIndexer/internal/model"
)

func buildBlock(block *types.Block, ingestedAt time.Time) model.Block {
	return model.Block{
		Number:     block.NumberU64(),
		Hash:       block.Hash().Hex(),
		ParentHash: block.ParentHash().Hex(),
		Timestamp:  block.Time(),
		Miner:      block.Coinbase().Hex(),
		TxCount:    len(block.Transactions()),
		Size:       block.Size(),
		IngestedAt: ingestedAt.UTC(),
	}
}

func buildTransaction(block *types.Block, index int, tx *types.Transaction, receipt *types.Receipt, signer types.Signer) (model.Transaction, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("recover sender of %s: %w", tx.Hash().Hex(), err)
	}

	status := model.TxStatusSuccess
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = model.TxStatusReverted
	}

	record := model.Transaction{
		Hash:        tx.Hash().Hex(),
		BlockNumber: block.NumberU64(),
		BlockHash:   block.Hash().Hex(),
		TxIndex:     uint64(index),
		From:        from.Hex(),
		To:          addressPtr(tx.To()),
		Value:       tx.Value().String(),
		Input:       hexutil.Encode(tx.Data()),
		Nonce:       tx.Nonce(),
		GasUsed:     receipt.GasUsed,
		Status:      status,
	}
	if tx.To() == nil && receipt.ContractAddress != (common.Address{}) {
		record.ContractAddress = addressPtr(&receipt.ContractAddress)
	}
	return record, nil
}

func buildEvent(log *types.Log) model.Event {
	topics := make([]string, 0, len(log.Topics))
	for _, topic := range log.Topics {
		topics = append(topics, topic.Hex())
	}

	return model.Event{
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		BlockNumber: log.BlockNumber,
		Address:     log.Address.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(log.Data),
	}
}

func addressPtr(addr *common.Address) *string {
	if addr == nil {
		return nil
	}
	s := addr.Hex()
	return &s
}
