package bridge

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"chainIndexer/internal/model"
)

// CompositeKey identifies an order across both chains.
func CompositeKey(proxy, orderID string) string {
	return strings.ToLower(proxy) + "-" + orderID
}

// decodePayment converts an OrderPaid log. timestamp may be nil.
func decodePayment(event abi.Event, log types.Log, timestamp *time.Time, ingestedAt time.Time) (model.BridgePayment, error) {
	if len(log.Topics) != 4 || log.Topics[0] != event.ID {
		return model.BridgePayment{}, fmt.Errorf("unexpected topics for %s", event.Name)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	fields := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(fields, indexed, log.Topics[1:]); err != nil {
		return model.BridgePayment{}, fmt.Errorf("parse topics: %w", err)
	}
	if err := event.Inputs.NonIndexed().UnpackIntoMap(fields, log.Data); err != nil {
		return model.BridgePayment{}, fmt.Errorf("unpack data: %w", err)
	}

	proxy, ok1 := fields["proxy"].(common.Address)
	orderID, ok2 := fields["orderId"].(*big.Int)
	recipient, ok3 := fields["recipient"].(common.Address)
	amount, ok4 := fields["amount"].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return model.BridgePayment{}, fmt.Errorf("unexpected field types in %s", event.Name)
	}

	return model.BridgePayment{
		ProxyAddress:   strings.ToLower(proxy.Hex()),
		OrderID:        orderID.String(),
		Amount:         amount.String(),
		Recipient:      recipient.Hex(),
		TxHash:         log.TxHash.Hex(),
		LogIndex:       uint64(log.Index),
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: timestamp,
		IngestedAt:     ingestedAt.UTC(),
	}, nil
}
