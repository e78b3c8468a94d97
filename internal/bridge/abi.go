package bridge

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// PaymentEventName is the event the receiver contract emits when it pays out
// an order created on the source chain.
const PaymentEventName = "OrderPaid"

const receiverABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "proxy", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "orderId", "type": "uint256"},
      {"indexed": true, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "OrderPaid",
    "type": "event"
  }
]`

var (
	receiverABI     abi.ABI
	receiverABIOnce sync.Once
	receiverABIErr  error
)

// ReceiverABI returns the parsed receiver contract ABI.
func ReceiverABI() (abi.ABI, error) {
	receiverABIOnce.Do(func() {
		receiverABI, receiverABIErr = abi.JSON(strings.NewReader(receiverABIJSON))
	})
	return receiverABI, receiverABIErr
}
