package model

import "time"

// MaxTopics is the number of topic slots a log can carry.
const MaxTopics = 4

// Event is a raw log. (TxHash, LogIndex) is its natural key; ID is assigned by
// the store on insert.
type Event struct {
	ID          int64         `json:"id,omitempty"`
	TxHash      string        `json:"tx_hash"`
	LogIndex    uint64        `json:"log_index"`
	BlockNumber uint64        `json:"block_number"`
	Address     string        `json:"address"`
	Topics      []string      `json:"topics"`
	Data        string        `json:"data"`
	Decoded     *DecodedEvent `json:"decoded,omitempty"`
}

// Topic returns the topic in slot i, or "" if the slot is empty.
func (e Event) Topic(i int) string {
	if i < 0 || i >= len(e.Topics) {
		return ""
	}
	return e.Topics[i]
}

// DecodedEvent is the structured form of an Event produced from a known
// contract interface.
type DecodedEvent struct {
	EventID   int64                  `json:"event_id,omitempty"`
	Name      string                 `json:"name"`
	Args      map[string]interface{} `json:"args"`
	Interface string                 `json:"interface"`
	DecodedAt time.Time              `json:"decoded_at"`
}

// ContractInterface links a contract address to its ABI. Implementation is set
// when the address is a proxy.
type ContractInterface struct {
	Address        string  `json:"address" yaml:"address"`
	Name           string  `json:"name" yaml:"name"`
	ABI            string  `json:"abi" yaml:"abi"`
	Implementation *string `json:"implementation,omitempty" yaml:"implementation,omitempty"`
}
