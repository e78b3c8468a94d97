package decoder

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"chainIndexer/internal/model"
)

// Decode tries each candidate in order and returns the first structural match.
// It returns nil when no candidate matches the log. DecodedAt is left for the
// caller to stamp.
func Decode(event model.Event, candidates []Interface) *model.DecodedEvent {
	if len(event.Topics) == 0 {
		return nil
	}
	topics, err := parseTopicHashes(event.Topics)
	if err != nil {
		return nil
	}
	data, err := hexutil.Decode(normalizeHex(event.Data))
	if err != nil {
		return nil
	}

	for _, candidate := range candidates {
		name, args, err := decodeWith(candidate.ABI, topics, data)
		if err != nil {
			continue
		}
		return &model.DecodedEvent{
			Name:      name,
			Args:      args,
			Interface: candidate.Address.Hex(),
		}
	}
	return nil
}

// decodeWith decodes against a single ABI. The ABI unpacker can panic on
// hostile input, so panics are turned into errors.
func decodeWith(contractABI abi.ABI, topics []common.Hash, data []byte) (name string, args map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unpack panic: %v", r)
		}
	}()

	event, err := contractABI.EventByID(topics[0])
	if err != nil {
		return "", nil, err
	}
	if event.Anonymous {
		return "", nil, fmt.Errorf("anonymous event %s", event.Name)
	}

	indexed := indexedArguments(event.Inputs)
	if len(topics) != len(indexed)+1 {
		return "", nil, fmt.Errorf("expected %d topics, got %d", len(indexed)+1, len(topics))
	}

	values := make(map[string]interface{})
	if len(indexed) > 0 {
		if err := abi.ParseTopicsIntoMap(values, indexed, topics[1:]); err != nil {
			return "", nil, fmt.Errorf("parse topics: %w", err)
		}
	}

	nonIndexed := event.Inputs.NonIndexed()
	if len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(values, data); err != nil {
			return "", nil, fmt.Errorf("unpack %s: %w", event.Name, err)
		}
	} else if len(data) > 0 {
		return "", nil, fmt.Errorf("unexpected data for %s", event.Name)
	}

	return event.RawName, serializeArgs(values), nil
}

func parseTopicHashes(topics []string) ([]common.Hash, error) {
	if len(topics) > model.MaxTopics {
		return nil, fmt.Errorf("too many topics: %d", len(topics))
	}
	out := make([]common.Hash, 0, len(topics))
	for _, topic := range topics {
		data, err := hexutil.Decode(normalizeHex(topic))
		if err != nil {
			return nil, fmt.Errorf("invalid topic: %w", err)
		}
		if len(data) > 32 {
			return nil, fmt.Errorf("topic length %d", len(data))
		}
		out = append(out, common.BytesToHash(data))
	}
	return out, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

// normalizeHex maps the empty payload to "0x" so hexutil accepts it.
func normalizeHex(s string) string {
	if s == "" {
		return "0x"
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "0x" + s
	}
	return s
}

func serializeArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for key, value := range args {
		out[key] = serializeValue(value)
	}
	return out
}

// serializeValue converts ABI values to JSON-friendly values. Integers become
// decimal strings so no precision is lost.
func serializeValue(value interface{}) interface{} {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprintf("%d", v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = serializeValue(item)
		}
		return out
	case map[string]interface{}:
		return serializeArgs(v)
	default:
		return value
	}
}
