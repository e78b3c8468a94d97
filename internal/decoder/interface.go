package decoder

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"chainIndexer/internal/model"
)

// Interface is a parsed contract interface ready for decoding.
type Interface struct {
	Address        common.Address
	Name           string
	Implementation *common.Address
	ABI            abi.ABI
}

// ParseInterface parses the ABI JSON of a registered contract interface.
func ParseInterface(ci model.ContractInterface) (Interface, error) {
	if !common.IsHexAddress(ci.Address) {
		return Interface{}, fmt.Errorf("invalid interface address: %s", ci.Address)
	}
	parsed, err := abi.JSON(strings.NewReader(ci.ABI))
	if err != nil {
		return Interface{}, fmt.Errorf("parse abi for %s: %w", ci.Address, err)
	}

	out := Interface{
		Address: common.HexToAddress(ci.Address),
		Name:    ci.Name,
		ABI:     parsed,
	}
	if ci.Implementation != nil && *ci.Implementation != "" {
		if !common.IsHexAddress(*ci.Implementation) {
			return Interface{}, fmt.Errorf("invalid implementation address: %s", *ci.Implementation)
		}
		impl := common.HexToAddress(*ci.Implementation)
		out.Implementation = &impl
	}
	return out, nil
}
