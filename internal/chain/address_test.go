package chain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestParseAddresses(t *testing.T) {
	got, err := ParseAddresses([]string{
		" 0x00000000000000000000000000000000000000aa ",
		"",
		"0x00000000000000000000000000000000000000AA",
		"0x00000000000000000000000000000000000000bb",
	})
	require.NoError(t, err)
	require.Equal(t, []common.Address{
		common.HexToAddress("0xaa"),
		common.HexToAddress("0xbb"),
	}, got)

	_, err = ParseAddresses([]string{"0x1234"})
	require.Error(t, err)
}
