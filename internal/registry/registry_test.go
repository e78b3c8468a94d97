package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"chainIndexer/internal/model"
)

const transferABI = `[{"anonymous":false,"name":"Transfer","type":"event","inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}]}]`

type staticSource struct {
	items []model.ContractInterface
	err   error
	calls int
}

func (s *staticSource) ListInterfaces(context.Context) ([]model.ContractInterface, error) {
	s.calls++
	return s.items, s.err
}

func TestCandidatesRanking(t *testing.T) {
	proxy := "0x00000000000000000000000000000000000000cc"
	impl := "0x00000000000000000000000000000000000000bb"
	source := &staticSource{items: []model.ContractInterface{
		{Address: "0x00000000000000000000000000000000000000aa", Name: "A", ABI: transferABI},
		{Address: impl, Name: "Impl", ABI: transferABI},
		{Address: proxy, Name: "Proxy", ABI: transferABI, Implementation: &impl},
		{Address: "0x00000000000000000000000000000000000000dd", Name: "Broken", ABI: "not json"},
	}}

	reg := New(source, 0, nil)
	ctx := context.Background()

	got := reg.Candidates(ctx, common.HexToAddress(proxy))
	require.Len(t, got, 3)
	require.Equal(t, "Proxy", got[0].Name)
	require.Equal(t, "Impl", got[1].Name)
	require.Equal(t, "A", got[2].Name)

	unknown := reg.Candidates(ctx, common.HexToAddress("0x00000000000000000000000000000000000000ee"))
	require.Len(t, unknown, 3)
	require.Equal(t, "A", unknown[0].Name)

	_, ok := reg.Lookup(ctx, common.HexToAddress("0x00000000000000000000000000000000000000dd"))
	require.False(t, ok, "unparsable interface must be skipped")

	require.Equal(t, 1, source.calls, "zero refresh loads once")
}

func TestRegistryRefreshKeepsSnapshotOnError(t *testing.T) {
	source := &staticSource{items: []model.ContractInterface{
		{Address: "0x00000000000000000000000000000000000000aa", Name: "A", ABI: transferABI},
	}}
	reg := New(source, time.Minute, nil)
	now := time.Unix(1_700_000_000, 0)
	reg.now = func() time.Time { return now }

	ctx := context.Background()
	_, ok := reg.Lookup(ctx, common.HexToAddress("0xaa"))
	require.True(t, ok)

	source.err = errors.New("db down")
	now = now.Add(2 * time.Minute)
	_, ok = reg.Lookup(ctx, common.HexToAddress("0xaa"))
	require.True(t, ok, "previous snapshot kept")
	require.Equal(t, 2, source.calls)

	_, _ = reg.Lookup(ctx, common.HexToAddress("0xaa"))
	require.Equal(t, 2, source.calls, "failed reload is not retried before the next interval")
}

func TestFileSourceAndMultiSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "token.json"), []byte(transferABI), 0o644))
	doc := `interfaces:
  - address: "0x00000000000000000000000000000000000000aa"
    name: Token
    abi_file: token.json
  - address: "0x00000000000000000000000000000000000000bb"
    name: Inline
    abi: '` + transferABI + `'
`
	path := filepath.Join(dir, "interfaces.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	file := &FileSource{Path: path}
	items, err := file.ListInterfaces(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Token", items[0].Name)
	require.JSONEq(t, transferABI, items[0].ABI)

	db := &staticSource{items: []model.ContractInterface{
		{Address: "0x00000000000000000000000000000000000000AA", Name: "FromDB", ABI: transferABI},
		{Address: "0x00000000000000000000000000000000000000cc", Name: "OnlyDB", ABI: transferABI},
	}}
	merged, err := MultiSource{db, file}.ListInterfaces(context.Background())
	require.NoError(t, err)
	require.Len(t, merged, 3)
	require.Equal(t, "Token", merged[0].Name, "file entry overrides db entry")
	require.Equal(t, "OnlyDB", merged[1].Name)
	require.Equal(t, "Inline", merged[2].Name)
}

func TestFileSourceMissingABI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interfaces.yaml")
	require.NoError(t, os.WriteFile(path, []byte("interfaces:\n  - address: \"0x01\"\n"), 0o644))

	_, err := (&FileSource{Path: path}).ListInterfaces(context.Background())
	require.Error(t, err)
}
