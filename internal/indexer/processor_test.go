package indexer

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"chainIndexer/internal/decoder"
	"chainIndexer/internal/metrics"
	"chainIndexer/internal/model"
	"chainIndexer/internal/storage/memory"
)

const orderABI = `[
  {"anonymous": false, "name": "OrderCreated", "type": "event", "inputs": [
    {"indexed": true, "name": "orderId", "type": "uint256"},
    {"indexed": false, "name": "buyer", "type": "address"},
    {"indexed": false, "name": "amount", "type": "uint256"}
  ]}
]`

var proxyAddress = common.HexToAddress("0x00000000000000000000000000000000000000aa")

func TestProcessBlockRangeEmptyBlocks(t *testing.T) {
	chain := newFakeChain()
	chain.addEmptyBlocks(100, 105)
	store := memory.New()
	p := NewProcessor(ProcessorConfig{FromBlock: 100, BatchSize: 4}, testChainID, chain, nil, store, nil, nil)

	type progress struct{ done, total uint64 }
	var calls []progress
	err := p.ProcessBlockRange(context.Background(), 100, 105, func(done, total uint64) {
		calls = append(calls, progress{done, total})
	})
	require.NoError(t, err)

	blocks := store.Blocks()
	require.Len(t, blocks, 6)
	require.EqualValues(t, 100, blocks[0].Number)
	require.EqualValues(t, 105, blocks[5].Number)
	require.Empty(t, store.Transactions())

	cursor, err := store.LastIndexedBlock(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 105, cursor)

	require.Equal(t, []progress{{4, 6}, {6, 6}}, calls)
}

func TestProcessBlockRangeKeepsCompletedBatches(t *testing.T) {
	chain := newFakeChain()
	chain.addEmptyBlocks(100, 107)
	chain.failAt[106] = errors.New("rpc unavailable")
	store := memory.New()
	p := NewProcessor(ProcessorConfig{FromBlock: 100, BatchSize: 4}, testChainID, chain, nil, store, nil, nil)

	err := p.ProcessBlockRange(context.Background(), 100, 107, nil)
	require.Error(t, err)

	cursor, err := store.LastIndexedBlock(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 103, cursor, "cursor stops at the last complete batch")
}

func TestProcessBlockRangeAheadOfCursorKeepsCursor(t *testing.T) {
	chain := newFakeChain()
	chain.addEmptyBlocks(0, 30)
	store := memory.New()
	ctx := context.Background()
	require.NoError(t, store.SetLastIndexedBlock(ctx, 5))
	p := NewProcessor(ProcessorConfig{BatchSize: 3}, testChainID, chain, nil, store, nil, nil)

	require.NoError(t, p.ProcessBlockRange(ctx, 20, 25, nil))
	require.Len(t, store.Blocks(), 6, "blocks of the ad-hoc range are stored")
	cursor, err := store.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 5, cursor, "cursor does not jump over 6-19")

	// A range that overlaps the prefix extends it batch by batch.
	require.NoError(t, p.ProcessBlockRange(ctx, 4, 11, nil))
	cursor, err = store.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 11, cursor)
}

func TestProcessBlockRangeWithoutCursorStartsAtFloor(t *testing.T) {
	chain := newFakeChain()
	chain.addEmptyBlocks(0, 10)
	store := memory.New()
	ctx := context.Background()
	p := NewProcessor(ProcessorConfig{FromBlock: 2, BatchSize: 4}, testChainID, chain, nil, store, nil, nil)

	require.NoError(t, p.ProcessBlockRange(ctx, 5, 8, nil))
	cursor, err := store.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.Equal(t, model.NoBlock, cursor)

	require.NoError(t, p.ProcessBlockRange(ctx, 2, 10, nil))
	cursor, err = store.LastIndexedBlock(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 10, cursor)
}

func TestProcessBlockNotFound(t *testing.T) {
	p := NewProcessor(ProcessorConfig{}, testChainID, newFakeChain(), nil, memory.New(), nil, nil)

	err := p.ProcessBlock(context.Background(), 999)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestProcessBlockMissingReceipt(t *testing.T) {
	chain := newFakeChain()
	key := newKey(t)
	to := common.HexToAddress("0x0000000000000000000000000000000000000001")
	chain.addBlock(10, []*types.Transaction{signTx(t, key, 0, &to, 1, nil)}, nil)
	store := memory.New()
	p := NewProcessor(ProcessorConfig{}, testChainID, chain, nil, store, nil, nil)

	err := p.ProcessBlock(context.Background(), 10)
	require.ErrorIs(t, err, model.ErrNotFound)
	require.Empty(t, store.Blocks(), "nothing is saved for a partial block")
}

func TestProcessBlockIsIdempotentAndDecodes(t *testing.T) {
	orders, err := abi.JSON(strings.NewReader(orderABI))
	require.NoError(t, err)
	data, err := orders.Events["OrderCreated"].Inputs.NonIndexed().Pack(
		common.HexToAddress("0x5555555555555555555555555555555555555555"), big.NewInt(900))
	require.NoError(t, err)

	key := newKey(t)
	sender := crypto.PubkeyToAddress(key.PublicKey)
	deploy := signTx(t, key, 0, nil, 0, []byte{0x60, 0x80})
	call := signTx(t, key, 1, &proxyAddress, 5, []byte{0x01})
	created := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	chain := newFakeChain()
	chain.addBlock(50, []*types.Transaction{deploy, call}, []*types.Receipt{
		{Status: types.ReceiptStatusSuccessful, GasUsed: 53_000, ContractAddress: created},
		{Status: types.ReceiptStatusFailed, GasUsed: 30_000, Logs: []*types.Log{
			{
				Address:     proxyAddress,
				Topics:      []common.Hash{orders.Events["OrderCreated"].ID, common.BigToHash(big.NewInt(7))},
				Data:        data,
				BlockNumber: 50,
				TxHash:      call.Hash(),
				Index:       0,
			},
			{
				Address:     proxyAddress,
				Topics:      []common.Hash{common.HexToHash("0xdeadbeef")},
				BlockNumber: 50,
				TxHash:      call.Hash(),
				Index:       1,
			},
		}},
	})

	iface, err := decoder.ParseInterface(model.ContractInterface{Address: proxyAddress.Hex(), Name: "Proxy", ABI: orderABI})
	require.NoError(t, err)

	store := memory.New()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	p := NewProcessor(ProcessorConfig{}, testChainID, chain, staticResolver{iface}, store, m, nil)

	ctx := context.Background()
	require.NoError(t, p.ProcessBlock(ctx, 50))
	require.NoError(t, p.ProcessBlock(ctx, 50))

	blocks := store.Blocks()
	require.Len(t, blocks, 1)
	require.Equal(t, 2, blocks[0].TxCount)
	require.Equal(t, uint64(1_700_000_600), blocks[0].Timestamp)

	txs := store.Transactions()
	require.Len(t, txs, 2)
	require.True(t, txs[0].IsContractCreation())
	require.NotNil(t, txs[0].ContractAddress)
	require.Equal(t, created.Hex(), *txs[0].ContractAddress)
	require.Equal(t, sender.Hex(), txs[0].From)
	require.Equal(t, model.TxStatusSuccess, txs[0].Status)
	require.Equal(t, model.TxStatusReverted, txs[1].Status)
	require.Equal(t, proxyAddress.Hex(), *txs[1].To)
	require.Equal(t, "5", txs[1].Value)
	require.Equal(t, "0x01", txs[1].Input)
	require.Nil(t, txs[1].ContractAddress)

	events := store.Events()
	require.Len(t, events, 2)
	require.NotNil(t, events[0].Decoded)
	require.Equal(t, "OrderCreated", events[0].Decoded.Name)
	require.Equal(t, "7", events[0].Decoded.Args["orderId"])
	require.Equal(t, "0x", events[1].Data)
	require.Nil(t, events[1].Decoded, "unknown logs are stored raw")

	require.Equal(t, 2.0, testutil.ToFloat64(m.BlocksProcessedTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(m.DecoderResultsTotal.WithLabelValues("undecoded")))
}

func TestProcessBlockRetriesWhenEnabled(t *testing.T) {
	chain := newFakeChain()
	chain.addEmptyBlocks(1, 1)
	flaky := &flakyChain{fakeChain: chain, failures: 2}
	store := memory.New()

	p := NewProcessor(ProcessorConfig{MaxRetries: 2, RetryBackoff: 1}, testChainID, flaky, nil, store, nil, nil)
	require.NoError(t, p.ProcessBlock(context.Background(), 1))
	require.Len(t, store.Blocks(), 1)
}

type flakyChain struct {
	*fakeChain
	failures int
}

func (f *flakyChain) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("temporary failure")
	}
	return f.fakeChain.BlockByNumber(ctx, number)
}
