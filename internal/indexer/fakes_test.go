package indexer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"chainIndexer/internal/decoder"
	"chainIndexer/internal/model"
)

var testChainID = big.NewInt(1337)

// fakeChain serves blocks and receipts from memory.
type fakeChain struct {
	mu       sync.Mutex
	head     uint64
	headErr  error
	blocks   map[uint64]*types.Block
	receipts map[common.Hash]*types.Receipt
	failAt   map[uint64]error
	calls    map[uint64]int
	headHook  func()
	blockHook func(number uint64)
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:   make(map[uint64]*types.Block),
		receipts: make(map[common.Hash]*types.Receipt),
		failAt:   make(map[uint64]error),
		calls:    make(map[uint64]int),
	}
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	if f.headHook != nil {
		f.headHook()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, f.headErr
}

func (f *fakeChain) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	if f.blockHook != nil {
		f.blockHook(number.Uint64())
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := number.Uint64()
	f.calls[n]++
	if err := f.failAt[n]; err != nil {
		return nil, err
	}
	block, ok := f.blocks[n]
	if !ok {
		return nil, fmt.Errorf("block %d: %w", n, model.ErrNotFound)
	}
	return block, nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	receipt, ok := f.receipts[hash]
	if !ok {
		return nil, fmt.Errorf("receipt %s: %w", hash.Hex(), model.ErrNotFound)
	}
	return receipt, nil
}

func (f *fakeChain) setHead(head uint64) {
	f.mu.Lock()
	f.head = head
	f.mu.Unlock()
}

func (f *fakeChain) setHeadErr(err error) {
	f.mu.Lock()
	f.headErr = err
	f.mu.Unlock()
}

func (f *fakeChain) addEmptyBlocks(from, to uint64) {
	for n := from; n <= to; n++ {
		f.addBlock(n, nil, nil)
	}
}

func (f *fakeChain) addBlock(number uint64, txs []*types.Transaction, receipts []*types.Receipt) *types.Block {
	header := &types.Header{
		Number:     new(big.Int).SetUint64(number),
		ParentHash: common.BigToHash(new(big.Int).SetUint64(number)),
		Time:       1_700_000_000 + number*12,
		Coinbase:   common.HexToAddress("0x00000000000000000000000000000000000000c0"),
		Difficulty: big.NewInt(0),
		GasLimit:   30_000_000,
	}
	block := types.NewBlockWithHeader(header).WithBody(txs, nil)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[number] = block
	for i, receipt := range receipts {
		f.receipts[txs[i].Hash()] = receipt
	}
	return block
}

func (f *fakeChain) callsFor(number uint64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[number]
}

type staticResolver []decoder.Interface

func (r staticResolver) Candidates(context.Context, common.Address) []decoder.Interface {
	return r
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func signTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, to *common.Address, value int64, data []byte) *types.Transaction {
	t.Helper()
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(testChainID), &types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    big.NewInt(value),
		Gas:      100_000,
		GasPrice: big.NewInt(1),
		Data:     data,
	})
	if err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}
