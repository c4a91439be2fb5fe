package rpc

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	internalcommon "github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/stretchr/testify/require"
)

var token = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

// nodeError is returned by fakeEth; its data is forwarded in the JSON-RPC error.
type nodeError struct {
	msg  string
	data string
}

func (e nodeError) Error() string  { return e.msg }
func (e nodeError) ErrorCode() int { return -32005 }
func (e nodeError) ErrorData() any { return e.data }

// fakeEth serves the eth_ namespace of a small chain.
type fakeEth struct {
	mu       sync.Mutex
	failures int
	failWith error
	filters  []map[string]any
	calls    map[string]int
}

func (f *fakeEth) fail(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++

	if f.failures > 0 {
		f.failures--
		return f.failWith
	}
	return nil
}

func (f *fakeEth) GetLogs(_ context.Context, filter map[string]any) ([]types.Log, error) {
	if err := f.fail("eth_getLogs"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()

	from, _ := filter["fromBlock"].(string)
	block, err := internalcommon.ParseUint64orHex(&from)
	if err != nil {
		return nil, err
	}

	return []types.Log{{
		Address:     token,
		Topics:      []common.Hash{common.HexToHash("0xddf252ad")},
		Data:        []byte{0x01},
		BlockNumber: block,
		TxHash:      common.HexToHash("0x7a"),
		BlockHash:   common.HexToHash("0xb1"),
	}}, nil
}

func (f *fakeEth) GetBlockByNumber(_ context.Context, number string, _ bool) (*types.Header, error) {
	if err := f.fail("eth_getBlockByNumber"); err != nil {
		return nil, err
	}

	var n uint64
	switch number {
	case "latest":
		n = 100
	case "finalized":
		n = 90
	case "safe":
		n = 95
	default:
		var err error
		if n, err = internalcommon.ParseUint64orHex(&number); err != nil {
			return nil, err
		}
	}

	return &types.Header{
		Number:     new(big.Int).SetUint64(n),
		Difficulty: big.NewInt(0),
		Time:       n * 12,
	}, nil
}

func newTestClient(t *testing.T, eth *fakeEth, retry *config.RetryConfig) *Client {
	t.Helper()

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", eth))
	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		server.Stop()
	})

	client, err := NewClient(context.Background(), config.NetworkConfig{
		Name:   "testnet",
		RPCURL: ts.URL,
		Retry:  retry,
	}, logger.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestClient_GetLogs(t *testing.T) {
	t.Parallel()

	eth := &fakeEth{}
	client := newTestClient(t, eth, nil)
	require.Equal(t, "testnet", client.Network())

	logs, err := client.GetLogs(context.Background(), ethereum.FilterQuery{
		FromBlock: big.NewInt(42),
		ToBlock:   big.NewInt(50),
		Addresses: []common.Address{token},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, uint64(42), logs[0].BlockNumber)
	require.Equal(t, token, logs[0].Address)
}

func TestClient_Headers(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, &fakeEth{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		get  func() (*types.Header, error)
		want uint64
	}{
		{name: "by number", get: func() (*types.Header, error) { return client.GetBlockHeader(ctx, 7) }, want: 7},
		{name: "latest", get: func() (*types.Header, error) { return client.GetLatestBlockHeader(ctx) }, want: 100},
		{name: "finalized", get: func() (*types.Header, error) { return client.GetFinalizedBlockHeader(ctx) }, want: 90},
		{name: "safe", get: func() (*types.Header, error) { return client.GetSafeBlockHeader(ctx) }, want: 95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header, err := tt.get()
			require.NoError(t, err)
			require.Equal(t, tt.want, header.Number.Uint64())
		})
	}
}

func TestClient_BatchGetLogs(t *testing.T) {
	t.Parallel()

	eth := &fakeEth{}
	client := newTestClient(t, eth, nil)

	results, err := client.BatchGetLogs(context.Background(), []ethereum.FilterQuery{
		{FromBlock: big.NewInt(1), ToBlock: big.NewInt(2), Addresses: []common.Address{token}},
		{FromBlock: big.NewInt(3), ToBlock: big.NewInt(4), Topics: [][]common.Hash{{common.HexToHash("0xddf252ad")}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, uint64(1), results[0][0].BlockNumber)
	require.Equal(t, uint64(3), results[1][0].BlockNumber)

	eth.mu.Lock()
	defer eth.mu.Unlock()
	require.Len(t, eth.filters, 2)
	// a single address is sent as a plain string
	require.Equal(t, token.Hex(), common.HexToAddress(eth.filters[0]["address"].(string)).Hex())
	require.Equal(t, "0x2", eth.filters[0]["toBlock"])
	require.NotContains(t, eth.filters[1], "address")
}

func TestClient_BatchGetBlockHeaders(t *testing.T) {
	t.Parallel()

	eth := &fakeEth{}
	client := newTestClient(t, eth, nil)

	blocks := make([]uint64, maxHeaderBatch+5)
	for i := range blocks {
		blocks[i] = uint64(i)
	}

	headers, err := client.BatchGetBlockHeaders(context.Background(), blocks)
	require.NoError(t, err)
	require.Len(t, headers, len(blocks))
	for i, header := range headers {
		require.Equal(t, uint64(i), header.Number.Uint64())
	}

	eth.mu.Lock()
	defer eth.mu.Unlock()
	require.Equal(t, len(blocks), eth.calls["eth_getBlockByNumber"])
}

func TestClient_RetriesTransientErrors(t *testing.T) {
	t.Parallel()

	eth := &fakeEth{failures: 2, failWith: errors.New("503 service unavailable")}
	client := newTestClient(t, eth, &config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    internalcommon.NewDuration(time.Millisecond),
		MaxBackoff:        internalcommon.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2,
	})

	header, err := client.GetLatestBlockHeader(context.Background())
	require.NoError(t, err)
	require.Equal(t, uint64(100), header.Number.Uint64())

	eth.mu.Lock()
	defer eth.mu.Unlock()
	require.Equal(t, 3, eth.calls["eth_getBlockByNumber"])
}

func TestClient_TooManyResults(t *testing.T) {
	t.Parallel()

	eth := &fakeEth{
		failures: 1,
		failWith: nodeError{
			msg:  "query exceeds limit",
			data: "Query returned more than 10000 results. Try with this block range [0x10, 0x20].",
		},
	}
	client := newTestClient(t, eth, nil)

	_, err := client.BatchGetLogs(context.Background(), []ethereum.FilterQuery{
		{FromBlock: big.NewInt(0x10), ToBlock: big.NewInt(0x100)},
	})
	require.Error(t, err)

	tooMany, data := IsTooManyResultsError(err)
	require.True(t, tooMany)

	from, to, ok := ParseSuggestedBlockRange(data)
	require.True(t, ok)
	require.Equal(t, uint64(0x10), from)
	require.Equal(t, uint64(0x20), to)
}

func TestToFilterArg(t *testing.T) {
	t.Parallel()

	other := common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	blockHash := common.HexToHash("0xb1")

	tests := []struct {
		name  string
		query ethereum.FilterQuery
		want  map[string]any
	}{
		{
			name:  "range without address",
			query: ethereum.FilterQuery{FromBlock: big.NewInt(16), ToBlock: big.NewInt(255)},
			want:  map[string]any{"topics": [][]common.Hash(nil), "fromBlock": "0x10", "toBlock": "0xff"},
		},
		{
			name:  "single address",
			query: ethereum.FilterQuery{Addresses: []common.Address{token}},
			want:  map[string]any{"topics": [][]common.Hash(nil), "address": token},
		},
		{
			name:  "several addresses",
			query: ethereum.FilterQuery{Addresses: []common.Address{token, other}},
			want:  map[string]any{"topics": [][]common.Hash(nil), "address": []common.Address{token, other}},
		},
		{
			name:  "block hash wins over range",
			query: ethereum.FilterQuery{BlockHash: &blockHash, FromBlock: big.NewInt(1)},
			want:  map[string]any{"topics": [][]common.Hash(nil), "blockHash": blockHash},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, toFilterArg(tt.query))
		})
	}
}
