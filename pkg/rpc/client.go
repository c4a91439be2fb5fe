package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient is the provider a dispatcher reads one network through. Every contract binding
// on a network shares the same EthClient, which is dialed once per network.
type EthClient interface {
	Close()

	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// BatchGetLogs runs every query in one round trip. The result at index i holds
	// the logs of queries[i].
	BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error)

	GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error)
	BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error)

	// Head tags. Reorg-safe contracts stop dispatching at the finalized block.
	GetLatestBlockHeader(ctx context.Context) (*types.Header, error)
	GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error)
	GetSafeBlockHeader(ctx context.Context) (*types.Header, error)
}
