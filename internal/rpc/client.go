package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	pkgrpc "github.com/goran-ethernal/ChainDispatch/pkg/rpc"
)

var _ pkgrpc.EthClient = (*Client)(nil)

// maxHeaderBatch bounds the number of headers requested in one batch call.
const maxHeaderBatch = 100

// Client is the provider of one network. Every call is retried on transient failures
// according to the network's retry configuration and reported to the rpc metrics.
type Client struct {
	network string
	eth     *ethclient.Client
	rpc     *rpc.Client
	retry   *config.RetryConfig
	log     *logger.Logger
}

// NewClient dials the network's RPC endpoint.
func NewClient(ctx context.Context, network config.NetworkConfig, log *logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", network.Name, err)
	}

	return &Client{
		network: network.Name,
		eth:     ethclient.NewClient(rpcClient),
		rpc:     rpcClient,
		retry:   network.Retry,
		log:     log.WithComponent(log.GetComponent() + "." + network.Name),
	}, nil
}

// Network returns the name of the network the client is connected to.
func (c *Client) Network() string {
	return c.network
}

// Close closes the RPC client connection.
func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	RPCMethodInc(c.network, method)

	err := retryWithBackoff(ctx, c.retry, c.log, method, fn)

	RPCMethodDuration(c.network, method, time.Since(start))
	if err != nil {
		RPCMethodError(c.network, method)
	}

	return err
}

func (c *Client) header(ctx context.Context, method string, number *big.Int) (*types.Header, error) {
	var header *types.Header
	err := c.call(ctx, method, func() error {
		var err error
		header, err = c.eth.HeaderByNumber(ctx, number)
		return err
	})
	return header, err
}

// GetLogs retrieves logs matching the given filter query.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func() error {
		var err error
		logs, err = c.eth.FilterLogs(ctx, query)
		return err
	})
	return logs, err
}

// GetBlockHeader retrieves the header for a specific block number.
func (c *Client) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	return c.header(ctx, "eth_getBlockByNumber", new(big.Int).SetUint64(blockNum))
}

// GetLatestBlockHeader retrieves the latest block header.
func (c *Client) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, "eth_getBlockByNumber", nil)
}

// GetFinalizedBlockHeader retrieves the finalized block header.
func (c *Client) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, "eth_getBlockByNumber", big.NewInt(int64(rpc.FinalizedBlockNumber)))
}

// GetSafeBlockHeader retrieves the safe block header.
func (c *Client) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	return c.header(ctx, "eth_getBlockByNumber", big.NewInt(int64(rpc.SafeBlockNumber)))
}

// BatchGetLogs retrieves logs for multiple filter queries in a single batch call.
func (c *Client) BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	var results [][]types.Log

	err := c.call(ctx, "batch_eth_getLogs", func() error {
		batch := make([]rpc.BatchElem, len(queries))
		results = make([][]types.Log, len(queries))

		for i, query := range queries {
			batch[i] = rpc.BatchElem{
				Method: "eth_getLogs",
				Args:   []any{toFilterArg(query)},
				Result: &results[i],
			}
		}

		return batchCall(ctx, c.rpc, batch)
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// BatchGetBlockHeaders retrieves headers for multiple block numbers, maxHeaderBatch per call.
func (c *Client) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	all := make([]*types.Header, 0, len(blockNums))

	for i := 0; i < len(blockNums); i += maxHeaderBatch {
		chunk := blockNums[i:min(i+maxHeaderBatch, len(blockNums))]
		results := make([]*types.Header, len(chunk))

		err := c.call(ctx, "batch_eth_getBlockByNumber", func() error {
			batch := make([]rpc.BatchElem, len(chunk))
			for j, blockNum := range chunk {
				batch[j] = rpc.BatchElem{
					Method: "eth_getBlockByNumber",
					Args:   []any{toBlockNumArg(blockNum), false},
					Result: &results[j],
				}
			}
			return batchCall(ctx, c.rpc, batch)
		})
		if err != nil {
			return nil, err
		}

		all = append(all, results...)
	}

	return all, nil
}

// batchCall sends batch and surfaces the first per-element error.
func batchCall(ctx context.Context, client *rpc.Client, batch []rpc.BatchElem) error {
	if err := client.BatchCallContext(ctx, batch); err != nil {
		return err
	}

	for _, elem := range batch {
		if elem.Error != nil {
			return elem.Error
		}
	}

	return nil
}

// toFilterArg converts ethereum.FilterQuery to the format expected by eth_getLogs.
func toFilterArg(q ethereum.FilterQuery) any {
	arg := map[string]any{
		"topics": q.Topics,
	}

	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock != nil {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock.Uint64())
		}
		if q.ToBlock != nil {
			arg["toBlock"] = toBlockNumArg(q.ToBlock.Uint64())
		}
	}

	switch len(q.Addresses) {
	case 0:
	case 1:
		arg["address"] = q.Addresses[0]
	default:
		arg["address"] = q.Addresses
	}

	return arg
}

func toBlockNumArg(blockNum uint64) string {
	return fmt.Sprintf("0x%x", blockNum)
}
