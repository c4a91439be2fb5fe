package mocks

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// EthClient is a testify mock of rpc.EthClient.
type EthClient struct {
	mock.Mock
}

// NewEthClient creates a mock that asserts its expectations when the test ends.
func NewEthClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *EthClient {
	m := &EthClient{}
	m.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *EthClient) Close() {
	m.Called()
}

func (m *EthClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, query)
	logs, _ := args.Get(0).([]types.Log)
	return logs, args.Error(1)
}

func (m *EthClient) GetBlockHeader(ctx context.Context, blockNum uint64) (*types.Header, error) {
	args := m.Called(ctx, blockNum)
	header, _ := args.Get(0).(*types.Header)
	return header, args.Error(1)
}

func (m *EthClient) GetLatestBlockHeader(ctx context.Context) (*types.Header, error) {
	args := m.Called(ctx)
	header, _ := args.Get(0).(*types.Header)
	return header, args.Error(1)
}

func (m *EthClient) GetFinalizedBlockHeader(ctx context.Context) (*types.Header, error) {
	args := m.Called(ctx)
	header, _ := args.Get(0).(*types.Header)
	return header, args.Error(1)
}

func (m *EthClient) GetSafeBlockHeader(ctx context.Context) (*types.Header, error) {
	args := m.Called(ctx)
	header, _ := args.Get(0).(*types.Header)
	return header, args.Error(1)
}

func (m *EthClient) BatchGetLogs(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	args := m.Called(ctx, queries)
	logs, _ := args.Get(0).([][]types.Log)
	return logs, args.Error(1)
}

func (m *EthClient) BatchGetBlockHeaders(ctx context.Context, blockNums []uint64) ([]*types.Header, error) {
	args := m.Called(ctx, blockNums)
	headers, _ := args.Get(0).([]*types.Header)
	return headers, args.Error(1)
}
