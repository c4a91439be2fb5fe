package registry

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TxInformation is the block and transaction context of one log.
type TxInformation struct {
	Network          string
	Address          common.Address
	BlockHash        common.Hash
	BlockNumber      uint64
	TransactionHash  common.Hash
	LogIndex         uint
	TransactionIndex uint
}

// EventResult is one decoded log as delivered to callbacks. It is read-only once built.
type EventResult struct {
	Log           types.Log
	DecodedData   any
	TxInformation TxInformation
}

// NewEventResult decodes log with the binding's decoder and captures its chain metadata.
// It is the only place a decoder runs for a log; callbacks reuse DecodedData.
func NewEventResult(nc *NetworkContract, log *types.Log) EventResult {
	return EventResult{
		Log:         *log,
		DecodedData: nc.DecodeLog(*log),
		TxInformation: TxInformation{
			Network:          nc.Network,
			Address:          log.Address,
			BlockHash:        log.BlockHash,
			BlockNumber:      log.BlockNumber,
			TransactionHash:  log.TxHash,
			LogIndex:         log.Index,
			TransactionIndex: log.TxIndex,
		},
	}
}
