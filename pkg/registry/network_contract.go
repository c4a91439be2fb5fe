package registry

import (
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ChainDispatch/pkg/rpc"
)

// NetworkContract binds a contract to one network.
//
// CachedProvider and Decoder are shared with other bindings (one provider per network,
// one decoder per event) and must not be mutated after construction.
type NetworkContract struct {
	ID      string
	Network string

	Setup IndexingContractSetup

	// CachedProvider is the connection shared by every contract on Network
	CachedProvider rpc.EthClient

	Decoder Decoder

	// StartBlock and EndBlock optionally bound the blocks this binding applies to (inclusive)
	StartBlock *uint64
	EndBlock   *uint64
}

// DecodeLog runs the binding's decoder over the log's topics and data.
func (nc *NetworkContract) DecodeLog(log types.Log) any {
	if nc.Decoder == nil {
		return NoopDecoder()(log.Topics, log.Data)
	}

	return nc.Decoder(log.Topics, log.Data)
}

// InBlockRange reports whether block falls inside the binding's optional bounds.
func (nc *NetworkContract) InBlockRange(block uint64) bool {
	if nc.StartBlock != nil && block < *nc.StartBlock {
		return false
	}
	if nc.EndBlock != nil && block > *nc.EndBlock {
		return false
	}
	return true
}
