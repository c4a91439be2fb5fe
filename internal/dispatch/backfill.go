package dispatch

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ChainDispatch/internal/metrics"
	"github.com/goran-ethernal/ChainDispatch/internal/rpc"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
	pkgrpc "github.com/goran-ethernal/ChainDispatch/pkg/rpc"
)

const defaultChunkSize = 5000

// ErrNoBindings is returned when no registered event is bound to the requested network.
var ErrNoBindings = errors.New("no events bound to network")

// Backfill collects every registered event bound to network within [from, to] and hands
// the logs to HandleLogs, chunkSize blocks at a time. Chunks the node refuses for returning
// too many results are shrunk to the range the node suggests, or halved when it suggests none.
func (d *Dispatcher) Backfill(
	ctx context.Context,
	network string,
	provider pkgrpc.EthClient,
	from, to, chunkSize uint64,
) error {
	if from > to {
		return fmt.Errorf("invalid block range: from %d is after to %d", from, to)
	}
	if chunkSize == 0 {
		chunkSize = defaultChunkSize
	}

	d.log.Infow("starting backfill", "network", network, "from", from, "to", to, "chunk_size", chunkSize)

	for start := from; start <= to; {
		end := to
		if to-start >= chunkSize {
			end = start + chunkSize - 1
		}

		logs, end, err := d.fetchChunk(ctx, network, provider, start, end)
		if err != nil {
			return err
		}

		metrics.BackfillChunkLog(network, end-start+1)

		if err := d.HandleLogs(ctx, network, logs); err != nil {
			return fmt.Errorf("failed to dispatch blocks %d-%d on %s: %w", start, end, network, err)
		}

		d.log.Debugw("dispatched chunk", "network", network, "from", start, "to", end, "logs", len(logs))
		metrics.LastDispatchedBlockSet(network, end)

		if end == math.MaxUint64 {
			break
		}
		start = end + 1
	}

	d.log.Infow("backfill finished", "network", network, "from", from, "to", to)

	return nil
}

// fetchChunk returns the logs of [start, end] in chain order and the end block actually
// covered, which is lower than end when the node asked for a smaller range.
func (d *Dispatcher) fetchChunk(
	ctx context.Context,
	network string,
	provider pkgrpc.EthClient,
	start, end uint64,
) ([]types.Log, uint64, error) {
	for {
		queries, err := d.queries(network, start, end)
		if err != nil {
			return nil, 0, err
		}
		if len(queries) == 0 {
			return nil, end, nil
		}

		results, err := provider.BatchGetLogs(ctx, queries)
		if err == nil {
			return mergeLogs(results), end, nil
		}

		tooMany, errData := rpc.IsTooManyResultsError(err)
		if !tooMany {
			return nil, 0, fmt.Errorf("failed to get logs for blocks %d-%d on %s: %w", start, end, network, err)
		}

		newEnd := start + (end-start)/2
		if _, suggestedTo, ok := rpc.ParseSuggestedBlockRange(errData); ok && suggestedTo >= start && suggestedTo < end {
			newEnd = suggestedTo
		}
		if newEnd >= end {
			return nil, 0, fmt.Errorf("too many results in single block %d on %s: %w", start, network, err)
		}

		d.log.Warnw("too many results, shrinking range",
			"network", network,
			"from", start,
			"to", end,
			"new_to", newEnd,
		)
		end = newEnd
	}
}

// queries builds the deduplicated eth_getLogs queries for every binding on network,
// clamped to each binding's block range.
func (d *Dispatcher) queries(network string, start, end uint64) ([]ethereum.FilterQuery, error) {
	var queries []ethereum.FilterQuery
	seen := make(map[string]struct{})

	for _, event := range d.registry.Events() {
		for _, nc := range event.Contract.NetworkDetails(network) {
			lo, hi := start, end
			if nc.StartBlock != nil {
				lo = max(lo, *nc.StartBlock)
			}
			if nc.EndBlock != nil {
				hi = min(hi, *nc.EndBlock)
			}
			if lo > hi {
				continue
			}

			qs, err := registry.FilterQueries(nc.Setup, event.EventName, common.HexToHash(event.TopicID), lo, hi)
			if err != nil {
				return nil, fmt.Errorf("failed to build queries for %s (%s): %w", event.InfoLogName(), nc.ID, err)
			}

			for _, q := range qs {
				key := queryKey(q)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				queries = append(queries, q)
			}
		}
	}

	return queries, nil
}

func queryKey(q ethereum.FilterQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%d|", q.FromBlock, q.ToBlock)
	for _, addr := range q.Addresses {
		b.WriteString(addr.Hex())
	}
	for _, position := range q.Topics {
		b.WriteByte('|')
		for _, topic := range position {
			b.WriteString(topic.Hex())
		}
	}
	return b.String()
}

type logKey struct {
	block uint64
	index uint
}

// mergeLogs flattens query results into chain order, dropping logs returned by more than
// one query.
func mergeLogs(results [][]types.Log) []types.Log {
	seen := make(map[logKey]struct{})
	var merged []types.Log

	for _, logs := range results {
		for _, log := range logs {
			key := logKey{block: log.BlockNumber, index: log.Index}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, log)
		}
	}

	slices.SortFunc(merged, func(a, b types.Log) int {
		return cmp.Or(cmp.Compare(a.BlockNumber, b.BlockNumber), cmp.Compare(a.Index, b.Index))
	})

	return merged
}

// StartBlock returns the lowest block any binding on network applies from.
func (d *Dispatcher) StartBlock(network string) (uint64, error) {
	var (
		start uint64 = math.MaxUint64
		found bool
	)

	for _, event := range d.registry.Events() {
		for _, nc := range event.Contract.NetworkDetails(network) {
			found = true
			if nc.StartBlock == nil {
				return 0, nil
			}
			start = min(start, *nc.StartBlock)
		}
	}

	if !found {
		return 0, fmt.Errorf("%w: %s", ErrNoBindings, network)
	}

	return start, nil
}

// SafeHead returns the block a backfill of network may run up to: the finalized block when
// any contract on the network requires a reorg safe distance, the latest block otherwise.
func (d *Dispatcher) SafeHead(ctx context.Context, network string, provider pkgrpc.EthClient) (uint64, error) {
	reorgSafe := false
	for _, event := range d.registry.Events() {
		if event.Contract.ReorgSafeDistance && event.Contract.DetailsForNetwork(network) != nil {
			reorgSafe = true
			break
		}
	}

	var (
		header *types.Header
		err    error
	)
	if reorgSafe {
		header, err = provider.GetFinalizedBlockHeader(ctx)
	} else {
		header, err = provider.GetLatestBlockHeader(ctx)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get head of %s: %w", network, err)
	}

	return header.Number.Uint64(), nil
}
