package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/internal/metrics"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
	"golang.org/x/sync/errgroup"
)

// factoryKey identifies one factory binding: a contract on a network.
type factoryKey struct {
	network  string
	contract string
}

type factoryBinding struct {
	key     factoryKey
	factory registry.FactoryDetails
}

// Dispatcher routes raw logs to the registry. It decodes every log once with the decoder
// of the binding it matches, groups the results per event topic and triggers all topics
// concurrently.
type Dispatcher struct {
	registry *registry.EventCallbackRegistry
	log      *logger.Logger

	// factories lists every factory binding, grouped by network
	factories map[string][]factoryBinding

	mu sync.RWMutex
	// children holds the child addresses discovered per factory binding
	children map[factoryKey]map[common.Address]struct{}

	lockMu sync.Mutex
	// orderLocks excludes concurrent deliveries of an in-order topic across HandleLogs calls;
	// it does not order waiting calls, so callers submit sequentially to keep block order
	orderLocks map[string]*sync.Mutex
}

// NewDispatcher creates a dispatcher over a completed registry.
func NewDispatcher(reg *registry.EventCallbackRegistry, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{
		registry:   reg,
		log:        log,
		factories:  make(map[string][]factoryBinding),
		children:   make(map[factoryKey]map[common.Address]struct{}),
		orderLocks: make(map[string]*sync.Mutex),
	}

	type seenFactory struct {
		key     factoryKey
		address common.Address
	}
	seen := make(map[seenFactory]struct{})
	for _, event := range reg.Events() {
		for _, nc := range event.Contract.Details {
			factory, ok := nc.Setup.(registry.FactoryDetails)
			if !ok {
				continue
			}

			key := factoryKey{network: nc.Network, contract: event.Contract.Name}
			if _, dup := seen[seenFactory{key, factory.Address}]; dup {
				continue
			}
			seen[seenFactory{key, factory.Address}] = struct{}{}

			d.factories[nc.Network] = append(d.factories[nc.Network], factoryBinding{key: key, factory: factory})
		}
	}

	return d
}

// AddChild registers a child address for the factory binding of contract on network, as if
// its announcement had been observed. It reports whether the child was new.
func (d *Dispatcher) AddChild(network, contract string, child common.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := factoryKey{network: network, contract: contract}
	if d.children[key] == nil {
		d.children[key] = make(map[common.Address]struct{})
	}
	if _, ok := d.children[key][child]; ok {
		return false
	}
	d.children[key][child] = struct{}{}
	metrics.FactoryChildInc(network, contract)

	return true
}

// Children returns the number of child addresses discovered for contract on network.
func (d *Dispatcher) Children(network, contract string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.children[factoryKey{network: network, contract: contract}])
}

func (d *Dispatcher) isChild(network, contract string, addr common.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.children[factoryKey{network: network, contract: contract}][addr]
	return ok
}

// discover records the child announced by log if it comes from a factory on network.
func (d *Dispatcher) discover(network string, log types.Log) {
	for _, binding := range d.factories[network] {
		if !binding.factory.IsFactoryLog(log) {
			continue
		}

		child, err := binding.factory.ChildAddress(log)
		if err != nil {
			d.log.Warnw("failed to decode factory event",
				"network", network,
				"contract", binding.key.contract,
				"block", log.BlockNumber,
				"tx", log.TxHash.Hex(),
				"error", err,
			)
			continue
		}

		if !d.AddChild(network, binding.key.contract, child) {
			continue
		}
		d.log.Debugw("discovered child contract",
			"network", network,
			"contract", binding.key.contract,
			"child", child.Hex(),
			"block", log.BlockNumber,
		)
	}
}

// matches reports whether log belongs to the binding nc of event.
func (d *Dispatcher) matches(event *registry.EventInformation, nc *registry.NetworkContract, log types.Log) bool {
	if !nc.InBlockRange(log.BlockNumber) {
		return false
	}

	switch setup := nc.Setup.(type) {
	case registry.AddressDetails:
		if !setup.Contains(log.Address) {
			return false
		}
		filters := setup.FiltersFor(event.EventName)
		return filters == nil || filters.Matches(log.Topics)
	case registry.FilterDetails:
		if !setup.AppliesTo(event.EventName) {
			return false
		}
		return setup.IndexedFilters == nil || setup.IndexedFilters.Matches(log.Topics)
	case registry.FactoryDetails:
		return d.isChild(nc.Network, event.Contract.Name, log.Address)
	default:
		return false
	}
}

// binding returns the first binding of event on network that log belongs to.
func (d *Dispatcher) binding(event *registry.EventInformation, network string, log types.Log) *registry.NetworkContract {
	for _, nc := range event.Contract.NetworkDetails(network) {
		if d.matches(event, nc, log) {
			return nc
		}
	}
	return nil
}

// HandleLogs routes logs observed on network to their registered events. Logs must be in
// chain order; factory announcements are applied before the logs that follow them.
//
// Every topic's batch is triggered concurrently and HandleLogs returns once all of them
// were delivered. The error is the first one returned by TriggerEvent. In-order topics
// keep block order only when calls for a network are made one after another.
func (d *Dispatcher) HandleLogs(ctx context.Context, network string, logs []types.Log) error {
	start := time.Now()
	defer func() {
		metrics.DispatchDurationLog(network, time.Since(start))
	}()

	batches := make(map[string][]registry.EventResult)
	var order []string
	var lastBlock uint64

	for i := range logs {
		log := &logs[i]
		lastBlock = max(lastBlock, log.BlockNumber)

		if log.Removed {
			d.log.Debugw("skipping removed log", "network", network, "block", log.BlockNumber, "tx", log.TxHash.Hex())
			continue
		}

		d.discover(network, *log)

		if len(log.Topics) == 0 {
			continue
		}

		topicID := log.Topics[0].Hex()
		event := d.registry.FindEvent(topicID)
		if event == nil {
			continue
		}

		nc := d.binding(event, network, *log)
		if nc == nil {
			continue
		}

		if _, ok := batches[topicID]; !ok {
			order = append(order, topicID)
		}
		batches[topicID] = append(batches[topicID], registry.NewEventResult(nc, log))
	}

	var g errgroup.Group
	for _, topicID := range order {
		batch := batches[topicID]

		g.Go(func() error {
			return d.trigger(ctx, topicID, batch)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if len(logs) > 0 {
		metrics.LastDispatchedBlockSet(network, lastBlock)
	}

	return nil
}

func (d *Dispatcher) trigger(ctx context.Context, topicID string, batch []registry.EventResult) error {
	event := d.registry.FindEvent(topicID)
	if event != nil && event.IndexEventInOrder {
		unlock := d.lockTopic(topicID)
		defer unlock()
	}

	if err := d.registry.TriggerEvent(ctx, topicID, batch); err != nil {
		return fmt.Errorf("failed to dispatch %d events for topic %s: %w", len(batch), topicID, err)
	}

	return nil
}

// lockTopic blocks until no other batch of topicID is being delivered. Waiters are not
// woken in arrival order.
func (d *Dispatcher) lockTopic(topicID string) func() {
	d.lockMu.Lock()
	lock, ok := d.orderLocks[topicID]
	if !ok {
		lock = &sync.Mutex{}
		d.orderLocks[topicID] = lock
	}
	d.lockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}
