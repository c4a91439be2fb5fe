package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ContractConfig describes one named contract and the events dispatched for it.
type ContractConfig struct {
	// Name identifies the contract in logs and dead letters
	Name string `yaml:"name" json:"name" toml:"name"`

	// IndexerName groups contracts owned by the same indexing logic; defaults to Name
	IndexerName string `yaml:"indexer_name,omitempty" json:"indexer_name,omitempty" toml:"indexer_name,omitempty"`

	// ABI is the path to the contract's JSON ABI file
	ABI string `yaml:"abi" json:"abi" toml:"abi"`

	// ReorgSafeDistance requires events to be confirmation-deep before they are final
	ReorgSafeDistance bool `yaml:"reorg_safe_distance" json:"reorg_safe_distance" toml:"reorg_safe_distance"`

	// Details binds the contract to one or more networks
	Details []ContractDetailsConfig `yaml:"details" json:"details" toml:"details"`

	// Events lists the ABI events to dispatch
	Events []EventConfig `yaml:"events" json:"events" toml:"events"`
}

// GetIndexerName returns IndexerName, falling back to the contract name.
func (c *ContractConfig) GetIndexerName() string {
	if c.IndexerName != "" {
		return c.IndexerName
	}
	return c.Name
}

// Validate checks the contract against the set of configured network names.
func (c *ContractConfig) Validate(networks map[string]struct{}) error {
	if c.ABI == "" {
		return fmt.Errorf("abi is required")
	}
	if len(c.Details) == 0 {
		return fmt.Errorf("at least one network binding (details) is required")
	}
	if len(c.Events) == 0 {
		return fmt.Errorf("at least one event must be configured")
	}

	for j, detail := range c.Details {
		if _, ok := networks[detail.Network]; !ok {
			return fmt.Errorf("details[%d]: unknown network '%s'", j, detail.Network)
		}
		if err := detail.Validate(); err != nil {
			return fmt.Errorf("details[%d] (%s): %w", j, detail.Network, err)
		}
	}

	seen := make(map[string]struct{}, len(c.Events))
	for j, event := range c.Events {
		if event.Name == "" {
			return fmt.Errorf("events[%d]: name is required", j)
		}
		if _, dup := seen[event.Name]; dup {
			return fmt.Errorf("events[%d]: duplicate event '%s'", j, event.Name)
		}
		seen[event.Name] = struct{}{}
	}

	return nil
}

// ContractDetailsConfig binds a contract to one network. Exactly one of Address, Filter
// and Factory must be set.
type ContractDetailsConfig struct {
	Network string `yaml:"network" json:"network" toml:"network"`

	// Address lists one or more static contract addresses
	Address []string `yaml:"address,omitempty" json:"address,omitempty" toml:"address,omitempty"`

	// IndexedFilters narrows address bindings per event on indexed parameters
	IndexedFilters []IndexedFiltersConfig `yaml:"indexed_filters,omitempty" json:"indexed_filters,omitempty" toml:"indexed_filters,omitempty"` //nolint:lll

	// Filter matches an event on any address of the network
	Filter *FilterConfig `yaml:"filter,omitempty" json:"filter,omitempty" toml:"filter,omitempty"`

	// Factory discovers addresses from another contract's events
	Factory *FactoryConfig `yaml:"factory,omitempty" json:"factory,omitempty" toml:"factory,omitempty"`

	StartBlock *uint64 `yaml:"start_block,omitempty" json:"start_block,omitempty" toml:"start_block,omitempty"`
	EndBlock   *uint64 `yaml:"end_block,omitempty" json:"end_block,omitempty" toml:"end_block,omitempty"`
}

// Validate checks that exactly one setup variant is configured and the block range is sane.
func (d *ContractDetailsConfig) Validate() error {
	variants := 0
	if len(d.Address) > 0 {
		variants++
		for _, addr := range d.Address {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("invalid address '%s'", addr)
			}
		}
	}
	if d.Filter != nil {
		variants++
		if d.Filter.EventName == "" {
			return fmt.Errorf("filter.event_name is required")
		}
	}
	if d.Factory != nil {
		variants++
		if err := d.Factory.Validate(); err != nil {
			return fmt.Errorf("factory: %w", err)
		}
	}

	if variants != 1 {
		return fmt.Errorf("exactly one of address, filter or factory must be set (got %d)", variants)
	}

	if d.StartBlock != nil && d.EndBlock != nil && *d.StartBlock > *d.EndBlock {
		return fmt.Errorf("start_block %d is after end_block %d", *d.StartBlock, *d.EndBlock)
	}

	return nil
}

// IndexedFiltersConfig restricts an event by the values of its indexed parameters.
type IndexedFiltersConfig struct {
	EventName string   `yaml:"event_name" json:"event_name" toml:"event_name"`
	Indexed1  []string `yaml:"indexed_1,omitempty" json:"indexed_1,omitempty" toml:"indexed_1,omitempty"`
	Indexed2  []string `yaml:"indexed_2,omitempty" json:"indexed_2,omitempty" toml:"indexed_2,omitempty"`
	Indexed3  []string `yaml:"indexed_3,omitempty" json:"indexed_3,omitempty" toml:"indexed_3,omitempty"`
}

// FilterConfig matches an event system-wide on a network.
type FilterConfig struct {
	EventName      string                `yaml:"event_name" json:"event_name" toml:"event_name"`
	IndexedFilters *IndexedFiltersConfig `yaml:"indexed_filters,omitempty" json:"indexed_filters,omitempty" toml:"indexed_filters,omitempty"` //nolint:lll
}

// FactoryConfig describes child address discovery through a factory contract.
type FactoryConfig struct {
	// Address of the factory contract
	Address string `yaml:"address" json:"address" toml:"address"`

	// EventName is the factory event announcing a new child
	EventName string `yaml:"event_name" json:"event_name" toml:"event_name"`

	// ParameterName is the event parameter holding the child address
	ParameterName string `yaml:"parameter_name" json:"parameter_name" toml:"parameter_name"`

	// ABI is the path to the factory's JSON ABI file
	ABI string `yaml:"abi" json:"abi" toml:"abi"`
}

// Validate checks the factory configuration.
func (f *FactoryConfig) Validate() error {
	if !common.IsHexAddress(f.Address) {
		return fmt.Errorf("invalid address '%s'", f.Address)
	}
	if f.EventName == "" {
		return fmt.Errorf("event_name is required")
	}
	if f.ParameterName == "" {
		return fmt.Errorf("parameter_name is required")
	}
	if f.ABI == "" {
		return fmt.Errorf("abi is required")
	}
	return nil
}

// EventConfig selects one ABI event for dispatch.
type EventConfig struct {
	// Name is the ABI event name (e.g. "Transfer")
	Name string `yaml:"name" json:"name" toml:"name"`

	// IndexInOrder serializes batches of this event: at most one is delivered at a time,
	// retries included. Batches keep their order only when submitted one after another, as
	// each network's backfill does; batches from different networks are not ordered
	// relative to each other
	IndexInOrder bool `yaml:"index_in_order" json:"index_in_order" toml:"index_in_order"`
}
