package registry

import (
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// IndexingContractSetup describes how the addresses of a contract are discovered on a
// network. It is a closed set: AddressDetails, FilterDetails and FactoryDetails.
type IndexingContractSetup interface {
	// IsFilter reports whether the setup matches an event on any address.
	IsFilter() bool

	isIndexingContractSetup()
}

var (
	_ IndexingContractSetup = AddressDetails{}
	_ IndexingContractSetup = FilterDetails{}
	_ IndexingContractSetup = FactoryDetails{}
)

// EventInputIndexedFilters restricts an event by the values of its indexed parameters.
// Each position holds the accepted values (OR); an empty position matches anything.
type EventInputIndexedFilters struct {
	EventName string
	Indexed1  []string
	Indexed2  []string
	Indexed3  []string
}

// Topics converts the filter values into topic positions 1..3 of an eth_getLogs query.
// Addresses are left padded, decimal numbers are encoded as uint256 and 0x values are
// taken as 32 byte hashes. Trailing wildcard positions are dropped.
func (f EventInputIndexedFilters) Topics() ([][]common.Hash, error) {
	positions := [][]string{f.Indexed1, f.Indexed2, f.Indexed3}
	topics := make([][]common.Hash, 0, len(positions))

	for i, values := range positions {
		var hashes []common.Hash
		for _, value := range values {
			hash, err := filterValueToTopic(value)
			if err != nil {
				return nil, fmt.Errorf("indexed_%d: %w", i+1, err)
			}
			hashes = append(hashes, hash)
		}
		topics = append(topics, hashes)
	}

	for len(topics) > 0 && len(topics[len(topics)-1]) == 0 {
		topics = topics[:len(topics)-1]
	}

	return topics, nil
}

// Matches reports whether the indexed topics of a log satisfy the filter. Filters with
// values that cannot be encoded match nothing.
func (f EventInputIndexedFilters) Matches(topics []common.Hash) bool {
	positions, err := f.Topics()
	if err != nil {
		return false
	}

	for i, accepted := range positions {
		if len(accepted) == 0 {
			continue
		}
		if len(topics) <= i+1 || !slices.Contains(accepted, topics[i+1]) {
			return false
		}
	}

	return true
}

func filterValueToTopic(value string) (common.Hash, error) {
	value = strings.TrimSpace(value)

	switch {
	case strings.HasPrefix(value, "0x") && common.IsHexAddress(value):
		return common.BytesToHash(common.HexToAddress(value).Bytes()), nil
	case strings.HasPrefix(value, "0x") && len(value) == 2+common.HashLength*2:
		return common.HexToHash(value), nil
	default:
		n, ok := new(big.Int).SetString(value, 10)
		if !ok || n.Sign() < 0 {
			return common.Hash{}, fmt.Errorf("unsupported filter value '%s'", value)
		}
		return common.BigToHash(n), nil
	}
}

// AddressDetails binds a contract to one or more static addresses.
type AddressDetails struct {
	Addresses []common.Address

	// IndexedFilters holds optional per-event indexed parameter filters
	IndexedFilters []EventInputIndexedFilters
}

func (AddressDetails) IsFilter() bool { return false }

func (AddressDetails) isIndexingContractSetup() {}

// Contains reports whether addr is one of the configured addresses.
func (a AddressDetails) Contains(addr common.Address) bool {
	for _, candidate := range a.Addresses {
		if candidate == addr {
			return true
		}
	}
	return false
}

// FiltersFor returns the indexed filters configured for eventName, if any.
func (a AddressDetails) FiltersFor(eventName string) *EventInputIndexedFilters {
	for i := range a.IndexedFilters {
		if a.IndexedFilters[i].EventName == eventName {
			return &a.IndexedFilters[i]
		}
	}
	return nil
}

// FilterDetails matches an event on every address of a network.
type FilterDetails struct {
	EventName      string
	IndexedFilters *EventInputIndexedFilters
}

func (FilterDetails) IsFilter() bool { return true }

func (FilterDetails) isIndexingContractSetup() {}

// AppliesTo reports whether the filter covers eventName. A filter without an event name
// covers every event of its contract.
func (f FilterDetails) AppliesTo(eventName string) bool {
	return f.EventName == "" || f.EventName == eventName
}

// FactoryDetails discovers child contract addresses from a factory contract's events.
type FactoryDetails struct {
	// Address of the factory contract
	Address common.Address

	// EventName is the factory event announcing a child
	EventName string

	// ParameterName is the event parameter holding the child address
	ParameterName string

	// ABI is the factory's JSON ABI
	ABI string

	parsed *abi.ABI
}

// NewFactoryDetails validates the factory ABI once and keeps the parsed form.
func NewFactoryDetails(address common.Address, eventName, parameterName, abiJSON string) (FactoryDetails, error) {
	parsed, err := ParseABI(abiJSON)
	if err != nil {
		return FactoryDetails{}, err
	}

	event, ok := parsed.Events[eventName]
	if !ok {
		return FactoryDetails{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventName)
	}

	found := false
	for _, input := range event.Inputs {
		if input.Name == parameterName {
			if input.Type.T != abi.AddressTy {
				return FactoryDetails{}, fmt.Errorf("parameter %s of %s is %s, not address",
					parameterName, eventName, input.Type.String())
			}
			found = true
			break
		}
	}
	if !found {
		return FactoryDetails{}, fmt.Errorf("%w: %s.%s", ErrMissingParameter, eventName, parameterName)
	}

	return FactoryDetails{
		Address:       address,
		EventName:     eventName,
		ParameterName: parameterName,
		ABI:           abiJSON,
		parsed:        parsed,
	}, nil
}

func (FactoryDetails) IsFilter() bool { return false }

func (FactoryDetails) isIndexingContractSetup() {}

func (f FactoryDetails) event() (abi.Event, error) {
	parsed := f.parsed
	if parsed == nil {
		var err error
		if parsed, err = ParseABI(f.ABI); err != nil {
			return abi.Event{}, err
		}
	}

	event, ok := parsed.Events[f.EventName]
	if !ok {
		return abi.Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, f.EventName)
	}
	return event, nil
}

// EventTopic returns the signature hash of the factory event.
func (f FactoryDetails) EventTopic() (common.Hash, error) {
	event, err := f.event()
	if err != nil {
		return common.Hash{}, err
	}
	return event.ID, nil
}

// IsFactoryLog reports whether log was emitted by the factory with its announcement event.
func (f FactoryDetails) IsFactoryLog(log types.Log) bool {
	if log.Address != f.Address || len(log.Topics) == 0 {
		return false
	}

	topic, err := f.EventTopic()
	return err == nil && log.Topics[0] == topic
}

// ChildAddress extracts the child contract address announced by a factory log.
func (f FactoryDetails) ChildAddress(log types.Log) (common.Address, error) {
	event, err := f.event()
	if err != nil {
		return common.Address{}, err
	}

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return common.Address{}, ErrNotFactoryEvent
	}

	params, err := unpackEvent(event, log.Topics, log.Data)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode %s: %w", f.EventName, err)
	}

	value, ok := params[f.ParameterName]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s.%s", ErrMissingParameter, f.EventName, f.ParameterName)
	}

	child, ok := value.(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("parameter %s is %T, not an address", f.ParameterName, value)
	}

	return child, nil
}

// FilterQueries returns the eth_getLogs queries a log source issues to collect eventName
// (signature topicID) for setup within [from, to].
//
// Address and filter setups need a single query, and none when the filter targets another
// event. A factory setup needs two: one for the
// factory announcements on the parent address and one for the child event on any address;
// the caller keeps only child logs from addresses it has discovered.
func FilterQueries(
	setup IndexingContractSetup,
	eventName string,
	topicID common.Hash,
	from, to uint64,
) ([]ethereum.FilterQuery, error) {
	base := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Topics:    [][]common.Hash{{topicID}},
	}

	switch s := setup.(type) {
	case AddressDetails:
		base.Addresses = s.Addresses
		if filters := s.FiltersFor(eventName); filters != nil {
			extra, err := filters.Topics()
			if err != nil {
				return nil, err
			}
			base.Topics = append(base.Topics, extra...)
		}
		return []ethereum.FilterQuery{base}, nil

	case FilterDetails:
		if !s.AppliesTo(eventName) {
			return nil, nil
		}
		if s.IndexedFilters != nil {
			extra, err := s.IndexedFilters.Topics()
			if err != nil {
				return nil, err
			}
			base.Topics = append(base.Topics, extra...)
		}
		return []ethereum.FilterQuery{base}, nil

	case FactoryDetails:
		factoryTopic, err := s.EventTopic()
		if err != nil {
			return nil, err
		}
		discovery := ethereum.FilterQuery{
			FromBlock: base.FromBlock,
			ToBlock:   base.ToBlock,
			Addresses: []common.Address{s.Address},
			Topics:    [][]common.Hash{{factoryTopic}},
		}
		return []ethereum.FilterQuery{discovery, base}, nil

	default:
		return nil, fmt.Errorf("unsupported indexing contract setup %T", setup)
	}
}
