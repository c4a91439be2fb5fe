package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainDispatch/internal/rpc"
	"github.com/goran-ethernal/ChainDispatch/pkg/config"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
)

// ErrDuplicateTopic is returned when two contracts configure the same event signature.
// The registry resolves a topic id to a single event, so the second registration could
// never receive a log.
var ErrDuplicateTopic = errors.New("event topic already registered")

// CallbackFactory returns the callback that receives batches of event for contract.
type CallbackFactory func(contract config.ContractConfig, event config.EventConfig) registry.EventCallback

// BackoffPolicy converts the dispatch configuration into the registry's retry policy.
func BackoffPolicy(cfg config.DispatchConfig) registry.BackoffPolicy {
	return registry.BackoffPolicy{
		InitialDelay: cfg.InitialBackoff.Duration,
		MaxDelay:     cfg.MaxBackoff.Duration,
		Multiplier:   cfg.BackoffMultiplier,
		MaxJitter:    cfg.MaxJitter.Duration,
	}
}

// BuildRegistry registers every configured event and returns the completed registry.
//
// ABIs are read once per contract. An event signature may only be configured by one
// contract (ErrDuplicateTopic); further addresses belong in that contract's details.
// Every binding of a network shares the provider cached for it, and every binding of an
// event shares the event's decoder.
func BuildRegistry(
	ctx context.Context,
	cfg *config.Config,
	providers *rpc.ProviderCache,
	callbacks CallbackFactory,
	opts ...registry.Option,
) (*registry.EventCallbackRegistry, error) {
	networks := make(map[string]config.NetworkConfig, len(cfg.Networks))
	for _, network := range cfg.Networks {
		networks[network.Name] = network
	}

	reg := registry.New(opts...)
	owners := make(map[string]string)

	for _, contract := range cfg.Contracts {
		abiJSON, err := os.ReadFile(contract.ABI)
		if err != nil {
			return nil, fmt.Errorf("contract %s: failed to read abi: %w", contract.Name, err)
		}

		parsed, err := registry.ParseABI(string(abiJSON))
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", contract.Name, err)
		}

		details, err := buildDetails(ctx, contract, networks, providers)
		if err != nil {
			return nil, fmt.Errorf("contract %s: %w", contract.Name, err)
		}

		for _, eventCfg := range contract.Events {
			event, err := buildEvent(contract, eventCfg, string(abiJSON), parsed, details)
			if err != nil {
				return nil, fmt.Errorf("contract %s: %w", contract.Name, err)
			}
			if owner, dup := owners[event.TopicID]; dup {
				return nil, fmt.Errorf("contract %s: %w: %s (%s) is already registered by contract %s",
					contract.Name, ErrDuplicateTopic, eventCfg.Name, event.TopicID, owner)
			}
			owners[event.TopicID] = contract.Name

			event.Callback = callbacks(contract, eventCfg)

			reg.RegisterEvent(event)
		}
	}

	return reg.Complete(), nil
}

func buildEvent(
	contract config.ContractConfig,
	eventCfg config.EventConfig,
	abiJSON string,
	parsed *abi.ABI,
	details []registry.NetworkContract,
) (registry.EventInformation, error) {
	abiEvent, ok := parsed.Events[eventCfg.Name]
	if !ok {
		return registry.EventInformation{}, fmt.Errorf("%w: %s", registry.ErrUnknownEvent, eventCfg.Name)
	}

	decoder, err := registry.NewABIDecoder(parsed, eventCfg.Name)
	if err != nil {
		return registry.EventInformation{}, err
	}

	// each event owns its copy of the bindings so it can carry its own decoder
	eventDetails := make([]registry.NetworkContract, len(details))
	for i, nc := range details {
		nc.Decoder = decoder
		eventDetails[i] = nc
	}

	return registry.EventInformation{
		IndexerName:       contract.GetIndexerName(),
		TopicID:           abiEvent.ID.Hex(),
		EventName:         eventCfg.Name,
		IndexEventInOrder: eventCfg.IndexInOrder,
		Contract: registry.ContractInformation{
			Name:              contract.Name,
			Details:           eventDetails,
			ABI:               abiJSON,
			ReorgSafeDistance: contract.ReorgSafeDistance,
		},
	}, nil
}

func buildDetails(
	ctx context.Context,
	contract config.ContractConfig,
	networks map[string]config.NetworkConfig,
	providers *rpc.ProviderCache,
) ([]registry.NetworkContract, error) {
	details := make([]registry.NetworkContract, 0, len(contract.Details))

	for i, detail := range contract.Details {
		network, ok := networks[detail.Network]
		if !ok {
			return nil, fmt.Errorf("details[%d]: unknown network '%s'", i, detail.Network)
		}

		provider, err := providers.GetOrDial(ctx, network)
		if err != nil {
			return nil, fmt.Errorf("details[%d]: %w", i, err)
		}

		setup, err := buildSetup(detail)
		if err != nil {
			return nil, fmt.Errorf("details[%d]: %w", i, err)
		}

		details = append(details, registry.NetworkContract{
			ID:             fmt.Sprintf("%s-%s-%d", contract.Name, detail.Network, i),
			Network:        detail.Network,
			Setup:          setup,
			CachedProvider: provider,
			StartBlock:     detail.StartBlock,
			EndBlock:       detail.EndBlock,
		})
	}

	return details, nil
}

func buildSetup(detail config.ContractDetailsConfig) (registry.IndexingContractSetup, error) {
	switch {
	case len(detail.Address) > 0:
		addresses := make([]common.Address, 0, len(detail.Address))
		for _, addr := range detail.Address {
			addresses = append(addresses, common.HexToAddress(addr))
		}

		filters := make([]registry.EventInputIndexedFilters, 0, len(detail.IndexedFilters))
		for _, f := range detail.IndexedFilters {
			filters = append(filters, indexedFilters(f))
		}

		return registry.AddressDetails{Addresses: addresses, IndexedFilters: filters}, nil

	case detail.Filter != nil:
		setup := registry.FilterDetails{EventName: detail.Filter.EventName}
		if detail.Filter.IndexedFilters != nil {
			f := indexedFilters(*detail.Filter.IndexedFilters)
			setup.IndexedFilters = &f
		}
		return setup, nil

	case detail.Factory != nil:
		abiJSON, err := os.ReadFile(detail.Factory.ABI)
		if err != nil {
			return nil, fmt.Errorf("failed to read factory abi: %w", err)
		}

		return registry.NewFactoryDetails(
			common.HexToAddress(detail.Factory.Address),
			detail.Factory.EventName,
			detail.Factory.ParameterName,
			string(abiJSON),
		)

	default:
		return nil, fmt.Errorf("no address, filter or factory configured")
	}
}

func indexedFilters(cfg config.IndexedFiltersConfig) registry.EventInputIndexedFilters {
	return registry.EventInputIndexedFilters{
		EventName: cfg.EventName,
		Indexed1:  cfg.Indexed1,
		Indexed2:  cfg.Indexed2,
		Indexed3:  cfg.Indexed3,
	}
}
