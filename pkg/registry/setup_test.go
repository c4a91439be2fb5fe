package registry

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

const factoryABI = `[
	{"anonymous":false,"inputs":[
		{"indexed":true,"name":"token0","type":"address"},
		{"indexed":true,"name":"token1","type":"address"},
		{"indexed":false,"name":"pair","type":"address"},
		{"indexed":false,"name":"index","type":"uint256"}
	],"name":"PairCreated","type":"event"}
]`

var factoryAddress = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")

func TestIndexingContractSetup_IsFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup IndexingContractSetup
		want  bool
	}{
		{name: "address", setup: AddressDetails{Addresses: []common.Address{alice}}, want: false},
		{name: "filter", setup: FilterDetails{EventName: "Transfer"}, want: true},
		{name: "factory", setup: FactoryDetails{Address: factoryAddress}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.setup.IsFilter())
		})
	}
}

func TestAddressDetails(t *testing.T) {
	t.Parallel()

	details := AddressDetails{
		Addresses: []common.Address{alice, bob},
		IndexedFilters: []EventInputIndexedFilters{
			{EventName: "Transfer", Indexed1: []string{alice.Hex()}},
		},
	}

	require.True(t, details.Contains(alice))
	require.True(t, details.Contains(bob))
	require.False(t, details.Contains(factoryAddress))

	require.NotNil(t, details.FiltersFor("Transfer"))
	require.Nil(t, details.FiltersFor("Approval"))
}

func TestEventInputIndexedFilters_Topics(t *testing.T) {
	t.Parallel()

	hashValue := "0x00000000000000000000000000000000000000000000000000000000000000ff"

	tests := []struct {
		name    string
		filters EventInputIndexedFilters
		want    [][]common.Hash
		wantErr bool
	}{
		{
			name:    "no filters",
			filters: EventInputIndexedFilters{EventName: "Transfer"},
			want:    [][]common.Hash{},
		},
		{
			name: "address in first position",
			filters: EventInputIndexedFilters{
				Indexed1: []string{alice.Hex(), bob.Hex()},
			},
			want: [][]common.Hash{
				{common.BytesToHash(alice.Bytes()), common.BytesToHash(bob.Bytes())},
			},
		},
		{
			name: "wildcard keeps position",
			filters: EventInputIndexedFilters{
				Indexed2: []string{"42"},
			},
			want: [][]common.Hash{
				nil,
				{common.BigToHash(big.NewInt(42))},
			},
		},
		{
			name: "forty digit decimal is a number, not an address",
			filters: EventInputIndexedFilters{
				Indexed1: []string{"1" + strings.Repeat("0", 39)},
			},
			want: [][]common.Hash{
				{common.BigToHash(new(big.Int).Exp(big.NewInt(10), big.NewInt(39), nil))},
			},
		},
		{
			name: "hash value",
			filters: EventInputIndexedFilters{
				Indexed3: []string{hashValue},
			},
			want: [][]common.Hash{nil, nil, {common.HexToHash(hashValue)}},
		},
		{
			name: "unsupported value",
			filters: EventInputIndexedFilters{
				Indexed1: []string{"not-a-value"},
			},
			wantErr: true,
		},
		{
			name: "negative number",
			filters: EventInputIndexedFilters{
				Indexed1: []string{"-1"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			topics, err := tt.filters.Topics()
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, topics)
		})
	}
}

func TestEventInputIndexedFilters_Matches(t *testing.T) {
	t.Parallel()

	transfer := []common.Hash{
		common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"),
		common.BytesToHash(alice.Bytes()),
		common.BytesToHash(bob.Bytes()),
	}

	tests := []struct {
		name    string
		filters EventInputIndexedFilters
		topics  []common.Hash
		want    bool
	}{
		{name: "no filters", topics: transfer, want: true},
		{
			name:    "first position matches",
			filters: EventInputIndexedFilters{Indexed1: []string{bob.Hex(), alice.Hex()}},
			topics:  transfer,
			want:    true,
		},
		{
			name:    "second position differs",
			filters: EventInputIndexedFilters{Indexed2: []string{alice.Hex()}},
			topics:  transfer,
			want:    false,
		},
		{
			name:    "position missing from log",
			filters: EventInputIndexedFilters{Indexed3: []string{"1"}},
			topics:  transfer,
			want:    false,
		},
		{
			name:    "invalid filter value",
			filters: EventInputIndexedFilters{Indexed1: []string{"nope"}},
			topics:  transfer,
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.filters.Matches(tt.topics))
		})
	}
}

func pairCreatedLog(t *testing.T, details FactoryDetails, pair common.Address) types.Log {
	t.Helper()

	event := details.parsed.Events["PairCreated"]
	data, err := event.Inputs.NonIndexed().Pack(pair, big.NewInt(1))
	require.NoError(t, err)

	return types.Log{
		Address: factoryAddress,
		Topics: []common.Hash{
			event.ID,
			common.BytesToHash(alice.Bytes()),
			common.BytesToHash(bob.Bytes()),
		},
		Data: data,
	}
}

func TestNewFactoryDetails(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		eventName string
		parameter string
		abiJSON   string
		wantErrIs error
		wantErr   bool
	}{
		{name: "valid", eventName: "PairCreated", parameter: "pair", abiJSON: factoryABI},
		{name: "unknown event", eventName: "PoolCreated", parameter: "pair", abiJSON: factoryABI, wantErrIs: ErrUnknownEvent},
		{name: "missing parameter", eventName: "PairCreated", parameter: "pool", abiJSON: factoryABI, wantErrIs: ErrMissingParameter},
		{name: "parameter not an address", eventName: "PairCreated", parameter: "index", abiJSON: factoryABI, wantErr: true},
		{name: "invalid abi", eventName: "PairCreated", parameter: "pair", abiJSON: "{", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			details, err := NewFactoryDetails(factoryAddress, tt.eventName, tt.parameter, tt.abiJSON)
			switch {
			case tt.wantErrIs != nil:
				require.ErrorIs(t, err, tt.wantErrIs)
			case tt.wantErr:
				require.Error(t, err)
			default:
				require.NoError(t, err)
				require.Equal(t, factoryAddress, details.Address)
				require.NotNil(t, details.parsed)
			}
		})
	}
}

func TestFactoryDetails_ChildAddress(t *testing.T) {
	t.Parallel()

	details, err := NewFactoryDetails(factoryAddress, "PairCreated", "pair", factoryABI)
	require.NoError(t, err)

	pair := common.HexToAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	log := pairCreatedLog(t, details, pair)

	require.True(t, details.IsFactoryLog(log))

	child, err := details.ChildAddress(log)
	require.NoError(t, err)
	require.Equal(t, pair, child)

	// the parsed form is optional
	unparsed := FactoryDetails{
		Address:       factoryAddress,
		EventName:     "PairCreated",
		ParameterName: "pair",
		ABI:           factoryABI,
	}
	child, err = unparsed.ChildAddress(log)
	require.NoError(t, err)
	require.Equal(t, pair, child)

	other := log
	other.Topics = []common.Hash{common.HexToHash("0x01")}
	require.False(t, details.IsFactoryLog(other))
	_, err = details.ChildAddress(other)
	require.ErrorIs(t, err, ErrNotFactoryEvent)

	elsewhere := log
	elsewhere.Address = alice
	require.False(t, details.IsFactoryLog(elsewhere))
}

func TestFilterQueries(t *testing.T) {
	t.Parallel()

	parsed := mustParseABI(t, erc20ABI)
	transferID := parsed.Events["Transfer"].ID

	factory, err := NewFactoryDetails(factoryAddress, "PairCreated", "pair", factoryABI)
	require.NoError(t, err)
	factoryTopic, err := factory.EventTopic()
	require.NoError(t, err)

	t.Run("address setup", func(t *testing.T) {
		t.Parallel()

		setup := AddressDetails{
			Addresses: []common.Address{alice},
			IndexedFilters: []EventInputIndexedFilters{
				{EventName: "Transfer", Indexed2: []string{bob.Hex()}},
			},
		}

		queries, err := FilterQueries(setup, "Transfer", transferID, 10, 20)
		require.NoError(t, err)
		require.Len(t, queries, 1)

		q := queries[0]
		require.Equal(t, []common.Address{alice}, q.Addresses)
		require.Equal(t, uint64(10), q.FromBlock.Uint64())
		require.Equal(t, uint64(20), q.ToBlock.Uint64())
		require.Equal(t, [][]common.Hash{
			{transferID},
			nil,
			{common.BytesToHash(bob.Bytes())},
		}, q.Topics)
	})

	t.Run("filter setup", func(t *testing.T) {
		t.Parallel()

		queries, err := FilterQueries(FilterDetails{EventName: "Transfer"}, "Transfer", transferID, 1, 2)
		require.NoError(t, err)
		require.Len(t, queries, 1)
		require.Empty(t, queries[0].Addresses)
		require.Equal(t, [][]common.Hash{{transferID}}, queries[0].Topics)

		queries, err = FilterQueries(FilterDetails{EventName: "Approval"}, "Transfer", transferID, 1, 2)
		require.NoError(t, err)
		require.Empty(t, queries)
	})

	t.Run("factory setup", func(t *testing.T) {
		t.Parallel()

		queries, err := FilterQueries(factory, "Transfer", transferID, 1, 2)
		require.NoError(t, err)
		require.Len(t, queries, 2)

		require.Equal(t, []common.Address{factoryAddress}, queries[0].Addresses)
		require.Equal(t, [][]common.Hash{{factoryTopic}}, queries[0].Topics)

		require.Empty(t, queries[1].Addresses)
		require.Equal(t, [][]common.Hash{{transferID}}, queries[1].Topics)
	})

	t.Run("unsupported setup", func(t *testing.T) {
		t.Parallel()

		_, err := FilterQueries(nil, "Transfer", transferID, 1, 2)
		require.Error(t, err)
	})
}
