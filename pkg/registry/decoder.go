package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Decoder turns the topics and data of a single log into a decoded event value.
//
// A Decoder must be pure: it holds no mutable state and is called concurrently by every
// NetworkContract and EventInformation it is shared with. It never panics on bad input;
// decoders that can fail return a value describing the failure (see DecodeError).
// Callbacks type-assert the value to the concrete type they expect for their topic.
type Decoder func(topics []common.Hash, data []byte) any

// NoopDecoder returns a decoder that ignores its input and always yields an empty string.
// It is used for bindings that only need raw logs, such as pure filter setups.
func NoopDecoder() Decoder {
	return func(_ []common.Hash, _ []byte) any {
		return ""
	}
}

// DecodedEvent is the value produced by decoders built with NewABIDecoder.
type DecodedEvent struct {
	// Name is the ABI event name
	Name string

	// Params maps every event parameter (indexed and non-indexed) to its decoded value
	Params map[string]any
}

// DecodeError is produced in place of a DecodedEvent when a log does not fit the ABI.
type DecodeError struct {
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.Event, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ParseABI parses a contract's JSON ABI.
func ParseABI(abiJSON string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &parsed, nil
}

// NewABIDecoder builds a Decoder for one event of contractABI. The decoder yields a
// *DecodedEvent on success and a *DecodeError when topics or data do not match the event.
func NewABIDecoder(contractABI *abi.ABI, eventName string) (Decoder, error) {
	event, ok := contractABI.Events[eventName]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventName)
	}

	return func(topics []common.Hash, data []byte) any {
		params, err := unpackEvent(event, topics, data)
		if err != nil {
			return &DecodeError{Event: event.Name, Err: err}
		}

		return &DecodedEvent{Name: event.Name, Params: params}
	}, nil
}

// unpackEvent decodes both the data section and the indexed topics of a log into a map.
func unpackEvent(event abi.Event, topics []common.Hash, data []byte) (map[string]any, error) {
	params := make(map[string]any, len(event.Inputs))

	if err := event.Inputs.UnpackIntoMap(params, data); err != nil {
		return nil, fmt.Errorf("unpack data: %w", err)
	}

	indexedTopics := topics
	if !event.Anonymous {
		if len(topics) == 0 {
			return nil, fmt.Errorf("missing event signature topic")
		}
		if topics[0] != event.ID {
			return nil, fmt.Errorf("signature topic %s does not match %s", topics[0].Hex(), event.ID.Hex())
		}
		indexedTopics = topics[1:]
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}

	if err := abi.ParseTopicsIntoMap(params, indexed, indexedTopics); err != nil {
		return nil, fmt.Errorf("unpack topics: %w", err)
	}

	return params, nil
}
