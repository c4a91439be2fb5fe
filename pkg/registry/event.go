package registry

import (
	"context"
	"fmt"
)

// EventCallback receives a whole decoded batch. A non-nil error is the failure reason and
// causes the identical batch to be delivered again, so callbacks must apply batches
// idempotently.
//
// Every attempt receives its own copy of the slice, but the copy is shallow: log topics,
// log data and DecodedData are shared between attempts and must not be modified.
type EventCallback func(ctx context.Context, events []EventResult) error

// EventInformation is one registered (indexer, event) binding.
type EventInformation struct {
	IndexerName string

	// TopicID is the event signature hash, used as the registry lookup key
	TopicID string

	EventName string

	// IndexEventInOrder asks callers to submit batches for this event one at a time,
	// waiting for each TriggerEvent (retries included) to return
	IndexEventInOrder bool

	Contract ContractInformation

	Callback EventCallback
}

// InfoLogName returns "<contract>::<event>".
func (e *EventInformation) InfoLogName() string {
	return fmt.Sprintf("%s::%s", e.Contract.Name, e.EventName)
}
