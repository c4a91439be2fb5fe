package registry

import "errors"

var (
	// ErrDeliveryAbandoned is returned by TriggerEvent when a batch exhausted its
	// configured attempts and was handed to the dead-letter sink.
	ErrDeliveryAbandoned = errors.New("event delivery abandoned")

	// ErrUnknownEvent is returned when an ABI does not declare the requested event.
	ErrUnknownEvent = errors.New("event not found in ABI")

	// ErrNotFactoryEvent is returned when a log is not the factory's announcement event.
	ErrNotFactoryEvent = errors.New("log is not the factory event")

	// ErrMissingParameter is returned when an event does not carry the requested parameter.
	ErrMissingParameter = errors.New("event parameter not found")
)
