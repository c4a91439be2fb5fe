package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/goran-ethernal/ChainDispatch/internal/metrics"
)

// DeadLetter is a batch abandoned after exhausting its delivery attempts.
type DeadLetter struct {
	IndexerName string
	TopicID     string
	EventName   string
	Network     string
	Attempts    int
	LastError   string
	Events      []EventResult
}

// DeadLetterSink receives batches the registry gave up on.
type DeadLetterSink interface {
	Store(ctx context.Context, letter DeadLetter) error
}

// Option configures an EventCallbackRegistry.
type Option func(*EventCallbackRegistry)

// WithLogger sets the logger used for dispatch and retry messages.
func WithLogger(log *logger.Logger) Option {
	return func(r *EventCallbackRegistry) {
		r.log = log
	}
}

// WithBackoff replaces the default retry backoff policy.
func WithBackoff(policy BackoffPolicy) Option {
	return func(r *EventCallbackRegistry) {
		r.backoff = policy
	}
}

// WithMaxAttempts bounds the number of callback invocations per batch. Zero, the default,
// retries until the callback succeeds.
func WithMaxAttempts(attempts int) Option {
	return func(r *EventCallbackRegistry) {
		r.maxAttempts = attempts
	}
}

// WithDeadLetterSink stores batches abandoned because of WithMaxAttempts.
func WithDeadLetterSink(sink DeadLetterSink) Option {
	return func(r *EventCallbackRegistry) {
		r.deadLetters = sink
	}
}

// EventCallbackRegistry maps event topic ids to their callbacks and delivers decoded
// batches with retry.
//
// Registration happens from a single goroutine at startup. Complete then produces a
// snapshot that is safe to share between dispatching goroutines.
type EventCallbackRegistry struct {
	events []EventInformation

	log         *logger.Logger
	backoff     BackoffPolicy
	maxAttempts int
	deadLetters DeadLetterSink
}

// New creates an empty registry.
func New(opts ...Option) *EventCallbackRegistry {
	r := &EventCallbackRegistry{
		events:  make([]EventInformation, 0),
		backoff: DefaultBackoffPolicy(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logger.GetDefaultLogger().WithComponent(common.ComponentRegistry)
	}

	return r
}

// RegisterEvent appends event. Topic ids are not checked for uniqueness: when two events
// share a topic id only the first registered one is reachable.
func (r *EventCallbackRegistry) RegisterEvent(event EventInformation) {
	r.events = append(r.events, event)
}

// FindEvent returns the first registered event with topicID, or nil.
func (r *EventCallbackRegistry) FindEvent(topicID string) *EventInformation {
	for i := range r.events {
		if r.events[i].TopicID == topicID {
			return &r.events[i]
		}
	}
	return nil
}

// Events returns a copy of the registered events in registration order.
func (r *EventCallbackRegistry) Events() []EventInformation {
	return slices.Clone(r.events)
}

// Len returns the number of registered events.
func (r *EventCallbackRegistry) Len() int {
	return len(r.events)
}

// TriggerEvent delivers data to the callback registered for topicID.
//
// A topic id without a registration is logged and the batch is dropped; nil is returned.
// A failing callback is retried with the whole batch after an exponential backoff with
// jitter, until it succeeds. TriggerEvent only returns an error when ctx is done while
// waiting to retry, or when WithMaxAttempts is set and the attempts are exhausted
// (ErrDeliveryAbandoned).
func (r *EventCallbackRegistry) TriggerEvent(ctx context.Context, topicID string, data []EventResult) error {
	event := r.FindEvent(topicID)
	if event == nil {
		metrics.UnmatchedTopicInc()
		r.log.Errorw("no event found for topic id, dropping batch",
			"topic_id", topicID,
			"batch_size", len(data),
		)
		return nil
	}

	name := event.InfoLogName()
	r.log.Debugf("%s - pushed %d events", name, len(data))
	metrics.BatchSizeLog(name, len(data))

	attempts := 0
	for {
		start := time.Now()
		err := event.Callback(ctx, slices.Clone(data))
		metrics.CallbackDurationLog(name, time.Since(start))

		if err == nil {
			metrics.EventsDispatchedInc(name, len(data))
			r.log.Debugw("event processing succeeded", "topic_id", topicID, "event", name, "attempts", attempts+1)
			return nil
		}

		attempts++
		metrics.CallbackFailureInc(name)

		if r.maxAttempts > 0 && attempts >= r.maxAttempts {
			return r.abandon(ctx, event, data, attempts, err)
		}

		wait := r.backoff.Wait(attempts)
		metrics.BackoffLog(name, wait)
		r.log.Errorw("event processing failed, retrying",
			"event", name,
			"topic_id", topicID,
			"attempt", attempts,
			"retry_in", wait,
			"error", err,
		)

		if err := sleepContext(ctx, wait); err != nil {
			return fmt.Errorf("delivery of %s interrupted after %d attempts: %w", name, attempts, err)
		}
	}
}

// abandon hands the batch to the dead-letter sink and reports ErrDeliveryAbandoned.
func (r *EventCallbackRegistry) abandon(
	ctx context.Context,
	event *EventInformation,
	data []EventResult,
	attempts int,
	lastErr error,
) error {
	name := event.InfoLogName()
	metrics.DeadLetterInc(name)

	r.log.Errorw("event processing abandoned",
		"event", name,
		"topic_id", event.TopicID,
		"attempts", attempts,
		"batch_size", len(data),
		"error", lastErr,
	)

	if r.deadLetters != nil {
		letter := DeadLetter{
			IndexerName: event.IndexerName,
			TopicID:     event.TopicID,
			EventName:   event.EventName,
			Attempts:    attempts,
			LastError:   lastErr.Error(),
			Events:      slices.Clone(data),
		}
		if len(data) > 0 {
			letter.Network = data[0].TxInformation.Network
		}

		if err := r.deadLetters.Store(ctx, letter); err != nil {
			r.log.Errorw("failed to store dead letter", "event", name, "error", err)
			return fmt.Errorf("%w: %s after %d attempts (dead letter not stored: %w): %w",
				ErrDeliveryAbandoned, name, attempts, err, lastErr)
		}
	}

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrDeliveryAbandoned, name, attempts, lastErr)
}

// Complete returns a deep copy of the registry for sharing between dispatching
// goroutines. Callbacks, decoders and providers are shared, not copied. Neither the
// receiver nor the snapshot may be registered into afterwards.
func (r *EventCallbackRegistry) Complete() *EventCallbackRegistry {
	events := make([]EventInformation, len(r.events))
	for i, event := range r.events {
		event.Contract = event.Contract.clone()
		events[i] = event
	}

	return &EventCallbackRegistry{
		events:      events,
		log:         r.log,
		backoff:     r.backoff,
		maxAttempts: r.maxAttempts,
		deadLetters: r.deadLetters,
	}
}
