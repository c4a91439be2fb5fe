package metrics

import (
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch metrics
	eventsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_events_dispatched_total",
			Help: "Total number of events delivered to callbacks",
		},
		[]string{"event"},
	)

	callbackFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_callback_failures_total",
			Help: "Total number of failed callback invocations",
		},
		[]string{"event"},
	)

	callbackDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_callback_duration_seconds",
			Help:    "Duration of a single callback invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	backoffWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_backoff_seconds",
			Help:    "Wait applied before redelivering a failed batch",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		},
		[]string{"event"},
	)

	unmatchedTopics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chaindispatch_unmatched_topics_total",
			Help: "Batches dropped because no event was registered for their topic id",
		},
	)

	deadLetters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_dead_letters_total",
			Help: "Batches abandoned after exhausting their delivery attempts",
		},
		[]string{"event"},
	)

	batchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_batch_size",
			Help:    "Number of events per dispatched batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"event"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_dispatch_duration_seconds",
			Help:    "Duration of routing and delivering one set of logs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network"},
	)

	factoryChildren = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_factory_children_total",
			Help: "Child contracts discovered through factory events",
		},
		[]string{"network", "contract"},
	)

	backfillChunkSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_backfill_chunk_blocks",
			Help:    "Block span of each backfill eth_getLogs chunk",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"network"},
	)

	LastDispatchedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaindispatch_last_dispatched_block",
			Help: "Highest block number handed to the dispatcher",
		},
		[]string{"network"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaindispatch_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaindispatch_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaindispatch_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaindispatch_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()

	healthMu  sync.Mutex
	unhealthy = make(map[string]struct{})
)

func EventsDispatchedInc(event string, count int) {
	eventsDispatched.WithLabelValues(event).Add(float64(count))
}

func CallbackFailureInc(event string) {
	callbackFailures.WithLabelValues(event).Inc()
}

func CallbackDurationLog(event string, duration time.Duration) {
	callbackDuration.WithLabelValues(event).Observe(duration.Seconds())
}

func BackoffLog(event string, wait time.Duration) {
	backoffWait.WithLabelValues(event).Observe(wait.Seconds())
}

func UnmatchedTopicInc() {
	unmatchedTopics.Inc()
}

func DeadLetterInc(event string) {
	deadLetters.WithLabelValues(event).Inc()
}

func BatchSizeLog(event string, size int) {
	batchSize.WithLabelValues(event).Observe(float64(size))
}

func DispatchDurationLog(network string, duration time.Duration) {
	dispatchDuration.WithLabelValues(network).Observe(duration.Seconds())
}

func FactoryChildInc(network, contract string) {
	factoryChildren.WithLabelValues(network, contract).Inc()
}

func BackfillChunkLog(network string, blocks uint64) {
	backfillChunkSize.WithLabelValues(network).Observe(float64(blocks))
}

func LastDispatchedBlockSet(network string, blockNum uint64) {
	LastDispatchedBlock.WithLabelValues(network).Set(float64(blockNum))
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)

	healthMu.Lock()
	defer healthMu.Unlock()
	if healthy {
		delete(unhealthy, component)
	} else {
		unhealthy[component] = struct{}{}
	}
}

// UnhealthyComponents lists, sorted, the components last reported unhealthy.
func UnhealthyComponents() []string {
	healthMu.Lock()
	defer healthMu.Unlock()

	return slices.Sorted(maps.Keys(unhealthy))
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())
	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
