package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_rpc_requests_total",
			Help: "Total number of RPC requests by network and method",
		},
		[]string{"network", "method"},
	)

	rpcErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_rpc_errors_total",
			Help: "Total number of failed RPC requests by network and method",
		},
		[]string{"network", "method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chaindispatch_rpc_retries_total",
			Help: "Total number of RPC retries by method",
		},
		[]string{"method"},
	)

	rpcDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chaindispatch_rpc_request_duration_seconds",
			Help:    "Duration of RPC requests including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"network", "method"},
	)

	providersOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chaindispatch_providers_open",
			Help: "Number of cached network providers",
		},
	)
)

func RPCMethodInc(network, method string) {
	rpcRequests.WithLabelValues(network, method).Inc()
}

func RPCMethodDuration(network, method string, duration time.Duration) {
	rpcDuration.WithLabelValues(network, method).Observe(duration.Seconds())
}

func RPCMethodError(network, method string) {
	rpcErrors.WithLabelValues(network, method).Inc()
}

func RPCRetryInc(method string) {
	rpcRetries.WithLabelValues(method).Inc()
}

func ProvidersOpenSet(count int) {
	providersOpen.Set(float64(count))
}
