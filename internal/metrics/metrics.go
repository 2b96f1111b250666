package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	functionLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alyx_worker_function_loads_total",
			Help: "Total number of function load requests",
		},
		[]string{"status"},
	)

	functionsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alyx_worker_functions_loaded",
			Help: "Number of functions currently registered",
		},
	)

	functionInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alyx_worker_invocations_total",
			Help: "Total number of function invocations",
		},
		[]string{"function", "mode", "status"},
	)

	functionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alyx_worker_invocation_duration_seconds",
			Help:    "Function execution time in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"function", "mode"},
	)

	invocationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alyx_worker_invocations_in_flight",
			Help: "Number of invocations currently running",
		},
	)

	syncPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "alyx_worker_sync_pool_slots",
			Help: "Slots of the synchronous function pool",
		},
		[]string{"state"},
	)

	logRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alyx_worker_log_records_total",
			Help: "Total number of log records forwarded to the host",
		},
		[]string{"category"},
	)

	messagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alyx_worker_messages_received_total",
			Help: "Total number of stream messages received from the host",
		},
		[]string{"type"},
	)

	unknownMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alyx_worker_unknown_messages_total",
			Help: "Total number of ignored stream messages of unknown type",
		},
	)

	outboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alyx_worker_outbound_queue_depth",
			Help: "Number of messages waiting to be written to the host",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordFunctionLoad(status string) {
	functionLoads.WithLabelValues(status).Inc()
}

func SetFunctionsLoaded(n int) {
	functionsLoaded.Set(float64(n))
}

func RecordFunctionInvocation(name, mode, status string, duration time.Duration) {
	functionInvocations.WithLabelValues(name, mode, status).Inc()
	functionDuration.WithLabelValues(name, mode).Observe(duration.Seconds())
}

func IncrementInFlight() {
	invocationsInFlight.Inc()
}

func DecrementInFlight() {
	invocationsInFlight.Dec()
}

func UpdateSyncPoolStats(size, busy int) {
	syncPoolSize.WithLabelValues("busy").Set(float64(busy))
	syncPoolSize.WithLabelValues("idle").Set(float64(size - busy))
}

func RecordLogRecord(category string) {
	logRecords.WithLabelValues(category).Inc()
}

func RecordMessageReceived(msgType string) {
	messagesReceived.WithLabelValues(msgType).Inc()
}

func RecordUnknownMessage() {
	unknownMessages.Inc()
}

func SetOutboundQueueDepth(n int) {
	outboundQueueDepth.Set(float64(n))
}
