// Package metrics provides the relayer's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aion_relayer"

// Transfer lifecycle metrics.
var (
	// TransfersTotal counts transfers by the status they last moved to.
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Transfers observed, by terminal or transient status",
		},
		[]string{"status"}, // validated, pending, confirmed, failed, permanently_failed
	)

	// TransferDuration measures wall time from validated to confirmed.
	TransferDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_confirmation_seconds",
			Help:      "Seconds from validation to on-chain confirmation",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// QueueDepthGauge reports the current row count per queue status.
	QueueDepthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of transfers currently in each status",
		},
		[]string{"status"},
	)

	// RetriesTotal counts scheduled retries.
	RetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of retry attempts scheduled",
		},
	)
)

// Chain gateway metrics.
var (
	// SubmissionsTotal counts on-chain submission outcomes.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submissions_total",
			Help:      "Chain gateway submission outcomes",
		},
		[]string{"asset", "status"}, // asset: native/erc20, status: success/failed
	)

	// SubmissionDuration measures a submission call's latency.
	SubmissionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Chain gateway submission call latency",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"asset"},
	)

	// GasPriceGauge reports the last observed suggested gas price.
	GasPriceGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "gas_price_gwei",
			Help:      "Last observed suggested gas price in gwei",
		},
	)

	// ExecutorConcurrencyGauge reports the executor's current cap and
	// in-flight slot count.
	ExecutorConcurrencyGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_concurrency",
			Help:      "Executor concurrency, current usage vs configured cap",
		},
		[]string{"kind"}, // kind: current, max
	)
)

// Ingress API metrics.
var (
	// HTTPRequestsTotal counts ingress requests by route and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Ingress API requests, by route and status code",
		},
		[]string{"route", "code"},
	)

	// HTTPRequestDuration measures ingress request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Ingress API request latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"route"},
	)

	// RateLimitedTotal counts requests rejected by the sliding window
	// limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-sender rate limiter",
		},
		[]string{"route"},
	)
)

// Subscription endpoint metrics.
var (
	// WSConnectionsGauge reports the number of live websocket clients.
	WSConnectionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Number of currently connected subscription clients",
		},
	)

	// WSSubscriptionsGauge reports the number of live topic subscriptions.
	WSSubscriptionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_subscriptions",
			Help:      "Number of live topic subscriptions",
		},
		[]string{"topic"},
	)

	// WSMessagesTotal counts inbound/outbound websocket messages.
	WSMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "Websocket messages by direction and type",
		},
		[]string{"direction", "type"}, // direction: in/out
	)

	// WSMessagesDroppedTotal counts messages dropped because a client's
	// send buffer was full.
	WSMessagesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_dropped_total",
			Help:      "Outbound websocket messages dropped for a slow client",
		},
	)
)

// Database metrics.
var (
	// DBQueryDuration measures repository query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation", "table"},
	)
)

// RecordTransfer records a transfer's arrival at status.
func RecordTransfer(status string) {
	TransfersTotal.WithLabelValues(status).Inc()
}

// RecordTransferConfirmed records the end-to-end confirmation duration.
func RecordTransferConfirmed(durationSeconds float64) {
	TransferDuration.Observe(durationSeconds)
}

// RecordRetry increments the retry counter.
func RecordRetry() {
	RetriesTotal.Inc()
}

// UpdateQueueDepth sets the current row count for status.
func UpdateQueueDepth(status string, count int) {
	QueueDepthGauge.WithLabelValues(status).Set(float64(count))
}

// RecordSubmission records a chain gateway submission outcome.
func RecordSubmission(asset, status string, durationSeconds float64) {
	SubmissionsTotal.WithLabelValues(asset, status).Inc()
	if durationSeconds > 0 {
		SubmissionDuration.WithLabelValues(asset).Observe(durationSeconds)
	}
}

// UpdateGasPrice sets the last observed gas price in gwei.
func UpdateGasPrice(gasPriceGwei float64) {
	GasPriceGauge.Set(gasPriceGwei)
}

// UpdateExecutorConcurrency sets the executor's current and max slots.
func UpdateExecutorConcurrency(current, max int) {
	ExecutorConcurrencyGauge.WithLabelValues("current").Set(float64(current))
	ExecutorConcurrencyGauge.WithLabelValues("max").Set(float64(max))
}

// RecordHTTPRequest records an ingress request's route, status code and
// latency.
func RecordHTTPRequest(route, code string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(durationSeconds)
}

// RecordRateLimited records a request rejected by the rate limiter.
func RecordRateLimited(route string) {
	RateLimitedTotal.WithLabelValues(route).Inc()
}

// RecordWSConnection adjusts the live connection gauge by delta (+1 on
// connect, -1 on disconnect).
func RecordWSConnection(delta int) {
	WSConnectionsGauge.Add(float64(delta))
}

// RecordWSSubscription adjusts the live subscription gauge for topic by
// delta (+1 on subscribe, -1 on unsubscribe).
func RecordWSSubscription(topic string, delta int) {
	WSSubscriptionsGauge.WithLabelValues(topic).Add(float64(delta))
}

// RecordWSMessage records one websocket message of the given direction
// and type.
func RecordWSMessage(direction, msgType string) {
	WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSMessagesDropped increments the dropped-message counter.
func WSMessagesDropped() {
	WSMessagesDroppedTotal.Inc()
}

// RecordDBQuery records a repository query's latency.
func RecordDBQuery(operation, table string, durationSeconds float64) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(durationSeconds)
}
