package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "velib_"

	resultSuccess = "success"
	resultError   = "error"

	pathAggregate = "aggregate"
	pathRawScan   = "raw_scan"
)

var (
	registerOnce sync.Once

	resolverTotal   *prometheus.CounterVec
	resolverLatency *prometheus.HistogramVec

	rollupTotal    *prometheus.CounterVec
	rollupLatency  *prometheus.HistogramVec
	rollupFallback *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec

	distributionTotal   *prometheus.CounterVec
	distributionLatency *prometheus.HistogramVec

	alertDecisions     *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	changefeedEvents *prometheus.CounterVec

	syncTriggers *prometheus.CounterVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec
)

// Init registers service metrics with the default registry.
func Init() {
	registerOnce.Do(func() {
		resolverTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "latest_state_resolve_total",
				Help: "Total latest-state resolutions by result",
			},
			[]string{"result"},
		)
		resolverLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "latest_state_resolve_latency_seconds",
				Help:    "Latest-state resolution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		rollupTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollup_total",
				Help: "Total rollup computations by pipeline, path and result",
			},
			[]string{"pipeline", "path", "result"},
		)
		rollupLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rollup_latency_seconds",
				Help:    "Rollup latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pipeline", "path"},
		)
		rollupFallback = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollup_fallback_total",
				Help: "Total hourly rollups served by the raw scan fallback, by reason",
			},
			[]string{"reason"},
		)
		breakerState = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "circuit_breaker_state",
				Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		)

		distributionTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "distribution_total",
				Help: "Total regional distribution summaries by result",
			},
			[]string{"result"},
		)
		distributionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "distribution_latency_seconds",
				Help:    "Regional distribution latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertDecisions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_decisions_total",
				Help: "Total alert evaluations by outcome",
			},
			[]string{"outcome"},
		)
		notificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alert_notifications_total",
				Help: "Total alert notifications by kind and result",
			},
			[]string{"kind", "result"},
		)

		changefeedEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "changefeed_events_total",
				Help: "Total change feed events by source",
			},
			[]string{"source"},
		)

		syncTriggers = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "sync_triggers_total",
				Help: "Total manual ingestion sync triggers by result",
			},
			[]string{"result"},
		)

		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "export_total",
				Help: "Total daily usage exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "export_latency_seconds",
				Help:    "Daily usage export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			resolverTotal,
			resolverLatency,
			rollupTotal,
			rollupLatency,
			rollupFallback,
			breakerState,
			distributionTotal,
			distributionLatency,
			alertDecisions,
			notificationsTotal,
			changefeedEvents,
			syncTriggers,
			exportTotal,
			exportLatency,
		)
	})
}

// ObserveResolve records latest-state resolution latency and result.
func ObserveResolve(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if resolverTotal != nil {
		resolverTotal.WithLabelValues(result).Inc()
	}
	if resolverLatency != nil {
		resolverLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveRollup records rollup latency by pipeline and serving path.
func ObserveRollup(pipeline, path, result string, duration time.Duration) {
	if pipeline == "" {
		pipeline = "unknown"
	}
	if path == "" {
		path = pathRawScan
	}
	if result == "" {
		result = resultSuccess
	}
	if rollupTotal != nil {
		rollupTotal.WithLabelValues(pipeline, path, result).Inc()
	}
	if rollupLatency != nil {
		rollupLatency.WithLabelValues(pipeline, path).Observe(duration.Seconds())
	}
}

// IncRollupFallback counts a fall back to the raw scan.
func IncRollupFallback(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if rollupFallback != nil {
		rollupFallback.WithLabelValues(reason).Inc()
	}
}

// SetBreakerState records a breaker's state as 0 closed, 1 half-open, 2 open.
func SetBreakerState(name string, state int) {
	if breakerState != nil {
		breakerState.WithLabelValues(name).Set(float64(state))
	}
}

// ObserveDistribution records distribution latency and result.
func ObserveDistribution(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if distributionTotal != nil {
		distributionTotal.WithLabelValues(result).Inc()
	}
	if distributionLatency != nil {
		distributionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAlertDecision counts an alert evaluation outcome.
func IncAlertDecision(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if alertDecisions != nil {
		alertDecisions.WithLabelValues(outcome).Inc()
	}
}

// IncNotification counts a notification delivery attempt.
func IncNotification(kind, result string) {
	if kind == "" {
		kind = "alert"
	}
	if result == "" {
		result = resultSuccess
	}
	if notificationsTotal != nil {
		notificationsTotal.WithLabelValues(kind, result).Inc()
	}
}

// IncChangefeedEvent counts a received change feed event.
func IncChangefeedEvent(source string) {
	if source == "" {
		source = "unknown"
	}
	if changefeedEvents != nil {
		changefeedEvents.WithLabelValues(source).Inc()
	}
}

// IncSyncTrigger counts a manual sync trigger.
func IncSyncTrigger(result string) {
	if result == "" {
		result = resultSuccess
	}
	if syncTriggers != nil {
		syncTriggers.WithLabelValues(result).Inc()
	}
}

// ObserveExport records export latency and result.
func ObserveExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, result).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	PathAggregate = pathAggregate
	PathRawScan   = pathRawScan
)
