package observability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fixedcredit/core/events"
)

// CreditMetrics tracks order outcomes and domain events of the credit market.
type CreditMetrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	events       *prometheus.CounterVec
	liquidations *prometheus.CounterVec
	throttles    *prometheus.CounterVec
}

var (
	creditMetricsOnce sync.Once
	creditRegistry    *CreditMetrics
)

// Credit returns the lazily registered credit metrics.
func Credit() *CreditMetrics {
	creditMetricsOnce.Do(func() {
		creditRegistry = newCreditMetrics()
		prometheus.MustRegister(
			creditRegistry.requests,
			creditRegistry.latency,
			creditRegistry.events,
			creditRegistry.liquidations,
			creditRegistry.throttles,
		)
	})
	return creditRegistry
}

func newCreditMetrics() *CreditMetrics {
	return &CreditMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Credit API requests segmented by operation and HTTP status.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "credit",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for credit API handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit",
			Subsystem: "events",
			Name:      "emitted_total",
			Help:      "Domain events emitted by the credit engine segmented by type.",
		}, []string{"type"}),
		liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit",
			Subsystem: "risk",
			Name:      "liquidations_total",
			Help:      "Liquidations segmented by kind and whether the loan was overdue.",
		}, []string{"kind", "overdue"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "credit",
			Subsystem: "api",
			Name:      "throttles_total",
			Help:      "Requests rejected by the per-client rate limiter.",
		}, []string{"reason"}),
	}
}

// Observe records one handled API request.
func (m *CreditMetrics) Observe(operation string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.requests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request.
func (m *CreditMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Emit implements events.Emitter so the registry can sit in an event fanout.
func (m *CreditMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := evt.EventType()
	m.events.WithLabelValues(kind).Inc()
	if !strings.Contains(kind, "liquidate") {
		return
	}
	overdue := "false"
	if attrs := events.Attributes(evt); attrs != nil && attrs["overdue"] == "true" {
		overdue = "true"
	}
	m.liquidations.WithLabelValues(strings.TrimPrefix(kind, "credit."), overdue).Inc()
}
