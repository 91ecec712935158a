// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey ceremony
// operations. It exposes ceremony counters, latency histograms, clone
// detection warnings, and resource gauges for monitoring relying party
// health.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelStatus     = "status"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"
	LabelResult     = "result"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Sync signal results
	SignalDelivered = "delivered"
	SignalEmpty     = "empty"
)

var (
	// CeremoniesTotal tracks completed ceremony attempts by kind and status.
	// Use RecordCeremony to increment this counter with the appropriate labels.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of completed ceremony attempts by kind and status",
		},
		[]string{LabelCeremony, LabelStatus},
	)

	// CeremonyDuration tracks end-to-end ceremony validation latency in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony validation in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony},
	)

	// CloneWarningsTotal counts sign-counter regressions. Any increase is a
	// security signal worth alerting on.
	CloneWarningsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "clone_warnings_total",
			Help:      "Total number of possible cloned authenticator detections",
		},
	)

	// SyncSignalsTotal counts sync-signal polls by result.
	SyncSignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sync_signals_total",
			Help:      "Total number of sync-signal polls by result",
		},
		[]string{LabelResult},
	)

	// HTTPRequestsTotal tracks REST API requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// ActiveConnections tracks in-flight HTTP requests.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_connections",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	// CredentialsTotal is the current number of stored credentials.
	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "credentials_total",
			Help:      "Current number of stored credentials",
		},
	)

	// Goroutines is the current number of goroutines.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes is the current heap allocation in bytes.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current heap allocation in bytes",
		},
	)

	// ServerUptimeSeconds is the server uptime in seconds.
	ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a completed ceremony attempt with its duration.
//
// Example:
//
//	start := time.Now()
//	_, err := svc.CompleteAuthentication(ctx, token, session, response)
//	status := metrics.StatusSuccess
//	if err != nil {
//	    status = metrics.StatusError
//	}
//	metrics.RecordCeremony(metrics.CeremonyAuthentication, status, time.Since(start).Seconds())
func RecordCeremony(ceremony, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony).Observe(duration)
}

// RecordCloneWarning records a sign-counter regression detection.
func RecordCloneWarning() {
	if !enabled.Load() {
		return
	}
	CloneWarningsTotal.Inc()
}

// RecordSyncSignal records a sync-signal poll. delivered reports whether a
// reconciliation payload was returned.
func RecordSyncSignal(delivered bool) {
	if !enabled.Load() {
		return
	}
	result := SignalEmpty
	if delivered {
		result = SignalDelivered
	}
	SyncSignalsTotal.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// SetCredentialsTotal sets the current stored credential count.
func SetCredentialsTotal(count float64) {
	if !enabled.Load() {
		return
	}
	CredentialsTotal.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
