// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lovelog Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login results recorded by RecordLogin.
const (
	LoginCouple  = "couple"
	LoginVisitor = "visitor"
	LoginInvalid = "invalid"
	LoginExpired = "expired"
	LoginError   = "error"
)

// Metrics contains the lovelog Prometheus metrics.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	LoginsTotal         *prometheus.CounterVec
	AccessDeniedTotal   *prometheus.CounterVec
	VisitorExpiredTotal prometheus.Counter
}

// NewMetrics creates and registers the lovelog metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lovelog_http_requests_total",
				Help: "Total number of API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lovelog_http_request_duration_seconds",
				Help:    "API request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lovelog_logins_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		),
		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lovelog_access_denied_total",
				Help: "Total number of denied requests by reason",
			},
			[]string{"reason"},
		),
		VisitorExpiredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lovelog_visitor_sessions_expired_total",
				Help: "Total number of visitor sessions ended because the visitor password expired",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.LoginsTotal,
		m.AccessDeniedTotal,
		m.VisitorExpiredTotal,
	)
	return m
}

// ObserveRequest records one finished API request.
func (m *Metrics) ObserveRequest(method, route, status string, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(result string) {
	m.LoginsTotal.WithLabelValues(result).Inc()
}

// RecordDenied counts a denied request.
func (m *Metrics) RecordDenied(reason string) {
	m.AccessDeniedTotal.WithLabelValues(reason).Inc()
}

// RecordVisitorExpired counts a visitor session ended by expiry.
func (m *Metrics) RecordVisitorExpired() {
	m.VisitorExpiredTotal.Inc()
}
