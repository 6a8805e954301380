// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbond_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration measures HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenbond_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	// AuditsTotal counts stored audits by verdict.
	AuditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbond_audits_total",
			Help: "Audits stored, by verdict",
		},
		[]string{"verdict"},
	)

	// PerformanceRatio observes computed performance ratios.
	PerformanceRatio = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "greenbond_performance_ratio_percent",
			Help:    "Performance ratio of stored audits",
			Buckets: []float64{25, 50, 60, 70, 75, 80, 85, 90, 95, 100, 110},
		},
	)

	// InterestRate tracks each bond's current interest rate.
	InterestRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "greenbond_interest_rate_percent",
			Help: "Current interest rate per bond",
		},
		[]string{"bond_id"},
	)

	// IrradianceRequests counts irradiance lookups by source and outcome.
	IrradianceRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbond_irradiance_requests_total",
			Help: "Irradiance lookups by source and result",
		},
		[]string{"source", "result"},
	)

	// Publications counts publish calls by ledger outcome.
	Publications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenbond_publications_total",
			Help: "Published audits by ledger result",
		},
		[]string{"ledger"},
	)
)
