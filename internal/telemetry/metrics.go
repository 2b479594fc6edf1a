/*
Copyright (C) 2026 Botdeck Contributors

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing
// for the botdeck process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP API metrics.
var (
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botdeck_api_requests_total",
		Help: "Total number of API requests.",
	}, []string{"method", "endpoint", "status"})

	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botdeck_api_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botdeck_api_active_connections",
		Help: "Number of in-flight API requests.",
	})
)

// Automation scheduler metrics.
var (
	AutomationTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "botdeck_automation_ticks_total",
		Help: "Total number of automation scheduler ticks.",
	})

	AutomationRulesDue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botdeck_automation_rules_due",
		Help: "Rules due for dispatch at the last tick.",
	})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botdeck_deliveries_total",
		Help: "Dispatch attempts to the delivery engine by outcome.",
	}, []string{"content_type", "status"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "botdeck_delivery_duration_seconds",
		Help:    "Delivery engine request latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	AutomationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botdeck_automation_errors_total",
		Help: "Errors encountered by the automation scheduler.",
	}, []string{"kind"})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "botdeck_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botdeck_db_errors_total",
		Help: "Database errors by operation and kind.",
	}, []string{"operation", "kind"})

	DatabaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botdeck_db_connections_active",
		Help: "Open database connections.",
	})
)

// Leader election metrics.
var (
	LeaderElectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "botdeck_leader_election_status",
		Help: "1 when this instance holds the automation leader lease.",
	}, []string{"instance_id"})

	LeaderElectionChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "botdeck_leader_election_changes_total",
		Help: "Leadership transitions by direction.",
	}, []string{"instance_id", "transition"})
)

// Websocket event stream metrics.
var (
	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "botdeck_event_subscribers",
		Help: "Connected websocket event subscribers.",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
