// internal/app/system/metrics/metrics.go
// Package metrics exposes the application's Prometheus collectors.
// Everything is registered on the default registry and served by the
// /metrics endpoint wired in bootstrap.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnlineUsers is the number of distinct users with a live connection.
	OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskhub_online_users",
		Help: "Distinct users with at least one live websocket connection.",
	})

	// Connections is the raw number of live websocket connections.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskhub_connections",
		Help: "Live websocket connections.",
	})

	// Deliveries counts events pushed to individual connections.
	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskhub_deliveries_total",
		Help: "Events delivered to individual connections.",
	})

	// DeliveryFailures counts per-connection sends that failed after the
	// event was already persisted. These are swallowed by design and only
	// observable here and in logs.
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskhub_delivery_failures_total",
		Help: "Per-connection delivery failures after successful persistence.",
	})

	// IngressEvents counts queue events by outcome: ok, retried, failed.
	IngressEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskhub_ingress_events_total",
		Help: "Notification queue events processed, by outcome.",
	}, []string{"outcome"})
)
