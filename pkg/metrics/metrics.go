// Copyright 2024-2026 Aiku AI

// Package metrics registers the bridge's Prometheus collectors on the
// default registry; the admin endpoint serves them via promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngested counts native events accepted from a platform,
	// labelled by source platform and event kind.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telebridge_events_ingested_total",
		Help: "Native platform events accepted for relay.",
	}, []string{"platform", "kind"})

	// Deliveries counts relay outcomes per direction.
	Deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telebridge_deliveries_total",
		Help: "Relay attempts by direction and outcome.",
	}, []string{"direction", "outcome"})

	// Retries counts individual retried platform calls.
	Retries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telebridge_retries_total",
		Help: "Retried outbound platform calls.",
	}, []string{"platform"})

	// Dropped counts events discarded before delivery.
	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telebridge_dropped_total",
		Help: "Events dropped without delivery, by reason.",
	}, []string{"reason"})

	// MediaTransfers counts attachment transfer outcomes.
	MediaTransfers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "telebridge_media_transfers_total",
		Help: "Attachment transfers by final state.",
	}, []string{"state"})

	// QueueDepth tracks the per-direction relay queue length.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "telebridge_queue_depth",
		Help: "Events waiting in the relay queue.",
	}, []string{"direction"})
)
