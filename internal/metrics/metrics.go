// Package metrics declares the Prometheus collectors shared by the scanner,
// connectors and broker. Collectors register with the default registry on
// package init and are exposed by the HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbscanner"

// ScanDuration observes the wall time of one scan cycle in milliseconds.
var ScanDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_duration_ms",
		Help:      "Duration of one scan cycle in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
	},
)

// ScanIterations counts completed scan cycles.
var ScanIterations = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_iterations_total",
		Help:      "Total number of completed scan cycles",
	},
)

// ScanSkipped counts cycles skipped because another process held the cycle
// lock, or because publishing failed.
var ScanSkipped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "scan_skipped_total",
		Help:      "Scan cycles that did not publish, by reason",
	},
	[]string{"reason"},
)

// Opportunities reports the size of the last published list.
var Opportunities = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scanner",
		Name:      "opportunities_last_scan",
		Help:      "Number of opportunities published by the last scan cycle",
	},
)

// SnapshotsIngested counts snapshots upserted by connectors.
var SnapshotsIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connector",
		Name:      "snapshots_total",
		Help:      "Order-book snapshots written to the market data store",
	},
	[]string{"exchange"},
)

// ConnectorErrors counts ingestion failures that triggered a backoff.
var ConnectorErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "connector",
		Name:      "errors_total",
		Help:      "Connector failures followed by a client reset and backoff",
	},
	[]string{"exchange"},
)

// PayloadsDropped counts payloads evicted from full subscriber channels.
var PayloadsDropped = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "payloads_dropped_total",
		Help:      "Stale payloads evicted from full subscriber channels",
	},
)

// MalformedPayloads counts bus messages that could not be decoded.
var MalformedPayloads = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "broker",
		Name:      "malformed_payloads_total",
		Help:      "Bus messages discarded because they could not be decoded",
	},
)

// WSClients reports connected WebSocket clients.
var WSClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "ws_clients",
		Help:      "Connected opportunity WebSocket clients",
	},
)
