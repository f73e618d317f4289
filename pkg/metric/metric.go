// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all metrics for the adpay ledger
type Metrics struct {
	registry *prometheus.Registry

	// Ledger metrics
	AdsPublished  prometheus.Counter
	BidsPlaced    prometheus.Counter
	BidsRefunded  prometheus.Counter
	AdsSettled    prometheus.Counter
	Withdrawals   prometheus.Counter
	SettledVolume prometheus.Counter

	// Failure metrics
	OperationErrors *prometheus.CounterVec

	// API metrics
	RequestsProcessed *prometheus.CounterVec

	// Performance metrics
	SettleDuration prometheus.Histogram
	BidLatency     prometheus.Histogram
}

// New creates a new metrics instance backed by its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		AdsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "ads_published_total",
			Help:      "Total number of ad slots published",
		}),
		BidsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "bids_placed_total",
			Help:      "Total number of bids accepted",
		}),
		BidsRefunded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "bids_refunded_total",
			Help:      "Total number of outbid escrow refunds credited",
		}),
		AdsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "ads_settled_total",
			Help:      "Total number of ad slots settled",
		}),
		Withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "withdrawals_total",
			Help:      "Total number of balance withdrawals",
		}),
		SettledVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "settled_volume_units",
			Help:      "Cumulative winning bid volume settled, in payment units",
		}),

		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "operation_errors_total",
			Help:      "Total number of rejected ledger operations by reason",
		}, []string{"op", "reason"}),

		RequestsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adpay",
			Name:      "api_requests_processed_total",
			Help:      "Total number of API requests processed",
		}, []string{"method", "status"}),

		SettleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adpay",
			Name:      "settle_duration_seconds",
			Help:      "Time to settle an ad slot",
			Buckets:   prometheus.DefBuckets,
		}),
		BidLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adpay",
			Name:      "bid_latency_seconds",
			Help:      "Time to process a bid",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	registry.MustRegister(
		m.AdsPublished,
		m.BidsPlaced,
		m.BidsRefunded,
		m.AdsSettled,
		m.Withdrawals,
		m.SettledVolume,
		m.OperationErrors,
		m.RequestsProcessed,
		m.SettleDuration,
		m.BidLatency,
	)

	return m
}

// GetGatherer returns the prometheus gatherer for metrics export
func (m *Metrics) GetGatherer() prometheus.Gatherer {
	return m.registry
}

// GetRegisterer returns the prometheus registerer
func (m *Metrics) GetRegisterer() prometheus.Registerer {
	return m.registry
}
