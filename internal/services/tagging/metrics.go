// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package tagging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	Tags                    prometheus.Gauge
	TaggedItems             prometheus.Gauge
	SharedLimitTicks        prometheus.Counter
	SharedLimitTickDuration prometheus.Histogram
	ItemControlFailures     *prometheus.CounterVec
	AutotagAssignments      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Tags: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qtag_tags_total",
			Help: "Number of labels in the namespace",
		}),
		TaggedItems: factory.NewGauge(prometheus.GaugeOpts{
			Name: "qtag_tagged_items_total",
			Help: "Number of items carrying a label",
		}),
		SharedLimitTicks: factory.NewCounter(prometheus.CounterOpts{
			Name: "qtag_shared_limit_ticks_total",
			Help: "Number of shared limit recompute passes",
		}),
		SharedLimitTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "qtag_shared_limit_tick_duration_seconds",
			Help:    "Time spent recomputing shared limits",
			Buckets: prometheus.DefBuckets,
		}),
		ItemControlFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "qtag_item_control_failures_total",
			Help: "Item store calls that failed, by operation",
		}, []string{"operation"}),
		AutotagAssignments: factory.NewCounter(prometheus.CounterOpts{
			Name: "qtag_autotag_assignments_total",
			Help: "Labels assigned by autotag rules",
		}),
	}
}
