// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
)

// Metrics records resolver activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	refreshDuration prometheus.Histogram
	refreshes       prometheus.Counter
	failures        *prometheus.CounterVec
	settings        *prometheus.GaugeVec
	deferred        prometheus.Gauge
}

// NewMetrics creates the resolver collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "extpolicy",
			Subsystem: "settings",
			Name:      "refresh_duration_seconds",
			Help:      "Time spent rebuilding extension settings from preferences.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "extpolicy",
			Subsystem: "settings",
			Name:      "refreshes_total",
			Help:      "Number of settings refreshes.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "extpolicy",
			Subsystem: "settings",
			Name:      "failures_total",
			Help:      "Policy entries that could not be honored, by reason.",
		}, []string{"reason"}),
		settings: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "extpolicy",
			Subsystem: "settings",
			Name:      "entries",
			Help:      "Settings entries after the last refresh, by scope.",
		}, []string{"scope"}),
		deferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "extpolicy",
			Subsystem: "settings",
			Name:      "deferred_ids",
			Help:      "Extension IDs whose settings are waiting to be parsed.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.refreshDuration, m.refreshes, m.failures, m.settings, m.deferred} {
		if err := reg.Register(c); err != nil {
			return nil, sigilerr.Wrap(err, sigilerr.CodeSettingsMetricsRegisterFailure,
				"registering settings metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeRefresh(elapsed time.Duration, st *state) {
	if m == nil {
		return
	}
	m.refreshes.Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
	m.settings.WithLabelValues(ScopeIndividual.String()).Set(float64(len(st.byID)))
	m.settings.WithLabelValues(ScopeUpdateURL.String()).Set(float64(len(st.byUpdateURL)))
	m.deferred.Set(float64(len(st.deferred)))
}

func (m *Metrics) observeFailure(reason FailureReason) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(reason)).Inc()
}

func (m *Metrics) observeDeferred(n int) {
	if m == nil {
		return
	}
	m.deferred.Set(float64(n))
}
