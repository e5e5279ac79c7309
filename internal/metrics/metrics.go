// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "locator"

// Metrics holds the Prometheus collectors for the location manager.
type Metrics struct {
	// labels: outcome={granted,denied,prompted}
	AuthorizationRequests *prometheus.CounterVec
	// labels: status={not_determined,restricted,denied,authorized_always,authorized_when_in_use,unknown}
	AuthorizationChanges *prometheus.CounterVec
	BatchesReceived      prometheus.Counter
	FixesReceived        prometheus.Counter
	// labels: kind={access,position}
	PendingWaiters *prometheus.GaugeVec
	// labels: kind={access,position}, outcome={resolved,failed,cancelled}
	WaitersResolved *prometheus.CounterVec
	UpdatesRunning  prometheus.Gauge
}

// New creates the location manager metrics and registers them with reg. A nil Registerer
// leaves the collectors unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthorizationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_requests_total",
			Help:      "Authorization requests by outcome.",
		}, []string{"outcome"}),
		AuthorizationChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorization_changes_total",
			Help:      "Authorization changes reported by the platform backend.",
		}, []string{"status"}),
		BatchesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_batches_received_total",
			Help:      "Non-empty location batches delivered by the platform backend.",
		}),
		FixesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_fixes_received_total",
			Help:      "Individual fixes delivered by the platform backend.",
		}),
		PendingWaiters: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_waiters",
			Help:      "Callers currently blocked on an authorization decision or the next fix.",
		}, []string{"kind"}),
		WaitersResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waiters_resolved_total",
			Help:      "Blocked callers released, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		UpdatesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "updates_running",
			Help:      "1 while continuous location updates are running, 0 otherwise.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.AuthorizationRequests,
			m.AuthorizationChanges,
			m.BatchesReceived,
			m.FixesReceived,
			m.PendingWaiters,
			m.WaitersResolved,
			m.UpdatesRunning,
		)
	}

	return m
}
