// Package metrics holds the terminal's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles all collectors. Construct with New and share one
// instance across services.
type Metrics struct {
	AuthAttempts     *prometheus.CounterVec // label: outcome
	HeadcountWindows *prometheus.CounterVec // label: result (matched|mismatch|insufficient)
	TripsFinalized   *prometheus.CounterVec // label: exit (closed|<abort reason>)
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mawkib_auth_attempts_total",
			Help: "Authentication attempts by final outcome.",
		}, []string{"outcome"}),
		HeadcountWindows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mawkib_headcount_windows_total",
			Help: "Completed headcount reconciliation windows by result.",
		}, []string{"result"}),
		TripsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mawkib_trips_finalized_total",
			Help: "Finalized trip sessions by exit state.",
		}, []string{"exit"}),
	}
}
