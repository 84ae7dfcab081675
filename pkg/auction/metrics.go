package auction

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the auction
type Metrics struct {
	RequestsRegistered prometheus.Counter
	Submissions        *prometheus.CounterVec
	Settlements        *prometheus.CounterVec
	PendingRequests    prometheus.Gauge
	CommissionRate     prometheus.Gauge
}

// NewMetrics creates the auction metrics and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsRegistered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "d3caf",
			Subsystem: "auction",
			Name:      "requests_registered_total",
			Help:      "Total number of mining requests registered",
		}),
		Submissions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "d3caf",
			Subsystem: "auction",
			Name:      "submissions_total",
			Help:      "Total number of salt submissions by result",
		}, []string{"result"}),
		Settlements: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "d3caf",
			Subsystem: "auction",
			Name:      "settlements_total",
			Help:      "Total number of settled requests by outcome",
		}, []string{"outcome"}),
		PendingRequests: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "d3caf",
			Subsystem: "auction",
			Name:      "pending_requests",
			Help:      "Number of registered requests not yet settled",
		}),
		CommissionRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "d3caf",
			Subsystem: "auction",
			Name:      "commission_rate_basis_points",
			Help:      "Current commission rate in basis points",
		}),
	}
}
