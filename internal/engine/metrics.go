package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labengine_verifications_total",
			Help: "Total number of solution verifications by outcome.",
		},
		[]string{"outcome"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labengine_instance_transitions_total",
			Help: "Total number of instance state transitions by target state.",
		},
		[]string{"state"},
	)
)

func init() {
	prometheus.MustRegister(verificationsTotal)
	prometheus.MustRegister(transitionsTotal)
}
