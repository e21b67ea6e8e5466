package provisioner

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

var (
	provisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labengine_provisions_total",
			Help: "Total number of provision calls by outcome.",
		},
		[]string{"outcome"},
	)

	deprovisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labengine_deprovisions_total",
			Help: "Total number of deprovision calls by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(provisionsTotal)
	prometheus.MustRegister(deprovisionsTotal)
}
