package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProvisioningAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_provisioning_attempts_total",
			Help: "Total number of provisioning attempts by outcome and failed phase",
		},
		[]string{"outcome", "phase"},
	)

	PhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_provisioning_phase_duration_seconds",
			Help:    "Duration of each provisioning phase",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)

	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tenant_provisioning_in_flight",
			Help: "Number of provisioning runs currently executing",
		},
	)
)

// Init registers metrics with Prometheus
func Init() {
	prometheus.MustRegister(ProvisioningAttempts)
	prometheus.MustRegister(PhaseDuration)
	prometheus.MustRegister(InFlight)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
