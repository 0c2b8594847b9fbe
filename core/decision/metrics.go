package decision

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	evaluationLatency *prometheus.HistogramVec
	vehiclesEvaluated *prometheus.CounterVec
	newDispatchTotal  *prometheus.CounterVec
	decisionScore     prometheus.Histogram
	invalidVehicles   prometheus.Counter
)

func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Histogram, prometheus.Counter) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decision_evaluation_seconds",
			Help:    "Duration of a consolidation evaluation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	veh := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_vehicles_evaluated_total",
			Help: "Candidate vehicles evaluated, by eligibility",
		},
		[]string{"eligible"},
	)
	nd := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_new_dispatch_total",
			Help: "Evaluations that ended with a new dispatch recommendation",
		},
		[]string{"mode"},
	)
	score := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "decision_score",
			Help:    "Score of the best ranked vehicle",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
	inv := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_invalid_vehicles_total",
			Help: "Vehicle snapshots skipped because they failed validation",
		},
	)
	return lat, veh, nd, score, inv
}

func init() {
	evaluationLatency, vehiclesEvaluated, newDispatchTotal, decisionScore, invalidVehicles = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers decision metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(evaluationLatency, vehiclesEvaluated, newDispatchTotal, decisionScore, invalidVehicles)
}

// ResetMetrics reinitializes the collectors for tests and registers them on
// reg when it is not nil.
func ResetMetrics(reg prometheus.Registerer) {
	evaluationLatency, vehiclesEvaluated, newDispatchTotal, decisionScore, invalidVehicles = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func modeLabel(shadow bool) string {
	if shadow {
		return "shadow"
	}
	return "production"
}
