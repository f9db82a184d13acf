// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RegistrationsTotal counts workers signing the books.
	RegistrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_registrations_total",
		Help: "Total registrations created.",
	})

	// DispatchesTotal counts dispatches by method.
	DispatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_dispatches_total",
		Help: "Total dispatches created, by method.",
	}, []string{"method"})

	// CheckMarksTotal counts recorded check marks.
	CheckMarksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "referral_check_marks_total",
		Help: "Total check marks recorded against registrations.",
	})

	// SweepTransitionsTotal counts enforcement sweep transitions by sweep
	// name.
	SweepTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "referral_sweep_transitions_total",
		Help: "Total state transitions applied by enforcement sweeps.",
	}, []string{"sweep"})

	// QueueDepth tracks the dispatchable queue depth per book.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "referral_queue_depth",
		Help: "Registrations currently dispatchable, by book.",
	}, []string{"book"})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
