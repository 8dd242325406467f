// Package metrics holds Prometheus instruments that are used across the
// service.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActiveInstances = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "knit_active_form_instances",
			Help: "Number of form controllers currently held in memory.",
		})

	InstanceCreateTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knit_form_instance_create_total",
			Help: "Cumulative number of form instances created.",
		})

	InstanceEvictTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "knit_form_instance_evict_total",
			Help: "Cumulative number of form instances evicted, by reason.",
		}, []string{"reason"})

	SubmitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "knit_form_submit_duration_seconds",
			Help:    "Latency of HandleSubmit, by form and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"form", "status"})

	SessionLoadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "knit_session_load_errors_total",
			Help: "Cumulative number of session store load or save errors.",
		})
)

func init() {
	prometheus.MustRegister(
		ActiveInstances,
		InstanceCreateTotal,
		InstanceEvictTotal,
		SubmitDuration,
		SessionLoadErrorsTotal,
	)
}
