package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dailycast"

// Metrics holds the campaign counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	cellsGenerated     prometheus.Counter
	cellsApproved      prometheus.Counter
	cellsDemoted       prometheus.Counter
	jobsScheduled      prometheus.Counter
	jobsDispatched     prometheus.Counter
	messages           *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	upstreamFailures   *prometheus.CounterVec
	estimateCacheReads *prometheus.CounterVec
}

// New creates the counters on a dedicated registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cellsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_generated_total",
			Help:      "Content cells written by the generator.",
		}),
		cellsApproved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_approved_total",
			Help:      "Content cells moved to APPROVED.",
		}),
		cellsDemoted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_demoted_total",
			Help:      "APPROVED cells demoted by an edit.",
		}),
		jobsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_scheduled_total",
			Help:      "Delivery jobs created.",
		}),
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dispatched_total",
			Help:      "Delivery jobs claimed by the dispatch worker.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Per recipient delivery outcomes.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lifecycle_transitions_total",
			Help:      "Lifecycle transitions handled by the cutover.",
		}, []string{"kind", "outcome"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_failures_total",
			Help:      "Failed generator and speech calls.",
		}, []string{"code"}),
		estimateCacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimate_cache_reads_total",
			Help:      "Estimate cache lookups.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.cellsGenerated,
		m.cellsApproved,
		m.cellsDemoted,
		m.jobsScheduled,
		m.jobsDispatched,
		m.messages,
		m.transitions,
		m.upstreamFailures,
		m.estimateCacheReads,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) CellGenerated() {
	if m != nil {
		m.cellsGenerated.Inc()
	}
}

func (m *Metrics) CellApproved() {
	if m != nil {
		m.cellsApproved.Inc()
	}
}

func (m *Metrics) CellsDemoted(n int) {
	if m != nil && n > 0 {
		m.cellsDemoted.Add(float64(n))
	}
}

func (m *Metrics) JobScheduled() {
	if m != nil {
		m.jobsScheduled.Inc()
	}
}

func (m *Metrics) JobDispatched() {
	if m != nil {
		m.jobsDispatched.Inc()
	}
}

// Message records one recipient outcome: sent, skipped or failed.
func (m *Metrics) Message(result string) {
	if m != nil {
		m.messages.WithLabelValues(result).Inc()
	}
}

// Transition records one cutover outcome for a transition kind.
func (m *Metrics) Transition(kind, outcome string) {
	if m != nil {
		m.transitions.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) UpstreamFailure(code string) {
	if m != nil {
		m.upstreamFailures.WithLabelValues(code).Inc()
	}
}

// EstimateCacheRead records a hit or a miss.
func (m *Metrics) EstimateCacheRead(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.estimateCacheReads.WithLabelValues("hit").Inc()
		return
	}
	m.estimateCacheReads.WithLabelValues("miss").Inc()
}
