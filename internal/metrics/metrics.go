// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines gatekeeper's Prometheus instruments.
//
// Components take a *Metrics and call its recording methods. A nil
// *Metrics records nothing, so tests and tools that do not serve
// /metrics can pass nil.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every instrument, registered against one registry.
type Metrics struct {
	verificationOutcomes *prometheus.CounterVec
	sweeps               prometheus.Counter
	sweepPrincipals      *prometheus.CounterVec
	sweepDuration        prometheus.Histogram
	gateDecisions        *prometheus.CounterVec
	generationAttempts   *prometheus.CounterVec
	links                *prometheus.GaugeVec
}

// New registers the instruments with registry.
func New(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		verificationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_verification_outcomes_total",
			Help: "Verification flow outcomes by result code",
		}, []string{"outcome"}),
		sweeps: factory.NewCounter(prometheus.CounterOpts{
			Name: "gatekeeper_revocation_sweeps_total",
			Help: "Completed revocation sweeps",
		}),
		sweepPrincipals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_revocation_principals_total",
			Help: "Principals processed by revocation sweeps, by result",
		}, []string{"result"}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatekeeper_revocation_sweep_duration_seconds",
			Help:    "Wall time of a revocation sweep",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		gateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_gate_decisions_total",
			Help: "Access gate decisions by kind",
		}, []string{"decision"}),
		generationAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_generation_attempts_total",
			Help: "Text generation attempts by result",
		}, []string{"result"}),
		links: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gatekeeper_links",
			Help: "Stored principal links by status, as of the last status read",
		}, []string{"status"}),
	}
}

// VerificationOutcome counts one finished verification step.
func (m *Metrics) VerificationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.verificationOutcomes.WithLabelValues(outcome).Inc()
}

// Sweep records a finished sweep.
func (m *Metrics) Sweep(checked, revoked, skipped, failed int, duration time.Duration) {
	if m == nil {
		return
	}
	m.sweeps.Inc()
	m.sweepPrincipals.WithLabelValues("checked").Add(float64(checked))
	m.sweepPrincipals.WithLabelValues("revoked").Add(float64(revoked))
	m.sweepPrincipals.WithLabelValues("skipped").Add(float64(skipped))
	m.sweepPrincipals.WithLabelValues("failed").Add(float64(failed))
	m.sweepDuration.Observe(duration.Seconds())
}

// GateDecision counts one gate evaluation.
func (m *Metrics) GateDecision(decision string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(decision).Inc()
}

// GenerationAttempt counts one provider call.
func (m *Metrics) GenerationAttempt(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.generationAttempts.WithLabelValues(result).Inc()
}

// Links sets the per-status link gauges.
func (m *Metrics) Links(countsByStatus map[string]int) {
	if m == nil {
		return
	}
	for status, count := range countsByStatus {
		m.links.WithLabelValues(status).Set(float64(count))
	}
}
