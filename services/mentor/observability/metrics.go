// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the mentor
// pipeline.
//
// Metrics cover the governance surface (semaphore colors, rule
// firings), the generation surface (cache hits, model failures,
// fallbacks), and the async analysis surface (risk findings by
// dimension and severity). Exposed via /metrics; all operations are
// thread-safe through Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "aleutian"
	mentorSubsystem  = "mentor"
)

// PipelineMetrics holds all Prometheus metrics for the tutoring
// pipeline. Initialize once at startup via InitMetrics().
type PipelineMetrics struct {
	// TurnsTotal counts processed turns.
	// Labels: status (ok, vetoed, rejected, error)
	TurnsTotal *prometheus.CounterVec

	// TurnDurationSeconds measures end-to-end turn latency.
	// Labels: status (ok, vetoed, rejected, error)
	TurnDurationSeconds *prometheus.HistogramVec

	// SemaphoreTotal counts governance evaluations by resulting color.
	// Labels: color (green, yellow, red)
	SemaphoreTotal *prometheus.CounterVec

	// RuleFiringsTotal counts pedagogical rule firings.
	// Labels: rule
	RuleFiringsTotal *prometheus.CounterVec

	// ResponseCacheTotal counts generation cache lookups.
	// Labels: outcome (hit, miss)
	ResponseCacheTotal *prometheus.CounterVec

	// ModelFailuresTotal counts model calls that ended in the fallback.
	ModelFailuresTotal prometheus.Counter

	// RisksDetectedTotal counts risk findings written by the analyst.
	// Labels: dimension, severity
	RisksDetectedTotal *prometheus.CounterVec

	// AnalysisDurationSeconds measures one full detector fan-out.
	AnalysisDurationSeconds prometheus.Histogram
}

// DefaultMetrics is the process-wide metrics instance, set by
// InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all pipeline metrics on the default
// registry. Call once at startup; a second call panics on duplicate
// registration.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		TurnsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "turns_total",
				Help:      "Total tutoring turns processed by status",
			},
			[]string{"status"},
		),

		TurnDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn processing latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),

		SemaphoreTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "semaphore_total",
				Help:      "Governance semaphore evaluations by resulting color",
			},
			[]string{"color"},
		),

		RuleFiringsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "rule_firings_total",
				Help:      "Pedagogical rule engine firings by rule",
			},
			[]string{"rule"},
		),

		ResponseCacheTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "response_cache_total",
				Help:      "Response cache lookups by outcome",
			},
			[]string{"outcome"},
		),

		ModelFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "model_failures_total",
				Help:      "Model calls that failed and were served the fallback",
			},
		),

		RisksDetectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "risks_detected_total",
				Help:      "Risk findings written by the analyst, by dimension and severity",
			},
			[]string{"dimension", "severity"},
		),

		AnalysisDurationSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: mentorSubsystem,
				Name:      "analysis_duration_seconds",
				Help:      "Duration of one full risk detector fan-out in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 15.0},
			},
		),
	}
	return DefaultMetrics
}

// TurnStatus labels a completed turn for metrics.
type TurnStatus string

const (
	TurnOK       TurnStatus = "ok"
	TurnVetoed   TurnStatus = "vetoed"
	TurnRejected TurnStatus = "rejected"
	TurnError    TurnStatus = "error"
)

// RecordTurn records one completed turn and its latency.
func (m *PipelineMetrics) RecordTurn(status TurnStatus, seconds float64) {
	m.TurnsTotal.WithLabelValues(string(status)).Inc()
	m.TurnDurationSeconds.WithLabelValues(string(status)).Observe(seconds)
}

// RecordSemaphore records a governance evaluation result.
func (m *PipelineMetrics) RecordSemaphore(color string) {
	m.SemaphoreTotal.WithLabelValues(color).Inc()
}

// RecordRuleFiring records one rule engine firing.
func (m *PipelineMetrics) RecordRuleFiring(rule string) {
	m.RuleFiringsTotal.WithLabelValues(rule).Inc()
}

// RecordCacheLookup records a response cache hit or miss.
func (m *PipelineMetrics) RecordCacheLookup(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.ResponseCacheTotal.WithLabelValues(outcome).Inc()
}

// RecordModelFailure records a model call that degraded to fallback.
func (m *PipelineMetrics) RecordModelFailure() {
	m.ModelFailuresTotal.Inc()
}

// RecordRisk records one persisted risk finding.
func (m *PipelineMetrics) RecordRisk(dimension, severity string) {
	m.RisksDetectedTotal.WithLabelValues(dimension, severity).Inc()
}

// RecordAnalysis records the duration of one analysis run.
func (m *PipelineMetrics) RecordAnalysis(seconds float64) {
	m.AnalysisDurationSeconds.Observe(seconds)
}
