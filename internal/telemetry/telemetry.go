// Copyright 2026 The go-cpluff Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package telemetry holds the Prometheus collectors the lifecycle
// controller reports against. A host that does not care about metrics
// never has to touch this package: Registry wires a fresh, unregistered
// collector set per context so multiple contexts never collide on metric
// names in the default global registry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the collectors for a single context's lifecycle
// controller and descriptor loader.
type Registry struct {
	reg *prometheus.Registry

	pluginState      *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	transitionFailed *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	scanDuration     prometheus.Histogram
	descriptorErrors *prometheus.CounterVec
}

// NewRegistry builds a fresh, isolated collector set.
func NewRegistry() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		pluginState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cpluff_plugin_state",
			Help: "Gauge set to 1 for a plug-in's current state, 0 otherwise.",
		}, []string{"plugin", "state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cpluff_plugin_transitions_total",
			Help: "Count of lifecycle transitions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		transitionFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cpluff_plugin_transition_failures_total",
			Help: "Count of lifecycle transition failures by operation and status code.",
		}, []string{"operation", "code"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cpluff_operation_duration_seconds",
			Help:    "Latency of top-level lifecycle operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "cpluff_scan_duration_seconds",
			Help: "Latency of a full source scan.",
		}),
		descriptorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cpluff_descriptor_errors_total",
			Help: "Count of descriptor load failures by severity.",
		}, []string{"severity"}),
	}
	r.reg.MustRegister(
		r.pluginState,
		r.transitions,
		r.transitionFailed,
		r.operationLatency,
		r.scanDuration,
		r.descriptorErrors,
	)
	return r
}

// Gatherer exposes the underlying collector set so a host can serve it,
// e.g. behind an HTTP handler registered with promhttp.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveTransition records a state transition for pluginID, clearing the
// gauge for the old state and setting it for the new one.
func (r *Registry) ObserveTransition(pluginID, oldState, newState string) {
	if oldState != "" {
		r.pluginState.WithLabelValues(pluginID, oldState).Set(0)
	}
	r.pluginState.WithLabelValues(pluginID, newState).Set(1)
}

// ObserveOperation records the outcome of a top-level controller
// operation (install/resolve/start/stop/unresolve/uninstall) plus its
// wall-clock duration.
func (r *Registry) ObserveOperation(operation string, start time.Time, code string) {
	r.operationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if code == "ok" {
		r.transitions.WithLabelValues(operation, "ok").Inc()
		return
	}
	r.transitions.WithLabelValues(operation, "error").Inc()
	r.transitionFailed.WithLabelValues(operation, code).Inc()
}

// ObserveScan records the duration of a completed source scan.
func (r *Registry) ObserveScan(start time.Time) {
	r.scanDuration.Observe(time.Since(start).Seconds())
}

// ObserveDescriptorError increments the descriptor-error counter for the
// given severity ("error" or "warning").
func (r *Registry) ObserveDescriptorError(severity string) {
	r.descriptorErrors.WithLabelValues(severity).Inc()
}
