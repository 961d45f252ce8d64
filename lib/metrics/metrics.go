// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds Huddle's Prometheus collectors.
//
// Collectors live on a private registry rather than the global default
// so tests and multiple pipelines in one process do not collide. A nil
// *Metrics is valid and records nothing, which lets components accept
// metrics as an optional config field.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline run and directory fetch results.
const (
	ResultSuccess = "success"
	ResultPartial = "partial"
	ResultFailure = "failure"
	ResultBusy    = "busy"
)

// Metrics is the set of Huddle collectors.
type Metrics struct {
	registry           *prometheus.Registry
	pipelineRuns       *prometheus.CounterVec
	stageDuration      *prometheus.HistogramVec
	messagesSent       prometheus.Counter
	messagesReceived   prometheus.Counter
	subscriptionErrors prometheus.Counter
	directoryFetches   *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_pipeline_runs_total",
			Help: "Connection pipeline runs by result.",
		}, []string{"result"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "huddle_pipeline_stage_duration_seconds",
			Help:    "Duration of each connection pipeline stage.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_messages_sent_total",
			Help: "Messages accepted by the chat backend.",
		}),
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_messages_received_total",
			Help: "Messages delivered by room subscriptions.",
		}),
		subscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "huddle_subscription_errors_total",
			Help: "Room subscriptions that ended in an error.",
		}),
		directoryFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "huddle_directory_fetch_total",
			Help: "User directory fetches by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.pipelineRuns,
		m.stageDuration,
		m.messagesSent,
		m.messagesReceived,
		m.subscriptionErrors,
		m.directoryFetches,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format. On
// a nil *Metrics it answers 404.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PipelineRun counts one pipeline run with the given result.
func (m *Metrics) PipelineRun(result string) {
	if m == nil {
		return
	}
	m.pipelineRuns.WithLabelValues(result).Inc()
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage string, duration time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// MessageSent counts one sent message.
func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

// MessagesReceived counts delivered messages.
func (m *Metrics) MessagesReceived(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.messagesReceived.Add(float64(count))
}

// SubscriptionError counts one subscription that ended in error.
func (m *Metrics) SubscriptionError() {
	if m == nil {
		return
	}
	m.subscriptionErrors.Inc()
}

// DirectoryFetch counts one directory fetch with the given result.
func (m *Metrics) DirectoryFetch(result string) {
	if m == nil {
		return
	}
	m.directoryFetches.WithLabelValues(result).Inc()
}
