// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes Prometheus counters and gauges for the link, the
// executor and the feed server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	framesSent      prometheus.Counter
	framesReceived  *prometheus.CounterVec
	linkErrors      *prometheus.CounterVec
	sessions        *prometheus.CounterVec
	rescales        prometheus.Counter
	pointsStreamed  prometheus.Counter
	bufferLevel     prometheus.Gauge
	streaming       prometheus.Gauge
	connected       prometheus.Gauge
	requestsTotal   prometheus.Counter
	requestErrors   prometheus.Counter
	feedSubscribers prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_frames_sent_total",
			Help: "Command frames written to the firmware",
		}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_frames_received_total",
			Help: "Valid response frames decoded, by type",
		}, []string{"type"}),
		linkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_link_errors_total",
			Help: "Link decode errors, by kind",
		}, []string{"kind"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quill_sessions_total",
			Help: "Streaming sessions, by outcome",
		}, []string{"outcome"}),
		rescales: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_rescales_total",
			Help: "Trajectories slowed down by the safety validator",
		}),
		pointsStreamed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_points_streamed_total",
			Help: "Trajectory points sent or simulated",
		}),
		bufferLevel: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quill_firmware_buffer_level",
			Help: "Last reported firmware ring buffer occupancy",
		}),
		streaming: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quill_streaming",
			Help: "1 while a session is running",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quill_link_connected",
			Help: "1 while the firmware link is open",
		}),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_http_requests_total",
			Help: "HTTP requests received by the feed server",
		}),
		requestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quill_http_errors_total",
			Help: "HTTP responses with status >= 400",
		}),
		feedSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quill_feed_subscribers",
			Help: "Connected state feed clients",
		}),
	}

	registry.MustRegister(
		m.framesSent,
		m.framesReceived,
		m.linkErrors,
		m.sessions,
		m.rescales,
		m.pointsStreamed,
		m.bufferLevel,
		m.streaming,
		m.connected,
		m.requestsTotal,
		m.requestErrors,
		m.feedSubscribers,
	)
	return m
}

// Registry returns the private registry, for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AddFramesSent counts written command frames.
func (m *Metrics) AddFramesSent(n int) {
	if m == nil {
		return
	}
	m.framesSent.Add(float64(n))
}

// IncFrameReceived counts a decoded frame by type name.
func (m *Metrics) IncFrameReceived(kind string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(kind).Inc()
}

// IncLinkError counts a decode error: crc, unknown_type or decode.
func (m *Metrics) IncLinkError(kind string) {
	if m == nil {
		return
	}
	m.linkErrors.WithLabelValues(kind).Inc()
}

// IncSession counts a finished session: completed, cancelled or failed.
func (m *Metrics) IncSession(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// IncRescale counts a validator slow-down.
func (m *Metrics) IncRescale() {
	if m == nil {
		return
	}
	m.rescales.Inc()
}

// AddPointsStreamed counts streamed or simulated points.
func (m *Metrics) AddPointsStreamed(n int) {
	if m == nil {
		return
	}
	m.pointsStreamed.Add(float64(n))
}

// SetBufferLevel sets the firmware buffer gauge.
func (m *Metrics) SetBufferLevel(level int) {
	if m == nil {
		return
	}
	m.bufferLevel.Set(float64(level))
}

// SetStreaming sets the streaming gauge.
func (m *Metrics) SetStreaming(on bool) {
	if m == nil {
		return
	}
	m.streaming.Set(boolGauge(on))
}

// SetConnected sets the link gauge.
func (m *Metrics) SetConnected(on bool) {
	if m == nil {
		return
	}
	m.connected.Set(boolGauge(on))
}

// SetFeedSubscribers sets the feed client gauge.
func (m *Metrics) SetFeedSubscribers(n int) {
	if m == nil {
		return
	}
	m.feedSubscribers.Set(float64(n))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.requestErrors.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
