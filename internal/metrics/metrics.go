// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exports emulator activity to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Thermoquad/litronsim/pkg/litron"
	"github.com/Thermoquad/litronsim/pkg/lvremote"
)

const namespace = "litronsim"

// Call results
const (
	ResultOK             = "ok"
	ResultUnknownCall    = "unrecognized_call"
	ResultUnknownControl = "unrecognized_parameter"
	ResultInvalidValue   = "invalid_value"
	ResultError          = "error"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Buffers            *prometheus.CounterVec
	Calls              *prometheus.CounterVec
	BytesIn            prometheus.Counter
	BytesOut           prometheus.Counter
	ProcessingDuration prometheus.Histogram

	ActiveConnections   *prometheus.GaugeVec
	TotalConnections    *prometheus.CounterVec
	RejectedConnections prometheus.Counter
}

var _ litron.Observer = (*Metrics)(nil)

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Buffers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffers_total",
			Help:      "Buffers handled, by how they were handled.",
		}, []string{"kind"}),

		Calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "LVGET/LVPUT calls dispatched.",
		}, []string{"verb", "control", "result"}),

		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Request bytes received.",
		}),

		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Reply bytes produced.",
		}),

		ProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "buffer_duration_seconds",
			Help:      "Time spent processing one buffer.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),

		ActiveConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open LVREMOTE connections.",
		}, []string{"transport"}),

		TotalConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "LVREMOTE connections accepted.",
		}, []string{"transport"}),

		RejectedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "TCP connections refused at the connection limit.",
		}),
	}

	m.registry.MustRegister(
		m.Buffers,
		m.Calls,
		m.BytesIn,
		m.BytesOut,
		m.ProcessingDuration,
		m.ActiveConnections,
		m.TotalConnections,
		m.RejectedConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WatchDevice exports the instrument state as gauges sampled at scrape
// time.
func (m *Metrics) WatchDevice(dev *litron.Device) {
	gauge := func(name, help string, fn func(litron.Snapshot) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      name,
			Help:      help,
		}, func() float64 { return fn(dev.Snapshot()) })
	}
	boolean := func(b bool) float64 {
		if b {
			return 1
		}
		return 0
	}

	m.registry.MustRegister(
		gauge("connected", "Link to the bridge is up.", func(s litron.Snapshot) float64 { return boolean(s.Connected) }),
		gauge("hardware_connected", "Wavelength sensor is coupled.", func(s litron.Snapshot) float64 { return boolean(s.HardwareConnected) }),
		gauge("initialized", "A handshake has been seen since the link came up.", func(s litron.Snapshot) float64 { return boolean(s.Initialized) }),
		gauge("crystal_position", "OPO crystal position in steps.", func(s litron.Snapshot) float64 { return float64(s.CrystalPos) }),
		gauge("nudge_distance", "OPO nudge step.", func(s litron.Snapshot) float64 { return float64(s.NudgeDist) }),
		gauge("wavelength", "Wavelength reading, noise included.", func(s litron.Snapshot) float64 { return s.WavelengthReading }),
	)
}

// BufferHandled implements litron.Observer
func (m *Metrics) BufferHandled(kind litron.BufferKind, in, out int, elapsed time.Duration) {
	m.Buffers.WithLabelValues(kind.String()).Inc()
	m.BytesIn.Add(float64(in))
	m.BytesOut.Add(float64(out))
	m.ProcessingDuration.Observe(elapsed.Seconds())
}

// CallHandled implements litron.Observer. Unknown control names collapse
// into one label value.
func (m *Metrics) CallHandled(verb lvremote.Verb, control string, err error) {
	label := "unknown"
	if ctl := litron.LookupControl(control); ctl != litron.ControlUnknown {
		label = ctl.String()
	}
	m.Calls.WithLabelValues(verb.String(), label, Result(err)).Inc()
}

// ConnectionOpened counts a new connection on transport
func (m *Metrics) ConnectionOpened(transport string) {
	m.TotalConnections.WithLabelValues(transport).Inc()
	m.ActiveConnections.WithLabelValues(transport).Inc()
}

// ConnectionClosed drops an open connection on transport
func (m *Metrics) ConnectionClosed(transport string) {
	m.ActiveConnections.WithLabelValues(transport).Dec()
}

// ConnectionRejected counts a connection refused at the limit
func (m *Metrics) ConnectionRejected() {
	m.RejectedConnections.Inc()
}

// Result maps a call error to its result label
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, lvremote.ErrUnrecognizedCall):
		return ResultUnknownCall
	case errors.Is(err, lvremote.ErrUnrecognizedParameter):
		return ResultUnknownControl
	case errors.Is(err, lvremote.ErrInvalidValue):
		return ResultInvalidValue
	default:
		return ResultError
	}
}
