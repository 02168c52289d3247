package capture

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xrcap/xrcap/pkg/viture"
)

// Metrics are updated once per finished session.
type Metrics struct {
	registry *prometheus.Registry

	packets  *prometheus.CounterVec
	bytes    *prometheus.CounterVec
	cameras  *prometheus.CounterVec
	sessions *prometheus.CounterVec
	triggers prometheus.Counter
	acks     prometheus.Counter
	frames   prometheus.Counter
}

func NewMetrics(active func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xrcap_packets_total",
			Help: "Streaming packets read, by type",
		}, []string{"type"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xrcap_bytes_total",
			Help: "Streaming bytes read, by packet type",
		}, []string{"type"}),
		cameras: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xrcap_camera_packets_total",
			Help: "FRAME packets by camera side",
		}, []string{"camera"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xrcap_sessions_total",
			Help: "Finished capture sessions, by close cause",
		}, []string{"cause"}),
		triggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xrcap_triggers_total",
			Help: "Stream trigger commands sent",
		}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xrcap_trigger_acks_total",
			Help: "Stream trigger commands acknowledged",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xrcap_distinct_frames_total",
			Help: "Distinct frame numbers seen per session, summed",
		}),
	}

	m.registry.MustRegister(
		m.packets, m.bytes, m.cameras, m.sessions,
		m.triggers, m.acks, m.frames,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "xrcap_capture_active",
			Help: "1 while a capture session runs",
		}, active),
	)

	return m
}

func (m *Metrics) Observe(r *viture.Report) {
	for _, v := range []struct {
		typ            viture.PacketType
		packets, bytes int64
	}{
		{viture.PacketFrame, r.Packets.Frame, r.Bytes.Frame},
		{viture.PacketTelemetry, r.Packets.Telemetry, r.Bytes.Telemetry},
		{viture.PacketOther, r.Packets.Other, r.Bytes.Other},
	} {
		m.packets.WithLabelValues(v.typ.String()).Add(float64(v.packets))
		m.bytes.WithLabelValues(v.typ.String()).Add(float64(v.bytes))
	}

	for camera, n := range r.Frames.Cameras {
		m.cameras.WithLabelValues(camera).Add(float64(n))
	}

	m.sessions.WithLabelValues(string(r.Cause)).Inc()
	m.triggers.Add(float64(r.Triggers))
	m.acks.Add(float64(r.TriggerAcks))
	m.frames.Add(float64(r.Frames.Distinct))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
