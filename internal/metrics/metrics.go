// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// StreamSupervisor - FFmpeg 推流会话监管工具

// Package metrics exposes Prometheus metrics for supervised FFmpeg sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ZSC714725/streamsupervisor/internal/process"
)

const namespace = "streamsup"

// Metrics groups the session collectors
type Metrics struct {
	sessionsActive prometheus.Gauge
	startupSeconds prometheus.Histogram
	exits          *prometheus.CounterVec
	fps            *prometheus.GaugeVec
	speed          *prometheus.GaugeVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Streaming sessions with a live FFmpeg process",
		}),
		startupSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "startup_seconds",
			Help:      "Time from launching FFmpeg to the first frame",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 15, 22, 30, 60},
		}),
		exits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "FFmpeg exits by outcome",
		}, []string{"outcome"}),
		fps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ffmpeg",
			Name:      "fps",
			Help:      "Current FFmpeg encoding FPS",
		}, []string{"session"}),
		speed: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ffmpeg",
			Name:      "speed",
			Help:      "FFmpeg processing speed multiplier",
		}, []string{"session"}),
	}
}

// SessionOpened counts a new live session
func (m *Metrics) SessionOpened() {
	m.sessionsActive.Inc()
}

// SessionClosed drops the per-session series
func (m *Metrics) SessionClosed(sessionID string) {
	m.sessionsActive.Dec()
	m.fps.DeleteLabelValues(sessionID)
	m.speed.DeleteLabelValues(sessionID)
}

// ObserveStartup records the first frame latency
func (m *Metrics) ObserveStartup(seconds float64) {
	m.startupSeconds.Observe(seconds)
}

// ObserveExit counts one classified exit
func (m *Metrics) ObserveExit(outcome process.Outcome) {
	m.exits.WithLabelValues(outcome.String()).Inc()
}

// ObserveProgress updates the per-session gauges
func (m *Metrics) ObserveProgress(sessionID string, report process.ProgressReport) {
	m.fps.WithLabelValues(sessionID).Set(report.FPS)
	m.speed.WithLabelValues(sessionID).Set(report.Speed)
}
