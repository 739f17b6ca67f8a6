// Package metrics exports detection and HTTP metrics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Frame results counted by FramesTotal.
const (
	FrameClassified = "classified"
	FrameNotReady   = "not_ready"
	FrameNoPose     = "no_pose"
	FrameSkipped    = "skipped"
	FrameTimeout    = "timeout"
	FrameError      = "error"
	FrameWarmup     = "warmup"
)

var (
	// FramesTotal counts camera ticks by what became of them.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuropose_frames_total",
			Help: "Total number of frames by processing result",
		},
		[]string{"result"},
	)

	// ActionsTotal counts classified frames by action.
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuropose_actions_total",
			Help: "Total number of classified frames by action",
		},
		[]string{"action"},
	)

	// PunchesTotal counts neutral to punch transitions.
	PunchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neuropose_punches_total",
			Help: "Total number of punches started",
		},
	)

	// EstimateDuration is the pose model latency.
	EstimateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neuropose_estimate_duration_seconds",
			Help:    "Pose estimation latency in seconds",
			Buckets: []float64{.005, .01, .02, .033, .05, .1, .25, .5, 1, 2},
		},
	)

	// Confidence is the latest classification confidence.
	Confidence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuropose_confidence",
			Help: "Confidence of the latest classification",
		},
	)

	// Idle is 1 while the session is idle.
	Idle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuropose_idle",
			Help: "Whether the session is idle (1) or active (0)",
		},
	)

	// WSClients is the number of connected WebSocket clients.
	WSClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neuropose_ws_clients",
			Help: "Number of connected WebSocket clients",
		},
	)

	// RequestsTotal counts HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neuropose_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"route", "method", "status"},
	)

	// RequestDuration is HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neuropose_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"route", "method"},
	)
)

// SetIdle records the idle flag.
func SetIdle(idle bool) {
	if idle {
		Idle.Set(1)
		return
	}
	Idle.Set(0)
}

// ObserveAction records one classified frame.
func ObserveAction(action string, confidence float64) {
	FramesTotal.WithLabelValues(FrameClassified).Inc()
	ActionsTotal.WithLabelValues(action).Inc()
	Confidence.Set(confidence)
}
