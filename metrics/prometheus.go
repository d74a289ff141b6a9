// Package metrics exposes Prometheus instrumentation for the capture
// library. All Record helpers are nil-safe so embedding applications can
// opt out by passing a nil *Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice capture library
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsTornDown  prometheus.Counter
	SessionErrors     *prometheus.CounterVec
	RecordingsStarted prometheus.Counter
	RecordingsStopped prometheus.Counter
	RecordingDuration prometheus.Histogram

	// Activity detection metrics
	EnergySamples prometheus.Counter
	VoiceActive   prometheus.Counter
	SilenceStops  prometheus.Counter

	// Artifact metrics
	ArtifactSize prometheus.Histogram

	// Dispatch metrics
	DispatchRequests  prometheus.Counter
	DispatchSuccesses prometheus.Counter
	DispatchFailures  prometheus.Counter
	DispatchDuration  prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_sessions_started_total",
			Help: "Total number of capture sessions started",
		}),
		SessionsTornDown: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_sessions_torn_down_total",
			Help: "Total number of capture sessions torn down",
		}),
		SessionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecapture_session_errors_total",
			Help: "Total number of session errors by stage",
		}, []string{"stage"}),
		RecordingsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_recordings_started_total",
			Help: "Total number of recordings started",
		}),
		RecordingsStopped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_recordings_stopped_total",
			Help: "Total number of recordings stopped",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecapture_recording_duration_seconds",
			Help:    "Duration of completed recordings in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8.5 minutes
		}),
		EnergySamples: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_energy_samples_total",
			Help: "Total number of energy samples processed",
		}),
		VoiceActive: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_voice_active_total",
			Help: "Total number of energy samples classified as voice",
		}),
		SilenceStops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_silence_stops_total",
			Help: "Total number of recordings stopped by the silence timer",
		}),
		ArtifactSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecapture_artifact_size_bytes",
			Help:    "Size of finalized audio artifacts in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		DispatchRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_dispatch_requests_total",
			Help: "Total number of transcription dispatch requests",
		}),
		DispatchSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_dispatch_successes_total",
			Help: "Total number of successful transcription dispatches",
		}),
		DispatchFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicecapture_dispatch_failures_total",
			Help: "Total number of failed transcription dispatches",
		}),
		DispatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecapture_dispatch_duration_seconds",
			Help:    "Duration of transcription dispatch requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
	}
}

// RecordSessionStarted increments the sessions started counter
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordSessionTornDown increments the sessions torn down counter
func (m *Metrics) RecordSessionTornDown() {
	if m == nil {
		return
	}
	m.SessionsTornDown.Inc()
}

// RecordSessionError records a session error for the given stage
func (m *Metrics) RecordSessionError(stage string) {
	if m == nil {
		return
	}
	m.SessionErrors.WithLabelValues(stage).Inc()
}

// RecordRecordingStarted increments the recordings started counter
func (m *Metrics) RecordRecordingStarted() {
	if m == nil {
		return
	}
	m.RecordingsStarted.Inc()
}

// RecordRecordingStopped records a stopped recording and its duration
func (m *Metrics) RecordRecordingStopped(durationSeconds float64) {
	if m == nil {
		return
	}
	m.RecordingsStopped.Inc()
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordEnergySample increments energy sample counters
func (m *Metrics) RecordEnergySample(active bool) {
	if m == nil {
		return
	}
	m.EnergySamples.Inc()
	if active {
		m.VoiceActive.Inc()
	}
}

// RecordSilenceStop increments the silence-timer stop counter
func (m *Metrics) RecordSilenceStop() {
	if m == nil {
		return
	}
	m.SilenceStops.Inc()
}

// RecordArtifact records a finalized artifact size
func (m *Metrics) RecordArtifact(sizeBytes int) {
	if m == nil {
		return
	}
	m.ArtifactSize.Observe(float64(sizeBytes))
}

// RecordDispatch records one dispatch attempt and its outcome
func (m *Metrics) RecordDispatch(success bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.DispatchRequests.Inc()
	if success {
		m.DispatchSuccesses.Inc()
	} else {
		m.DispatchFailures.Inc()
	}
	m.DispatchDuration.Observe(durationSeconds)
}
