package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions    prometheus.Gauge
	sessionsStarted   prometheus.Counter
	sessionsEnded     *prometheus.CounterVec
	stateTransitions  *prometheus.CounterVec
	turnsCompleted    prometheus.Counter
	transcriptEvents  *prometheus.CounterVec
	audioChunksTotal  prometheus.Counter
	audioChunksDrop   *prometheus.CounterVec
	finalizeTriggers  prometheus.Counter
	reapedSessions    prometheus.Counter
	generationLatency prometheus.Histogram
	synthesisLatency  prometheus.Histogram
	collaboratorErrs  *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "interview_active_sessions",
					Help: "Current live interview session count.",
				},
			),
			sessionsStarted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "interview_sessions_started_total",
					Help: "Total interview sessions created.",
				},
			),
			sessionsEnded: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interview_sessions_ended_total",
					Help: "Total interview sessions ended by outcome.",
				},
				[]string{"outcome"},
			),
			stateTransitions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interview_state_transitions_total",
					Help: "Total session state transitions by from and to state.",
				},
				[]string{"from", "to"},
			),
			turnsCompleted: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "interview_turns_completed_total",
					Help: "Total completed question/answer cycles.",
				},
			),
			transcriptEvents: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interview_transcript_events_total",
					Help: "Total transcript events by kind (interim, final).",
				},
				[]string{"kind"},
			),
			audioChunksTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "interview_audio_chunks_total",
					Help: "Total audio chunks accepted by the ingress pipeline.",
				},
			),
			audioChunksDrop: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interview_audio_chunks_dropped_total",
					Help: "Total audio chunks dropped by reason.",
				},
				[]string{"reason"},
			),
			finalizeTriggers: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "interview_silence_finalize_total",
					Help: "Total finalize calls triggered by the silence watchdog.",
				},
			),
			reapedSessions: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "interview_reaped_sessions_total",
					Help: "Total sessions evicted by the stale session reaper.",
				},
			),
			generationLatency: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "interview_generation_duration_seconds",
					Help:    "Question generation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			synthesisLatency: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "interview_synthesis_duration_seconds",
					Help:    "Speech synthesis duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			collaboratorErrs: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interview_collaborator_errors_total",
					Help: "Total collaborator failures by collaborator.",
				},
				[]string{"collaborator"},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsStarted,
			m.sessionsEnded,
			m.stateTransitions,
			m.turnsCompleted,
			m.transcriptEvents,
			m.audioChunksTotal,
			m.audioChunksDrop,
			m.finalizeTriggers,
			m.reapedSessions,
			m.generationLatency,
			m.synthesisLatency,
			m.collaboratorErrs,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

func RecordSessionStarted() {
	getMetrics().sessionsStarted.Inc()
}

func RecordSessionEnded(outcome string) {
	getMetrics().sessionsEnded.WithLabelValues(outcome).Inc()
}

func RecordStateTransition(from, to string) {
	getMetrics().stateTransitions.WithLabelValues(from, to).Inc()
}

func RecordTurnCompleted() {
	getMetrics().turnsCompleted.Inc()
}

func RecordTranscriptEvent(kind string) {
	getMetrics().transcriptEvents.WithLabelValues(kind).Inc()
}

func RecordAudioChunk() {
	getMetrics().audioChunksTotal.Inc()
}

func RecordAudioChunkDropped(reason string) {
	getMetrics().audioChunksDrop.WithLabelValues(reason).Inc()
}

func RecordSilenceFinalize() {
	getMetrics().finalizeTriggers.Inc()
}

func RecordReapedSession() {
	getMetrics().reapedSessions.Inc()
}

func RecordGeneration(d time.Duration) {
	getMetrics().generationLatency.Observe(d.Seconds())
}

func RecordSynthesis(d time.Duration) {
	getMetrics().synthesisLatency.Observe(d.Seconds())
}

func RecordCollaboratorError(collaborator string) {
	getMetrics().collaboratorErrs.WithLabelValues(collaborator).Inc()
}
