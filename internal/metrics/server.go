package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics records server-side activity for every command the
// connection handler dispatches (spec §4.8).
type ServerMetrics interface {
	RecordCommand(command, libraryID, status string, duration time.Duration)
	RecordBytesTransferred(direction, libraryID string, bytes uint64)
	SetActiveSessions(count int)
	RecordSessionEnd(reason string)
	RecordLockContention(libraryID string)
}

type promServerMetrics struct {
	commandsTotal      *prometheus.CounterVec
	commandDuration    *prometheus.HistogramVec
	bytesTransferred   *prometheus.CounterVec
	activeSessions     prometheus.Gauge
	sessionEndsTotal   *prometheus.CounterVec
	lockContentionHits *prometheus.CounterVec
}

// NewServerMetrics returns a Prometheus-backed ServerMetrics, or a no-op
// implementation if InitRegistry was never called.
func NewServerMetrics() ServerMetrics {
	if !IsEnabled() {
		return noopServerMetrics{}
	}

	reg := GetRegistry()
	return &promServerMetrics{
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_commands_total",
				Help: "Total commands processed by command, library, and status",
			},
			[]string{"command", "library", "status"},
		),
		commandDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fileharbor_command_duration_seconds",
				Help:    "Command processing duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command", "library"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_bytes_transferred_total",
				Help: "Bytes transferred by direction and library",
			},
			[]string{"direction", "library"},
		),
		activeSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fileharbor_active_sessions",
				Help: "Current number of live sessions",
			},
		),
		sessionEndsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_session_ends_total",
				Help: "Session terminations by reason",
			},
			[]string{"reason"},
		),
		lockContentionHits: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fileharbor_lock_contention_total",
				Help: "Lock acquisition attempts that found the path already locked",
			},
			[]string{"library"},
		),
	}
}

func (m *promServerMetrics) RecordCommand(command, libraryID, status string, duration time.Duration) {
	m.commandsTotal.WithLabelValues(command, libraryID, status).Inc()
	m.commandDuration.WithLabelValues(command, libraryID).Observe(duration.Seconds())
}

func (m *promServerMetrics) RecordBytesTransferred(direction, libraryID string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(direction, libraryID).Add(float64(bytes))
}

func (m *promServerMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}

func (m *promServerMetrics) RecordSessionEnd(reason string) {
	m.sessionEndsTotal.WithLabelValues(reason).Inc()
}

func (m *promServerMetrics) RecordLockContention(libraryID string) {
	m.lockContentionHits.WithLabelValues(libraryID).Inc()
}

type noopServerMetrics struct{}

func (noopServerMetrics) RecordCommand(string, string, string, time.Duration) {}
func (noopServerMetrics) RecordBytesTransferred(string, string, uint64)       {}
func (noopServerMetrics) SetActiveSessions(int)                              {}
func (noopServerMetrics) RecordSessionEnd(string)                            {}
func (noopServerMetrics) RecordLockContention(string)                        {}
