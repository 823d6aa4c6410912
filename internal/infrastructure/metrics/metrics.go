package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/semmidev/cloudvault/internal/domain"
)

// Recorder exposes backup pipeline metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	backupsTotal   *prometheus.CounterVec
	backupDuration prometheus.Histogram
	artifactBytes  prometheus.Counter
	restoresTotal  *prometheus.CounterVec
	reapedTotal    prometheus.Counter
	armedTimers    prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		backupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudvault_backups_total",
			Help: "Backup runs by final status",
		}, []string{"status"}),
		backupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cloudvault_backup_duration_seconds",
			Help:    "Wall time of backup runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		artifactBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_artifact_bytes_total",
			Help: "Archive bytes produced by completed runs",
		}),
		restoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudvault_restores_total",
			Help: "Restore runs by result",
		}, []string{"result"}),
		reapedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "cloudvault_retention_deleted_total",
			Help: "Expired artifacts removed by retention",
		}),
		armedTimers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "cloudvault_scheduler_armed_timers",
			Help: "Backup timers currently armed",
		}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) BackupFinished(status domain.HistoryStatus, elapsed time.Duration, bytes int64) {
	r.backupsTotal.WithLabelValues(string(status)).Inc()
	r.backupDuration.Observe(elapsed.Seconds())
	if status == domain.HistoryCompleted {
		r.artifactBytes.Add(float64(bytes))
	}
}

func (r *Recorder) RestoreFinished(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	r.restoresTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) ArtifactsReaped(n int) {
	r.reapedTotal.Add(float64(n))
}

func (r *Recorder) TimersArmed(n int) {
	r.armedTimers.Set(float64(n))
}
