// Package monitoring exposes pipeline metrics to Prometheus and raises
// webhook alerts when job outcomes degrade.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

const namespace = "dealscore"

// Metrics records scheduler events as Prometheus series. It satisfies the
// scheduler's metrics hook.
type Metrics struct {
	submitted   prometheus.Counter
	finished    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	stage       *prometheus.HistogramVec
	writeFails  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Number of analysis jobs accepted.",
		}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Number of analysis jobs that reached a terminal status.",
		}, []string{"status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Time from driver start to finalization.",
			Buckets:   []float64{0.5, 1, 2, 4, 8, 12, 16, 20, 30},
		}, []string{"status"}),
		stage: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Stage latency partitioned by stage and outcome.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 6, 8, 10},
		}, []string{"stage", "outcome"}),
		writeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_write_failures_total",
			Help:      "Job store writes that failed after retries.",
		}, []string{"operation"}),
	}
	reg.MustRegister(m.submitted, m.finished, m.jobDuration, m.stage, m.writeFails)
	return m
}

func (m *Metrics) JobSubmitted() { m.submitted.Inc() }

func (m *Metrics) StageFinished(stage, outcome string, d time.Duration) {
	m.stage.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

func (m *Metrics) JobFinished(status model.JobStatus, d time.Duration) {
	m.finished.WithLabelValues(string(status)).Inc()
	m.jobDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

func (m *Metrics) StoreWriteFailed(op string) {
	m.writeFails.WithLabelValues(op).Inc()
}
