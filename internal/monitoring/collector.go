package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

// snapshotLimit caps how many jobs one collection reads.
const snapshotLimit = 10000

// MetricsSnapshot holds a point-in-time view of job health.
type MetricsSnapshot struct {
	// Jobs created within the lookback window.
	JobsTotal     int     `json:"jobs_total"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsInFlight  int     `json:"jobs_in_flight"`
	FailRate      float64 `json:"fail_rate"`

	// In-flight jobs whose last update is older than the stuck threshold.
	JobsStuck int `json:"jobs_stuck"`

	// Completed jobs scored without research evidence.
	DegradedResearch     int     `json:"degraded_research"`
	DegradedResearchRate float64 `json:"degraded_research_rate"`

	AvgOverallScore float64 `json:"avg_overall_score"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers job metrics from the store.
type Collector struct {
	store      store.Store
	stuckAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Jobs not updated for stuckAfter while
// non-terminal count as stuck; zero disables the check.
func NewCollector(st store.Store, stuckAfter time.Duration) *Collector {
	return &Collector{store: st, stuckAfter: stuckAfter, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	jobs, err := c.store.ListJobs(ctx, store.JobFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        snapshotLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list jobs")
	}

	snap.JobsTotal = len(jobs)
	var totalScore float64
	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
			if a := j.AnalysisData; a != nil {
				totalScore += a.Scorecard.OverallScore
				if a.ResearchEvidence == nil || !a.ResearchEvidence.ResearchComplete {
					snap.DegradedResearch++
				}
			}
		case model.JobStatusFailed:
			snap.JobsFailed++
		default:
			snap.JobsInFlight++
			if c.stuckAfter > 0 && now.Sub(j.UpdatedAt) > c.stuckAfter {
				snap.JobsStuck++
			}
		}
	}

	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.FailRate = float64(snap.JobsFailed) / float64(finished)
	}
	if snap.JobsCompleted > 0 {
		snap.AvgOverallScore = totalScore / float64(snap.JobsCompleted)
		snap.DegradedResearchRate = float64(snap.DegradedResearch) / float64(snap.JobsCompleted)
	}
	return snap, nil
}

// jobStatsCollector exports a store snapshot to Prometheus. Scrapes within
// cacheFor of the last collection reuse it.
type jobStatsCollector struct {
	collector     *Collector
	lookbackHours int
	cacheFor      time.Duration

	mu   sync.Mutex
	last *MetricsSnapshot

	jobs     *prometheus.Desc
	stuck    *prometheus.Desc
	degraded *prometheus.Desc
	avgScore *prometheus.Desc
}

// NewJobStatsCollector returns a prometheus.Collector that reads the store
// at most once per cacheFor; zero reads it on every scrape.
func NewJobStatsCollector(c *Collector, lookbackHours int, cacheFor time.Duration) prometheus.Collector {
	return &jobStatsCollector{
		collector:     c,
		lookbackHours: lookbackHours,
		cacheFor:      cacheFor,
		jobs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "jobs"),
			"Jobs created in the lookback window by status.",
			[]string{"status"}, nil,
		),
		stuck: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "jobs_stuck"),
			"Non-terminal jobs with no recent update.",
			nil, nil,
		),
		degraded: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "degraded_research_ratio"),
			"Share of completed jobs scored without research.",
			nil, nil,
		),
		avgScore: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "avg_overall_score"),
			"Mean overall score of completed jobs.",
			nil, nil,
		),
	}
}

func (c *jobStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.stuck
	ch <- c.degraded
	ch <- c.avgScore
}

// snapshot serializes concurrent scrapes so only one reads the store.
func (c *jobStatsCollector) snapshot() (*MetricsSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last != nil && c.collector.now().Sub(c.last.CollectedAt) < c.cacheFor {
		return c.last, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.collector.Collect(ctx, c.lookbackHours)
	if err != nil {
		return nil, err
	}
	c.last = snap
	return snap, nil
}

func (c *jobStatsCollector) Collect(ch chan<- prometheus.Metric) {
	snap, err := c.snapshot()
	if err != nil {
		zap.L().Error("monitoring: failed to collect job statistics", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(snap.JobsCompleted), string(model.JobStatusCompleted))
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(snap.JobsFailed), string(model.JobStatusFailed))
	ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(snap.JobsInFlight), "in_flight")
	ch <- prometheus.MustNewConstMetric(c.stuck, prometheus.GaugeValue, float64(snap.JobsStuck))
	ch <- prometheus.MustNewConstMetric(c.degraded, prometheus.GaugeValue, snap.DegradedResearchRate)
	ch <- prometheus.MustNewConstMetric(c.avgScore, prometheus.GaugeValue, snap.AvgOverallScore)
}
