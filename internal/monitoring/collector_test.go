package monitoring

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

// mockStore implements store.Store for testing. Only ListJobs is used.
type mockStore struct {
	jobs    []model.Job
	listErr error
	lists   atomic.Int32
}

func (m *mockStore) ListJobs(_ context.Context, filter store.JobFilter) ([]model.Job, error) {
	m.lists.Add(1)
	if m.listErr != nil {
		return nil, m.listErr
	}
	var filtered []model.Job
	for _, j := range m.jobs {
		if !filter.CreatedAfter.IsZero() && j.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		filtered = append(filtered, j)
	}
	return filtered, nil
}

// Unused store methods satisfy the interface.
func (m *mockStore) CreateJob(context.Context, *model.Job) error                { return nil }
func (m *mockStore) UpdateJob(context.Context, string, model.JobUpdate) error   { return nil }
func (m *mockStore) CompleteJob(context.Context, string, *model.Analysis) error { return nil }
func (m *mockStore) FailJob(context.Context, string, string) error              { return nil }
func (m *mockStore) GetJob(context.Context, string) (*model.Job, error)         { return nil, nil }
func (m *mockStore) SaveAnalysis(context.Context, model.AnalysisRecord) error   { return nil }
func (m *mockStore) Migrate(context.Context) error                              { return nil }
func (m *mockStore) Close() error                                               { return nil }

func completedJob(id string, created time.Time, score float64, researched bool) model.Job {
	return model.Job{
		ID:        id,
		Status:    model.JobStatusCompleted,
		Progress:  100,
		CreatedAt: created,
		UpdatedAt: created,
		AnalysisData: &model.Analysis{
			Scorecard:        model.Scorecard{OverallScore: score},
			ResearchEvidence: &model.ResearchEvidence{ResearchComplete: researched},
		},
	}
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{}, time.Minute)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.JobsTotal)
	assert.Equal(t, 0.0, snap.FailRate)
	assert.Equal(t, 0.0, snap.AvgOverallScore)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_JobMetrics(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &mockStore{
		jobs: []model.Job{
			completedJob("1", now.Add(-time.Hour), 80, true),
			completedJob("2", now.Add(-2*time.Hour), 60, false),
			{ID: "3", Status: model.JobStatusFailed, CreatedAt: now.Add(-3 * time.Hour), UpdatedAt: now.Add(-3 * time.Hour)},
			{ID: "4", Status: model.JobStatusProcessing, Progress: 50, CreatedAt: now.Add(-30 * time.Second), UpdatedAt: now.Add(-20 * time.Second)},
			{ID: "5", Status: model.JobStatusPending, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
			// Outside lookback window.
			{ID: "6", Status: model.JobStatusFailed, CreatedAt: now.Add(-48 * time.Hour)},
		},
	}

	c := NewCollector(st, 2*time.Minute)
	c.now = func() time.Time { return now }
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 5, snap.JobsTotal)
	assert.Equal(t, 2, snap.JobsCompleted)
	assert.Equal(t, 1, snap.JobsFailed)
	assert.Equal(t, 2, snap.JobsInFlight)
	assert.Equal(t, 1, snap.JobsStuck)
	assert.InDelta(t, 1.0/3.0, snap.FailRate, 0.001)
	assert.InDelta(t, 70.0, snap.AvgOverallScore, 0.001)
	assert.Equal(t, 1, snap.DegradedResearch)
	assert.InDelta(t, 0.5, snap.DegradedResearchRate, 0.001)
}

func TestCollector_StuckDisabled(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{jobs: []model.Job{
		{ID: "1", Status: model.JobStatusProcessing, CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour)},
	}}

	snap, err := NewCollector(st, 0).Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.JobsInFlight)
	assert.Equal(t, 0, snap.JobsStuck)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&mockStore{listErr: errors.New("db down")}, 0)
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list jobs")
}

func TestJobStatsCollector(t *testing.T) {
	now := time.Now().UTC()
	st := &mockStore{jobs: []model.Job{
		completedJob("1", now.Add(-time.Minute), 76, true),
		{ID: "2", Status: model.JobStatusFailed, CreatedAt: now, UpdatedAt: now},
	}}

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewJobStatsCollector(NewCollector(st, time.Minute), 24, 0))

	expected := `
# HELP dealscore_store_jobs Jobs created in the lookback window by status.
# TYPE dealscore_store_jobs gauge
dealscore_store_jobs{status="completed"} 1
dealscore_store_jobs{status="failed"} 1
dealscore_store_jobs{status="in_flight"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dealscore_store_jobs"))

	n, err := testutil.GatherAndCount(reg, "dealscore_store_avg_overall_score")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJobStatsCollector_CachesBetweenScrapes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &mockStore{jobs: []model.Job{completedJob("1", now.Add(-time.Minute), 76, true)}}
	c := NewCollector(st, time.Minute)
	c.now = func() time.Time { return now }

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewJobStatsCollector(c, 24, 30*time.Second))

	for range 3 {
		_, err := reg.Gather()
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), st.lists.Load())

	now = now.Add(31 * time.Second)
	_, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, int32(2), st.lists.Load())
}

func TestJobStatsCollector_ErrorNotCached(t *testing.T) {
	st := &mockStore{listErr: errors.New("db down")}
	reg := prometheus.NewRegistry()
	reg.MustRegister(NewJobStatsCollector(NewCollector(st, 0), 24, time.Minute))

	n, err := testutil.GatherAndCount(reg, "dealscore_store_jobs")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	st.listErr = nil
	n, err = testutil.GatherAndCount(reg, "dealscore_store_jobs")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, int32(2), st.lists.Load())
}
