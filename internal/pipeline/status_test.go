package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

var statusEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func readerAt(st *memStore, now time.Time) *StatusReader {
	r := NewStatusReader(st, 0)
	r.now = func() time.Time { return now }
	return r
}

func TestGetStatus_GraceWindow(t *testing.T) {
	id := model.NewJobID(statusEpoch)

	tests := []struct {
		name    string
		age     time.Duration
		wantErr bool
	}{
		{"just issued", 0, false},
		{"10s old", 10 * time.Second, false},
		{"29s old", 29 * time.Second, false},
		{"30s old", 30 * time.Second, true},
		{"40s old", 40 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := readerAt(newMemStore(), statusEpoch.Add(tt.age))
			v, err := r.GetStatus(context.Background(), id)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrJobNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.JobStatusPending, v.Status)
			assert.Equal(t, 5, v.Progress)
			assert.Equal(t, "Analysis is starting...", v.Message)
			assert.Equal(t, id, v.JobID)
		})
	}
}

func TestGetStatus_MalformedID(t *testing.T) {
	r := readerAt(newMemStore(), statusEpoch)
	_, err := r.GetStatus(context.Background(), "not-a-job")
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = r.GetStatus(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetStatus_StoreErrorPropagates(t *testing.T) {
	st := newMemStore()
	st.getErr = errors.New("connection refused")
	r := readerAt(st, statusEpoch)

	_, err := r.GetStatus(context.Background(), model.NewJobID(statusEpoch))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrJobNotFound)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestGetStatus_Projection(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	r := readerAt(st, statusEpoch)

	processing := model.NewJob("job-1-a", "Acme Corp", "Globex Inc", "", statusEpoch)
	require.NoError(t, st.CreateJob(ctx, processing))
	require.NoError(t, st.UpdateJob(ctx, processing.ID, model.JobUpdate{
		Status: model.JobStatusProcessing, Progress: 50, CurrentStep: StepResearchComplete, ResearchData: sampleBundle(),
	}))

	completed := model.NewJob("job-1-b", "Acme Corp", "Globex Inc", "", statusEpoch)
	require.NoError(t, st.CreateJob(ctx, completed))
	require.NoError(t, st.UpdateJob(ctx, completed.ID, model.JobUpdate{
		Status: model.JobStatusProcessing, Progress: 50, CurrentStep: StepResearchComplete, ResearchData: sampleBundle(),
	}))
	require.NoError(t, st.CompleteJob(ctx, completed.ID, Fuse(scorecardWith("A"), sampleBundle())))

	failed := model.NewJob("job-1-c", "Acme Corp", "Globex Inc", "", statusEpoch)
	require.NoError(t, st.CreateJob(ctx, failed))
	require.NoError(t, st.FailJob(ctx, failed.ID, "Analysis generation timed out"))

	t.Run("processing hides research", func(t *testing.T) {
		v, err := r.GetStatus(ctx, "job-1-a")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusProcessing, v.Status)
		assert.Equal(t, 50, v.Progress)
		assert.Nil(t, v.ResearchData)
		assert.Nil(t, v.Analysis)
		assert.Empty(t, v.Error)
	})

	t.Run("completed exposes analysis", func(t *testing.T) {
		v, err := r.GetStatus(ctx, "job-1-b")
		require.NoError(t, err)
		assert.Equal(t, 100, v.Progress)
		require.NotNil(t, v.Analysis)
		require.NotNil(t, v.ResearchData)
		assert.Empty(t, v.Error)

		raw, err := json.Marshal(v)
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(raw, &m))
		for _, k := range []string{"jobId", "status", "progress", "currentStep", "seller", "target", "createdAt", "updatedAt", "analysis", "researchData"} {
			assert.Contains(t, m, k)
		}
		assert.NotContains(t, m, "error")
	})

	t.Run("failed exposes error only", func(t *testing.T) {
		v, err := r.GetStatus(ctx, "job-1-c")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, v.Status)
		assert.Equal(t, 0, v.Progress)
		assert.Equal(t, "Analysis generation timed out", v.Error)
		assert.Nil(t, v.Analysis)
	})

	t.Run("terminal payload is stable", func(t *testing.T) {
		first, err := r.GetStatus(ctx, "job-1-b")
		require.NoError(t, err)
		assert.Error(t, st.FailJob(ctx, "job-1-b", "late"))
		second, err := r.GetStatus(ctx, "job-1-b")
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
