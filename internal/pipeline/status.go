package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

const (
	// DefaultGraceWindow is how long an unknown job id is reported as starting.
	DefaultGraceWindow = 30 * time.Second

	startingProgress = 5
	startingMessage  = "Analysis is starting..."
)

// JobView is the polling payload for one job.
type JobView struct {
	JobID        string                `json:"jobId"`
	Status       model.JobStatus       `json:"status"`
	Progress     int                   `json:"progress"`
	CurrentStep  string                `json:"currentStep,omitempty"`
	Message      string                `json:"message,omitempty"`
	Seller       string                `json:"seller,omitempty"`
	Target       string                `json:"target,omitempty"`
	CreatedAt    *time.Time            `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time            `json:"updatedAt,omitempty"`
	Analysis     *model.Analysis       `json:"analysis,omitempty"`
	ResearchData *model.EvidenceBundle `json:"researchData,omitempty"`
	Error        string                `json:"error,omitempty"`
}

// NewJobView projects a stored job. Analysis and research data are exposed
// only once the job completed; the error only once it failed.
func NewJobView(j *model.Job) *JobView {
	created, updated := j.CreatedAt, j.UpdatedAt
	v := &JobView{
		JobID:       j.ID,
		Status:      j.Status,
		Progress:    j.Progress,
		CurrentStep: j.CurrentStep,
		Seller:      j.Seller,
		Target:      j.Target,
		CreatedAt:   &created,
		UpdatedAt:   &updated,
	}
	switch j.Status {
	case model.JobStatusCompleted:
		v.Analysis = j.AnalysisData
		v.ResearchData = j.ResearchData
	case model.JobStatusFailed:
		v.Error = j.Error
	}
	return v
}

// StatusReader answers polls. It never writes.
type StatusReader struct {
	store store.Store
	grace time.Duration
	now   func() time.Time
}

// NewStatusReader returns a reader with the given grace window; zero uses
// DefaultGraceWindow.
func NewStatusReader(st store.Store, grace time.Duration) *StatusReader {
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	return &StatusReader{store: st, grace: grace, now: time.Now}
}

// GetStatus returns the job's view. A missing record whose id was issued
// within the grace window reads as a synthetic pending job; otherwise
// ErrJobNotFound. Other store errors are returned as is.
func (r *StatusReader) GetStatus(ctx context.Context, jobID string) (*JobView, error) {
	if jobID == "" {
		return nil, eris.Wrap(ErrInvalidInput, "jobId is required")
	}

	job, err := r.store.GetJob(ctx, jobID)
	if err == nil {
		return NewJobView(job), nil
	}
	if !errors.Is(err, store.ErrJobNotFound) {
		return nil, eris.Wrapf(err, "pipeline: get status %s", jobID)
	}

	issued, perr := model.JobIDTime(jobID)
	if perr == nil {
		if age := r.now().Sub(issued); age >= 0 && age < r.grace {
			return &JobView{
				JobID:    jobID,
				Status:   model.JobStatusPending,
				Progress: startingProgress,
				Message:  startingMessage,
			}, nil
		}
	}
	return nil, eris.Wrapf(ErrJobNotFound, "pipeline: job %s", jobID)
}
