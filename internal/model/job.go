package model

import (
	"time"
)

// JobStatus represents the lifecycle state of an analysis job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions may leave the status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Job is one submitted (seller, target) analysis request and its mutable
// progress/result record.
type Job struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id,omitempty"`
	Seller       string          `json:"seller"`
	Target       string          `json:"target"`
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"current_step,omitempty"`
	ResearchData *EvidenceBundle `json:"research_data,omitempty"`
	AnalysisData *Analysis       `json:"analysis_data,omitempty"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob builds the initial pending record for a submission.
func NewJob(id, seller, target, userID string, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		UserID:    userID,
		Seller:    seller,
		Target:    target,
		Status:    JobStatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// JobUpdate is a progress checkpoint written by the scheduler between stages.
// ResearchData is only written when non-nil.
type JobUpdate struct {
	Status       JobStatus       `json:"status"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"current_step"`
	ResearchData *EvidenceBundle `json:"research_data,omitempty"`
}

// Current step labels written on finalization.
const (
	StepAnalysisComplete = "Analysis complete"
	StepAnalysisFailed   = "Analysis failed"
)

// Apply copies the update onto the job, refreshing UpdatedAt.
func (j *Job) Apply(u JobUpdate, now time.Time) {
	j.Status = u.Status
	j.Progress = u.Progress
	j.CurrentStep = u.CurrentStep
	if u.ResearchData != nil {
		j.ResearchData = u.ResearchData
	}
	j.UpdatedAt = now.UTC()
}

// Complete moves the job to its successful terminal state.
func (j *Job) Complete(a *Analysis, now time.Time) {
	j.Status = JobStatusCompleted
	j.Progress = 100
	j.CurrentStep = StepAnalysisComplete
	j.AnalysisData = a
	j.Error = ""
	j.UpdatedAt = now.UTC()
}

// Fail moves the job to its failed terminal state.
func (j *Job) Fail(msg string, now time.Time) {
	j.Status = JobStatusFailed
	j.Progress = 0
	j.CurrentStep = StepAnalysisFailed
	j.AnalysisData = nil
	j.Error = msg
	j.UpdatedAt = now.UTC()
}

// AnalysisRecord is the per-user history row written when an authenticated
// user's job completes.
type AnalysisRecord struct {
	ID                 string    `json:"id"`
	JobID              string    `json:"job_id"`
	UserID             string    `json:"user_id"`
	Seller             string    `json:"seller_company"`
	Target             string    `json:"target_company"`
	Analysis           *Analysis `json:"analysis_data"`
	SuccessProbability float64   `json:"success_probability"`
	CreatedAt          time.Time `json:"created_at"`
}
