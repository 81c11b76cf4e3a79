package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// Sentinel errors returned by every Store implementation. Callers check them
// with errors.Is.
var (
	ErrJobNotFound  = eris.New("job not found")
	ErrJobFinalized = eris.New("job already finalized")
	ErrJobExists    = eris.New("job already exists")

	ErrProgressRegressed = eris.New("job progress would move backwards")
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status       model.JobStatus `json:"status,omitempty"`
	UserID       string          `json:"user_id,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitzero"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for analysis jobs.
//
// Writes to a job in a terminal status are rejected with ErrJobFinalized, so
// a completed or failed record never changes after it is written. UpdateJob
// rejects a progress value below the stored one with ErrProgressRegressed.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, id string, u model.JobUpdate) error
	CompleteJob(ctx context.Context, id string, analysis *model.Analysis) error
	FailJob(ctx context.Context, id string, msg string) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Analyses history
	SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

var terminalStatuses = []any{string(model.JobStatusCompleted), string(model.JobStatusFailed)}

func validateUpdate(id string, u model.JobUpdate) error {
	if !u.Status.Valid() || u.Status.IsTerminal() {
		return eris.Errorf("store: invalid progress status %q for job %s", u.Status, id)
	}
	if u.Progress < 0 || u.Progress > 100 {
		return eris.Errorf("store: progress %d out of range for job %s", u.Progress, id)
	}
	return nil
}

// missError explains why a guarded write touched no rows. status is the
// stored status when found.
func missError(driver, id string, found bool, status model.JobStatus) error {
	switch {
	case !found:
		return eris.Wrapf(ErrJobNotFound, "%s: job %s", driver, id)
	case status.IsTerminal():
		return eris.Wrapf(ErrJobFinalized, "%s: job %s", driver, id)
	default:
		return eris.Wrapf(ErrProgressRegressed, "%s: job %s", driver, id)
	}
}

// marshalNullable encodes v as JSON, returning nil for a nil pointer so the
// column is left NULL.
func marshalNullable[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func unmarshalNullable[T any](data []byte) (*T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
