package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rotisserie/eris"
	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// BadgerStore implements Store on an embedded badgerhold database. Values
// are JSON encoded so free-form evidence maps round-trip unchanged.
type BadgerStore struct {
	db  *badgerhold.Store
	now func() time.Time
}

// NewBadger opens (or creates) a badger database in dir.
func NewBadger(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "badger: create dir %s", dir)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = badgerLogger{zap.L().Sugar().Named("badger")}
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, eris.Wrapf(err, "badger: open %s", dir)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Migrate is a no-op; badgerhold derives its layout from the stored types.
func (s *BadgerStore) Migrate(_ context.Context) error { return nil }

func (s *BadgerStore) Close() error {
	return eris.Wrap(s.db.Close(), "badger: close")
}

func (s *BadgerStore) CreateJob(_ context.Context, job *model.Job) error {
	rec := *job
	rec.CreatedAt = job.CreatedAt.UTC()
	rec.UpdatedAt = job.UpdatedAt.UTC()

	err := s.db.Insert(job.ID, &rec)
	if errors.Is(err, badgerhold.ErrKeyExists) {
		return eris.Wrapf(ErrJobExists, "badger: job %s", job.ID)
	}
	return eris.Wrapf(err, "badger: insert job %s", job.ID)
}

func (s *BadgerStore) UpdateJob(_ context.Context, id string, u model.JobUpdate) error {
	if err := validateUpdate(id, u); err != nil {
		return err
	}
	return s.mutate(id, func(j *model.Job, now time.Time) error {
		if u.Progress < j.Progress {
			return missError("badger", id, true, j.Status)
		}
		j.Apply(u, now)
		return nil
	})
}

func (s *BadgerStore) CompleteJob(_ context.Context, id string, analysis *model.Analysis) error {
	if analysis == nil {
		return eris.Errorf("badger: complete job %s: nil analysis", id)
	}
	return s.mutate(id, func(j *model.Job, now time.Time) error {
		j.Complete(analysis, now)
		return nil
	})
}

func (s *BadgerStore) FailJob(_ context.Context, id string, msg string) error {
	return s.mutate(id, func(j *model.Job, now time.Time) error {
		j.Fail(msg, now)
		return nil
	})
}

// mutate applies fn to a non-terminal job inside one badger transaction. An
// error from fn aborts the transaction.
func (s *BadgerStore) mutate(id string, fn func(*model.Job, time.Time) error) error {
	err := s.db.Badger().Update(func(tx *badger.Txn) error {
		var j model.Job
		if err := s.db.TxGet(tx, id, &j); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return missError("badger", id, false, "")
			}
			return eris.Wrapf(err, "badger: get job %s", id)
		}
		if j.Status.IsTerminal() {
			return missError("badger", id, true, j.Status)
		}
		if err := fn(&j, s.now()); err != nil {
			return err
		}
		return s.db.TxUpdate(tx, id, &j)
	})
	if err != nil && !errors.Is(err, ErrJobNotFound) && !errors.Is(err, ErrJobFinalized) && !errors.Is(err, ErrProgressRegressed) {
		return eris.Wrapf(err, "badger: update job %s", id)
	}
	return err
}

func (s *BadgerStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	var j model.Job
	if err := s.db.Get(id, &j); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, eris.Wrapf(ErrJobNotFound, "badger: job %s", id)
		}
		return nil, eris.Wrapf(err, "badger: get job %s", id)
	}
	return &j, nil
}

func (s *BadgerStore) ListJobs(_ context.Context, filter JobFilter) ([]model.Job, error) {
	query := badgerhold.Where("ID").Ne("")
	if filter.Status != "" {
		query = query.And("Status").Eq(filter.Status)
	}
	if filter.UserID != "" {
		query = query.And("UserID").Eq(filter.UserID)
	}
	if !filter.CreatedAfter.IsZero() {
		query = query.And("CreatedAt").Gt(filter.CreatedAfter.UTC())
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query = query.SortBy("CreatedAt").Reverse().Limit(limit)
	if filter.Offset > 0 {
		query = query.Skip(filter.Offset)
	}

	var jobs []model.Job
	if err := s.db.Find(&jobs, query); err != nil {
		return nil, eris.Wrap(err, "badger: list jobs")
	}
	return jobs, nil
}

func (s *BadgerStore) SaveAnalysis(_ context.Context, rec model.AnalysisRecord) error {
	rec.CreatedAt = rec.CreatedAt.UTC()
	return eris.Wrapf(s.db.Insert(rec.ID, &rec), "badger: insert analysis for job %s", rec.JobID)
}

// badgerLogger routes badger's internal logging through zap.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.s.Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.s.Debugf(f, v...) }
