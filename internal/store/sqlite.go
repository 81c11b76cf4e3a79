package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	seller        TEXT NOT NULL,
	target        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress      INTEGER NOT NULL DEFAULT 0,
	current_step  TEXT NOT NULL DEFAULT '',
	research_data TEXT,
	analysis_data TEXT,
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS analyses (
	id                  TEXT PRIMARY KEY,
	job_id              TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	seller_company      TEXT NOT NULL,
	target_company      TEXT NOT NULL,
	analysis_data       TEXT NOT NULL,
	success_probability REAL NOT NULL,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const sqliteJobColumns = `id, user_id, seller, target, status, progress, current_step, research_data, analysis_data, error, created_at, updated_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	researchJSON, err := marshalNullable(job.ResearchData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal research data")
	}
	analysisJSON, err := marshalNullable(job.AnalysisData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis data")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+sqliteJobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		job.ID, job.UserID, job.Seller, job.Target, string(job.Status), job.Progress, job.CurrentStep,
		nullText(researchJSON), nullText(analysisJSON), job.Error, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert job %s", job.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrJobExists, "sqlite: job %s", job.ID)
	}
	return nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, id string, u model.JobUpdate) error {
	if err := validateUpdate(id, u); err != nil {
		return err
	}
	researchJSON, err := marshalNullable(u.ResearchData)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal research data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, current_step = ?,
		        research_data = COALESCE(?, research_data), updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?) AND progress <= ?`,
		string(u.Status), u.Progress, u.CurrentStep, nullText(researchJSON), s.now().UTC(),
		id, terminalStatuses[0], terminalStatuses[1], u.Progress,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", id)
	}
	return s.checkGuarded(ctx, res, id)
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, id string, analysis *model.Analysis) error {
	if analysis == nil {
		return eris.Errorf("sqlite: complete job %s: nil analysis", id)
	}
	analysisJSON, err := marshalNullable(analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis data")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 100, current_step = ?, analysis_data = ?, error = '', updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.JobStatusCompleted), model.StepAnalysisComplete, string(analysisJSON), s.now().UTC(),
		id, terminalStatuses[0], terminalStatuses[1],
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", id)
	}
	return s.checkGuarded(ctx, res, id)
}

func (s *SQLiteStore) FailJob(ctx context.Context, id string, msg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = 0, current_step = ?, analysis_data = NULL, error = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(model.JobStatusFailed), model.StepAnalysisFailed, msg, s.now().UTC(),
		id, terminalStatuses[0], terminalStatuses[1],
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", id)
	}
	return s.checkGuarded(ctx, res, id)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE id = ?`, id,
	)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrJobNotFound, "sqlite: job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error {
	analysisJSON, err := marshalNullable(rec.Analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, job_id, user_id, seller_company, target_company, analysis_data, success_probability, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, rec.UserID, rec.Seller, rec.Target, string(analysisJSON), rec.SuccessProbability, rec.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert analysis for job %s", rec.JobID)
}

// helpers

// checkGuarded resolves a zero-row guarded write into not-found, finalized or
// regressed.
func (s *SQLiteStore) checkGuarded(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return missError("sqlite", id, false, "")
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: lookup job %s", id)
	}
	return missError("sqlite", id, true, model.JobStatus(status))
}

func nullText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.Job, error) {
	var j model.Job
	var researchJSON, analysisJSON sql.NullString

	if err := row.Scan(&j.ID, &j.UserID, &j.Seller, &j.Target, &j.Status, &j.Progress, &j.CurrentStep,
		&researchJSON, &analysisJSON, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if researchJSON.Valid {
		if j.ResearchData, err = unmarshalNullable[model.EvidenceBundle]([]byte(researchJSON.String)); err != nil {
			return nil, eris.Wrap(err, "unmarshal research data")
		}
	}
	if analysisJSON.Valid {
		if j.AnalysisData, err = unmarshalNullable[model.Analysis]([]byte(analysisJSON.String)); err != nil {
			return nil, eris.Wrap(err, "unmarshal analysis data")
		}
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
