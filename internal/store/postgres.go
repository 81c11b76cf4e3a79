package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// Pool is the subset of *pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
	now  func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. The
// scheduler issues these several times per job.
var preparedStatements = map[string]string{
	"insert_job":   `INSERT INTO jobs (` + pgJobColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (id) DO NOTHING`,
	"update_job":   pgUpdateJob,
	"complete_job": pgCompleteJob,
	"fail_job":     pgFailJob,
	"get_job":      `SELECT ` + pgJobColumns + ` FROM jobs WHERE id = $1`,
}

const pgJobColumns = `id, user_id, seller, target, status, progress, current_step, research_data, analysis_data, error, created_at, updated_at`

const pgUpdateJob = `UPDATE jobs SET status = $1, progress = $2, current_step = $3,
	research_data = COALESCE($4::jsonb, research_data), updated_at = $5
	WHERE id = $6 AND status NOT IN ('completed', 'failed') AND progress <= $2`

const pgCompleteJob = `UPDATE jobs SET status = 'completed', progress = 100, current_step = $1,
	analysis_data = $2, error = '', updated_at = $3
	WHERE id = $4 AND status NOT IN ('completed', 'failed')`

const pgFailJob = `UPDATE jobs SET status = 'failed', progress = 0, current_step = $1,
	analysis_data = NULL, error = $2, updated_at = $3
	WHERE id = $4 AND status NOT IN ('completed', 'failed')`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL DEFAULT '',
	seller        TEXT NOT NULL,
	target        TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'pending',
	progress      INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	current_step  TEXT NOT NULL DEFAULT '',
	research_data JSONB,
	analysis_data JSONB,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_user_created ON jobs(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS analyses (
	id                  TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id              TEXT NOT NULL,
	user_id             TEXT NOT NULL,
	seller_company      TEXT NOT NULL,
	target_company      TEXT NOT NULL,
	analysis_data       JSONB NOT NULL,
	success_probability DOUBLE PRECISION NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_analyses_user_id ON analyses(user_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	researchJSON, err := marshalNullable(job.ResearchData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal research data")
	}
	analysisJSON, err := marshalNullable(job.AnalysisData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis data")
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (`+pgJobColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) ON CONFLICT (id) DO NOTHING`,
		job.ID, job.UserID, job.Seller, job.Target, string(job.Status), job.Progress, job.CurrentStep,
		researchJSON, analysisJSON, job.Error, job.CreatedAt.UTC(), job.UpdatedAt.UTC(),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrJobExists, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, id string, u model.JobUpdate) error {
	if err := validateUpdate(id, u); err != nil {
		return err
	}
	researchJSON, err := marshalNullable(u.ResearchData)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal research data")
	}

	tag, err := s.pool.Exec(ctx, pgUpdateJob,
		string(u.Status), u.Progress, u.CurrentStep, researchJSON, s.now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", id)
	}
	return s.checkGuarded(ctx, tag, id)
}

func (s *PostgresStore) CompleteJob(ctx context.Context, id string, analysis *model.Analysis) error {
	if analysis == nil {
		return eris.Errorf("postgres: complete job %s: nil analysis", id)
	}
	analysisJSON, err := marshalNullable(analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis data")
	}

	tag, err := s.pool.Exec(ctx, pgCompleteJob,
		model.StepAnalysisComplete, analysisJSON, s.now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", id)
	}
	return s.checkGuarded(ctx, tag, id)
}

func (s *PostgresStore) FailJob(ctx context.Context, id string, msg string) error {
	tag, err := s.pool.Exec(ctx, pgFailJob,
		model.StepAnalysisFailed, msg, s.now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", id)
	}
	return s.checkGuarded(ctx, tag, id)
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgJobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, eris.Wrapf(err, "postgres: get job %s", id)
		}
		return nil, eris.Wrapf(ErrJobNotFound, "postgres: job %s", id)
	}
	j, err := scanPgJob(rows)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scan job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + pgJobColumns + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.UserID != "" {
		query += fmt.Sprintf(` AND user_id = $%d`, argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at > $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		j, err := scanPgJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, rec model.AnalysisRecord) error {
	analysisJSON, err := marshalNullable(rec.Analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis record")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO analyses (id, job_id, user_id, seller_company, target_company, analysis_data, success_probability, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.JobID, rec.UserID, rec.Seller, rec.Target, analysisJSON, rec.SuccessProbability, rec.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert analysis for job %s", rec.JobID)
}

func (s *PostgresStore) checkGuarded(ctx context.Context, tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return missError("postgres", id, false, "")
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: lookup job %s", id)
	}
	return missError("postgres", id, true, model.JobStatus(status))
}

func scanPgJob(rows pgx.Rows) (*model.Job, error) {
	var j model.Job
	var status string
	var researchJSON, analysisJSON []byte

	if err := rows.Scan(&j.ID, &j.UserID, &j.Seller, &j.Target, &status, &j.Progress, &j.CurrentStep,
		&researchJSON, &analysisJSON, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.Status = model.JobStatus(status)

	var err error
	if j.ResearchData, err = unmarshalNullable[model.EvidenceBundle](researchJSON); err != nil {
		return nil, eris.Wrap(err, "unmarshal research data")
	}
	if j.AnalysisData, err = unmarshalNullable[model.Analysis](analysisJSON); err != nil {
		return nil, eris.Wrap(err, "unmarshal analysis data")
	}
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return &j, nil
}
