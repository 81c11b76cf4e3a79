// Package pipeline runs deal-analysis jobs: research, generation, evidence
// fusion and persistence of each job's progress and result.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/config"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/resilience"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

// Progress checkpoints written by the driver.
const (
	StepStartingResearch = "Starting research phase"
	StepResearchComplete = "Research complete, starting analysis"
	StepResearchTimeout  = "Research timeout, proceeding with basic analysis"

	progressStarted          = 10
	progressResearchFailed   = 30
	progressResearchComplete = 50

	// defaultSuccessProbability is recorded when a scorecard has no overall score.
	defaultSuccessProbability = 50
)

// Stage names used in logs and metrics.
const (
	StageResearch   = "research"
	StageGeneration = "generation"
)

// Stage outcomes reported to Metrics.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// ErrSchedulerClosed is returned by Submit after Shutdown has begun.
var ErrSchedulerClosed = eris.New("scheduler is shut down")

// Metrics receives scheduler events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	JobSubmitted()
	StageFinished(stage, outcome string, d time.Duration)
	JobFinished(status model.JobStatus, d time.Duration)
	StoreWriteFailed(op string)
}

// NopMetrics discards every event.
type NopMetrics struct{}

func (NopMetrics) JobSubmitted()                               {}
func (NopMetrics) StageFinished(string, string, time.Duration) {}
func (NopMetrics) JobFinished(model.JobStatus, time.Duration)  {}
func (NopMetrics) StoreWriteFailed(string)                     {}

// Options bounds a job's stages and store writes.
type Options struct {
	ResearchTimeout   time.Duration
	GenerationTimeout time.Duration
	// TotalBudget caps research plus generation. Finalization runs after it
	// with its own WriteTimeout.
	TotalBudget  time.Duration
	WriteTimeout time.Duration
	Retry        resilience.RetryConfig
	Metrics      Metrics
	Now          func() time.Time
}

// DefaultOptions returns 8s stage timeouts within an 18s budget.
func DefaultOptions() Options {
	return Options{
		ResearchTimeout:   8 * time.Second,
		GenerationTimeout: 8 * time.Second,
		TotalBudget:       18 * time.Second,
		WriteTimeout:      5 * time.Second,
		Retry:             resilience.DefaultRetryConfig(),
		Metrics:           NopMetrics{},
		Now:               time.Now,
	}
}

// OptionsFromConfig builds Options from the pipeline and retry sections.
func OptionsFromConfig(p config.PipelineConfig, r config.RetryConfig) Options {
	o := DefaultOptions()
	o.ResearchTimeout = p.ResearchTimeout()
	o.GenerationTimeout = p.GenerationTimeout()
	o.TotalBudget = p.TotalBudget()
	o.WriteTimeout = p.WriteTimeout()
	o.Retry = resilience.RetryFromConfig(r)
	return o
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.ResearchTimeout <= 0 {
		o.ResearchTimeout = def.ResearchTimeout
	}
	if o.GenerationTimeout <= 0 {
		o.GenerationTimeout = def.GenerationTimeout
	}
	if o.TotalBudget <= 0 {
		o.TotalBudget = o.ResearchTimeout + o.GenerationTimeout + 2*time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = def.WriteTimeout
	}
	if o.Metrics == nil {
		o.Metrics = NopMetrics{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// SubmitResult is returned to the caller as soon as a job is accepted.
type SubmitResult struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
	Seller string `json:"seller"`
	Target string `json:"target"`
}

// Outcome is the terminal result of one Execute run.
type Outcome struct {
	JobID    string          `json:"jobId"`
	Status   model.JobStatus `json:"status"`
	Analysis *model.Analysis `json:"analysis,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Scheduler accepts jobs and drives each on its own goroutine.
type Scheduler struct {
	store    store.Store
	research Researcher
	generate Generator
	opts     Options

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler wires a scheduler. Drivers run detached from request
// contexts; Shutdown is the only way to cancel them.
func NewScheduler(st store.Store, r Researcher, g Generator, opts Options) *Scheduler {
	if r == nil {
		r = NoResearch
	}
	base, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:    st,
		research: r,
		generate: g,
		opts:     opts.withDefaults(),
		base:     base,
		cancel:   cancel,
	}
}

// Submit validates the pair, records a pending job and starts its driver.
// It does not wait for any stage. A failed initial write is logged and the
// job runs anyway.
func (s *Scheduler) Submit(ctx context.Context, seller, target, userID string) (*SubmitResult, error) {
	job, err := s.newJob(seller, target, userID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.opts.Metrics.JobSubmitted()
	s.createInitial(ctx, job)

	go func() {
		defer s.wg.Done()
		s.Execute(s.base, job.ID, job.Seller, job.Target, job.UserID)
	}()

	return &SubmitResult{JobID: job.ID, Status: "started", Seller: job.Seller, Target: job.Target}, nil
}

// Run records a job and drives it on the calling goroutine.
func (s *Scheduler) Run(ctx context.Context, seller, target, userID string) (Outcome, error) {
	job, err := s.newJob(seller, target, userID)
	if err != nil {
		return Outcome{}, err
	}
	s.opts.Metrics.JobSubmitted()
	s.createInitial(ctx, job)
	return s.Execute(ctx, job.ID, job.Seller, job.Target, job.UserID), nil
}

func (s *Scheduler) newJob(seller, target, userID string) (*model.Job, error) {
	seller, target = strings.TrimSpace(seller), strings.TrimSpace(target)
	if seller == "" || target == "" {
		return nil, eris.Wrap(ErrInvalidInput, "seller and target companies are required")
	}
	now := s.opts.Now()
	return model.NewJob(model.NewJobID(now), seller, target, strings.TrimSpace(userID), now), nil
}

func (s *Scheduler) createInitial(ctx context.Context, job *model.Job) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	if err := s.store.CreateJob(wctx, job); err != nil {
		s.opts.Metrics.StoreWriteFailed("create")
		zap.L().Warn("pipeline: initial job record not written, continuing",
			zap.String("job_id", job.ID),
			zap.Error(eris.Wrap(ErrPersistenceDegraded, err.Error())),
		)
	}
}

// Execute drives one job to a terminal state: research, generation, fusion
// and finalization. Progress only moves forward (10, then 30 or 50, then
// 100 or 0). Every write is attempted even if earlier ones failed. If the
// record was already finalized by another driver, the returned Outcome is
// the stored one.
func (s *Scheduler) Execute(ctx context.Context, jobID, seller, target, userID string) Outcome {
	start := s.opts.Now()
	log := zap.L().With(zap.String("job_id", jobID), zap.String("seller", seller), zap.String("target", target))
	ref := &jobRef{id: jobID, seller: seller, target: target, userID: userID}

	budget, cancel := context.WithTimeout(ctx, s.opts.TotalBudget)
	defer cancel()

	s.progress(ctx, ref, model.JobUpdate{
		Status:      model.JobStatusProcessing,
		Progress:    progressStarted,
		CurrentStep: StepStartingResearch,
	})

	bundle := s.runResearch(budget, log, seller, target)
	if bundle != nil {
		s.progress(ctx, ref, model.JobUpdate{
			Status:       model.JobStatusProcessing,
			Progress:     progressResearchComplete,
			CurrentStep:  StepResearchComplete,
			ResearchData: bundle,
		})
	} else {
		s.progress(ctx, ref, model.JobUpdate{
			Status:      model.JobStatusProcessing,
			Progress:    progressResearchFailed,
			CurrentStep: StepResearchTimeout,
		})
	}

	analysis, err := s.runGeneration(budget, log, GenerateRequest{
		Seller:       seller,
		Target:       target,
		SkipResearch: bundle != nil,
		ResearchData: bundle,
	})

	var out Outcome
	if err != nil {
		msg := failureMessage(err)
		out = Outcome{JobID: jobID, Status: model.JobStatusFailed, Error: msg}
		werr := s.write(ctx, ref, "fail", func(wctx context.Context) error {
			return s.store.FailJob(wctx, jobID, msg)
		})
		if errors.Is(werr, store.ErrJobFinalized) {
			out = s.storedOutcome(ctx, out)
		}
		log.Error("pipeline: job failed", zap.Error(err))
	} else {
		fused := Fuse(analysis, bundle)
		out = Outcome{JobID: jobID, Status: model.JobStatusCompleted, Analysis: fused}
		werr := s.write(ctx, ref, "complete", func(wctx context.Context) error {
			return s.store.CompleteJob(wctx, jobID, fused)
		})
		if errors.Is(werr, store.ErrJobFinalized) {
			out = s.storedOutcome(ctx, out)
		} else {
			s.saveHistory(ctx, ref, fused)
			log.Info("pipeline: job completed",
				zap.Float64("overall_score", fused.Scorecard.OverallScore),
				zap.Bool("research_complete", fused.ResearchEvidence.ResearchComplete),
			)
		}
	}

	d := s.opts.Now().Sub(start)
	s.opts.Metrics.JobFinished(out.Status, d)
	log.Debug("pipeline: driver finished", zap.Int64("duration_ms", d.Milliseconds()))
	return out
}

func (s *Scheduler) runResearch(ctx context.Context, log *zap.Logger, seller, target string) *model.EvidenceBundle {
	start := time.Now()
	bundle, err := callWithTimeout(ctx, s.opts.ResearchTimeout, func(ctx context.Context) (*model.EvidenceBundle, error) {
		return s.research.Research(ctx, seller, target)
	})
	outcome := stageOutcome(err)
	s.opts.Metrics.StageFinished(StageResearch, outcome, time.Since(start))
	if err != nil {
		log.Warn("pipeline: research unavailable, continuing without evidence",
			zap.String("outcome", outcome), zap.Error(err))
		return nil
	}
	return bundle.Normalize()
}

func (s *Scheduler) runGeneration(ctx context.Context, log *zap.Logger, req GenerateRequest) (*model.Analysis, error) {
	start := time.Now()
	a, err := callWithTimeout(ctx, s.opts.GenerationTimeout, func(ctx context.Context) (*model.Analysis, error) {
		return s.generate.Generate(ctx, req)
	})
	if err == nil && a == nil {
		err = eris.New("generator returned no analysis")
	}
	s.opts.Metrics.StageFinished(StageGeneration, stageOutcome(err), time.Since(start))
	if err != nil {
		return nil, eris.Wrap(err, ErrGenerationFailure.Error())
	}
	log.Debug("pipeline: generation complete", zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return a, nil
}

// callWithTimeout bounds fn by d even when fn ignores its context; a stage
// that never returns is abandoned once the deadline passes.
func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			return r.v, nil
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func stageOutcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	default:
		return OutcomeError
	}
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Analysis generation timed out"
	case errors.Is(err, context.Canceled):
		return "Analysis cancelled during shutdown"
	default:
		return "Analysis generation failed: " + err.Error()
	}
}

// jobRef carries what is needed to re-create a lost job record.
type jobRef struct {
	id, seller, target, userID string
	recreated                  bool
}

func (s *Scheduler) progress(ctx context.Context, ref *jobRef, u model.JobUpdate) {
	_ = s.write(ctx, ref, "progress", func(wctx context.Context) error {
		return s.store.UpdateJob(wctx, ref.id, u)
	})
}

// write runs one store mutation with a fresh deadline and transient-error
// retries. If the record is missing it is re-created once and the mutation
// re-applied. Failures are logged and returned; the driver carries on.
func (s *Scheduler) write(ctx context.Context, ref *jobRef, op string, fn func(context.Context) error) error {
	attempt := func() error {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
		defer cancel()
		retry := s.opts.Retry
		retry.OnRetry = resilience.RetryLogger(ref.id, op)
		return resilience.Do(wctx, retry, fn)
	}

	err := attempt()
	if errors.Is(err, store.ErrJobNotFound) && !ref.recreated {
		ref.recreated = true
		if rerr := s.recreate(ctx, ref); rerr == nil {
			err = attempt()
		} else {
			err = rerr
		}
	}
	if err != nil {
		s.opts.Metrics.StoreWriteFailed(op)
		zap.L().Warn("pipeline: job write failed",
			zap.String("job_id", ref.id), zap.String("operation", op), zap.Error(err))
	}
	return err
}

// storedOutcome reads back a record that was finalized by someone else.
// fallback is returned if the read fails.
func (s *Scheduler) storedOutcome(ctx context.Context, fallback Outcome) Outcome {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	job, err := s.store.GetJob(rctx, fallback.JobID)
	if err != nil {
		zap.L().Warn("pipeline: finalized job not readable", zap.String("job_id", fallback.JobID), zap.Error(err))
		return fallback
	}
	out := Outcome{JobID: job.ID, Status: job.Status, Error: job.Error}
	if job.Status == model.JobStatusCompleted {
		out.Analysis = job.AnalysisData
	}
	zap.L().Info("pipeline: job was already finalized",
		zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
	return out
}

func (s *Scheduler) recreate(ctx context.Context, ref *jobRef) error {
	created, err := model.JobIDTime(ref.id)
	if err != nil {
		created = s.opts.Now()
	}
	job := model.NewJob(ref.id, ref.seller, ref.target, ref.userID, created)
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	if err := s.store.CreateJob(wctx, job); err != nil && !errors.Is(err, store.ErrJobExists) {
		return eris.Wrapf(err, "pipeline: re-create job %s", ref.id)
	}
	zap.L().Info("pipeline: re-created missing job record", zap.String("job_id", ref.id))
	return nil
}

func (s *Scheduler) saveHistory(ctx context.Context, ref *jobRef, a *model.Analysis) {
	if ref.userID == "" {
		return
	}
	prob := a.Scorecard.OverallScore
	if prob == 0 {
		prob = defaultSuccessProbability
	}
	rec := model.AnalysisRecord{
		ID:                 uuid.NewString(),
		JobID:              ref.id,
		UserID:             ref.userID,
		Seller:             ref.seller,
		Target:             ref.target,
		Analysis:           a,
		SuccessProbability: prob,
		CreatedAt:          s.opts.Now().UTC(),
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.WriteTimeout)
	defer cancel()
	if err := s.store.SaveAnalysis(wctx, rec); err != nil {
		s.opts.Metrics.StoreWriteFailed("save_analysis")
		zap.L().Warn("pipeline: analysis history not saved", zap.String("job_id", ref.id), zap.Error(err))
	}
}

// Wait blocks until every submitted driver has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown stops accepting jobs and waits for in-flight drivers. When ctx
// ends first, remaining drivers are cancelled; they finalize as failed
// before Shutdown returns.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return eris.Wrap(ctx.Err(), "pipeline: shutdown deadline reached, in-flight jobs cancelled")
	}
}
