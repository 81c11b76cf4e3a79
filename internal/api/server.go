// Package api serves the deal-analysis HTTP endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/monitoring"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/pipeline"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/resilience"
	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/store"
)

const (
	defaultUserIDHeader = "X-User-Id"
	defaultJobsLimit    = 20
	maxJobsLimit        = 100
	maxBodyBytes        = 1 << 16
)

// Scheduler is the part of pipeline.Scheduler the handlers use.
type Scheduler interface {
	Submit(ctx context.Context, seller, target, userID string) (*pipeline.SubmitResult, error)
	Execute(ctx context.Context, jobID, seller, target, userID string) pipeline.Outcome
}

// StatusReader answers status polls.
type StatusReader interface {
	GetStatus(ctx context.Context, jobID string) (*pipeline.JobView, error)
}

// CircuitReporter exposes a research circuit breaker state for /health.
type CircuitReporter interface {
	State() resilience.CircuitState
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Scheduler Scheduler
	Status    StatusReader
	Store     store.Store

	// Optional.
	Research     CircuitReporter
	Gatherer     prometheus.Gatherer
	HTTPMetrics  *monitoring.HTTPMiddleware
	CORSOrigins  []string
	UserIDHeader string
}

type server struct {
	deps       Deps
	userHeader string
}

// NewRouter builds the chi router for all endpoints.
func NewRouter(d Deps) http.Handler {
	s := &server{deps: d, userHeader: d.UserIDHeader}
	if s.userHeader == "" {
		s.userHeader = defaultUserIDHeader
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if d.HTTPMetrics != nil {
		r.Use(d.HTTPMetrics.Handler)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", s.userHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/analysis-start", s.startAnalysis)
		r.Get("/analysis-status", s.analysisStatus)
		r.Post("/analysis-process", s.processAnalysis)
		r.Get("/jobs", s.listJobs)
	})
	return r
}

type errorReply struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	JobID   string `json:"jobId,omitempty"`
}

func reply(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (s *server) userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(s.userHeader))
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if s.deps.Research != nil {
		body["research_circuit"] = s.deps.Research.State().String()
	}
	reply(w, r, http.StatusOK, body)
}

type startRequest struct {
	Seller string `json:"seller"`
	Target string `json:"target"`
}

type startReply struct {
	JobID   string `json:"jobId"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Seller  string `json:"seller"`
	Target  string `json:"target"`
}

func (s *server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Invalid request body"})
		return
	}

	res, err := s.deps.Scheduler.Submit(r.Context(), req.Seller, req.Target, s.userID(r))
	switch {
	case errors.Is(err, pipeline.ErrInvalidInput):
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Seller and target companies are required"})
		return
	case err != nil:
		zap.L().Error("api: submit failed", zap.Error(err))
		reply(w, r, http.StatusInternalServerError, errorReply{Error: "Failed to start analysis", Details: err.Error()})
		return
	}

	reply(w, r, http.StatusOK, startReply{
		JobID:   res.JobID,
		Status:  res.Status,
		Message: "Analysis started successfully",
		Seller:  res.Seller,
		Target:  res.Target,
	})
}

func (s *server) analysisStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.URL.Query().Get("jobId"))
	if jobID == "" {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Job ID is required"})
		return
	}

	view, err := s.deps.Status.GetStatus(r.Context(), jobID)
	switch {
	case errors.Is(err, pipeline.ErrJobNotFound):
		reply(w, r, http.StatusNotFound, errorReply{Error: "Job not found", JobID: jobID})
		return
	case err != nil:
		zap.L().Error("api: status read failed", zap.String("job_id", jobID), zap.Error(err))
		reply(w, r, http.StatusInternalServerError, errorReply{Error: "Failed to get job status", Details: err.Error()})
		return
	}
	reply(w, r, http.StatusOK, view)
}

type processRequest struct {
	JobID  string `json:"jobId"`
	Seller string `json:"seller"`
	Target string `json:"target"`
}

// processAnalysis drives a pending job synchronously for the caller named by
// the identity header. A job that another driver has picked up or finished
// is refused with 409. The request context is not passed down: a
// disconnecting caller must not cancel the job.
func (s *server) processAnalysis(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), &req); err != nil {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Invalid request body"})
		return
	}
	req.JobID, req.Seller, req.Target = strings.TrimSpace(req.JobID), strings.TrimSpace(req.Seller), strings.TrimSpace(req.Target)
	if req.JobID == "" || req.Seller == "" || req.Target == "" {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "jobId, seller and target are required"})
		return
	}
	if _, err := model.JobIDTime(req.JobID); err != nil {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Malformed job ID", JobID: req.JobID})
		return
	}
	userID := s.userID(r)

	job, err := s.deps.Store.GetJob(r.Context(), req.JobID)
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		// Execute re-creates the record.
	case err != nil:
		zap.L().Error("api: job lookup failed", zap.String("job_id", req.JobID), zap.Error(err))
		reply(w, r, http.StatusInternalServerError, errorReply{Error: "Failed to process analysis", Details: err.Error()})
		return
	case job.UserID != "" && job.UserID != userID:
		reply(w, r, http.StatusForbidden, errorReply{Error: "Job belongs to another user", JobID: req.JobID})
		return
	case job.Status != model.JobStatusPending:
		reply(w, r, http.StatusConflict, errorReply{
			Error:   "Job is already " + string(job.Status),
			Details: "only pending jobs can be processed",
			JobID:   req.JobID,
		})
		return
	}

	out := s.deps.Scheduler.Execute(context.WithoutCancel(r.Context()), req.JobID, req.Seller, req.Target, userID)
	reply(w, r, http.StatusOK, out)
}

type jobsReply struct {
	Jobs []*pipeline.JobView `json:"jobs"`
}

func (s *server) listJobs(w http.ResponseWriter, r *http.Request) {
	userID := s.userID(r)
	if userID == "" {
		reply(w, r, http.StatusUnauthorized, errorReply{Error: "Authentication required"})
		return
	}

	q := r.URL.Query()
	status := model.JobStatus(q.Get("status"))
	if status != "" && !status.Valid() {
		reply(w, r, http.StatusBadRequest, errorReply{Error: "Unknown status " + strconv.Quote(string(status))})
		return
	}
	limit := defaultJobsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			reply(w, r, http.StatusBadRequest, errorReply{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxJobsLimit)
	}

	jobs, err := s.deps.Store.ListJobs(r.Context(), store.JobFilter{
		Status: status,
		UserID: userID,
		Limit:  limit,
	})
	if err != nil {
		zap.L().Error("api: list jobs failed", zap.String("user_id", userID), zap.Error(err))
		reply(w, r, http.StatusInternalServerError, errorReply{Error: "Failed to list jobs", Details: err.Error()})
		return
	}

	out := jobsReply{Jobs: make([]*pipeline.JobView, 0, len(jobs))}
	for i := range jobs {
		out.Jobs = append(out.Jobs, pipeline.NewJobView(&jobs[i]))
	}
	reply(w, r, http.StatusOK, out)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
