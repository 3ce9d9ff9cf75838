// Package api exposes the HTTP interface for the ingestion and query service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/metrics"
	"github.com/quarrylabs/quarry/internal/pipeline"
	"github.com/quarrylabs/quarry/internal/rag"
)

// Server wires HTTP handlers to the dispatcher, stores, and query path.
type Server struct {
	router     chi.Router
	jobStore   rag.JobStore
	dispatcher *pipeline.Dispatcher
	embedder   rag.Embedder
	index      rag.VectorIndex
	generator  rag.Generator
	idGen      rag.IDGenerator
	clock      rag.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore rag.JobStore,
	dispatcher *pipeline.Dispatcher,
	embedder rag.Embedder,
	index rag.VectorIndex,
	generator rag.Generator,
	idGen rag.IDGenerator,
	clock rag.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobStore:   jobStore,
		dispatcher: dispatcher,
		embedder:   embedder,
		index:      index,
		generator:  generator,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/ingest", s.ingest)
		r.Get("/status/{job_id}", s.getJobStatus)
		r.Post("/ask", s.ask)
		r.Get("/health/jobs", s.getStuckJobs)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type ingestRequest struct {
	SeedURLs        []string `json:"seed_urls"`
	DomainAllowlist []string `json:"domain_allowlist"`
	MaxPages        *int     `json:"max_pages"`
	MaxDepth        *int     `json:"max_depth"`
	UserNotes       string   `json:"user_notes"`
}

type ingestResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobCfg, err := s.toJobConfig(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to generate job id")
		return
	}
	job := rag.Job{
		ID:            jobID,
		Status:        rag.JobStatusPending,
		Config:        jobCfg,
		StartedAt:     s.clock.Now(),
		LastHeartbeat: s.clock.Now(),
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := rag.QueueItem{
		JobID:     jobID,
		Config:    jobCfg,
		Submitted: s.clock.Now().Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusServiceUnavailable, "ingestion queue is full, try again later")
		return
	}

	s.logger.Info("ingestion job initiated",
		zap.String("job_id", jobID),
		zap.Strings("seed_urls", jobCfg.SeedURLs))
	s.writeJSON(w, http.StatusAccepted, ingestResponse{
		JobID:   jobID,
		Message: "Ingestion job started. Check status using GET /api/status/{job_id}",
	})
}

func (s *Server) toJobConfig(req ingestRequest) (rag.JobConfig, error) {
	if len(req.SeedURLs) == 0 {
		return rag.JobConfig{}, errors.New("seed_urls must not be empty")
	}
	if len(req.DomainAllowlist) == 0 {
		return rag.JobConfig{}, errors.New("domain_allowlist must not be empty")
	}
	for _, seed := range req.SeedURLs {
		parsed, err := url.Parse(seed)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return rag.JobConfig{}, fmt.Errorf("seed URL %q is not a valid http(s) URL", seed)
		}
	}

	maxPages := valueOrDefault(req.MaxPages, 20)
	maxDepth := valueOrDefault(req.MaxDepth, 2)
	if maxPages <= 0 || maxPages > s.cfg.Crawler.MaxPagesLimit {
		return rag.JobConfig{}, fmt.Errorf("max_pages must be between 1 and %d", s.cfg.Crawler.MaxPagesLimit)
	}
	if maxDepth < 0 || maxDepth > s.cfg.Crawler.MaxDepthLimit {
		return rag.JobConfig{}, fmt.Errorf("max_depth must be between 0 and %d", s.cfg.Crawler.MaxDepthLimit)
	}

	return rag.JobConfig{
		SeedURLs:        req.SeedURLs,
		DomainAllowlist: req.DomainAllowlist,
		MaxPages:        maxPages,
		MaxDepth:        maxDepth,
		UserNotes:       req.UserNotes,
	}, nil
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, rag.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Job with ID '%s' not found.", jobID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

type askRequest struct {
	JobID    string `json:"job_id"`
	Question string `json:"question"`
}

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.JobID == "" {
		s.writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	if len(req.Question) < 5 {
		s.writeError(w, http.StatusBadRequest, "question must be at least 5 characters")
		return
	}

	job, err := s.jobStore.GetJob(r.Context(), req.JobID)
	if err != nil {
		if errors.Is(err, rag.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Job with ID '%s' not found.", req.JobID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	if job.Status != rag.JobStatusCompleted {
		s.writeError(w, http.StatusConflict, fmt.Sprintf(
			"Job '%s' is not completed yet. Current status: %s. "+
				"Please wait for the ingestion to finish before asking questions.",
			req.JobID, job.Status))
		return
	}

	answer, err := s.answerQuestion(r.Context(), req.JobID, req.Question)
	if err != nil {
		s.logger.Error("ask request failed",
			zap.String("job_id", req.JobID),
			zap.Error(err))
		s.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("An error occurred while processing your question: %s", err))
		return
	}
	s.writeJSON(w, http.StatusOK, answer)
}

// answerQuestion runs the retrieval and generation path. A missing index
// is treated as an empty retrieval so completed-but-empty jobs still get
// the deterministic no-evidence answer.
func (s *Server) answerQuestion(ctx context.Context, jobID, question string) (rag.Answer, error) {
	queryVec, err := s.embedder.EmbedOne(ctx, question)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("embed question: %w", err)
	}

	results, err := s.index.Search(ctx, jobID, queryVec, s.cfg.Generation.TopK)
	if err != nil && !errors.Is(err, rag.ErrIndexNotFound) {
		return rag.Answer{}, fmt.Errorf("search index: %w", err)
	}

	answer, err := s.generator.Generate(ctx, question, results)
	if err != nil {
		return rag.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	return answer, nil
}

func (s *Server) getStuckJobs(w http.ResponseWriter, r *http.Request) {
	stuck, err := s.jobStore.ScanStuck(r.Context(), s.clock.Now(), s.cfg.WatchdogThreshold())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError,
			fmt.Sprintf("An error occurred while retrieving stuck jobs: %s", err))
		return
	}
	if stuck == nil {
		stuck = []rag.Job{}
	}
	s.writeJSON(w, http.StatusOK, stuck)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeJSONTo(w, http.StatusForbidden, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func valueOrDefault(ptr *int, def int) int {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSONTo(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
