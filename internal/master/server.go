package master

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/projectpolygon/hypercube-go/internal/config"
	"github.com/projectpolygon/hypercube-go/internal/logger"
	"github.com/projectpolygon/hypercube-go/internal/master/dashboard"
	"github.com/projectpolygon/hypercube-go/internal/master/events"
	"github.com/projectpolygon/hypercube-go/internal/metrics"
	"github.com/projectpolygon/hypercube-go/internal/task"
	"github.com/projectpolygon/hypercube-go/internal/wire"
)

// Server is the coordinator's HTTP surface: the six protocol endpoints
// (spec.md section 4.4) plus the optional metrics/admin/dashboard endpoints.
type Server struct {
	router *chi.Mux
	coord  *Coordinator
	cfg    *config.MasterConfig
}

// NewServer builds a Server wrapping coord, wired per cfg.
func NewServer(cfg *config.MasterConfig, coord *Coordinator) *Server {
	s := &Server{
		router: chi.NewRouter(),
		coord:  coord,
		cfg:    cfg,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Router returns the underlying chi router.
func (s *Server) Router() *chi.Mux { return s.router }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(requestLogger())
	s.router.Use(chimiddleware.Recoverer)
}

// requestLogger logs one line per request via zerolog, matching the
// teacher's structured-access-log style.
func requestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func (s *Server) setupRoutes() {
	rl := RateLimit(&s.cfg.RateLimit)

	s.router.With(rl).Get(EndpointDiscovery, s.handleDiscovery)
	s.router.Get(EndpointJob, s.handleJob)
	s.router.Get(EndpointFile, s.handleFile)
	s.router.With(rl).Get(EndpointGetTasks, s.handleGetTasks)
	s.router.Post(EndpointTasksDone, s.handleTasksDone)
	s.router.Get(EndpointHeartbeat, s.handleHeartbeat)

	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	adminAuth := AdminAuth(&s.cfg.Admin)
	s.router.Group(func(r chi.Router) {
		r.Use(adminAuth)
		r.Get(EndpointAdminState, s.handleAdminStatus)
		r.Get("/dashboard/ws", dashboard.NewHandler(s.coord.Dashboard).ServeWS)
	})
}

// handleDiscovery answers /discovery with the coordinator's own LAN
// address. Never errors.
func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondJSON(w, http.StatusOK, DiscoveryResponse{IP: localIP()})
	metrics.RecordEndpoint(EndpointDiscovery, "200", time.Since(start).Seconds())
}

// handleJob answers GET /job: 404 once the job is done, otherwise registers
// the caller's connection (idempotently) and returns the JobInfo.
func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.coord.Status.IsJobDone() {
		respondError(w, http.StatusNotFound, "job is done")
		metrics.RecordEndpoint(EndpointJob, "404", time.Since(start).Seconds())
		return
	}

	connID, ok := connectionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or malformed id cookie")
		metrics.RecordEndpoint(EndpointJob, "400", time.Since(start).Seconds())
		return
	}

	if !s.coord.Connections.HasConnection(connID) {
		if err := s.coord.Connections.AddConnection(connID); err != nil {
			respondError(w, http.StatusBadRequest, "invalid connection id")
			metrics.RecordEndpoint(EndpointJob, "400", time.Since(start).Seconds())
			return
		}
		s.coord.publishEvent(r.Context(), events.New(events.ConnectionJoined, map[string]any{"connection_id": connID}))
	}

	respondJSON(w, http.StatusOK, s.coord.Job())
	metrics.RecordEndpoint(EndpointJob, "200", time.Since(start).Seconds())
}

// handleFile answers GET /file/{job_id}/{file_name}.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := EndpointFile

	jobID, err := strconv.Atoi(chi.URLParam(r, "job_id"))
	if err != nil || !s.validJob(jobID) {
		respondError(w, http.StatusForbidden, "wrong or uninitialized job")
		metrics.RecordEndpoint(endpoint, "403", time.Since(start).Seconds())
		return
	}

	fileName := chi.URLParam(r, "file_name")
	path := filepath.Join(s.coord.Job().JobPath, fileName)

	raw, err := os.ReadFile(path)
	if err != nil {
		respondError(w, http.StatusNotFound, "file not found")
		metrics.RecordEndpoint(endpoint, "404", time.Since(start).Seconds())
		return
	}

	compressed, err := wire.Compress(raw)
	if err != nil {
		logger.Error().Err(err).Str("file", fileName).Msg("failed to compress file")
		respondError(w, http.StatusInternalServerError, "compression failed")
		metrics.RecordEndpoint(endpoint, "500", time.Since(start).Seconds())
		return
	}

	metrics.RecordCompression("file", len(raw), len(compressed))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(compressed)
	metrics.RecordEndpoint(endpoint, "200", time.Since(start).Seconds())
}

// handleGetTasks answers GET /get_tasks/{job_id}/{n}.
func (s *Server) handleGetTasks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := EndpointGetTasks

	jobID, err1 := strconv.Atoi(chi.URLParam(r, "job_id"))
	n, err2 := strconv.Atoi(chi.URLParam(r, "n"))
	if err1 != nil || err2 != nil || !s.validJob(jobID) {
		respondError(w, http.StatusForbidden, "wrong or uninitialized job")
		metrics.RecordEndpoint(endpoint, "403", time.Since(start).Seconds())
		return
	}

	connID, ok := connectionIDFromRequest(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "missing or malformed id cookie")
		metrics.RecordEndpoint(endpoint, "400", time.Since(start).Seconds())
		return
	}

	tasks, err := s.coord.Tasks.ConnectAvailable(n, connID)
	switch {
	case errors.Is(err, ErrNoMoreAvailable):
		w.WriteHeader(StatusNoMoreAvailable)
		metrics.RecordEndpoint(endpoint, strconv.Itoa(StatusNoMoreAvailable), time.Since(start).Seconds())
		return
	case errors.Is(err, ErrNoMoreTasks):
		tasks = []task.Task{task.NewJobEnd(jobID)}
	case err != nil:
		logger.Error().Err(err).Msg("get_tasks: unexpected taskmanager error")
		respondError(w, http.StatusNotImplemented, "internal error")
		metrics.RecordEndpoint(endpoint, "501", time.Since(start).Seconds())
		return
	}

	available, inProgress, finished := s.coord.Tasks.Sizes()
	metrics.SetPartitionSizes(available, inProgress, finished)

	body, err := wire.EncodeTasks(tasks)
	if err != nil {
		logger.Error().Err(err).Msg("get_tasks: failed to encode task list")
		respondError(w, http.StatusInternalServerError, "serialization failed")
		metrics.RecordEndpoint(endpoint, "500", time.Since(start).Seconds())
		return
	}

	for _, t := range tasks {
		if !t.IsJobEnd() {
			s.coord.publishEvent(r.Context(), events.New(events.TaskDispatched, map[string]any{"task_id": t.TaskID, "connection_id": connID}))
		}
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	metrics.RecordEndpoint(endpoint, "200", time.Since(start).Seconds())
}

// handleTasksDone answers POST /tasks_done/{job_id}.
func (s *Server) handleTasksDone(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	endpoint := EndpointTasksDone

	jobID, err := strconv.Atoi(chi.URLParam(r, "job_id"))
	if err != nil || !s.validJob(jobID) {
		respondError(w, http.StatusForbidden, "wrong or uninitialized job")
		metrics.RecordEndpoint(endpoint, "403", time.Since(start).Seconds())
		return
	}

	body, err := readAll(r)
	if err != nil {
		logger.Error().Err(err).Msg("tasks_done: failed to read request body")
		respondError(w, http.StatusInternalServerError, "read failed")
		metrics.RecordEndpoint(endpoint, "500", time.Since(start).Seconds())
		return
	}

	reported, err := wire.DecodeTasks(body)
	if err != nil {
		logger.Error().Err(err).Msg("tasks_done: failed to decode task list")
		respondError(w, http.StatusInternalServerError, "deserialization failed")
		metrics.RecordEndpoint(endpoint, "500", time.Since(start).Seconds())
		return
	}

	if err := s.coord.Tasks.TasksFinished(reported); err != nil {
		logger.Error().Err(err).Msg("tasks_done: unexpected taskmanager error")
		respondError(w, http.StatusNotImplemented, "internal error")
		metrics.RecordEndpoint(endpoint, "501", time.Since(start).Seconds())
		return
	}

	available, inProgress, finished := s.coord.Tasks.Sizes()
	metrics.SetPartitionSizes(available, inProgress, finished)
	if s.coord.Status.IsJobDone() {
		metrics.JobCompleted.Set(1)
		s.coord.publishEvent(r.Context(), events.New(events.JobCompleted, map[string]any{"job_id": jobID}))
	}

	for _, t := range reported {
		switch t.MessageType {
		case task.Processed:
			s.coord.publishEvent(r.Context(), events.New(events.TaskCompleted, map[string]any{"task_id": t.TaskID}))
		case task.Failed, task.Raw:
			s.coord.publishEvent(r.Context(), events.New(events.TaskRequeued, map[string]any{"task_id": t.TaskID, "reason": "failed"}))
		}
	}

	w.WriteHeader(http.StatusOK)
	metrics.RecordEndpoint(endpoint, "200", time.Since(start).Seconds())
}

// handleHeartbeat answers GET /heartbeat.
func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if connID, ok := connectionIDFromRequest(r); ok {
		s.coord.Connections.ResetConnectionTimer(connID)
	}
	w.WriteHeader(http.StatusOK)
	metrics.RecordEndpoint(EndpointHeartbeat, "200", time.Since(start).Seconds())
}

// handleAdminStatus answers GET /admin/status with the rendered progress
// line and a JSON status snapshot, gated behind AdminAuth.
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, adminStatusResponse{
		Status:      s.coord.Status.Snapshot(),
		Rendered:    s.coord.Status.Render(),
		Connections: s.coord.Connections.Count(),
		Dashboard:   s.coord.Dashboard.ClientCount(),
	})
}

type adminStatusResponse struct {
	Status      Status `json:"status"`
	Rendered    string `json:"rendered"`
	Connections int    `json:"connections"`
	Dashboard   int    `json:"dashboard_connections"`
}

func (s *Server) validJob(jobID int) bool {
	return jobID == s.coord.Job().JobID
}

func connectionIDFromRequest(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}

func readAll(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
