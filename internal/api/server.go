package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/events"
	"vigil/internal/history"
	"vigil/internal/logging"
	"vigil/internal/metrics"
	"vigil/internal/pipeline"
	"vigil/internal/runconfig"
	"vigil/internal/runlock"
	"vigil/internal/services/backend"
	"vigil/internal/session"
	"vigil/internal/stage"
)

const (
	maxBodyBytes = 1 << 20
	maxEventWait = 30 * time.Second
)

// ErrPreflight marks a run refused by a readiness check.
var ErrPreflight = errors.New("preflight failed")

// Runner is the orchestrator surface the API drives.
type Runner interface {
	Start(ctx context.Context, req pipeline.Request) (<-chan pipeline.Result, error)
	Running() bool
	Stages() stage.List
	Session() (session.Context, bool)
	LastOutcome() (pipeline.Outcome, bool)
	Reset() error
	RecordFPS(videoID int64, fps float64) bool
}

// VideoLookup fetches video metadata for display.
type VideoLookup interface {
	VideoMetadata(ctx context.Context, videoID int64) (backend.VideoMetadata, error)
}

// Deps wires the server to its collaborators. Events, History, Videos,
// Preflight, and LockPath are optional.
type Deps struct {
	Runner Runner
	// Videos fills in the frame rate of the retained session the first time
	// status is requested after a run.
	Videos    VideoLookup
	Events    *events.Bus
	History   *history.Store
	Defaults  runconfig.RunConfiguration
	Preflight func(ctx context.Context, videoPath string) error
	LockPath  string
	Logger    *slog.Logger
	// RunContext bounds every run started through the API. Defaults to
	// context.Background.
	RunContext context.Context
	NewRunID   func() string
}

// Server is the local control API.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	handler http.Handler
	runs    sync.WaitGroup
}

// New builds a Server and its routes.
func New(deps Deps) *Server {
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}
	if deps.NewRunID == nil {
		deps.NewRunID = uuid.NewString
	}
	metrics.Init()
	s := &Server{deps: deps, logger: logging.NewComponentLogger(deps.Logger, "api")}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Wait blocks until every run started through the API has finished.
func (s *Server) Wait() {
	s.runs.Wait()
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("api listening", logging.String("addr", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown api: %w", err)
		}
		return nil
	}
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/runs", s.handleRun)
		r.Post("/reruns", s.handleRerun)
		r.Post("/reset", s.handleReset)
		if s.deps.Events != nil {
			r.Get("/events", s.handleEvents)
		}
		if s.deps.History != nil {
			r.Get("/history", s.handleHistoryList)
			r.Get("/history/{id}", s.handleHistoryGet)
		}
	})
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view := StatusView{
		Running: s.deps.Runner.Running(),
		Stages:  FromStages(s.deps.Runner.Stages()),
	}
	if sess, ok := s.deps.Runner.Session(); ok {
		if !view.Running && sess.HasVideo() && sess.FPS == 0 && s.deps.Videos != nil {
			sess.FPS = s.lookupFPS(r.Context(), sess.VideoID)
		}
		view.Session = FromSession(sess)
	}
	if outcome, ok := s.deps.Runner.LastOutcome(); ok {
		view.LastOutcome = FromOutcome(outcome)
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) lookupFPS(ctx context.Context, videoID int64) float64 {
	meta, err := s.deps.Videos.VideoMetadata(ctx, videoID)
	if err != nil {
		logging.WarnWithContext(s.logger, "video metadata unavailable", "results_unavailable",
			logging.Int64(logging.FieldVideoID, videoID),
			logging.Error(err),
		)
		return 0
	}
	if !s.deps.Runner.RecordFPS(videoID, meta.FPS) {
		return 0
	}
	return meta.FPS
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	videoPath := strings.TrimSpace(body.VideoPath)
	if videoPath != "" && s.deps.Preflight != nil {
		if err := s.deps.Preflight(r.Context(), videoPath); err != nil {
			s.respondRunError(w, fmt.Errorf("%w: %w", ErrPreflight, err))
			return
		}
	}
	s.start(w, r, pipeline.Request{
		Mode:      stage.ModeFull,
		Config:    s.runConfig(body.Categories, body.Settings),
		VideoPath: videoPath,
		RunName:   body.RunName,
	})
}

func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	var body RerunRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := pipeline.Request{
		Mode:    stage.ModePartial,
		Config:  s.runConfig(body.Categories, body.Settings),
		VideoID: body.VideoID,
	}
	if sess, ok := s.deps.Runner.Session(); ok && sess.VideoID > 0 {
		if req.VideoID == 0 {
			req.VideoID = sess.VideoID
		}
		if req.VideoID == sess.VideoID {
			req.Session = &sess
		}
	}
	s.start(w, r, req)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Runner.Reset(); err != nil {
		s.respondRunError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) start(w http.ResponseWriter, r *http.Request, req pipeline.Request) {
	logger := logging.WithContext(r.Context(), s.logger)

	var lock *runlock.Lock
	if s.deps.LockPath != "" {
		acquired, err := runlock.Acquire(s.deps.LockPath)
		if err != nil {
			s.respondRunError(w, err)
			return
		}
		lock = acquired
	}

	var since int64
	if s.deps.Events != nil {
		since = s.deps.Events.Last()
	}
	req.RunID = s.deps.NewRunID()
	results, err := s.deps.Runner.Start(s.deps.RunContext, req)
	if err != nil {
		_ = lock.Release()
		s.respondRunError(w, err)
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		res := <-results
		if err := lock.Release(); err != nil {
			logging.WarnWithContext(logger, "run lock release failed", "lock_release_failed",
				logging.String(logging.FieldErrorHint, "remove the lock file if no vigil process is running"),
				logging.Error(err),
			)
		}
		logger.Debug("api run finished",
			logging.String("run_id", res.Outcome.RunID),
			logging.String("status", string(res.Outcome.Status)),
		)
	}()

	writeJSON(w, http.StatusAccepted, AcceptedResponse{
		RunID:  req.RunID,
		Mode:   string(req.Mode),
		Stages: FromStages(stage.Build(req.Mode)),
		Since:  since,
	})
}

// runConfig overlays request values on the server defaults.
func (s *Server) runConfig(categories []string, settings runconfig.Settings) runconfig.RunConfiguration {
	cfg := s.deps.Defaults.Snapshot()
	if len(categories) > 0 {
		cfg.Categories = runconfig.NormalizeCategories(categories)
	}
	if len(settings) > 0 {
		if cfg.Settings == nil {
			cfg.Settings = runconfig.Settings{}
		}
		for key, value := range settings.Clone() {
			cfg.Settings[key] = value
		}
	}
	return cfg
}

func (s *Server) respondRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidConfiguration):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrRunAlreadyInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrPreflight):
		writeError(w, http.StatusPreconditionFailed, err.Error())
	default:
		s.logger.Error("run request failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start run")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	since, err := parseInt(r.URL.Query().Get("since"))
	if err != nil || since < 0 {
		writeError(w, http.StatusBadRequest, "invalid since")
		return
	}
	waitSeconds, err := parseInt(r.URL.Query().Get("wait"))
	if err != nil || waitSeconds < 0 {
		writeError(w, http.StatusBadRequest, "invalid wait")
		return
	}

	var feed []events.Event
	if waitSeconds > 0 {
		wait := min(time.Duration(waitSeconds)*time.Second, maxEventWait)
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		feed = s.deps.Events.Wait(ctx, since)
	} else {
		feed = s.deps.Events.Since(since)
	}

	next := since
	if len(feed) > 0 {
		next = feed[len(feed)-1].Seq
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: FromEvents(feed), Next: next})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	runs, err := s.deps.History.List(r.Context(), int(limit))
	if err != nil {
		s.logger.Error("list history failed", logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	out := make([]HistoryRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, FromHistoryRun(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.deps.History.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get history failed", logging.String("run_id", id), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	stages, err := s.deps.History.Stages(r.Context(), id)
	if err != nil {
		s.logger.Error("get history stages failed", logging.String("run_id", id), logging.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, HistoryDetail{HistoryRun: FromHistoryRun(run), Stages: FromStageEvents(stages)})
}

func parseInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func decodeJSON(r *http.Request, dst any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errors.New("request body required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body required")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
