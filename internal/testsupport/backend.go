package testsupport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"vigil/internal/services/backend"
)

// Call is one request received by the fake backend.
type Call struct {
	Method string
	Path   string
	Body   map[string]any
}

type failure struct {
	status int
	detail string
}

// FakeBackend is a scripted analysis backend. Every endpoint succeeds unless
// a failure is registered for its path.
type FakeBackend struct {
	Server *httptest.Server

	VideoID  int64
	ConfigID int64

	mu       sync.Mutex
	delay    time.Duration
	calls    []Call
	failures map[string]failure
	configs  map[int64]backend.StoredConfiguration
	results  map[int64]backend.AnalysisResult
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t testing.TB) *FakeBackend {
	t.Helper()
	f := &FakeBackend{
		VideoID:  42,
		ConfigID: 9,
		failures: make(map[string]failure),
		configs:  make(map[int64]backend.StoredConfiguration),
		results:  make(map[int64]backend.AnalysisResult),
	}
	f.Server = httptest.NewServer(f.routes())
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake backend.
func (f *FakeBackend) URL() string {
	return f.Server.URL
}

// Client returns a backend client bound to the fake.
func (f *FakeBackend) Client() *backend.Client {
	return backend.NewClient(f.Server.URL, 5*time.Second)
}

// Fail makes every request to path answer status with a FastAPI-style detail.
func (f *FakeBackend) Fail(path string, status int, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = failure{status: status, detail: detail}
}

// SetDelay slows every request down by d.
func (f *FakeBackend) SetDelay(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// AddResult seeds a stored analysis.
func (f *FakeBackend) AddResult(result backend.AnalysisResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.ID] = result
}

// AddConfiguration seeds a stored configuration.
func (f *FakeBackend) AddConfiguration(cfg backend.StoredConfiguration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[cfg.ID] = cfg
}

// Calls returns the received requests in order.
func (f *FakeBackend) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Paths returns "METHOD path" for every received request in order.
func (f *FakeBackend) Paths() []string {
	calls := f.Calls()
	out := make([]string, 0, len(calls))
	for _, call := range calls {
		out = append(out, call.Method+" "+call.Path)
	}
	return out
}

// LastBody returns the decoded JSON body of the latest request to path.
func (f *FakeBackend) LastBody(path string) map[string]any {
	calls := f.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Path == path {
			return calls[i].Body
		}
	}
	return nil
}

func (f *FakeBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "fake-backend 1.0"})
	})
	r.Post("/api/video/upload", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("video")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "missing video field"})
			return
		}
		_, _ = io.Copy(io.Discard, file)
		_ = file.Close()
		writeJSON(w, http.StatusOK, map[string]string{
			"video_path":     "../data/input/" + header.Filename,
			"video_filename": header.Filename,
		})
	})
	r.Post("/api/object-detection", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"video_id": f.VideoID, "message": "detection complete"})
	})
	r.Post("/api/configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"config_id": f.ConfigID})
	})
	r.Post("/api/configuration/link", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "linked"})
	})
	r.Get("/api/configuration", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		out := make([]backend.StoredConfiguration, 0, len(f.configs))
		for _, cfg := range f.configs {
			out = append(out, cfg)
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})
	r.Get("/api/configuration/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		cfg, ok := f.configs[id]
		f.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": fmt.Sprintf("Configuration %d not found", id)})
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	})
	r.Put("/api/configuration/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "updated"})
	})
	r.Delete("/api/configuration/{id}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	})
	r.Post("/api/anomaly/preprocess", okHandler)
	r.Post("/api/anomaly/recognition", okHandler)
	r.Post("/api/result-interpreter", okHandler)
	r.Post("/api/video/visualization", okHandler)
	r.Get("/api/results/xclip-preprocessing", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		out := make([]backend.AnalysisResult, 0, len(f.results))
		for _, res := range f.results {
			out = append(out, res)
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, out)
	})
	r.Delete("/api/results/xclip-preprocessing/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		f.mu.Lock()
		delete(f.results, id)
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted"})
	})
	r.Get("/api/video/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		writeJSON(w, http.StatusOK, backend.VideoMetadata{
			ID:             id,
			VideoPath:      "../data/input/clip.mp4",
			Duration:       12.5,
			FPS:            25,
			DateProcessed:  "2026-03-01T10:00:00",
			NameOfAnalysis: "Clip",
		})
	})
	r.Get("/api/detections/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		writeJSON(w, http.StatusOK, []backend.Detection{{
			ID:         1,
			VideoID:    id,
			StartFrame: 10,
			EndFrame:   80,
			Confidence: 0.91,
			TrackID:    3,
			Anomalies:  []backend.Anomaly{{Label: "fighting", Score: 0.72}, {Label: "normal", Score: 0.28}},
		}})
	})
	return r
}

// record captures the request and applies any scripted failure.
func (f *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := Call{Method: r.Method, Path: r.URL.Path}
		if r.Header.Get("Content-Type") == "application/json" {
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
				call.Body = body
			}
		}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		fail, failed := f.failures[r.URL.Path]
		delay := f.delay
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if failed {
			writeJSON(w, fail.status, map[string]string{"detail": fail.detail})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func okHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
